package config

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"walldraft/internal/collab"
	"walldraft/internal/domain"
	"walldraft/internal/metrics"
	"walldraft/internal/repository"
	"walldraft/internal/service"
	"walldraft/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config         *AppConfig
	Logger         domain.Logger
	Clock          quartz.Clock
	Registry       *prometheus.Registry
	Metrics        *metrics.Metrics
	SupabaseClient domain.SupabaseClient

	DraftRepository   domain.DraftRepository
	ImageRepository   domain.ImageRepository
	PlanRepository    domain.PlanRepository
	UserRepository    domain.UserRepository
	UpgradeRepository domain.UpgradeRequestRepository

	Hub            *collab.Hub
	AuthService    domain.AuthService
	QuotaService   domain.QuotaService
	PlanService    domain.PlanService
	ShareService   domain.ShareService
	UpgradeService domain.UpgradeService
	UserService    domain.UserService
	DraftService   domain.DraftService

	db *sql.DB
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *AppConfig) (*Container, error) {
	appLogger := logger.NewLogger(cfg.GetLogLevel(), cfg.GetLogFormat())
	return NewContainerWithLogger(ctx, cfg, appLogger)
}

// NewContainerWithLogger is NewContainer with a caller-supplied logger.
func NewContainerWithLogger(ctx context.Context, cfg *AppConfig, appLogger domain.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   appLogger,
		Clock:    quartz.NewReal(),
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.New(c.Registry)

	// Supabase Auth is the identity provider for every store driver.
	supabaseClient := repository.NewSupabaseClient(cfg, appLogger)
	if err := supabaseClient.Initialize(); err != nil {
		if cfg.GetStoreDriver() == StoreDriverSupabase {
			return nil, err
		}
		appLogger.Warn("Supabase unavailable, only share-link access will work", "error", err)
	}
	c.SupabaseClient = supabaseClient

	if err := c.initRepositories(ctx); err != nil {
		return nil, err
	}

	c.Hub = collab.NewHub(cfg.GetCollabBuffer(), c.Metrics, appLogger)
	storage := service.NewStorageService(cfg.GetSupabaseURL(), cfg.GetSupabaseServiceRoleKey(), cfg.GetStorageBucket())
	resolver := service.NewAccessResolver(c.Clock)

	c.AuthService = service.NewAuthService(supabaseClient, c.Clock, appLogger)
	c.QuotaService = service.NewQuotaService(c.PlanRepository, c.UserRepository, c.DraftRepository, c.ImageRepository, cfg.GetGuestUploadLimit(), c.Metrics, appLogger)
	planService := service.NewPlanService(c.PlanRepository, c.Clock, appLogger)
	c.PlanService = planService
	c.ShareService = service.NewShareService(c.DraftRepository, c.UserRepository, resolver, c.Clock, cfg.GetPublicBaseURL(), c.Metrics, appLogger)
	c.UpgradeService = service.NewUpgradeService(c.UpgradeRepository, c.UserRepository, c.PlanRepository, c.Clock, c.Metrics, appLogger)
	c.UserService = service.NewUserService(c.UserRepository, c.PlanRepository, c.QuotaService, c.Clock, appLogger)
	c.DraftService = service.NewDraftService(c.DraftRepository, c.ImageRepository, c.QuotaService, resolver, storage, c.Hub, c.Clock, appLogger)

	if path := cfg.GetPlansSeedFile(); path != "" {
		seed, err := LoadPlanSeed(path)
		if err != nil {
			c.Close()
			return nil, err
		}
		created, err := planService.SeedPlans(ctx, seed.Plans)
		if err != nil {
			c.Close()
			return nil, err
		}
		appLogger.Info("Plan seed applied", "file", path, "created", created)
	}

	return c, nil
}

func (c *Container) initRepositories(ctx context.Context) error {
	switch c.Config.GetStoreDriver() {
	case StoreDriverSQLite:
		db, err := repository.OpenSQLite(ctx, c.Config.GetSQLitePath())
		if err != nil {
			return err
		}
		c.db = db
		c.DraftRepository = repository.NewSQLiteDraftRepository(db, c.Logger)
		c.ImageRepository = repository.NewSQLiteImageRepository(db, c.Logger)
		c.PlanRepository = repository.NewSQLitePlanRepository(db, c.Logger)
		c.UserRepository = repository.NewSQLiteUserRepository(db, c.Logger)
		c.UpgradeRepository = repository.NewSQLiteUpgradeRepository(db, c.Logger)
		c.Logger.Info("Using SQLite store", "path", c.Config.GetSQLitePath())
	case StoreDriverSupabase:
		c.DraftRepository = repository.NewSupabaseDraftRepository(c.SupabaseClient, c.Logger)
		c.ImageRepository = repository.NewSupabaseImageRepository(c.SupabaseClient, c.Logger)
		c.PlanRepository = repository.NewSupabasePlanRepository(c.SupabaseClient, c.Logger)
		c.UserRepository = repository.NewSupabaseUserRepository(c.SupabaseClient, c.Logger)
		c.UpgradeRepository = repository.NewSupabaseUpgradeRepository(c.SupabaseClient, c.Logger)
		c.Logger.Info("Using Supabase store")
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Config.GetStoreDriver())
	}
	return nil
}

// Close releases the store connection.
func (c *Container) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
