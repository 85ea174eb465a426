package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"walldraft/internal/config"
	"walldraft/internal/handler"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading configuration")
	addr := pflag.String("addr", "", "listen address; defaults to :$PORT")
	shutdownTimeout := pflag.Duration("shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	pflag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: %s not found or could not be loaded: %v", *envFile, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wiring
	cfg := config.NewConfig()
	container, err := config.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer container.Close()

	// Handlers
	handlers := handler.Handlers{
		Auth:   handler.NewAuthHandler(container.UserService, container.UpgradeService, container.Logger),
		Admin:  handler.NewAdminHandler(container.PlanService, container.UpgradeService, container.Logger),
		Draft:  handler.NewDraftHandler(container.DraftService, container.QuotaService, cfg.GetMaxUploadSize(), container.Logger),
		Share:  handler.NewShareHandler(container.ShareService, container.Logger),
		Plan:   handler.NewPlanHandler(container.PlanService, container.Logger),
		Collab: handler.NewCollabHandler(container.DraftService, container.Hub, originPatterns(cfg.GetCORSAllowedOrigins()), container.Logger),
	}
	authMiddleware := handler.NewAuthMiddleware(container.AuthService, container.UserService, container.Logger)

	// Router
	router := handler.NewRouter(handlers, authMiddleware, handler.RouterOptions{
		AllowedOrigins:  cfg.GetCORSAllowedOrigins(),
		PublicRateLimit: cfg.GetPublicRateLimit(),
		Gatherer:        container.Registry,
	})

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = ":" + cfg.GetServerPort()
	}
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Run server
	serverErr := make(chan error, 1)
	go func() {
		container.Logger.Info("Server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case err := <-serverErr:
		container.Logger.Error("Server failed to start", err)
		container.Close()
		os.Exit(1)
	case <-ctx.Done():
	}

	container.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("Graceful shutdown failed", err)
		_ = server.Close()
	}

	container.Logger.Info("Server exited")
}

// originPatterns turns CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
