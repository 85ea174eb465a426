package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"walldraft/internal/domain"
)

const defaultMaxUploadSize int64 = 10 * 1024 * 1024

func TestNewConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "SERVER_PORT", "MAX_UPLOAD_SIZE", "LOG_LEVEL", "LOG_FORMAT", "STORE_DRIVER",
		"SUPABASE_URL", "SUPABASE_ANON_KEY", "PUBLIC_BASE_URL", "GUEST_UPLOAD_LIMIT",
		"CORS_ALLOWED_ORIGINS", "COLLAB_BUFFER",
	} {
		t.Setenv(key, "")
	}

	cfg := NewConfig()

	if cfg.GetServerPort() != "8080" {
		t.Fatalf("expected default server port 8080, got %s", cfg.GetServerPort())
	}
	if cfg.GetMaxUploadSize() != defaultMaxUploadSize {
		t.Fatalf("expected default max upload size %d, got %d", defaultMaxUploadSize, cfg.GetMaxUploadSize())
	}
	if cfg.GetLogLevel() != "info" {
		t.Fatalf("expected default log level info, got %s", cfg.GetLogLevel())
	}
	if cfg.GetStoreDriver() != StoreDriverSupabase {
		t.Fatalf("expected default store driver %s, got %s", StoreDriverSupabase, cfg.GetStoreDriver())
	}
	if cfg.GetGuestUploadLimit() != 1 {
		t.Fatalf("expected default guest upload limit 1, got %d", cfg.GetGuestUploadLimit())
	}
	if cfg.GetCollabBuffer() != 16 {
		t.Fatalf("expected default collab buffer 16, got %d", cfg.GetCollabBuffer())
	}
	if cfg.GetPublicBaseURL() != "http://localhost:5173" {
		t.Fatalf("unexpected default public base url %s", cfg.GetPublicBaseURL())
	}
	if len(cfg.GetCORSAllowedOrigins()) != 3 {
		t.Fatalf("expected 3 default origins, got %v", cfg.GetCORSAllowedOrigins())
	}
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("MAX_UPLOAD_SIZE", "12345")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SUPABASE_URL", "http://localhost:54321")
	t.Setenv("SUPABASE_ANON_KEY", "test-key")
	t.Setenv("PUBLIC_BASE_URL", "https://walls.example.com/")
	t.Setenv("GUEST_UPLOAD_LIMIT", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")

	cfg := NewConfig()

	if cfg.GetServerPort() != "9090" {
		t.Fatalf("expected server port 9090, got %s", cfg.GetServerPort())
	}
	if cfg.GetMaxUploadSize() != 12345 {
		t.Fatalf("expected max upload size 12345, got %d", cfg.GetMaxUploadSize())
	}
	if cfg.GetLogLevel() != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.GetLogLevel())
	}
	if cfg.GetStoreDriver() != StoreDriverSQLite {
		t.Fatalf("expected store driver sqlite, got %s", cfg.GetStoreDriver())
	}
	if cfg.GetSupabaseURL() != "http://localhost:54321" {
		t.Fatalf("expected supabase url http://localhost:54321, got %s", cfg.GetSupabaseURL())
	}
	if cfg.GetSupabaseKey() != "test-key" {
		t.Fatalf("expected supabase key test-key, got %s", cfg.GetSupabaseKey())
	}
	if cfg.GetPublicBaseURL() != "https://walls.example.com" {
		t.Fatalf("expected trailing slash to be trimmed, got %s", cfg.GetPublicBaseURL())
	}
	if cfg.GetGuestUploadLimit() != 0 {
		t.Fatalf("expected guest upload limit 0, got %d", cfg.GetGuestUploadLimit())
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.GetCORSAllowedOrigins(), want) {
		t.Fatalf("expected origins %v, got %v", want, cfg.GetCORSAllowedOrigins())
	}
}

func TestNewConfig_Fallbacks(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SERVER_PORT", "9091")
	t.Setenv("MAX_UPLOAD_SIZE", "not-a-number")
	t.Setenv("COLLAB_BUFFER", "lots")

	cfg := NewConfig()

	if cfg.GetServerPort() != "9091" {
		t.Fatalf("expected server port 9091, got %s", cfg.GetServerPort())
	}
	if cfg.GetMaxUploadSize() != defaultMaxUploadSize {
		t.Fatalf("expected default max upload size %d, got %d", defaultMaxUploadSize, cfg.GetMaxUploadSize())
	}
	if cfg.GetCollabBuffer() != 16 {
		t.Fatalf("expected default collab buffer, got %d", cfg.GetCollabBuffer())
	}
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoadPlanSeed(t *testing.T) {
	path := writeSeed(t, `
plans:
  - name: Free
    isDefault: true
    decors: [brick, wood]
    limits: {designsPerMonth: 1, imageUploadsPerDesign: 3}
  - name: Pro
    exportDrafts: true
    limits: {designsPerMonth: -1, imageUploadsPerDesign: -1}
`)

	seed, err := LoadPlanSeed(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seed.Plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(seed.Plans))
	}
	free := seed.Plans[0]
	if !free.IsDefault || free.Limits.ImageUploadsPerDesign != 3 || len(free.Decors) != 2 {
		t.Fatalf("unexpected free plan: %+v", free)
	}
	if seed.Plans[1].Limits.DesignsPerMonth != domain.Unlimited || !seed.Plans[1].ExportDrafts {
		t.Fatalf("unexpected pro plan: %+v", seed.Plans[1])
	}
}

func TestLoadPlanSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: "plans:\n  - limits: {designsPerMonth: 1}\n"},
		{name: "duplicate", body: "plans:\n  - name: A\n  - name: A\n"},
		{name: "bad limit", body: "plans:\n  - name: A\n    limits: {designsPerMonth: -2}\n"},
		{name: "not yaml", body: "plans: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadPlanSeed(writeSeed(t, tt.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := LoadPlanSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})        {}
func (nopLogger) Error(string, error, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{})       {}
func (nopLogger) Warn(string, ...interface{})        {}

func TestNewContainer_SQLiteWithSeed(t *testing.T) {
	cfg := &AppConfig{
		StoreDriver:      StoreDriverSQLite,
		SQLitePath:       filepath.Join(t.TempDir(), "walldraft.db"),
		PublicBaseURL:    "https://walls.example.com",
		GuestUploadLimit: 1,
		CollabBuffer:     4,
		PlansSeedFile: writeSeed(t, `
plans:
  - name: Free
    isDefault: true
    limits: {designsPerMonth: 1, imageUploadsPerDesign: 3}
`),
	}
	ctx := context.Background()

	c, err := NewContainerWithLogger(ctx, cfg, nopLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	def, err := c.PlanRepository.GetDefault(ctx)
	if err != nil {
		t.Fatalf("expected seeded default plan: %v", err)
	}
	if def.Name != "Free" {
		t.Fatalf("expected Free as default, got %s", def.Name)
	}

	// Seeding is idempotent across restarts.
	c.Close()
	c, err = NewContainerWithLogger(ctx, cfg, nopLogger{})
	if err != nil {
		t.Fatalf("unexpected error on restart: %v", err)
	}
	defer c.Close()
	plans, err := c.PlanService.ListPlans(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan after reseed, got %d", len(plans))
	}
}

func TestNewContainer_SupabaseRequiresCredentials(t *testing.T) {
	cfg := &AppConfig{StoreDriver: StoreDriverSupabase}
	if _, err := NewContainerWithLogger(context.Background(), cfg, nopLogger{}); err == nil {
		t.Fatalf("expected error without supabase credentials")
	}
}

func TestNewContainer_UnknownDriver(t *testing.T) {
	cfg := &AppConfig{StoreDriver: "mongo"}
	if _, err := NewContainerWithLogger(context.Background(), cfg, nopLogger{}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
