package config

import (
	"os"
	"strconv"
	"strings"

	"walldraft/internal/domain"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverSupabase = "supabase"
	StoreDriverSQLite   = "sqlite"
)

// AppConfig implements the domain.Config interface
type AppConfig struct {
	ServerPort             string
	LogLevel               string
	LogFormat              string
	StoreDriver            string
	SQLitePath             string
	SupabaseURL            string
	SupabaseKey            string
	SupabaseServiceRoleKey string
	StorageBucket          string
	PublicBaseURL          string
	MaxUploadSize          int64
	PlansSeedFile          string
	GuestUploadLimit       int
	PublicRateLimit        int
	CORSAllowedOrigins     []string
	CollabBuffer           int
}

// NewConfig creates a new configuration instance with default values
func NewConfig() *AppConfig {
	return &AppConfig{
		// Cloud Run (and many PaaS) provide the listening port via PORT.
		// Keep SERVER_PORT for local/dev compatibility.
		ServerPort:             getEnvOrDefault("PORT", getEnvOrDefault("SERVER_PORT", "8080")),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              getEnvOrDefault("LOG_FORMAT", "text"),
		StoreDriver:            strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreDriverSupabase)),
		SQLitePath:             getEnvOrDefault("SQLITE_PATH", "./data/walldraft.db"),
		SupabaseURL:            getEnvOrDefault("SUPABASE_URL", ""),
		SupabaseKey:            getEnvOrDefault("SUPABASE_ANON_KEY", ""),
		SupabaseServiceRoleKey: getEnvOrDefault("SUPABASE_SERVICE_ROLE_KEY", ""),
		StorageBucket:          getEnvOrDefault("STORAGE_BUCKET", "draft-images"),
		PublicBaseURL:          strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:5173"), "/"),
		MaxUploadSize:          getEnvInt64OrDefault("MAX_UPLOAD_SIZE", 10*1024*1024), // 10MB default
		PlansSeedFile:          getEnvOrDefault("PLANS_SEED_FILE", ""),
		GuestUploadLimit:       getEnvIntOrDefault("GUEST_UPLOAD_LIMIT", 1),
		PublicRateLimit:        getEnvIntOrDefault("PUBLIC_RATE_LIMIT", 120),
		CORSAllowedOrigins: getEnvListOrDefault("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:4173",
			"http://localhost:3000",
		}),
		CollabBuffer: getEnvIntOrDefault("COLLAB_BUFFER", 16),
	}
}

var _ domain.Config = (*AppConfig)(nil)

// GetServerPort returns the server port
func (c *AppConfig) GetServerPort() string {
	return c.ServerPort
}

// GetLogLevel returns the logging level
func (c *AppConfig) GetLogLevel() string {
	return c.LogLevel
}

// GetLogFormat returns "text" or "json"
func (c *AppConfig) GetLogFormat() string {
	return c.LogFormat
}

// GetStoreDriver returns the document store backend
func (c *AppConfig) GetStoreDriver() string {
	return c.StoreDriver
}

// GetSQLitePath returns the SQLite database file path
func (c *AppConfig) GetSQLitePath() string {
	return c.SQLitePath
}

// GetSupabaseURL returns the Supabase URL
func (c *AppConfig) GetSupabaseURL() string {
	return c.SupabaseURL
}

// GetSupabaseKey returns the Supabase anon key
func (c *AppConfig) GetSupabaseKey() string {
	return c.SupabaseKey
}

// GetSupabaseServiceRoleKey returns the key used for server-side table access
func (c *AppConfig) GetSupabaseServiceRoleKey() string {
	return c.SupabaseServiceRoleKey
}

// GetStorageBucket returns the object storage bucket for draft images
func (c *AppConfig) GetStorageBucket() string {
	return c.StorageBucket
}

// GetPublicBaseURL returns the client origin used to build share links
func (c *AppConfig) GetPublicBaseURL() string {
	return c.PublicBaseURL
}

// GetMaxUploadSize returns the maximum allowed image size
func (c *AppConfig) GetMaxUploadSize() int64 {
	return c.MaxUploadSize
}

// GetPlansSeedFile returns the optional YAML plan seed path
func (c *AppConfig) GetPlansSeedFile() string {
	return c.PlansSeedFile
}

// GetGuestUploadLimit returns the per-draft upload limit for unauthenticated callers
func (c *AppConfig) GetGuestUploadLimit() int {
	return c.GuestUploadLimit
}

// GetPublicRateLimit returns requests per minute per IP on public routes
func (c *AppConfig) GetPublicRateLimit() int {
	return c.PublicRateLimit
}

// GetCORSAllowedOrigins returns the CORS origin allow-list
func (c *AppConfig) GetCORSAllowedOrigins() []string {
	return c.CORSAllowedOrigins
}

// GetCollabBuffer returns the per-session message queue length
func (c *AppConfig) GetCollabBuffer() int {
	return c.CollabBuffer
}

// Helper functions for environment variable handling
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
