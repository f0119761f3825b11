package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Guard    GuardConfig
	Audit    AuditConfig
	Geo      GeoConfig
	Alert    AlertConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
	TrustedProxies  []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL                 string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	SlowQueryThreshold  time.Duration
	EnableQueryLogging  bool
	HealthCheckInterval time.Duration
	MigrationsPath      string
}

// CacheConfig holds counter-store (cache) configuration
type CacheConfig struct {
	Provider      string // "memory", "redis"
	RedisURL      string
	RedisDB       int
	RedisPassword string
	PoolSize      int
	TTL           time.Duration
}

// AuthConfig holds authentication configuration for the identity resolver
type AuthConfig struct {
	JWTSecret    string
	JWTExpiry    time.Duration
	SessionName  string
	CookieSecure bool
}

// GuardConfig holds admission-control configuration shared by the gates
type GuardConfig struct {
	Enabled bool

	// Defaults applied to routes without an explicit limit
	DefaultWindow   time.Duration
	DefaultMaxCount int
	DefaultMessage  string

	// Hot-path timeout for counter-store round trips; gates fail open past it
	StoreTimeout time.Duration

	// TTL for the violation counter; violations age out together
	ViolationTTL time.Duration

	// How often the reaper soft-deletes expired bans
	ReapInterval time.Duration
}

// AuditConfig holds audit pipeline configuration
type AuditConfig struct {
	QueueSize    int
	WorkerCount  int
	MaxRetries   int
	RetryBackoff time.Duration
}

// GeoConfig holds IP geolocation lookup configuration
type GeoConfig struct {
	Endpoint string
	Timeout  time.Duration
	Enabled  bool
}

// AlertConfig holds administrative alerting configuration
type AlertConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// Load loads configuration from environment variables with validation
func Load() (*Config, error) {
	env := getEnv("GO_ENV", "development")
	if env != "production" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load() // fallback to .env
		}
	}

	config := &Config{
		Server:   loadServerConfig(env),
		Database: loadDatabaseConfig(env),
		Cache:    loadCacheConfig(env),
		Auth:     loadAuthConfig(env),
		Guard:    loadGuardConfig(),
		Audit:    loadAuditConfig(),
		Geo:      loadGeoConfig(),
		Alert:    loadAlertConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadServerConfig(env string) ServerConfig {
	config := ServerConfig{
		Port:            getEnv("PORT", "9000"),
		Host:            getEnv("SERVER_HOST", "0.0.0.0"),
		Environment:     env,
		ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		GracefulTimeout: getDurationEnv("GRACEFUL_TIMEOUT", 30*time.Second),
	}

	if proxies := getEnv("TRUSTED_PROXIES", ""); proxies != "" {
		config.TrustedProxies = strings.Split(proxies, ",")
	}

	return config
}

func loadDatabaseConfig(env string) DatabaseConfig {
	var defaultMaxOpen, defaultMaxIdle int
	var defaultConnLifetime time.Duration

	switch env {
	case "production":
		defaultMaxOpen = 50
		defaultMaxIdle = 20
		defaultConnLifetime = 15 * time.Minute
	case "staging":
		defaultMaxOpen = 25
		defaultMaxIdle = 10
		defaultConnLifetime = 10 * time.Minute
	default: // development
		defaultMaxOpen = 10
		defaultMaxIdle = 5
		defaultConnLifetime = 5 * time.Minute
	}

	return DatabaseConfig{
		URL:                 os.Getenv("DATABASE_URL"),
		MaxOpenConns:        getIntEnv("DB_MAX_OPEN_CONNS", defaultMaxOpen),
		MaxIdleConns:        getIntEnv("DB_MAX_IDLE_CONNS", defaultMaxIdle),
		ConnMaxLifetime:     getDurationEnv("DB_CONN_MAX_LIFETIME", defaultConnLifetime),
		ConnMaxIdleTime:     getDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		SlowQueryThreshold:  getDurationEnv("DB_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
		EnableQueryLogging:  getBoolEnv("DB_ENABLE_QUERY_LOGGING", env == "development"),
		HealthCheckInterval: getDurationEnv("DB_HEALTH_CHECK_INTERVAL", 30*time.Second),
		MigrationsPath:      getEnv("DB_MIGRATIONS_PATH", "./migrations"),
	}
}

func loadCacheConfig(env string) CacheConfig {
	defaultProvider := "memory"
	if env == "production" {
		defaultProvider = "redis"
	}

	return CacheConfig{
		Provider:      getEnv("CACHE_PROVIDER", defaultProvider),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		PoolSize:      getIntEnv("REDIS_POOL_SIZE", 10),
		TTL:           getDurationEnv("CACHE_TTL", 15*time.Minute),
	}
}

func loadAuthConfig(env string) AuthConfig {
	return AuthConfig{
		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiry:    getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		SessionName:  getEnv("SESSION_NAME", "blogware_session"),
		CookieSecure: getBoolEnv("COOKIE_SECURE", env == "production"),
	}
}

func loadGuardConfig() GuardConfig {
	return GuardConfig{
		Enabled:         getBoolEnv("GUARD_ENABLED", true),
		DefaultWindow:   getDurationEnv("GUARD_DEFAULT_WINDOW", 1*time.Minute),
		DefaultMaxCount: getIntEnv("GUARD_DEFAULT_MAX_COUNT", 100),
		DefaultMessage:  getEnv("GUARD_DEFAULT_MESSAGE", "Too many requests, slow down"),
		StoreTimeout:    getDurationEnv("GUARD_STORE_TIMEOUT", 200*time.Millisecond),
		ViolationTTL:    getDurationEnv("GUARD_VIOLATION_TTL", 24*time.Hour),
		ReapInterval:    getDurationEnv("GUARD_REAP_INTERVAL", 10*time.Minute),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		QueueSize:    getIntEnv("AUDIT_QUEUE_SIZE", 1000),
		WorkerCount:  getIntEnv("AUDIT_WORKER_COUNT", 5),
		MaxRetries:   getIntEnv("AUDIT_MAX_RETRIES", 3),
		RetryBackoff: getDurationEnv("AUDIT_RETRY_BACKOFF", 500*time.Millisecond),
	}
}

func loadGeoConfig() GeoConfig {
	return GeoConfig{
		Endpoint: getEnv("GEO_ENDPOINT", "http://ip-api.com/json"),
		Timeout:  getDurationEnv("GEO_TIMEOUT", 5*time.Second),
		Enabled:  getBoolEnv("GEO_ENABLED", true),
	}
}

func loadAlertConfig() AlertConfig {
	return AlertConfig{
		WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		Timeout:    getDurationEnv("ALERT_TIMEOUT", 5*time.Second),
	}
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("guard config: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if s.ReadTimeout <= 0 {
		return fmt.Errorf("ReadTimeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		return fmt.Errorf("WriteTimeout must be positive")
	}

	return nil
}

// Validate validates database configuration
func (d *DatabaseConfig) Validate() error {
	if d.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("MaxOpenConns must be positive")
	}

	if d.MaxIdleConns < 0 {
		return fmt.Errorf("MaxIdleConns cannot be negative")
	}

	if d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("MaxIdleConns cannot be greater than MaxOpenConns")
	}

	if d.ConnMaxLifetime <= 0 {
		return fmt.Errorf("ConnMaxLifetime must be positive")
	}

	return nil
}

// Validate validates guard configuration
func (g *GuardConfig) Validate() error {
	if g.DefaultWindow <= 0 {
		return fmt.Errorf("DefaultWindow must be positive")
	}

	if g.DefaultMaxCount <= 0 {
		return fmt.Errorf("DefaultMaxCount must be positive")
	}

	if g.StoreTimeout <= 0 {
		return fmt.Errorf("StoreTimeout must be positive")
	}

	return nil
}

// Validate validates audit configuration
func (a *AuditConfig) Validate() error {
	if a.QueueSize <= 0 {
		return fmt.Errorf("QueueSize must be positive")
	}

	if a.WorkerCount <= 0 {
		return fmt.Errorf("WorkerCount must be positive")
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries cannot be negative")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
