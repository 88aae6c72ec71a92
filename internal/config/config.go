package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auth           AuthConfig           `yaml:"auth"`
	CORS           CORSConfig           `yaml:"cors"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
	AdminBootstrap AdminBootstrapConfig `yaml:"admin_bootstrap"`
	Environment    string               `yaml:"environment"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Addr is the listen address for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	// MigrationsPath overrides the embedded migrations when set.
	MigrationsPath string `yaml:"migrations_path"`
	AutoMigrate    bool   `yaml:"auto_migrate"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

type CORSConfig struct {
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	PublicPerMinute   int      `yaml:"public_per_minute"`
	LoginPer15Minutes int      `yaml:"login_per_15_minutes"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// AdminBootstrapConfig seeds the first admin account on startup when Email
// and Password are both set.
type AdminBootstrapConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	FullName string `yaml:"full_name"`
}

func (a AdminBootstrapConfig) Enabled() bool {
	return a.Email != "" && a.Password != ""
}

const minJWTSecretLength = 32

// Load reads configuration from the environment only.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile applies defaults, then the YAML file at path (if any), then
// environment overrides, and validates the result.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
			AutoMigrate:    true,
		},
		Auth: AuthConfig{
			Issuer:     "agenda",
			TokenTTL:   7 * 24 * time.Hour,
			BcryptCost: 12,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   120,
			LoginPer15Minutes: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "agenda",
			SampleRate:  1.0,
		},
		AdminBootstrap: AdminBootstrapConfig{
			FullName: "Administrator",
		},
		Environment: "development",
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.MaxBodyBytes = int64(getEnvInt("SERVER_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)
	cfg.Database.AutoMigrate = getEnvBool("DATABASE_AUTO_MIGRATE", cfg.Database.AutoMigrate)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)
	if hours := getEnvInt("TOKEN_TTL_HOURS", 0); hours > 0 {
		cfg.Auth.TokenTTL = time.Duration(hours) * time.Hour
	}
	cfg.Auth.BcryptCost = getEnvInt("BCRYPT_COST", cfg.Auth.BcryptCost)

	if origins := getEnvList("CORS_ALLOWED_ORIGINS"); origins != nil {
		cfg.CORS.AllowedOrigins = origins
	}

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.LoginPer15Minutes = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPer15Minutes)
	if cidrs := getEnvList("TRUSTED_PROXY_CIDRS"); cidrs != nil {
		cfg.RateLimit.TrustedProxyCIDRs = cidrs
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.AdminBootstrap.Email = getEnv("ADMIN_EMAIL", cfg.AdminBootstrap.Email)
	cfg.AdminBootstrap.Password = getEnv("ADMIN_PASSWORD", cfg.AdminBootstrap.Password)
	cfg.AdminBootstrap.FullName = getEnv("ADMIN_FULL_NAME", cfg.AdminBootstrap.FullName)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	// Any origin is accepted in development until a list is configured.
	if !cfg.CORS.AllowAllOrigins {
		cfg.CORS.AllowAllOrigins = cfg.Environment == "development" && len(cfg.CORS.AllowedOrigins) == 0
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Environment == "production" && len(c.CORS.AllowedOrigins) == 0 {
		return errors.New("CORS_ALLOWED_ORIGINS is required in production")
	}
	if c.Environment == "production" && c.CORS.AllowAllOrigins {
		return errors.New("allow_all_origins cannot be enabled in production")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList splits a comma-separated variable. It returns nil when the
// variable is unset or holds no entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
