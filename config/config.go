// Package config loads devauthd settings from defaults, an optional YAML
// file and the environment, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Store backends understood by devauthd.
const (
	BackendFS        = "fs"
	BackendPostgres  = "postgres"
	BackendGORM      = "gorm"
	BackendDatastore = "datastore"
)

// MinSessionSecretLength is the shortest HS256 signing secret accepted.
const MinSessionSecretLength = 32

// Config holds all configuration for devauthd.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Session  SessionConfig  `yaml:"session"`
	Reset    ResetConfig    `yaml:"reset"`
	Hashing  HashingConfig  `yaml:"hashing"`
	Google   ProviderConfig `yaml:"google"`
	GitHub   ProviderConfig `yaml:"github"`
	LinkedIn ProviderConfig `yaml:"linkedin"`
	Email    EmailConfig    `yaml:"email"`
	CORS     CORSConfig     `yaml:"cors"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	GRPCPort        string        `yaml:"grpc_port"`
	PathPrefix      string        `yaml:"path_prefix"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the user store.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// FSPath is the root directory of the fs backend.
	FSPath string `yaml:"fs_path"`

	// DSN is the Postgres connection string for the postgres and gorm backends.
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	RunMigrations   bool          `yaml:"run_migrations"`

	DatastoreProject   string `yaml:"datastore_project"`
	DatastoreNamespace string `yaml:"datastore_namespace"`

	// Timeout bounds each store call.
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig configures session token signing.
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

// ResetConfig configures password reset.
type ResetConfig struct {
	TTL time.Duration `yaml:"ttl"`

	// BaseURL is the page reset links point at; the token is appended.
	// Required: links are never derived from the incoming request.
	BaseURL string `yaml:"base_url"`
}

// HashingConfig configures bcrypt.
type HashingConfig struct {
	Cost          int `yaml:"cost"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ProviderConfig holds one OAuth provider's client registration.
type ProviderConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURL  string        `yaml:"redirect_url"`
	Timeout      time.Duration `yaml:"timeout"`

	// VerifyIDToken enables signature verification of Google id_tokens.
	VerifyIDToken bool `yaml:"verify_id_token"`
}

// Configured reports whether the provider has client credentials.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	FromName     string `yaml:"from_name"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the development defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			PathPrefix:      "/api/v1/user",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend:         BackendFS,
			FSPath:          "./data",
			MaxConns:        5,
			MaxConnLifetime: time.Hour,
			RunMigrations:   true,
			Timeout:         5 * time.Second,
		},
		Session: SessionConfig{
			TTL:    24 * time.Hour,
			Issuer: "devauth",
		},
		Reset: ResetConfig{
			TTL: 10 * time.Minute,
		},
		Hashing: HashingConfig{
			Cost: 12,
		},
		Google:   ProviderConfig{Timeout: 10 * time.Second},
		GitHub:   ProviderConfig{Timeout: 10 * time.Second},
		LinkedIn: ProviderConfig{Timeout: 10 * time.Second},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: "587",
			FromName: "DevAuth",
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads .env (from the parent or current directory), overlays the YAML
// file named by DEVAUTH_CONFIG if set, then applies environment variables
// and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Debug(".env file not found", "err", err)
		}
	}

	cfg := Defaults()
	if path := os.Getenv("DEVAUTH_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides c with any environment variables that are set.
func (c *Config) ApplyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.GRPCPort = getEnv("GRPC_PORT", c.Server.GRPCPort)
	c.Server.PathPrefix = getEnv("API_PATH_PREFIX", c.Server.PathPrefix)
	c.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getDurationEnv("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", c.Store.Backend))
	c.Store.FSPath = getEnv("STORE_FS_PATH", c.Store.FSPath)
	c.Store.DSN = getEnv("DATABASE_URL", c.Store.DSN)
	c.Store.MaxConns = getInt32Env("DB_MAX_CONNS", c.Store.MaxConns)
	c.Store.MinConns = getInt32Env("DB_MIN_CONNS", c.Store.MinConns)
	c.Store.MaxConnLifetime = getDurationEnv("DB_MAX_LIFETIME", c.Store.MaxConnLifetime)
	c.Store.RunMigrations = getBoolEnv("DB_RUN_MIGRATIONS", c.Store.RunMigrations)
	c.Store.DatastoreProject = getEnv("DATASTORE_PROJECT_ID", c.Store.DatastoreProject)
	c.Store.DatastoreNamespace = getEnv("DATASTORE_NAMESPACE", c.Store.DatastoreNamespace)
	c.Store.Timeout = getDurationEnv("STORE_TIMEOUT", c.Store.Timeout)

	c.Session.Secret = getEnv("JWT_SECRET", c.Session.Secret)
	c.Session.TTL = getDurationEnv("JWT_TTL", c.Session.TTL)
	c.Session.Issuer = getEnv("JWT_ISSUER", c.Session.Issuer)

	c.Reset.TTL = getDurationEnv("RESET_TOKEN_TTL", c.Reset.TTL)
	c.Reset.BaseURL = getEnv("RESET_BASE_URL", c.Reset.BaseURL)

	c.Hashing.Cost = getIntEnv("BCRYPT_COST", c.Hashing.Cost)
	c.Hashing.MaxConcurrent = getIntEnv("BCRYPT_MAX_CONCURRENT", c.Hashing.MaxConcurrent)

	applyProviderEnv("GOOGLE", &c.Google)
	applyProviderEnv("GITHUB", &c.GitHub)
	applyProviderEnv("LINKEDIN", &c.LinkedIn)
	c.Google.VerifyIDToken = getBoolEnv("GOOGLE_VERIFY_ID_TOKEN", c.Google.VerifyIDToken)

	c.Email.SMTPHost = getEnv("SMTP_HOST", c.Email.SMTPHost)
	c.Email.SMTPPort = getEnv("SMTP_PORT", c.Email.SMTPPort)
	c.Email.SMTPUsername = getEnv("SMTP_USERNAME", c.Email.SMTPUsername)
	c.Email.SMTPPassword = getEnv("SMTP_PASSWORD", c.Email.SMTPPassword)
	c.Email.FromEmail = getEnv("EMAIL_FROM", c.Email.FromEmail)
	c.Email.FromName = getEnv("EMAIL_FROM_NAME", c.Email.FromName)

	c.CORS.AllowedOrigins = getStringSliceEnv("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = getStringSliceEnv("CORS_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = getStringSliceEnv("CORS_ALLOWED_HEADERS", c.CORS.AllowedHeaders)
	c.CORS.AllowCredentials = getBoolEnv("CORS_ALLOW_CREDENTIALS", c.CORS.AllowCredentials)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func applyProviderEnv(prefix string, p *ProviderConfig) {
	p.ClientID = getEnv(prefix+"_CLIENT_ID", p.ClientID)
	p.ClientSecret = getEnv(prefix+"_CLIENT_SECRET", p.ClientSecret)
	p.RedirectURL = getEnv(prefix+"_REDIRECT_URL", p.RedirectURL)
	p.Timeout = getDurationEnv(prefix+"_TIMEOUT", p.Timeout)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if len(c.Session.Secret) < MinSessionSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSessionSecretLength))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.Reset.TTL <= 0 {
		errs = append(errs, errors.New("RESET_TOKEN_TTL must be positive"))
	}
	if u, err := url.Parse(c.Reset.BaseURL); c.Reset.BaseURL == "" || err != nil ||
		(u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, errors.New("RESET_BASE_URL must be an absolute http(s) URL"))
	}
	if c.Hashing.Cost < 4 || c.Hashing.Cost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d is outside 4..31", c.Hashing.Cost))
	}

	switch c.Store.Backend {
	case BackendFS:
		if c.Store.FSPath == "" {
			errs = append(errs, errors.New("STORE_FS_PATH is required for the fs backend"))
		}
	case BackendPostgres, BackendGORM:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for the %s backend", c.Store.Backend))
		}
	case BackendDatastore:
		if c.Store.DatastoreProject == "" {
			errs = append(errs, errors.New("DATASTORE_PROJECT_ID is required for the datastore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	if !c.IsEmailConfigured() {
		slog.Warn("SMTP credentials not configured; reset emails will be logged instead of sent")
	}
	for name, p := range map[string]ProviderConfig{"google": c.Google, "github": c.GitHub, "linkedin": c.LinkedIn} {
		if !p.Configured() {
			slog.Info("oauth provider not configured", "provider", name)
		}
	}

	return errors.Join(errs...)
}

// IsEmailConfigured checks if email service is properly configured
func (c *Config) IsEmailConfigured() bool {
	return c.Email.SMTPUsername != "" && c.Email.SMTPPassword != "" && c.Email.FromEmail != ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt32Env(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intValue)
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var parts []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return defaultValue
	}
	return parts
}
