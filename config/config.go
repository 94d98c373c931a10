package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config is the root application configuration, read from the environment.
type Config struct {
	Env             string        `env:"GO_ENV"           env-default:"development"`
	Port            int           `env:"PORT"             env-default:"5000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Upload   UploadConfig
	CORS     CORSConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Driver  string        `env:"DB_DRIVER"        env-default:"mongo"`
	URI     string        `env:"MONGODB_URI"`
	Name    string        `env:"MONGODB_DATABASE" env-default:"civicportal"`
	Timeout time.Duration `env:"DB_TIMEOUT"       env-default:"10s"`
}

type AuthConfig struct {
	JWTSecret   string        `env:"JWT_SECRET"   env-required:"true"`
	JWTIssuer   string        `env:"JWT_ISSUER"   env-default:"civicportal"`
	TokenTTL    time.Duration `env:"JWT_TTL"      env-default:"72h"`
	AdminEmails []string      `env:"ADMIN_EMAILS" env-separator:","`
}

// IsAdminEmail reports whether registering with email grants the admin role.
func (a AuthConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range a.AdminEmails {
		if strings.ToLower(strings.TrimSpace(e)) == email && email != "" {
			return true
		}
	}
	return false
}

type RedisConfig struct {
	Addr            string `env:"REDIS_ADDRESS"`
	Password        string `env:"REDIS_PASSWORD"`
	DB              int    `env:"REDIS_DB"                    env-default:"0"`
	IssueLimitQueue string `env:"REDIS_QUEUE_FOR_ISSUE_LIMIT" env-default:"issue-limit"`
	IssueDailyLimit int    `env:"ISSUE_DAILY_LIMIT"           env-default:"20"`
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type UploadConfig struct {
	Dir       string `env:"UPLOAD_DIR"        env-default:"uploads"`
	URLPrefix string `env:"UPLOAD_URL_PREFIX" env-default:"/uploads"`
	MaxBytes  int64  `env:"UPLOAD_MAX_BYTES"  env-default:"5000000"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Load reads an optional .env file and then the process environment.
// Variables already present in the environment win over the .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required when DB_DRIVER=mongo"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	if c.Database.Timeout <= 0 {
		errs = append(errs, errors.New("DB_TIMEOUT must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	if !strings.HasPrefix(c.Upload.URLPrefix, "/") {
		errs = append(errs, errors.New("UPLOAD_URL_PREFIX must start with /"))
	}
	if c.Redis.IssueDailyLimit < 0 {
		errs = append(errs, errors.New("ISSUE_DAILY_LIMIT must not be negative"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}
