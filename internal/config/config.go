// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply embedded schema on start
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	CookieName   string        `yaml:"cookie_name"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type StorageConfig struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"` // optional, e.g. MinIO
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
}

type ProcessorConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AuthToken string `yaml:"auth_token"`
	// Timeout of the outbound call; 0 leaves the transport default in place
	// and relies on queue.task_timeout.
	Timeout            time.Duration `yaml:"timeout"`
	SkipIfOutputsExist bool          `yaml:"skip_if_outputs_exist"`
}

type QueueConfig struct {
	Mode           string        `yaml:"mode"` // asynq | inline
	Name           string        `yaml:"name"`
	Concurrency    int           `yaml:"concurrency"`
	MaxRetry       int           `yaml:"max_retry"`
	TaskTimeout    time.Duration `yaml:"task_timeout"`
	RetryInterval  time.Duration `yaml:"retry_interval"`   // cap for exponential backoff
	BusyRetryDelay time.Duration `yaml:"busy_retry_delay"` // wait while the user's run is in flight
}

type ReaperConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type NotifyConfig struct {
	Driver   string `yaml:"driver"` // none | telegram | nats
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
}

type RateLimitConfig struct {
	ProcessPerMinute int `yaml:"process_per_minute"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Processor ProcessorConfig `yaml:"processor"`
	Queue     QueueConfig     `yaml:"queue"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides, fills defaults and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployments
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Processor.Endpoint, "PROCESS_WORKFLOW_ENDPOINT")
	override(&cfg.Processor.AuthToken, "PROCESS_WORKFLOW_AUTH")
	override(&cfg.Storage.Bucket, "S3_BUCKET_NAME")
	override(&cfg.Storage.Region, "AWS_REGION")
	override(&cfg.Storage.AccessKeyID, "AWS_ACCESS_KEY_ID")
	override(&cfg.Storage.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	override(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "session"
	}
	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Storage.PresignTTL <= 0 {
		cfg.Storage.PresignTTL = time.Hour
	}
	if cfg.Queue.Mode == "" {
		cfg.Queue.Mode = "asynq"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "default"
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 10
	}
	if cfg.Queue.MaxRetry < 0 {
		cfg.Queue.MaxRetry = 0
	}
	if cfg.Queue.MaxRetry == 0 {
		cfg.Queue.MaxRetry = 1
	}
	if cfg.Queue.TaskTimeout <= 0 {
		cfg.Queue.TaskTimeout = 30 * time.Minute
	}
	if cfg.Queue.RetryInterval <= 0 {
		cfg.Queue.RetryInterval = time.Minute
	}
	if cfg.Queue.BusyRetryDelay <= 0 {
		cfg.Queue.BusyRetryDelay = 5 * time.Second
	}
	if cfg.Reaper.Interval <= 0 {
		cfg.Reaper.Interval = 10 * time.Minute
	}
	if cfg.Reaper.StaleAfter <= 0 {
		cfg.Reaper.StaleAfter = 2 * time.Hour
	}
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = "none"
	}
	if cfg.Notify.NATS.Subject == "" {
		cfg.Notify.NATS.Subject = "jobs.finished"
	}
	if cfg.RateLimit.ProcessPerMinute <= 0 {
		cfg.RateLimit.ProcessPerMinute = 30
	}
}

// Validate performs the minimal checks needed to start.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Storage.Bucket == "" || c.Storage.Region == "" {
		return errors.New("storage.bucket and storage.region are required")
	}
	if c.Processor.Endpoint == "" {
		return errors.New("processor.endpoint is required")
	}
	switch c.Queue.Mode {
	case "asynq", "inline":
	default:
		return fmt.Errorf("queue.mode %q not supported", c.Queue.Mode)
	}
	switch c.Notify.Driver {
	case "none", "telegram", "nats":
	default:
		return fmt.Errorf("notify.driver %q not supported", c.Notify.Driver)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
