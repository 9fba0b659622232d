package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"anniversary_server/apperrors"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"

	BacklogNone    = "none"
	BacklogCatchUp = "catch_up"
)

// Config is the full runtime configuration. YAML keys mirror the env names
// in lower snake case.
type Config struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	StoreBackend     string `yaml:"store_backend"`
	AWSRegion        string `yaml:"aws_region"`
	TablePrefix      string `yaml:"dynamodb_table_prefix"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	AMQPURL           string `yaml:"amqp_url"`
	NotificationQueue string `yaml:"notification_queue"`

	TickInterval      time.Duration `yaml:"tick_interval"`
	TickRetryInterval time.Duration `yaml:"tick_retry_interval"`
	TickWorkers       int           `yaml:"tick_workers"`
	TickLockTTL       time.Duration `yaml:"tick_lock_ttl"`
	BacklogPolicy     string        `yaml:"backlog_policy"`

	S3Bucket    string   `yaml:"s3_bucket_name"`
	CORSOrigins []string `yaml:"cors_allowed_origins"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:              "8080",
		Env:               "development",
		LogLevel:          "info",
		StoreBackend:      StoreMemory,
		NotificationQueue: "push_notifications",
		TickInterval:      24 * time.Hour,
		TickRetryInterval: time.Hour,
		TickWorkers:       4,
		TickLockTTL:       2 * time.Minute,
		BacklogPolicy:     BacklogNone,
		CORSOrigins:       []string{"*"},
	}
}

// LoadDotEnv loads .env files with priority .env.local > .env. OS env vars
// always win since godotenv never overwrites a set variable.
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// Load builds the configuration: defaults, then the YAML file at path (or
// CONFIG_FILE when path is empty), then environment overrides.
func Load(path string) (Config, error) {
	LoadDotEnv()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.StoreBackend, "STORE_BACKEND")
	setString(&cfg.AWSRegion, "AWS_REGION")
	setString(&cfg.TablePrefix, "DYNAMODB_TABLE_PREFIX")
	setString(&cfg.DynamoDBEndpoint, "DYNAMODB_ENDPOINT")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.AMQPURL, "AMQP_URL")
	setString(&cfg.NotificationQueue, "NOTIFICATION_QUEUE")
	setString(&cfg.BacklogPolicy, "BACKLOG_POLICY")
	setString(&cfg.S3Bucket, "S3_BUCKET_NAME")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	if err := setInt(&cfg.RedisDB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&cfg.TickWorkers, "TICK_WORKERS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.TickInterval, "TICK_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.TickRetryInterval, "TICK_RETRY_INTERVAL"); err != nil {
		return err
	}
	return setDuration(&cfg.TickLockTTL, "TICK_LOCK_TTL")
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreDynamoDB:
		if c.AWSRegion == "" {
			return apperrors.Validation("config", "AWS_REGION is required for the dynamodb backend")
		}
	default:
		return apperrors.Validation("config", "unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.BacklogPolicy != BacklogNone && c.BacklogPolicy != BacklogCatchUp {
		return apperrors.Validation("config", "unknown BACKLOG_POLICY %q", c.BacklogPolicy)
	}
	if c.TickInterval <= 0 || c.TickRetryInterval <= 0 || c.TickLockTTL <= 0 {
		return apperrors.Validation("config", "tick intervals must be positive")
	}
	if c.TickWorkers < 1 {
		return apperrors.Validation("config", "TICK_WORKERS must be at least 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return apperrors.Validation("config", "%s: %v", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return apperrors.Validation("config", "%s: %v", key, err)
	}
	*dst = d
	return nil
}
