// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	DBURL    string `mapstructure:"DB_URL" validate:"required"`
	HTTPAddr string `mapstructure:"HTTP_ADDR" validate:"required"`

	GithubAPIURL      string        `mapstructure:"GITHUB_API_URL" validate:"omitempty,url"`
	GithubHTTPTimeout time.Duration `mapstructure:"GITHUB_HTTP_TIMEOUT" validate:"gt=0"`
	RetryMaxElapsed   time.Duration `mapstructure:"RETRY_MAX_ELAPSED" validate:"gt=0"`

	WebhookCallbackURL      string `mapstructure:"WEBHOOK_CALLBACK_URL" validate:"omitempty,url"`
	WebhookSecret           string `mapstructure:"WEBHOOK_SECRET" validate:"required_with=WebhookCallbackURL"`
	WebhookFailureThreshold int    `mapstructure:"WEBHOOK_FAILURE_THRESHOLD" validate:"gte=1"`
	WebhookAutoSubscribe    bool   `mapstructure:"WEBHOOK_AUTO_SUBSCRIBE"`
	WebhookQueueSize        int    `mapstructure:"WEBHOOK_QUEUE_SIZE" validate:"gte=1"`
	WebhookWorkers          int    `mapstructure:"WEBHOOK_WORKERS" validate:"gte=1"`

	FreshnessWindow      time.Duration `mapstructure:"FRESHNESS_WINDOW" validate:"gt=0"`
	EventFreshnessWindow time.Duration `mapstructure:"EVENT_FRESHNESS_WINDOW" validate:"gte=0"`
	SweepSchedule        string        `mapstructure:"SWEEP_SCHEDULE" validate:"required"`
	SweepConcurrency     int           `mapstructure:"SWEEP_CONCURRENCY" validate:"gte=1"`

	SyncLease      time.Duration `mapstructure:"SYNC_LEASE" validate:"gt=0"`
	SyncQueueSize  int           `mapstructure:"SYNC_QUEUE_SIZE" validate:"gte=1"`
	SyncQueueDelay time.Duration `mapstructure:"SYNC_QUEUE_DELAY" validate:"gte=0"`
	SyncWorkers    int           `mapstructure:"SYNC_WORKERS" validate:"gte=1"`

	CommitPageSize     int   `mapstructure:"COMMIT_PAGE_SIZE" validate:"gte=1,lte=100"`
	FileMaxDepth       int   `mapstructure:"FILE_MAX_DEPTH" validate:"gte=1"`
	FileInlineMaxBytes int64 `mapstructure:"FILE_INLINE_MAX_BYTES" validate:"gte=0"`
}

var defaults = map[string]any{
	"LOG_LEVEL":                 "info",
	"DB_URL":                    "",
	"HTTP_ADDR":                 ":8080",
	"GITHUB_API_URL":            "",
	"GITHUB_HTTP_TIMEOUT":       "30s",
	"RETRY_MAX_ELAPSED":         "2m",
	"WEBHOOK_CALLBACK_URL":      "",
	"WEBHOOK_SECRET":            "",
	"WEBHOOK_FAILURE_THRESHOLD": 5,
	"WEBHOOK_AUTO_SUBSCRIBE":    true,
	"WEBHOOK_QUEUE_SIZE":        100,
	"WEBHOOK_WORKERS":           2,
	"FRESHNESS_WINDOW":          "6h",
	"EVENT_FRESHNESS_WINDOW":    "5m",
	"SWEEP_SCHEDULE":            "@every 24h",
	"SWEEP_CONCURRENCY":         5,
	"SYNC_LEASE":                "30m",
	"SYNC_QUEUE_SIZE":           256,
	"SYNC_QUEUE_DELAY":          "2s",
	"SYNC_WORKERS":              1,
	"COMMIT_PAGE_SIZE":          100,
	"FILE_MAX_DEPTH":            5,
	"FILE_INLINE_MAX_BYTES":     1 << 20,
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the sweep schedule expression.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("mapstructure")
	})

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("SWEEP_SCHEDULE %q is not a valid cron expression: %w", c.SweepSchedule, err)
	}
	return nil
}

func fieldError(e validator.FieldError) error {
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s is a required configuration field", e.Field())
	case "required_with":
		return fmt.Errorf("%s is required when WEBHOOK_CALLBACK_URL is set", e.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", e.Field(), e.Param())
	case "url":
		return fmt.Errorf("%s must be a valid URL", e.Field())
	case "gt", "gte", "lt", "lte":
		return fmt.Errorf("%s is out of range (%s %s)", e.Field(), e.Tag(), e.Param())
	default:
		return fmt.Errorf("%s failed validation on '%s'", e.Field(), e.Tag())
	}
}
