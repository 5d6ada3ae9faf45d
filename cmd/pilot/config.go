package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/flotilla/pilot-agent/internal/model"
)

// Config holds application configuration.
type Config struct {
	Models              []string
	DefaultCooldown     time.Duration
	MaxAttempts         int
	TransientAttempts   int
	BackoffInitial      time.Duration
	BackoffMax          time.Duration
	BackoffFactor       float64
	RequestTimeout      time.Duration
	ConfidenceThreshold float64
	EvidenceDir         string
	StorePath           string
	CacheTTL            time.Duration
	S3Bucket            string
	S3Region            string
	Headless            bool
}

// LoadConfig loads configuration from environment variables and an optional
// config file.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.pilot")

	viper.SetDefault("models", []string{"gpt-4o", "gpt-4o-mini"})
	viper.SetDefault("default_cooldown", "60s")
	viper.SetDefault("max_attempts", 6)
	viper.SetDefault("transient_attempts", 3)
	viper.SetDefault("backoff.initial", "1s")
	viper.SetDefault("backoff.max", "30s")
	viper.SetDefault("backoff.factor", 2.0)
	viper.SetDefault("request_timeout", "60s")
	viper.SetDefault("confidence_threshold", 0.5)
	viper.SetDefault("evidence_dir", "./pilot-evidence")
	viper.SetDefault("store_path", "")
	viper.SetDefault("cache_ttl", "1h")
	viper.SetDefault("s3.bucket", "")
	viper.SetDefault("s3.region", "")
	viper.SetDefault("headless", true)

	viper.SetEnvPrefix("PILOT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Missing config file is fine; defaults and env apply.
	}

	cfg := &Config{
		Models:              viper.GetStringSlice("models"),
		DefaultCooldown:     viper.GetDuration("default_cooldown"),
		MaxAttempts:         viper.GetInt("max_attempts"),
		TransientAttempts:   viper.GetInt("transient_attempts"),
		BackoffInitial:      viper.GetDuration("backoff.initial"),
		BackoffMax:          viper.GetDuration("backoff.max"),
		BackoffFactor:       viper.GetFloat64("backoff.factor"),
		RequestTimeout:      viper.GetDuration("request_timeout"),
		ConfidenceThreshold: viper.GetFloat64("confidence_threshold"),
		EvidenceDir:         viper.GetString("evidence_dir"),
		StorePath:           viper.GetString("store_path"),
		CacheTTL:            viper.GetDuration("cache_ttl"),
		S3Bucket:            viper.GetString("s3.bucket"),
		S3Region:            viper.GetString("s3.region"),
		Headless:            viper.GetBool("headless"),
	}

	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("at least one model must be configured")
	}

	return cfg, nil
}

// Variants maps the configured model names onto variants, priority following
// list order.
func (c *Config) Variants() []model.Variant {
	variants := make([]model.Variant, 0, len(c.Models))
	for i, name := range c.Models {
		variants = append(variants, model.Variant{
			Name:     name,
			Priority: i + 1,
			Vision:   true,
		})
	}
	return variants
}

// buildOrchestrator wires the model fallback orchestrator from config.
func buildOrchestrator(cfg *Config, logger zerolog.Logger) (*model.Orchestrator, error) {
	client, err := model.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	ocfg := model.Config{
		Variants:        cfg.Variants(),
		DefaultCooldown: cfg.DefaultCooldown,
		MaxAttempts:     cfg.MaxAttempts,
		Retry: model.RetryConfig{
			TransientAttempts: cfg.TransientAttempts,
			InitialDelay:      cfg.BackoffInitial,
			MaxDelay:          cfg.BackoffMax,
			BackoffFactor:     cfg.BackoffFactor,
		},
	}
	return model.NewOrchestrator(ocfg, client, logger)
}

// EnsureOutputDir creates the output directory if it doesn't exist.
func EnsureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return nil
}
