package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

type Config struct {
	RunAddress           string
	DatabaseURI          string
	SecretKey            string
	LogLevel             string
	PlatformConfigPath   string
	PublicURL            string
	SweepInterval        time.Duration
	WebhookRetryInterval time.Duration
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "HTTP server address")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "DB connection string, in-memory storage when empty")
	flag.StringVar(&cfg.SecretKey, "k", "", "JWT signing key")
	flag.StringVar(&cfg.PlatformConfigPath, "c", "", "platform settings file (routing, providers, default fee plan)")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.StringVar(&cfg.PublicURL, "p", "http://localhost:8080", "public base URL used for provider notifications")
	flag.DurationVar(&cfg.SweepInterval, "s", time.Minute, "wallet release sweep interval")
	flag.DurationVar(&cfg.WebhookRetryInterval, "w", 30*time.Second, "webhook redelivery interval")
	flag.Parse()

	if err := ReadServerEnvironment(cfg); err != nil {
		return nil, err
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required (-k or SECRET_KEY)")
	}

	return cfg, nil
}

func ReadServerEnvironment(cfg *Config) error {
	if runAddress := os.Getenv("RUN_ADDRESS"); runAddress != "" {
		cfg.RunAddress = runAddress
	}

	if databaseURI := os.Getenv("DATABASE_URI"); databaseURI != "" {
		cfg.DatabaseURI = databaseURI
	}

	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		cfg.SecretKey = secretKey
	}

	if platformConfig := os.Getenv("PLATFORM_CONFIG"); platformConfig != "" {
		cfg.PlatformConfigPath = platformConfig
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if publicURL := os.Getenv("PUBLIC_URL"); publicURL != "" {
		cfg.PublicURL = publicURL
	}

	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = d
	}

	if v := os.Getenv("WEBHOOK_RETRY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_RETRY_INTERVAL: %w", err)
		}
		cfg.WebhookRetryInterval = d
	}

	return nil
}
