package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL        string `env:"RABBITMQ_URL,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	DeliveryWebhookURL string `env:"DELIVERY_WEBHOOK_URL,required=true"`
	SendRatePerSec     int    `env:"SEND_RATE_PER_SEC,default=5"`
	SweepIntervalSec   int    `env:"SWEEP_INTERVAL_SEC,default=30"`
	DispatchBudgetSec  int    `env:"DISPATCH_BUDGET_SEC,default=55"`
	StaleThresholdMin  int    `env:"STALE_THRESHOLD_MIN,default=10"`
	APIPort            int    `env:"API_PORT,default=8080"`
	MetricsPort        int    `env:"METRICS_PORT,default=9090"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SendRatePerSec < 1 {
		return fmt.Errorf("SEND_RATE_PER_SEC must be >= 1, got %d", c.SendRatePerSec)
	}
	if c.SweepIntervalSec < 1 {
		return fmt.Errorf("SWEEP_INTERVAL_SEC must be >= 1, got %d", c.SweepIntervalSec)
	}
	if c.DispatchBudgetSec < 1 {
		return fmt.Errorf("DISPATCH_BUDGET_SEC must be >= 1, got %d", c.DispatchBudgetSec)
	}
	return nil
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *Config) DispatchBudget() time.Duration {
	return time.Duration(c.DispatchBudgetSec) * time.Second
}

func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdMin) * time.Minute
}
