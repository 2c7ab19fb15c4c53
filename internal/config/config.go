// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса ресторанных заказов.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`
	PromosEnabled bool   `env:"PROMOS_ENABLED"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRabbitMQURL := cfg.RabbitMQURL
	envPromosEnabled := cfg.PromosEnabled

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RabbitMQURL, "q", "", "RabbitMQ URL for order events (optional)")
	flag.BoolVar(&cfg.PromosEnabled, "p", false, "enable the promotion module")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRabbitMQURL != "" {
		cfg.RabbitMQURL = envRabbitMQURL
	}
	if envPromosEnabled {
		cfg.PromosEnabled = true
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
