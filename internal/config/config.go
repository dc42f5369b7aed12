// Package config loads the application configuration from environment
// variables.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs to start. Defaults suit a
// local checkout: run the binary from the project root and it serves on
// :8080 with the data directory beside it.
type Config struct {
	Port        int        `env:"PORT" envDefault:"8080"`
	DBPath      string     `env:"DB_PATH" envDefault:"data/pagepilot.db"`
	TemplateDir string     `env:"TEMPLATE_DIR" envDefault:"web/templates"`
	StaticDir   string     `env:"STATIC_DIR" envDefault:"web/static"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	return cfg, nil
}
