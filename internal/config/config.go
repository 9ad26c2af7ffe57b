package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the service configuration, populated from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimizer struct {
		// Defaults applied to submitted jobs that omit the corresponding
		// budget. Each job may still override them explicitly.
		DefaultMaxLoops       int           `env:"OPT_DEFAULT_MAX_LOOPS" envDefault:"1000"`
		DefaultMaxEvaluations int           `env:"OPT_DEFAULT_MAX_EVALS" envDefault:"20000"`
		DefaultMaxTime        time.Duration `env:"OPT_DEFAULT_MAX_TIME" envDefault:"60s"`

		// MaxConcurrent caps the number of jobs running at once.
		MaxConcurrent int `env:"OPT_MAX_CONCURRENT" envDefault:"16"`
	}
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Development runs default to debug logging unless told otherwise.
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}
