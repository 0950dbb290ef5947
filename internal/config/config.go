package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

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
	Optimization struct {
		// WorkerCount bounds concurrent trials for grid and random search.
		WorkerCount     int    `env:"OPT_WORKER_COUNT" envDefault:"1"`
		Seed            int64  `env:"OPT_SEED" envDefault:"313"`
		MaxIterations   int    `env:"OPT_MAX_ITERATIONS" envDefault:"500"`
		ResultsDir      string `env:"OPT_RESULTS_DIR" envDefault:"results"`
		PlotConvergence bool   `env:"OPT_PLOT_CONVERGENCE" envDefault:"true"`
		MaxJobs         int    `env:"OPT_MAX_JOBS" envDefault:"4"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Optimization.WorkerCount < 1 {
		cfg.Optimization.WorkerCount = 1
	}
	if cfg.Optimization.MaxJobs < 1 {
		cfg.Optimization.MaxJobs = 1
	}

	return cfg, nil
}
