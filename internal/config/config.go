package config

import (
	"fmt"
	"os"
	"strconv"
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
		// Defaults applied to jobs that omit them
		LearningRate float64 `env:"GD_LEARNING_RATE" envDefault:"0.0001"`
		Iterations   int     `env:"GD_ITERATIONS" envDefault:"1000"`
		// Upper bound on iterations a single job may request
		MaxIterations int `env:"GD_MAX_ITERATIONS" envDefault:"1000000"`
		// Jobs allowed to run at the same time
		MaxJobs int `env:"GD_MAX_JOBS" envDefault:"10"`
		// Most recent losses returned by a status query
		HistoryLimit int `env:"GD_HISTORY_LIMIT" envDefault:"1000"`
		// How long finished jobs stay queryable; 0 keeps them forever
		JobRetention time.Duration `env:"GD_JOB_RETENTION" envDefault:"1h"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env.Parse cannot check on its own.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTP.Port)
	}
	if !(c.Optimization.LearningRate > 0) {
		return fmt.Errorf("GD_LEARNING_RATE must be positive, got %v", c.Optimization.LearningRate)
	}
	if c.Optimization.Iterations < 0 {
		return fmt.Errorf("GD_ITERATIONS must not be negative, got %d", c.Optimization.Iterations)
	}
	if c.Optimization.MaxIterations < c.Optimization.Iterations {
		return fmt.Errorf("GD_MAX_ITERATIONS (%d) is below GD_ITERATIONS (%d)",
			c.Optimization.MaxIterations, c.Optimization.Iterations)
	}
	if c.Optimization.MaxJobs < 1 {
		return fmt.Errorf("GD_MAX_JOBS must be at least 1, got %d", c.Optimization.MaxJobs)
	}
	if c.Optimization.HistoryLimit < 0 {
		return fmt.Errorf("GD_HISTORY_LIMIT must not be negative, got %d", c.Optimization.HistoryLimit)
	}
	if c.Optimization.JobRetention < 0 {
		return fmt.Errorf("GD_JOB_RETENTION must not be negative, got %s", c.Optimization.JobRetention)
	}
	return nil
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns the value of the environment variable as bool or the default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsFloat returns the value of the environment variable as float64 or the default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
