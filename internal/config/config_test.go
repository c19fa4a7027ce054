package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 1e-4, cfg.Optimization.LearningRate)
	assert.Equal(t, 1000, cfg.Optimization.Iterations)
	assert.Equal(t, 1000000, cfg.Optimization.MaxIterations)
	assert.Equal(t, 10, cfg.Optimization.MaxJobs)
	assert.Equal(t, 1000, cfg.Optimization.HistoryLimit)
	assert.Equal(t, time.Hour, cfg.Optimization.JobRetention)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GD_LEARNING_RATE", "0.05")
	t.Setenv("GD_ITERATIONS", "250")
	t.Setenv("GD_MAX_JOBS", "2")
	t.Setenv("GD_JOB_RETENTION", "10m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0.05, cfg.Optimization.LearningRate)
	assert.Equal(t, 250, cfg.Optimization.Iterations)
	assert.Equal(t, 2, cfg.Optimization.MaxJobs)
	assert.Equal(t, 10*time.Minute, cfg.Optimization.JobRetention)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unparsable port", key: "HTTP_PORT", value: "eighty"},
		{name: "port out of range", key: "HTTP_PORT", value: "70000"},
		{name: "zero learning rate", key: "GD_LEARNING_RATE", value: "0"},
		{name: "negative iterations", key: "GD_ITERATIONS", value: "-1"},
		{name: "no jobs", key: "GD_MAX_JOBS", value: "0"},
		{name: "negative history", key: "GD_HISTORY_LIMIT", value: "-5"},
		{name: "cap below default", key: "GD_MAX_ITERATIONS", value: "10"},
		{name: "negative retention", key: "GD_JOB_RETENTION", value: "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("GDOPT_TEST_STR", "hello")
	t.Setenv("GDOPT_TEST_INT", "42")
	t.Setenv("GDOPT_TEST_BOOL", "true")
	t.Setenv("GDOPT_TEST_FLOAT", "0.5")
	t.Setenv("GDOPT_TEST_BAD", "not-a-number")

	assert.Equal(t, "hello", GetEnv("GDOPT_TEST_STR", "x"))
	assert.Equal(t, "x", GetEnv("GDOPT_TEST_UNSET", "x"))
	assert.Equal(t, 42, GetEnvAsInt("GDOPT_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvAsInt("GDOPT_TEST_BAD", 1))
	assert.True(t, GetEnvAsBool("GDOPT_TEST_BOOL", false))
	assert.False(t, GetEnvAsBool("GDOPT_TEST_BAD", false))
	assert.Equal(t, 0.5, GetEnvAsFloat("GDOPT_TEST_FLOAT", 1))
	assert.Equal(t, 1.0, GetEnvAsFloat("GDOPT_TEST_BAD", 1))
}
