package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestStartPoint(t *testing.T) {
	x, err := startPoint("1, -2.5,3e-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2.5, 0.3}, x)

	x, err = startPoint("", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, x)

	_, err = startPoint("1,abc", 0)
	assert.ErrorContains(t, err, "component 1")

	_, err = startPoint("", 0)
	assert.Error(t, err)
}

func TestRunQuadratic(t *testing.T) {
	stdout, stderr, err := execute(t, "run", "--objective", "quadratic", "--x0", "1", "--lr", "0.1", "--iterations", "2")
	require.NoError(t, err)

	assert.Contains(t, stdout, "x         = [0.64]")
	assert.Contains(t, stdout, "loss      = 0.4096")
	assert.Contains(t, stdout, "optimizer = GradientDescent(learning_rate=0.1)")
	assert.Contains(t, stderr, "2/2")
}

func TestRunQuiet(t *testing.T) {
	stdout, stderr, err := execute(t, "run", "--dim", "3", "--lr", "0.5", "--iterations", "1", "--quiet")
	require.NoError(t, err)

	assert.Contains(t, stdout, "x         = [0, 0, 0]")
	assert.Empty(t, stderr)
}

func TestRunLeastSquares(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": [[2, 0], [0, 1]], "b": [4, -1]}`), 0o600))

	stdout, _, err := execute(t, "run", "--objective", "least_squares", "--data", path,
		"--x0", "0,0", "--lr", "0.1", "--iterations", "300", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, stdout, "x         = [2, -1]")
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown objective", args: []string{"run", "--objective", "nope"}, want: "unknown objective"},
		{name: "bad learning rate", args: []string{"run", "--lr", "-1"}, want: "learning rate"},
		{name: "dim mismatch", args: []string{"run", "--dim", "3", "--x0", "1,2"}, want: "does not match"},
		{name: "negative iterations", args: []string{"run", "--iterations", "-1"}, want: "non-negative"},
		{name: "missing data file", args: []string{"run", "--objective", "least_squares", "--data", "/nonexistent/data.json"}, want: "read data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append(tt.args, "--quiet")...)
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), tt.want)
		})
	}
}

func TestObjectivesCommand(t *testing.T) {
	stdout, _, err := execute(t, "objectives")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "beale"))
	assert.Contains(t, stdout, "rosenbrock")
}

func TestRunBarWidth(t *testing.T) {
	_, stderr, err := execute(t, "run", "--x0", "1", "--lr", "0.1", "--iterations", "2", "--bar-width", "8")
	require.NoError(t, err)
	assert.Contains(t, stderr, "|████████|")
	assert.NotContains(t, stderr, "|█████████")
}
