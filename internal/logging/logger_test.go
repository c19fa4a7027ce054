package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// decodeLines parses every JSON line written to buf
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line: %s", line)
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{DebugLevel, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{InfoLevel, []string{"INFO", "WARN", "ERROR"}},
		{WarnLevel, []string{"WARN", "ERROR"}},
		{ErrorLevel, []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			l := New(tt.level, &buf)

			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			var got []string
			for _, e := range decodeLines(t, &buf) {
				got = append(got, e["level"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf).
		WithField("service", "gdopt").
		WithError(errors.New("bad thing"))

	l.Info("hello", map[string]interface{}{"iteration": 3, "elapsed": 2 * time.Second})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "hello", e["message"])
	assert.Equal(t, "gdopt", e["service"])
	assert.Equal(t, "bad thing", e["error"])
	assert.Equal(t, float64(3), e["iteration"])
	assert.Equal(t, "2s", e["elapsed"])
	assert.Contains(t, e["caller"], "logging/logger_test.go")
	assert.NotEmpty(t, e["timestamp"])
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(InfoLevel, &buf)
	_ = parent.WithField("child", true)

	parent.Info("plain")
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	_, ok := entries[0]["child"]
	assert.False(t, ok)
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf).WithFormat(TextFormat).WithField("b", 2).WithField("a", 1)

	l.Info("text line")

	line := buf.String()
	assert.Contains(t, line, "INFO  text line")
	assert.Less(t, strings.Index(line, " a=1"), strings.Index(line, " b=2"), "keys are sorted")
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, &buf)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("goodbye")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "goodbye")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *Config
		wantLevel  LogLevel
		wantFormat Format
	}{
		{name: "nil config", cfg: nil, wantLevel: InfoLevel, wantFormat: JSONFormat},
		{name: "debug text", cfg: &Config{Level: "debug", Format: "text", Output: "stdout"}, wantLevel: DebugLevel, wantFormat: TextFormat},
		{name: "console alias", cfg: &Config{Level: "warning", Format: "console", Output: "stderr"}, wantLevel: WarnLevel, wantFormat: TextFormat},
		{name: "unknown level", cfg: &Config{Level: "loud", Format: "json"}, wantLevel: InfoLevel, wantFormat: JSONFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, l.Level())
			assert.Equal(t, tt.wantFormat, l.format)
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := t.TempDir() + "/gdopt.log"
	l, err := NewLogger(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	l.Info("to file")

	_, err = NewLogger(&Config{Output: t.TempDir() + "/missing/dir/x.log"})
	assert.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(DebugLevel, &buf)

	ctx := NewContext(context.Background(), l)
	FromContext(ctx).Debug("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	fallback := FromContext(context.Background())
	require.NotNil(t, fallback)
	assert.Equal(t, InfoLevel, fallback.Level())
}

func TestZapAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(InfoLevel, &buf)).Named("progress").With(zap.String("job", "abc"))

	zl.Debug("hidden")
	zl.Info("step",
		zap.Int("iteration", 7),
		zap.Float64("loss", 0.25),
		zap.Bool("done", true),
		zap.Duration("elapsed", 1500*time.Millisecond),
		zap.Error(errors.New("nope")),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "step", e["message"])
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "abc", e["job"])
	assert.Equal(t, "progress", e["logger"])
	assert.Equal(t, float64(7), e["iteration"])
	assert.Equal(t, 0.25, e["loss"])
	assert.Equal(t, true, e["done"])
	assert.Equal(t, "1.5s", e["elapsed"])
	assert.Equal(t, "nope", e["error"])
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(logger))
	r.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "inside handler", entries[0]["message"])
	assert.Equal(t, "/teapot", entries[0]["path"])
	assert.NotEmpty(t, entries[0]["request_id"])

	assert.Equal(t, "Request completed", entries[1]["message"])
	assert.Equal(t, float64(http.StatusTeapot), entries[1]["status"])
	assert.Equal(t, http.StatusText(http.StatusTeapot), entries[1]["error"])
}
