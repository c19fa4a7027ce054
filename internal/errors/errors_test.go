package errors

import (
	"bytes"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/gdopt/internal/logging"
)

func TestErrorString(t *testing.T) {
	base := stderrors.New("loss diverged")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "message only", err: New("bad input"), want: "bad input"},
		{name: "with context", err: New("bad input").WithOperation("start").WithComponent("server"), want: "bad input: operation=start, component=server"},
		{name: "wrapped", err: Wrap(base, "job failed"), want: "job failed: loss diverged"},
		{name: "wrapf", err: Wrapf(base, "job %s failed", "j1").WithOperation("run"), want: "job j1 failed: operation=run: loss diverged"},
		{name: "errorf", err: Errorf("unknown objective %q", "foo"), want: `unknown objective "foo"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapKeepsChain(t *testing.T) {
	base := stderrors.New("root cause")
	inner := Wrap(base, "inner")
	outer := Wrap(inner, "outer")

	assert.True(t, Is(outer, base))
	assert.Equal(t, inner, Unwrap(outer))
	assert.Equal(t, inner.Stack, outer.Stack, "an existing stack is reused")
	assert.NotEmpty(t, outer.StackTrace())

	var target *Error
	require.True(t, As(outer, &target))
	assert.Equal(t, "outer", target.Message)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "nothing"))
	assert.Nil(t, Wrapf(nil, "nothing %d", 1))
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.InfoLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "Recovered from panic")
}

func TestErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.InfoLevel, &buf)

	h := ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/good", nil))
	assert.Empty(t, buf.String())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Contains(t, buf.String(), "Request error")
}
