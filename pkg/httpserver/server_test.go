package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func TestRun(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"), httpserver.WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "pong")
		}))
	}()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + srv.Addr())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "pong", string(body))

	err = srv.Run(ctx, http.NotFoundHandler())
	assert.ErrorIs(t, err, httpserver.ErrAlreadyRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:-1"))
	err := srv.Run(context.Background(), http.NotFoundHandler())
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestNewFromConfig_ZeroValuesKeepDefaults(t *testing.T) {
	t.Parallel()

	srv := httpserver.NewFromConfig(httpserver.Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, http.NotFoundHandler()) }()
	<-srv.Ready()
	assert.NotEmpty(t, srv.Addr())
	cancel()
	assert.NoError(t, <-done)
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	httpserver.Liveness()(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	ok := httpserver.Check{Name: "postgres", Fn: func(context.Context) error { return nil }}
	down := httpserver.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}
	slow := httpserver.Check{Name: "mongo", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	tests := []struct {
		name       string
		checks     []httpserver.Check
		wantStatus int
		want       httpserver.HealthReport
	}{
		{
			name:       "all ok",
			checks:     []httpserver.Check{ok},
			wantStatus: http.StatusOK,
			want:       httpserver.HealthReport{Status: "ready", Checks: map[string]string{"postgres": "ok"}},
		},
		{
			name:       "one down",
			checks:     []httpserver.Check{ok, down},
			wantStatus: http.StatusServiceUnavailable,
			want:       httpserver.HealthReport{Status: "not_ready", Checks: map[string]string{"postgres": "ok", "redis": "unavailable"}},
		},
		{
			name:       "timeout",
			checks:     []httpserver.Check{slow},
			wantStatus: http.StatusServiceUnavailable,
			want:       httpserver.HealthReport{Status: "not_ready", Checks: map[string]string{"mongo": "unavailable"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			httpserver.Readiness(logger.Nop(), 20*time.Millisecond, tt.checks...)(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantStatus, w.Code)

			var got httpserver.HealthReport
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
