package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func healthy(name string) *CheckFunc {
	return NewCheckFunc(name, func(context.Context) error { return nil })
}

func failing(name string) *CheckFunc {
	return NewCheckFunc(name, func(context.Context) error { return errors.New("connection refused") })
}

type staticChecker Check

func (c staticChecker) Check(context.Context) Check { return Check(c) }

func serveHealth(t *testing.T, handler *Handler) (int, Response) {
	t.Helper()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return w.Code, response
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", healthy("storage"))

	code, response := serveHealth(t, handler)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "v1.0.0", response.Version)
	assert.Len(t, response.Checks, 1)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", failing("storage"))
	handler.RegisterChecker("outbox", staticChecker{Name: "outbox", Status: StatusDegraded})

	code, response := serveHealth(t, handler)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, response.Status)
	assert.Equal(t, "connection refused", response.Checks["storage"].Message)
}

func TestHealthHandler_DegradedStaysAvailable(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", healthy("storage"))
	handler.RegisterChecker("outbox", staticChecker{Name: "outbox", Status: StatusDegraded})

	code, response := serveHealth(t, handler)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, response.Status)
}

func TestHandler_RunAppliesTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.SetTimeout(20 * time.Millisecond)
	handler.RegisterChecker("slow", NewCheckFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	response := handler.Run(context.Background())

	assert.Equal(t, StatusUnhealthy, response.Status)
	assert.Contains(t, response.Checks["slow"].Message, "deadline exceeded")
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		checker  Checker
		wantCode int
		wantBody string
	}{
		{name: "ready", checker: healthy("storage"), wantCode: http.StatusOK, wantBody: "ready"},
		{name: "degraded is ready", checker: staticChecker{Status: StatusDegraded}, wantCode: http.StatusOK, wantBody: "ready"},
		{name: "not ready", checker: failing("storage"), wantCode: http.StatusServiceUnavailable, wantBody: "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v1.0.0")
			handler.RegisterChecker("component", tt.checker)

			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("postgres", pingerFunc(func(context.Context) error { return nil })).Check(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)
	assert.Equal(t, "postgres", ok.Name)

	down := NewPingChecker("postgres", pingerFunc(func(context.Context) error { return errors.New("timeout") })).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, down.Status)
	assert.Equal(t, "timeout", down.Message)
}

type stubOutbox struct {
	domain.OutboxRepository
	stats domain.OutboxStats
	err   error
}

func (s stubOutbox) Stats() (domain.OutboxStats, error) { return s.stats, s.err }

func TestOutboxBacklogChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		repo       stubOutbox
		wantStatus Status
		wantMsg    string
	}{
		{
			name:       "empty backlog",
			repo:       stubOutbox{},
			wantStatus: StatusHealthy,
		},
		{
			name:       "too many pending",
			repo:       stubOutbox{stats: domain.OutboxStats{PendingCount: 11, OldestPendingAt: now}},
			wantStatus: StatusDegraded,
			wantMsg:    "11 pending messages",
		},
		{
			name:       "stale message",
			repo:       stubOutbox{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-90 * time.Second)}},
			wantStatus: StatusDegraded,
			wantMsg:    "oldest pending message is 1m30s old",
		},
		{
			name:       "stats error",
			repo:       stubOutbox{err: errors.New("db down")},
			wantStatus: StatusUnhealthy,
			wantMsg:    "db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewOutboxBacklogChecker(tt.repo, 10, time.Minute)
			checker.now = func() time.Time { return now }

			check := checker.Check(context.Background())

			assert.Equal(t, tt.wantStatus, check.Status)
			assert.Equal(t, tt.wantMsg, check.Message)
		})
	}
}
