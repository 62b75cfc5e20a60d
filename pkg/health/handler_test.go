package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// breakerFunc adapts a live circuit breaker to BreakerSource
type breakerFunc func() gobreaker.State

func (f breakerFunc) BreakerState() gobreaker.State { return f() }

// deadlineCheck records the context each Check receives
type deadlineCheck struct {
	deadline time.Time
	ok       bool
}

func (d *deadlineCheck) Name() string { return "deadline" }

func (d *deadlineCheck) Check(ctx context.Context) error {
	d.deadline, d.ok = ctx.Deadline()
	return nil
}

func readiness(t *testing.T, h http.Handler, ctx context.Context) (int, HealthStatus) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return w.Code, status
}

func TestMux_TracksAllocationBreaker(t *testing.T) {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "allocation",
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	hc := NewHealthChecker()
	hc.AddCheck(NewAllocationHealthCheck(breakerFunc(cb.State)))
	mux := hc.Mux()

	code, status := readiness(t, mux, context.Background())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Checks["allocation"].Status)

	solveErr := errors.New("solver diverged")
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, solveErr })
		require.ErrorIs(t, err, solveErr)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	code, status = readiness(t, mux, context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Contains(t, status.Checks["allocation"].Message, "open")

	// liveness does not depend on the checks
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}

func TestReadinessHandler_BoundsChecks(t *testing.T) {
	check := &deadlineCheck{}
	hc := NewHealthChecker()
	hc.AddCheck(check)

	before := time.Now()
	code, _ := readiness(t, hc.Mux(), context.Background())
	assert.Equal(t, http.StatusOK, code)

	require.True(t, check.ok, "checks must run under a deadline")
	assert.False(t, check.deadline.Before(before.Add(readinessTimeout)))
	assert.False(t, check.deadline.After(time.Now().Add(readinessTimeout)))
}

func TestReadinessHandler_CancelledRequest(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddCheck(&slowHealthCheck{name: "slow", healthy: true, delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	code, status := readiness(t, hc.Mux(), ctx)
	assert.Less(t, time.Since(start), readinessTimeout)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.Canceled.Error(), status.Checks["slow"].Message)
}

func TestAllocationHealthCheck_Message(t *testing.T) {
	check := NewAllocationHealthCheck(&breakerStub{state: gobreaker.StateOpen})
	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, "allocation circuit breaker is open", err.Error())

	check = NewAllocationHealthCheck(&breakerStub{state: gobreaker.StateHalfOpen})
	assert.NoError(t, check.Check(context.Background()))
}
