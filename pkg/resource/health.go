// pkg/resource/health.go
package resource

import (
	"context"
	"fmt"
	"time"
)

// TickHealthCheck reports the control loop unhealthy when it stops ticking
// or keeps overrunning its budget.
type TickHealthCheck struct {
	monitor                *TickMonitor
	maxConsecutiveOverruns int64
	staleAfter             time.Duration
	now                    func() time.Time
}

// NewTickHealthCheck creates a health check for the monitor. A loop that has
// not ticked within staleAfter is considered stalled.
func NewTickHealthCheck(monitor *TickMonitor, maxConsecutiveOverruns int64, staleAfter time.Duration) *TickHealthCheck {
	return &TickHealthCheck{
		monitor:                monitor,
		maxConsecutiveOverruns: maxConsecutiveOverruns,
		staleAfter:             staleAfter,
		now:                    time.Now,
	}
}

// Name returns the name of this health check.
func (h *TickHealthCheck) Name() string {
	return "control_tick"
}

// Check verifies that the loop is ticking within budget.
func (h *TickHealthCheck) Check(ctx context.Context) error {
	stats := h.monitor.Stats()

	if stats.Ticks == 0 {
		return fmt.Errorf("control loop has not ticked yet")
	}
	if age := h.now().Sub(stats.LastTick); age > h.staleAfter {
		return fmt.Errorf("control loop stalled: last tick %s ago", age.Round(time.Millisecond))
	}
	if stats.ConsecutiveOverruns >= h.maxConsecutiveOverruns {
		return fmt.Errorf("%d consecutive ticks overran the %s budget",
			stats.ConsecutiveOverruns, stats.Budget)
	}
	return nil
}
