// Package resource tracks the runtime budget of the control loop and the
// goroutines the service starts.
package resource

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-auvgnc/pkg/event"
	"github.com/opd-ai/go-auvgnc/pkg/logging"
)

// TickMonitor records how long each control tick took against a fixed
// budget. It is safe for concurrent use.
type TickMonitor struct {
	budget time.Duration

	// Atomic counters for thread-safe access
	ticks       int64
	overruns    int64
	consecutive int64
	lastElapsed int64 // ns
	maxElapsed  int64 // ns
	lastTick    int64 // unix ns

	logger *logging.Logger
	bus    *event.Bus
}

// TickStats is a snapshot of the monitor counters.
type TickStats struct {
	Ticks               int64         `json:"ticks"`
	Overruns            int64         `json:"overruns"`
	ConsecutiveOverruns int64         `json:"consecutive_overruns"`
	Budget              time.Duration `json:"budget"`
	LastElapsed         time.Duration `json:"last_elapsed"`
	MaxElapsed          time.Duration `json:"max_elapsed"`
	LastTick            time.Time     `json:"last_tick"`
}

// NewTickMonitor creates a monitor for ticks of the given budget. The bus is
// optional.
func NewTickMonitor(budget time.Duration, logger *logging.Logger, bus *event.Bus) *TickMonitor {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &TickMonitor{
		budget: budget,
		logger: logger,
		bus:    bus,
	}
}

// Budget returns the per-tick budget.
func (m *TickMonitor) Budget() time.Duration {
	return m.budget
}

// Observe records a tick that finished at end after running for elapsed.
// It reports whether the tick overran its budget.
func (m *TickMonitor) Observe(ctx context.Context, end time.Time, elapsed time.Duration) bool {
	atomic.AddInt64(&m.ticks, 1)
	atomic.StoreInt64(&m.lastElapsed, int64(elapsed))
	atomic.StoreInt64(&m.lastTick, end.UnixNano())
	for {
		prev := atomic.LoadInt64(&m.maxElapsed)
		if int64(elapsed) <= prev || atomic.CompareAndSwapInt64(&m.maxElapsed, prev, int64(elapsed)) {
			break
		}
	}

	if elapsed <= m.budget {
		atomic.StoreInt64(&m.consecutive, 0)
		return false
	}

	atomic.AddInt64(&m.overruns, 1)
	streak := atomic.AddInt64(&m.consecutive, 1)
	m.logger.Warn(ctx, "control tick overran budget",
		"elapsed", elapsed,
		"budget", m.budget,
		"consecutive", streak,
	)
	if m.bus != nil {
		m.bus.Publish(event.NewTickEvent(m, elapsed.Seconds(), m.budget.Seconds()))
	}
	return true
}

// Stats returns the current counters.
func (m *TickMonitor) Stats() TickStats {
	stats := TickStats{
		Ticks:               atomic.LoadInt64(&m.ticks),
		Overruns:            atomic.LoadInt64(&m.overruns),
		ConsecutiveOverruns: atomic.LoadInt64(&m.consecutive),
		Budget:              m.budget,
		LastElapsed:         time.Duration(atomic.LoadInt64(&m.lastElapsed)),
		MaxElapsed:          time.Duration(atomic.LoadInt64(&m.maxElapsed)),
	}
	if ns := atomic.LoadInt64(&m.lastTick); ns != 0 {
		stats.LastTick = time.Unix(0, ns)
	}
	return stats
}
