// pkg/resource/tasks.go
package resource

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-auvgnc/pkg/logging"
)

// Tasks starts named goroutines, recovers their panics and waits for them
// on shutdown.
type Tasks struct {
	running int64
	logger  *logging.Logger
}

// NewTasks creates an empty task group.
func NewTasks(logger *logging.Logger) *Tasks {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Tasks{logger: logger}
}

// Go runs fn in a tracked goroutine. An error returned by fn is logged.
func (t *Tasks) Go(ctx context.Context, name string, fn func(context.Context) error) {
	atomic.AddInt64(&t.running, 1)

	go func() {
		defer atomic.AddInt64(&t.running, -1)

		defer func() {
			if r := recover(); r != nil {
				t.logger.Error(ctx, "task panic", fmt.Errorf("panic: %v", r), "task", name)
			}
		}()

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			t.logger.Error(ctx, "task failed", err, "task", name)
		}
	}()
}

// Running returns the number of tasks that have not returned yet.
func (t *Tasks) Running() int64 {
	return atomic.LoadInt64(&t.running)
}

// Wait blocks until every task returned or ctx is done.
func (t *Tasks) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		count := t.Running()
		if count == 0 {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			remaining := t.Running()
			t.logger.Warn(ctx, "shutdown timeout exceeded with tasks still running",
				"remaining", remaining,
			)
			return fmt.Errorf("shutdown timeout: %d tasks still running", remaining)
		}
	}
}
