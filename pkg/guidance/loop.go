package guidance

import (
	"context"
	"time"

	"github.com/opd-ai/go-auvgnc/pkg/resource"
	"github.com/opd-ai/go-auvgnc/pkg/trajectory"
)

// StateSource supplies the measured vehicle state each tick
type StateSource interface {
	Measure(ctx context.Context) (trajectory.State, error)
}

// CommandSink receives the command of each tick
type CommandSink interface {
	Send(ctx context.Context, cmd Command) error
}

// StateSourceFunc adapts a function to StateSource
type StateSourceFunc func(ctx context.Context) (trajectory.State, error)

// Measure calls f
func (f StateSourceFunc) Measure(ctx context.Context) (trajectory.State, error) { return f(ctx) }

// CommandSinkFunc adapts a function to CommandSink
type CommandSinkFunc func(ctx context.Context, cmd Command) error

// Send calls f
func (f CommandSinkFunc) Send(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

// Run steps the controller every monitor budget until ctx is done. A tick
// whose measurement or step fails is logged and skipped; a sink error stops
// the loop.
func (c *Controller) Run(ctx context.Context, source StateSource, sink CommandSink, monitor *resource.TickMonitor) error {
	ticker := time.NewTicker(monitor.Budget())
	defer ticker.Stop()

	c.logger.Info(ctx, "control loop started", "period", monitor.Budget())
	defer c.logger.Info(context.WithoutCancel(ctx), "control loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		start := time.Now()
		if err := c.tick(ctx, source, sink); err != nil {
			return err
		}
		end := time.Now()
		monitor.Observe(ctx, end, end.Sub(start))
	}
}

func (c *Controller) tick(ctx context.Context, source StateSource, sink CommandSink) error {
	measured, err := source.Measure(ctx)
	if err != nil {
		c.logger.Warn(ctx, "state measurement failed", "error", err.Error())
		return nil
	}
	cmd, err := c.Step(ctx, c.clock(), measured)
	if err != nil {
		c.logger.Warn(ctx, "control step rejected", "error", err.Error())
		return nil
	}
	return sink.Send(ctx, cmd)
}
