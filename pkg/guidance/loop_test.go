package guidance

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/config"
	"github.com/opd-ai/go-auvgnc/pkg/logging"
	"github.com/opd-ai/go-auvgnc/pkg/resource"
	"github.com/opd-ai/go-auvgnc/pkg/trajectory"
)

func TestRun_StepsUntilCancelled(t *testing.T) {
	c, _ := newTestController(t, config.DefaultConfig())
	monitor := resource.NewTickMonitor(5*time.Millisecond, logging.NewLoggerWithWriter(io.Discard), c.Bus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commands := make(chan Command, 16)
	source := StateSourceFunc(func(context.Context) (trajectory.State, error) {
		return restState(r3.Vec{Z: 3}), nil
	})
	sink := CommandSinkFunc(func(_ context.Context, cmd Command) error {
		select {
		case commands <- cmd:
		default:
		}
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, source, sink, monitor) }()

	for i := 0; i < 3; i++ {
		select {
		case cmd := <-commands:
			assert.True(t, cmd.Allocated())
			assert.Equal(t, r3.Vec{Z: 3}, cmd.Reference.Position)
		case <-time.After(2 * time.Second):
			t.Fatal("no command received")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.GreaterOrEqual(t, monitor.Stats().Ticks, int64(2))
}

func TestRun_SkipsFailedMeasurements(t *testing.T) {
	c, _ := newTestController(t, config.DefaultConfig())
	monitor := resource.NewTickMonitor(2*time.Millisecond, logging.NewLoggerWithWriter(io.Discard), nil)

	calls := 0
	source := StateSourceFunc(func(context.Context) (trajectory.State, error) {
		calls++
		if calls%2 == 1 {
			return trajectory.State{}, errors.New("dvl dropout")
		}
		return restState(r3.Vec{}), nil
	})
	sinkErr := errors.New("thruster bus closed")
	sent := 0
	sink := CommandSinkFunc(func(context.Context, Command) error {
		sent++
		if sent == 2 {
			return sinkErr
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx, source, sink, monitor)
	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 2, sent)
}
