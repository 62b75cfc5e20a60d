// Package guidance turns goals into trajectories and, every control tick,
// into a reference state and the thruster forces that realize its
// acceleration.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/allocation"
	"github.com/opd-ai/go-auvgnc/pkg/config"
	"github.com/opd-ai/go-auvgnc/pkg/event"
	"github.com/opd-ai/go-auvgnc/pkg/logging"
	"github.com/opd-ai/go-auvgnc/pkg/physics"
	"github.com/opd-ai/go-auvgnc/pkg/trajectory"
	"github.com/opd-ai/go-auvgnc/pkg/validation"
)

// ErrNoTrajectory is returned when a query needs an active trajectory
var ErrNoTrajectory = errors.New("no active trajectory")

// Goal is a requested end waypoint. Duration is the requested total time in
// seconds; zero plans the fastest trajectory the limits allow.
type Goal struct {
	ID       string
	End      trajectory.Waypoint
	Duration float64
}

// Plan describes a trajectory accepted by SetGoal
type Plan struct {
	TrajectoryID string
	GoalID       string
	StartedAt    time.Time
	Diagnostics  trajectory.Diagnostics
}

// Command is the output of one control tick
type Command struct {
	Time         time.Time
	TrajectoryID string // empty while holding station
	Elapsed      float64
	Reference    trajectory.State
	Accel        trajectory.Accel
	Forces       [allocation.NumThrusters]float64
	Residual     [allocation.NumResiduals]float64
	Iterations   int
	Status       allocation.Status // valid when Skipped is false
	Skipped      bool              // solver not run, breaker open
	Fallback     string            // policy applied instead of the solution, if any
	Err          error             // allocation error behind the fallback
}

// Allocated reports whether Forces came from a converged solve
func (cmd Command) Allocated() bool {
	return cmd.Fallback == ""
}

// AllocationStatus names the allocation outcome
func (cmd Command) AllocationStatus() string {
	if cmd.Skipped {
		return "breaker_open"
	}
	return cmd.Status.String()
}

// ReferenceVelocityInertial is the reference velocity of cmd in the
// inertial frame.
func (cmd Command) ReferenceVelocityInertial() r3.Vec {
	return physics.Rotate(cmd.Reference.Orientation, cmd.Reference.Velocity)
}

type activeTrajectory struct {
	id        string
	goal      Goal
	traj      *trajectory.BasicTrajectory
	startedAt time.Time
	completed atomic.Bool
}

func (a *activeTrajectory) elapsed(now time.Time) float64 {
	return now.Sub(a.startedAt).Seconds()
}

// Controller owns the active trajectory and the thrust allocation. SetGoal
// and Step may be called from different goroutines.
type Controller struct {
	solver   *allocation.Solver
	limits   trajectory.TGenLimits
	fallback string
	breaker  *gobreaker.CircuitBreaker

	active atomic.Pointer[activeTrajectory]
	hold   atomic.Pointer[trajectory.State]

	mu          sync.Mutex
	lastForces  [allocation.NumThrusters]float64
	failing     bool
	failureSeen int64

	bus    *event.Bus
	logger *logging.Logger
	clock  func() time.Time
}

// Option configures a Controller
type Option func(*Controller)

// WithEventBus publishes controller events on bus
func WithEventBus(bus *event.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithLogger replaces the default stdout logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithClock replaces time.Now for Run
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// NewController builds a controller from a validated configuration
func NewController(cfg *config.VehicleConfig, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limits, err := cfg.TrajectoryLimits()
	if err != nil {
		return nil, err
	}
	solver, err := allocation.NewSolver(cfg.VehicleParams(), cfg.SolverOptions())
	if err != nil {
		return nil, err
	}

	c := &Controller{
		solver:   solver,
		limits:   limits,
		fallback: cfg.Controller.Fallback,
		bus:      event.NewEventBus(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewLogger()
	}

	maxFailures := uint32(cfg.Controller.BreakerMaxFailures)
	settings := gobreaker.Settings{
		Name:        "thrust-allocation",
		MaxRequests: uint32(cfg.Controller.BreakerHalfOpenRequests),
		Timeout:     cfg.BreakerTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a cancelled tick says nothing about the solver
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(settings)

	if inactive := cfg.Vehicle.InactiveThrusters; len(inactive) > 0 {
		c.logger.Info(context.Background(), "thrusters disabled for allocation",
			"inactive", inactive,
			"active", cfg.Vehicle.ActiveThrusterNames(),
		)
	}
	return c, nil
}

// Limits returns the planning limits
func (c *Controller) Limits() trajectory.TGenLimits { return c.limits }

// Bus returns the event bus the controller publishes on
func (c *Controller) Bus() *event.Bus { return c.bus }

// BreakerState returns the allocation circuit breaker state
func (c *Controller) BreakerState() gobreaker.State { return c.breaker.State() }

// SetGoal plans a trajectory from start to goal.End and makes it active.
// Concurrent Step calls see either the previous trajectory or the complete
// new one. start is a measured state and may move faster than the limits
// allow; the stop phase brings it to rest. goal.End must respect them.
func (c *Controller) SetGoal(ctx context.Context, now time.Time, start trajectory.Waypoint, goal Goal) (Plan, error) {
	if err := validation.ValidateGoalID(goal.ID); err != nil {
		return Plan{}, err
	}
	if err := validation.ValidateDuration(goal.Duration); err != nil {
		return Plan{}, fmt.Errorf("goal %s: %w", goal.ID, err)
	}
	if err := validation.ValidateStartWaypoint(start); err != nil {
		return Plan{}, fmt.Errorf("goal %s start: %w", goal.ID, err)
	}
	if err := validation.ValidateWaypoint(goal.End, c.limits); err != nil {
		return Plan{}, fmt.Errorf("goal %s end: %w", goal.ID, err)
	}

	var opts []trajectory.Option
	if goal.Duration > 0 {
		opts = append(opts, trajectory.WithRequestedDuration(goal.Duration))
	}
	traj, err := trajectory.NewBasicTrajectory(start, goal.End, c.limits, opts...)
	if err != nil {
		return Plan{}, logging.WrapError(err, "plan goal %s", goal.ID)
	}

	next := &activeTrajectory{
		id:        logging.GenerateTrajectoryID(),
		goal:      goal,
		traj:      traj,
		startedAt: now,
	}
	prev := c.active.Swap(next)
	c.hold.Store(nil)

	ctx = logging.WithTrajectoryID(ctx, next.id)
	diag := traj.Diagnostics()
	c.logger.Info(ctx, "regime selected",
		"goal_id", goal.ID,
		"regime", diag.Regime.String(),
		"long_required", diag.LongRequired,
		"exceeds_max_speed", diag.ExceedsMaxSpeed,
		"clamped_axes", diag.ClampedAxes,
		"xy_distance", diag.XYDistance,
		"z_distance", diag.ZDistance,
		"angular_distance", diag.AngularDistance,
		"peak_velocity", diag.PeakVelocity,
		"cruise_velocity", diag.CruiseVelocity,
		"cruise_ratio", diag.CruiseRatio,
		"stop_duration", diag.StopDuration,
		"main_duration", diag.MainDuration,
		"total_duration", diag.TotalDuration,
	)

	if prev != nil && !prev.completed.Load() {
		c.bus.Publish(event.NewTrajectoryEvent(event.TrajectoryReplaced, c, prev.id, prev.goal.ID, prev.traj.Regime().String(), prev.traj.Duration()))
	}
	c.bus.Publish(event.NewTrajectoryEvent(event.RegimeSelected, c, next.id, goal.ID, diag.Regime.String(), diag.TotalDuration))
	c.bus.Publish(event.NewTrajectoryEvent(event.TrajectoryStarted, c, next.id, goal.ID, diag.Regime.String(), diag.TotalDuration))

	return Plan{
		TrajectoryID: next.id,
		GoalID:       goal.ID,
		StartedAt:    now,
		Diagnostics:  diag,
	}, nil
}

// Clear drops the active trajectory. The controller holds station at the
// next measured pose.
func (c *Controller) Clear(ctx context.Context) {
	if prev := c.active.Swap(nil); prev != nil {
		c.logger.Info(logging.WithTrajectoryID(ctx, prev.id), "trajectory cleared", "goal_id", prev.goal.ID)
	}
}

// Progress reports how far the active trajectory is at now
func (c *Controller) Progress(now time.Time) (Progress, error) {
	active := c.active.Load()
	if active == nil {
		return Progress{}, ErrNoTrajectory
	}
	p := newProgress(active, now)
	if p.Done {
		c.complete(context.Background(), active)
	}
	return p, nil
}

// Step computes the command for the measured state at now. Allocation
// failures do not fail the step: the fallback policy fills Forces and the
// cause is recorded in the command.
func (c *Controller) Step(ctx context.Context, now time.Time, measured trajectory.State) (Command, error) {
	if err := validation.ValidateState(measured); err != nil {
		return Command{}, err
	}

	cmd := Command{Time: now}
	active := c.active.Load()
	if active == nil {
		cmd.Reference = c.holdReference(measured)
	} else {
		ctx = logging.WithTrajectoryID(ctx, active.id)
		cmd.TrajectoryID = active.id
		cmd.Elapsed = active.elapsed(now)
		// Sample clamps outside [0, Duration]; past the end the reference
		// holds the end waypoint.
		cmd.Reference, cmd.Accel, _ = active.traj.Sample(cmd.Elapsed)
		if cmd.Elapsed >= active.traj.Duration() {
			c.complete(ctx, active)
		}
	}

	c.allocate(ctx, &cmd, measured)
	return cmd, nil
}

// holdReference returns the station-keeping reference, latching the first
// measured pose seen without a trajectory.
func (c *Controller) holdReference(measured trajectory.State) trajectory.State {
	if held := c.hold.Load(); held != nil {
		return *held
	}
	ref := trajectory.State{
		Position:    measured.Position,
		Orientation: physics.NormalizeQuaternion(measured.Orientation),
	}
	if c.hold.CompareAndSwap(nil, &ref) {
		return ref
	}
	return *c.hold.Load()
}

func (c *Controller) complete(ctx context.Context, active *activeTrajectory) {
	if !active.completed.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info(ctx, "trajectory completed",
		"goal_id", active.goal.ID,
		"duration", active.traj.Duration(),
	)
	c.bus.Publish(event.NewTrajectoryEvent(event.TrajectoryCompleted, c, active.id, active.goal.ID, active.traj.Regime().String(), active.traj.Duration()))
}

// allocate solves for the forces that produce the reference accelerations
// at the measured attitude and velocities.
func (c *Controller) allocate(ctx context.Context, cmd *Command, measured trajectory.State) {
	// The reference linear acceleration is expressed in the reference body
	// frame; the residual needs it in the measured body frame.
	inertial := physics.Rotate(cmd.Reference.Orientation, cmd.Accel.Linear)
	in := allocation.Kinematics{
		Quaternion:         measured.Orientation,
		UVW:                measured.Velocity,
		PQR:                measured.AngularVelocity,
		InertialTransAccel: physics.InverseRotate(measured.Orientation, inertial),
		PQRDot:             cmd.Accel.Angular,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	initial := c.lastForces
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.solver.Solve(ctx, in, initial)
	})

	if result, ok := out.(allocation.Result); ok {
		cmd.Residual = result.Residual
		cmd.Iterations = result.Iterations
		cmd.Status = result.Status
	}
	if err == nil {
		result := out.(allocation.Result)
		cmd.Forces = result.Forces
		c.lastForces = result.Forces
		if c.failing {
			c.failing = false
			c.logger.Info(ctx, "thrust allocation recovered", "failed_ticks", c.failureSeen)
			c.bus.Publish(event.NewAllocationEvent(event.AllocationRecovered, c, cmd.TrajectoryID, cmd.Status.String(), "", nil))
			c.failureSeen = 0
		}
		return
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", allocation.ErrNoConvergence, err)
		cmd.Skipped = true
	}
	cmd.Err = err
	cmd.Fallback = c.fallback
	switch c.fallback {
	case config.FallbackZero:
		cmd.Forces = [allocation.NumThrusters]float64{}
	default:
		cmd.Forces = c.lastForces
	}
	c.lastForces = cmd.Forces
	c.failureSeen++

	c.logger.Warn(ctx, "thrust allocation failed",
		"error", err.Error(),
		"status", cmd.AllocationStatus(),
		"fallback", c.fallback,
		"breaker", c.breaker.State().String(),
	)
	if !c.failing {
		c.failing = true
		c.bus.Publish(event.NewAllocationEvent(event.AllocationFailed, c, cmd.TrajectoryID, cmd.AllocationStatus(), c.fallback, err))
	}
}
