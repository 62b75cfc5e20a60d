package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/physics"
)

// ErrTimeOutOfRange is returned alongside a clamped sample when a query time
// falls outside [0, Duration].
var ErrTimeOutOfRange = errors.New("query time out of range")

// coincidenceTolerance decides when the stop waypoint already is the goal.
const coincidenceTolerance = 1e-9

// Regime identifies the main phase selected for a trajectory.
type Regime int

const (
	// RegimeStopOnly means the vehicle only has to come to rest.
	RegimeStopOnly Regime = iota
	// RegimeSimultaneous is a single synchronized min-jerk motion.
	RegimeSimultaneous
	// RegimeLong inserts a constant-velocity cruise.
	RegimeLong
)

func (r Regime) String() string {
	switch r {
	case RegimeStopOnly:
		return "stop_only"
	case RegimeSimultaneous:
		return "simultaneous"
	case RegimeLong:
		return "long"
	default:
		return fmt.Sprintf("regime(%d)", int(r))
	}
}

// Diagnostics records how a BasicTrajectory was planned.
type Diagnostics struct {
	Regime               Regime
	LongRequired         bool
	ExceedsMaxSpeed      bool
	ClampedAxes          [3]bool
	XYDistance           float64
	ZDistance            float64
	AngularDistance      float64
	SimultaneousDuration float64
	PeakVelocity         r3.Vec // per-axis, before clamping
	CruiseVelocity       float64
	CruiseRatio          float64
	StopDuration         float64
	MainDuration         float64
	TotalDuration        float64
}

// Option customizes trajectory planning.
type Option func(*planOptions)

type planOptions struct {
	requestedDuration float64
}

// WithRequestedDuration asks for a total duration of at least seconds. Only
// a synchronized main phase is stretched; the minimum feasible duration is
// never shortened.
func WithRequestedDuration(seconds float64) Option {
	return func(o *planOptions) {
		o.requestedDuration = seconds
	}
}

// BasicTrajectory brings the vehicle to rest and then to the end waypoint.
// It is immutable once built and safe for concurrent queries.
type BasicTrajectory struct {
	start Waypoint
	end   Waypoint

	stopPoint    Waypoint
	stop         *SimultaneousTrajectory // nil when starting at rest
	stopDuration float64

	regime       Regime
	simultaneous *SimultaneousTrajectory
	long         *LongTrajectory

	duration    float64
	diagnostics Diagnostics
}

// NewBasicTrajectory plans a trajectory from start to end within limits.
func NewBasicTrajectory(start, end Waypoint, limits TGenLimits, opts ...Option) (*BasicTrajectory, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	var o planOptions
	for _, opt := range opts {
		opt(&o)
	}

	b := &BasicTrajectory{start: start, end: end}
	if err := b.planStop(limits); err != nil {
		return nil, err
	}
	if err := b.planMain(limits, o); err != nil {
		return nil, err
	}
	b.diagnostics.StopDuration = b.stopDuration
	b.diagnostics.TotalDuration = b.duration
	b.diagnostics.MainDuration = b.duration - b.stopDuration
	return b, nil
}

// stopDistance is the distance covered by a min-jerk deceleration from speed
// to rest at the given deceleration.
func stopDistance(speed, decel float64) float64 {
	return 2.0 / 3.0 * speed * speed / decel
}

func (b *BasicTrajectory) planStop(limits TGenLimits) error {
	position := b.start.position
	orientation := b.start.orientation
	var transTime, rotTime float64
	var rotation r3.Vec

	if speed := r3.Norm(b.start.velocity); speed > 0 {
		dir := r3.Scale(1/speed, b.start.velocity)
		dist := stopDistance(speed, limits.stopAcceleration(b.start.velocity))
		position = r3.Add(position, r3.Scale(dist, dir))

		jerk := limits.TranslationalJerk.At(dist)
		t, err := SolveMinJerkTime(
			Boundary{Vel: speed, Accel: r3.Dot(b.start.acceleration, dir), Jerk: jerk},
			Boundary{Pos: dist, Jerk: jerk},
		)
		if err != nil {
			return fmt.Errorf("translation stop segment: %w", err)
		}
		transTime = t
	}

	if rate := r3.Norm(b.start.angularVelocity); rate > 0 {
		axis := r3.Scale(1/rate, b.start.angularVelocity)
		angle := stopDistance(rate, limits.MaxRotAcceleration)
		rotation = r3.Scale(angle, axis)
		orientation = quat.Mul(orientation, physics.AngleAxisToQuaternion(angle, axis))

		jerk := limits.RotationalJerk.At(angle)
		t, err := SolveMinJerkTime(
			Boundary{Vel: rate, Jerk: jerk},
			Boundary{Pos: angle, Jerk: jerk},
		)
		if err != nil {
			return fmt.Errorf("rotation stop segment: %w", err)
		}
		rotTime = t
	}

	b.stopPoint = RestWaypoint(position, orientation)
	b.stopDuration = math.Max(transTime, rotTime)
	if b.stopDuration == 0 {
		return nil
	}

	// the stop turn may pass half a revolution and must not reverse the spin
	stop, err := newSimultaneousTrajectory(b.start, b.stopPoint, b.stopDuration, rotation)
	if err != nil {
		return fmt.Errorf("stop phase: %w", err)
	}
	b.stop = stop
	return nil
}

func (b *BasicTrajectory) planMain(limits TGenLimits, o planOptions) error {
	d := &b.diagnostics
	from := b.stopPoint

	displacement := r3.Sub(b.end.position, from.position)
	distance := r3.Norm(displacement)
	d.XYDistance = math.Hypot(displacement.X, displacement.Y)
	d.ZDistance = math.Abs(displacement.Z)
	d.AngularDistance, _ = rotationBetween(from, b.end)
	d.LongRequired = d.XYDistance > limits.MaxXYDistance || d.ZDistance > limits.MaxZDistance

	transTime, err := restToRestTime(distance, limits.TranslationalJerk)
	if err != nil {
		return fmt.Errorf("main translation time: %w", err)
	}
	rotTime, err := restToRestTime(d.AngularDistance, limits.RotationalJerk)
	if err != nil {
		return fmt.Errorf("main rotation time: %w", err)
	}
	simDuration := math.Max(transTime, rotTime)
	if requested := o.requestedDuration - b.stopDuration; requested > simDuration {
		simDuration = requested
	}
	d.SimultaneousDuration = simDuration

	var peakSpeed float64
	if distance > 0 && simDuration > 0 {
		profile, err := NewMinJerkTrajectory(Boundary{}, Boundary{Pos: distance}, simDuration)
		if err != nil {
			return fmt.Errorf("peak velocity: %w", err)
		}
		peakSpeed = math.Abs(profile.PeakVelocity())

		dir := physics.Abs(r3.Scale(1/distance, displacement))
		peak := r3.Scale(peakSpeed, dir)
		d.PeakVelocity = peak

		limit := physics.ToArray(limits.MaxVelocity)
		clamped := physics.ToArray(peak)
		for axis := range clamped {
			if clamped[axis] > limit[axis] {
				clamped[axis] = limit[axis]
				d.ClampedAxes[axis] = true
				d.ExceedsMaxSpeed = true
			}
		}
		d.CruiseVelocity = r3.Norm(physics.FromArray(clamped))
	}

	switch {
	case from.coincides(b.end, coincidenceTolerance):
		b.regime = RegimeStopOnly
		b.duration = b.stopDuration

	case d.LongRequired || d.ExceedsMaxSpeed:
		ratio := 0.0
		if peakSpeed > 0 {
			ratio = 1 - d.CruiseVelocity/peakSpeed
		}
		d.CruiseRatio = ratio
		long, err := NewLongTrajectory(from, b.end, d.CruiseVelocity, ratio, limits)
		if err != nil {
			return fmt.Errorf("long phase: %w", err)
		}
		b.regime = RegimeLong
		b.long = long
		b.duration = b.stopDuration + long.Duration()

	default:
		sim, err := NewSimultaneousTrajectory(from, b.end, simDuration)
		if err != nil {
			return fmt.Errorf("simultaneous phase: %w", err)
		}
		b.regime = RegimeSimultaneous
		b.simultaneous = sim
		b.duration = b.stopDuration + sim.Duration()
	}
	d.Regime = b.regime
	return nil
}

// Duration returns the total duration: stop phase plus main phase.
func (b *BasicTrajectory) Duration() float64 { return b.duration }

// StopDuration returns the length of the stop phase
func (b *BasicTrajectory) StopDuration() float64 { return b.stopDuration }

// Regime returns the selected main phase
func (b *BasicTrajectory) Regime() Regime { return b.regime }

// Diagnostics returns how the trajectory was planned
func (b *BasicTrajectory) Diagnostics() Diagnostics { return b.diagnostics }

// Start returns the waypoint the trajectory was planned from
func (b *BasicTrajectory) Start() Waypoint { return b.start }

// End returns the goal waypoint
func (b *BasicTrajectory) End() Waypoint { return b.end }

// StopWaypoint returns the rest pose reached when the stop phase ends. It has
// the start pose when the start was already at rest.
func (b *BasicTrajectory) StopWaypoint() Waypoint { return b.stopPoint }

// Sample returns the reference state and acceleration at t. The stop phase
// answers for t <= StopDuration. A time outside [0, Duration] is clamped and
// reported with ErrTimeOutOfRange.
func (b *BasicTrajectory) Sample(t float64) (State, Accel, error) {
	var err error
	if math.IsNaN(t) || t < 0 || t > b.duration {
		err = fmt.Errorf("%w: t=%g outside [0, %g]", ErrTimeOutOfRange, t, b.duration)
		if math.IsNaN(t) {
			t = 0
		}
		t = clamp(t, 0, b.duration)
	}

	if b.stop != nil && t <= b.stopDuration {
		state, accel := b.stop.Sample(t)
		return state, accel, err
	}

	local := t - b.stopDuration
	switch b.regime {
	case RegimeSimultaneous:
		state, accel := b.simultaneous.Sample(local)
		return state, accel, err
	case RegimeLong:
		state, accel := b.long.Sample(local)
		return state, accel, err
	default:
		return b.stopPoint.State(), Accel{}, err
	}
}

// ComputeState returns the 13-element reference state at t.
func (b *BasicTrajectory) ComputeState(t float64) (State, error) {
	state, _, err := b.Sample(t)
	return state, err
}

// ComputeAccel returns the 6-element reference acceleration at t.
func (b *BasicTrajectory) ComputeAccel(t float64) (Accel, error) {
	_, accel, err := b.Sample(t)
	return accel, err
}
