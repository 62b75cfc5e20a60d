package trajectory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// LongTrajectory accelerates along the straight line to the goal, cruises at
// constant speed, then decelerates onto the end waypoint. The rotation runs
// as one quintic over the whole phase.
type LongTrajectory struct {
	start          Waypoint
	end            Waypoint
	direction      r3.Vec
	cruiseVelocity float64
	cruiseRatio    float64

	rampDuration        float64
	cruiseDuration      float64
	translationDuration float64
	duration            float64

	accelerate  translationProfile
	cruiseStart r3.Vec
	decelerate  translationProfile
	rotation    rotationProfile
}

// NewLongTrajectory builds the phase. cruiseRatio is the fraction of the
// straight-line distance flown at cruiseVelocity; the two ramps share the
// rest equally.
func NewLongTrajectory(start, end Waypoint, cruiseVelocity, cruiseRatio float64, limits TGenLimits) (*LongTrajectory, error) {
	displacement := r3.Sub(end.position, start.position)
	distance := r3.Norm(displacement)
	if distance == 0 {
		return nil, fmt.Errorf("%w: long trajectory needs a nonzero displacement", ErrInfeasible)
	}
	if !(cruiseVelocity > 0) || math.IsInf(cruiseVelocity, 0) {
		return nil, fmt.Errorf("%w: cruise velocity %g", ErrInfeasible, cruiseVelocity)
	}
	if cruiseRatio < 0 || cruiseRatio >= 1 || math.IsNaN(cruiseRatio) {
		return nil, fmt.Errorf("%w: cruise ratio %g outside [0, 1)", ErrInfeasible, cruiseRatio)
	}

	direction := r3.Scale(1/distance, displacement)
	rampDistance := 0.5 * (1 - cruiseRatio) * distance
	cruiseDistance := cruiseRatio * distance

	l := &LongTrajectory{
		start:          start,
		end:            end,
		direction:      direction,
		cruiseVelocity: cruiseVelocity,
		cruiseRatio:    cruiseRatio,
		rampDuration:   2 * rampDistance / cruiseVelocity,
		cruiseDuration: cruiseDistance / cruiseVelocity,
	}
	l.translationDuration = 2*l.rampDuration + l.cruiseDuration

	cruiseVel := r3.Scale(cruiseVelocity, direction)
	l.cruiseStart = r3.Add(start.position, r3.Scale(rampDistance, direction))
	cruiseEnd := r3.Add(l.cruiseStart, r3.Scale(cruiseDistance, direction))

	var err error
	l.accelerate, err = newTranslationProfile(start,
		NewWaypoint(l.cruiseStart, cruiseVel, r3.Vec{}, start.orientation, r3.Vec{}), l.rampDuration)
	if err != nil {
		return nil, fmt.Errorf("long accelerate: %w", err)
	}
	l.decelerate, err = newTranslationProfile(
		NewWaypoint(cruiseEnd, cruiseVel, r3.Vec{}, end.orientation, r3.Vec{}), end, l.rampDuration)
	if err != nil {
		return nil, fmt.Errorf("long decelerate: %w", err)
	}

	angle, _ := rotationBetween(start, end)
	rotTime, err := restToRestTime(angle, limits.RotationalJerk)
	if err != nil {
		return nil, fmt.Errorf("long rotation time: %w", err)
	}
	l.duration = math.Max(l.translationDuration, rotTime)

	l.rotation, err = newRotationProfile(start, end, l.duration)
	if err != nil {
		return nil, fmt.Errorf("long %w", err)
	}
	return l, nil
}

// Duration returns the phase length in seconds
func (l *LongTrajectory) Duration() float64 { return l.duration }

// CruiseVelocity returns the constant speed of the cruise segment
func (l *LongTrajectory) CruiseVelocity() float64 { return l.cruiseVelocity }

// CruiseRatio returns the fraction of the distance flown at cruise speed
func (l *LongTrajectory) CruiseRatio() float64 { return l.cruiseRatio }

// Segments returns the ramp and cruise durations.
func (l *LongTrajectory) Segments() (ramp, cruise float64) {
	return l.rampDuration, l.cruiseDuration
}

// Sample returns the reference state and acceleration at t, clamped to the
// phase. Translation holds the end waypoint once it finishes before the
// rotation.
func (l *LongTrajectory) Sample(t float64) (State, Accel) {
	t = clamp(t, 0, l.duration)

	var pos, vel, acc r3.Vec
	switch cruiseEnd := l.rampDuration + l.cruiseDuration; {
	case t < l.rampDuration:
		pos, vel, acc = l.accelerate.sample(t)
	case t < cruiseEnd:
		vel = r3.Scale(l.cruiseVelocity, l.direction)
		pos = r3.Add(l.cruiseStart, r3.Scale(t-l.rampDuration, vel))
	default:
		pos, vel, acc = l.decelerate.sample(t - cruiseEnd)
	}

	q, rate, rateDot := l.rotation.sample(t)
	return composeState(pos, vel, acc, q, rate, rateDot)
}

// ComputeState returns the reference state at t
func (l *LongTrajectory) ComputeState(t float64) State {
	state, _ := l.Sample(t)
	return state
}

// ComputeAccel returns the reference acceleration at t
func (l *LongTrajectory) ComputeAccel(t float64) Accel {
	_, accel := l.Sample(t)
	return accel
}
