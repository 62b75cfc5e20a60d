package trajectory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SimultaneousTrajectory moves between two waypoints with translation and
// rotation finishing together. Each inertial axis and each component of the
// body rotation vector follow their own quintic stretched to the shared
// duration.
type SimultaneousTrajectory struct {
	start       Waypoint
	end         Waypoint
	duration    float64
	translation translationProfile
	rotation    rotationProfile
}

// NewSimultaneousTrajectory builds the phase from start to end over duration
// seconds. The vehicle turns the short way round.
func NewSimultaneousTrajectory(start, end Waypoint, duration float64) (*SimultaneousTrajectory, error) {
	angle, axis := rotationBetween(start, end)
	return newSimultaneousTrajectory(start, end, duration, r3.Scale(angle, axis))
}

// newSimultaneousTrajectory turns through the body rotation vector rotation,
// which may be longer than half a turn. end.orientation must equal start
// turned by rotation.
func newSimultaneousTrajectory(start, end Waypoint, duration float64, rotation r3.Vec) (*SimultaneousTrajectory, error) {
	translation, err := newTranslationProfile(start, end, duration)
	if err != nil {
		return nil, fmt.Errorf("simultaneous translation: %w", err)
	}
	turn, err := newRotationVectorProfile(start, end, rotation, duration)
	if err != nil {
		return nil, fmt.Errorf("simultaneous %w", err)
	}
	return &SimultaneousTrajectory{
		start:       start,
		end:         end,
		duration:    duration,
		translation: translation,
		rotation:    turn,
	}, nil
}

// Duration returns the phase length in seconds
func (s *SimultaneousTrajectory) Duration() float64 {
	return s.duration
}

// Sample returns the reference state and acceleration at t, clamped to the
// phase.
func (s *SimultaneousTrajectory) Sample(t float64) (State, Accel) {
	t = clamp(t, 0, s.duration)
	pos, vel, acc := s.translation.sample(t)
	q, rate, rateDot := s.rotation.sample(t)
	return composeState(pos, vel, acc, q, rate, rateDot)
}

// ComputeState returns the reference state at t
func (s *SimultaneousTrajectory) ComputeState(t float64) State {
	state, _ := s.Sample(t)
	return state
}

// ComputeAccel returns the reference acceleration at t
func (s *SimultaneousTrajectory) ComputeAccel(t float64) Accel {
	_, accel := s.Sample(t)
	return accel
}

// PeakSpeed returns the largest per-axis velocity magnitude of the
// translation.
func (s *SimultaneousTrajectory) PeakSpeed() float64 {
	peak := 0.0
	for _, seg := range s.translation {
		peak = math.Max(peak, math.Abs(seg.PeakVelocity()))
	}
	return peak
}
