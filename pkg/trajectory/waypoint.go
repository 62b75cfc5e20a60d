package trajectory

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/physics"
)

// Waypoint is an immutable kinematic snapshot. Position, velocity and
// acceleration are inertial; angular velocity is in the body frame.
type Waypoint struct {
	position        r3.Vec
	velocity        r3.Vec
	acceleration    r3.Vec
	orientation     quat.Number
	angularVelocity r3.Vec
}

// NewWaypoint creates a waypoint. The orientation is normalized.
func NewWaypoint(position, velocity, acceleration r3.Vec, orientation quat.Number, angularVelocity r3.Vec) Waypoint {
	return Waypoint{
		position:        position,
		velocity:        velocity,
		acceleration:    acceleration,
		orientation:     physics.NormalizeQuaternion(orientation),
		angularVelocity: angularVelocity,
	}
}

// RestWaypoint creates a waypoint with zero velocities and acceleration.
func RestWaypoint(position r3.Vec, orientation quat.Number) Waypoint {
	return NewWaypoint(position, r3.Vec{}, r3.Vec{}, orientation, r3.Vec{})
}

// WaypointFromState converts a measured state into a waypoint with zero
// acceleration. The body velocity is rotated into the inertial frame.
func WaypointFromState(s State) Waypoint {
	return NewWaypoint(s.Position, physics.Rotate(s.Orientation, s.Velocity), r3.Vec{}, s.Orientation, s.AngularVelocity)
}

// Position returns the inertial position in meters
func (w Waypoint) Position() r3.Vec { return w.position }

// Velocity returns the inertial velocity in m/s
func (w Waypoint) Velocity() r3.Vec { return w.velocity }

// Acceleration returns the inertial acceleration in m/s²
func (w Waypoint) Acceleration() r3.Vec { return w.acceleration }

// Orientation returns the unit quaternion rotating body vectors into the
// inertial frame
func (w Waypoint) Orientation() quat.Number { return w.orientation }

// AngularVelocity returns the body-frame angular velocity in rad/s
func (w Waypoint) AngularVelocity() r3.Vec { return w.angularVelocity }

// AtRest reports whether both translational and angular velocity are zero
func (w Waypoint) AtRest() bool {
	return physics.IsZero(w.velocity) && physics.IsZero(w.angularVelocity)
}

// State returns the 13-element state of the waypoint
func (w Waypoint) State() State {
	return State{
		Position:        w.position,
		Velocity:        physics.InverseRotate(w.orientation, w.velocity),
		Orientation:     w.orientation,
		AngularVelocity: w.angularVelocity,
	}
}

// coincides reports whether two waypoints describe the same pose with the
// vehicle at rest in both.
func (w Waypoint) coincides(o Waypoint, tol float64) bool {
	return r3.Norm(r3.Sub(w.position, o.position)) <= tol &&
		physics.QuaternionApproxEqual(w.orientation, o.orientation, tol) &&
		w.AtRest() && o.AtRest()
}
