package trajectory

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/physics"
)

// Indices of the 13-element state vector.
const (
	StateXI = iota // inertial position
	StateYI
	StateZI
	StateU // body velocity
	StateV
	StateW
	StateQuatW // orientation
	StateQuatX
	StateQuatY
	StateQuatZ
	StateP // body angular velocity
	StateQ
	StateR
	StateSize
)

// Indices of the 6-element acceleration vector.
const (
	AccelX = iota
	AccelY
	AccelZ
	AccelP
	AccelQ
	AccelR
	AccelSize
)

// State is a reference pose and velocity.
type State struct {
	Position        r3.Vec // inertial
	Velocity        r3.Vec // body
	Orientation     quat.Number
	AngularVelocity r3.Vec // body
}

// Vector flattens the state in StateXI..StateR order.
func (s State) Vector() [StateSize]float64 {
	return [StateSize]float64{
		StateXI:    s.Position.X,
		StateYI:    s.Position.Y,
		StateZI:    s.Position.Z,
		StateU:     s.Velocity.X,
		StateV:     s.Velocity.Y,
		StateW:     s.Velocity.Z,
		StateQuatW: s.Orientation.Real,
		StateQuatX: s.Orientation.Imag,
		StateQuatY: s.Orientation.Jmag,
		StateQuatZ: s.Orientation.Kmag,
		StateP:     s.AngularVelocity.X,
		StateQ:     s.AngularVelocity.Y,
		StateR:     s.AngularVelocity.Z,
	}
}

// Accel is a reference acceleration. Linear is the inertial acceleration
// expressed in the body frame; Angular is the body angular acceleration.
type Accel struct {
	Linear  r3.Vec
	Angular r3.Vec
}

// Vector flattens the acceleration in AccelX..AccelR order.
func (a Accel) Vector() [AccelSize]float64 {
	return [AccelSize]float64{
		a.Linear.X, a.Linear.Y, a.Linear.Z,
		a.Angular.X, a.Angular.Y, a.Angular.Z,
	}
}

// composeState maps inertial translation samples and a rotation sample into
// the reference state and acceleration.
func composeState(pos, velI, accI r3.Vec, q quat.Number, rate, rateDot r3.Vec) (State, Accel) {
	state := State{
		Position:        pos,
		Velocity:        physics.InverseRotate(q, velI),
		Orientation:     q,
		AngularVelocity: rate,
	}
	accel := Accel{
		Linear:  physics.InverseRotate(q, accI),
		Angular: rateDot,
	}
	return state, accel
}
