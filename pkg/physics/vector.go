// pkg/physics/vector.go
package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Gravity and water density used by the vehicle model.
const (
	Gravity      = 9.80665 // [m/s^2]
	WaterDensity = 1000.0  // [kg/m^3]
)

// Vec builds an r3.Vec from its components
func Vec(x, y, z float64) r3.Vec {
	return r3.Vec{X: x, Y: y, Z: z}
}

// Normalize returns a unit vector in the same direction.
// The zero vector normalizes to the zero vector.
func Normalize(v r3.Vec) r3.Vec {
	length := r3.Norm(v)
	if length == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/length, v)
}

// IsZero reports whether every component is exactly zero
func IsZero(v r3.Vec) bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Abs returns the component-wise absolute value
func Abs(v r3.Vec) r3.Vec {
	return r3.Vec{X: math.Abs(v.X), Y: math.Abs(v.Y), Z: math.Abs(v.Z)}
}

// Component returns the i-th component (0=X, 1=Y, 2=Z)
func Component(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	panic("physics: component index out of range")
}

// FromArray converts a 3-array into a vector
func FromArray(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

// ToArray converts a vector into a 3-array
func ToArray(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Sign returns -1, 0 or +1 following the sign of x
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// IsFinite reports whether all components are finite numbers
func IsFinite(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
