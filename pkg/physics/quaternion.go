// pkg/physics/quaternion.go
package physics

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// QuaternionNormTolerance is the norm below which a quaternion is considered
// degenerate and replaced by the identity orientation.
const QuaternionNormTolerance = 1e-12

// Identity returns the identity orientation
func Identity() quat.Number {
	return quat.Number{Real: 1}
}

// Quaternion builds a quaternion from its scalar and vector parts (w, x, y, z)
func Quaternion(w, x, y, z float64) quat.Number {
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// NormalizeQuaternion scales q to unit norm. A near-zero quaternion resets to
// the identity orientation.
func NormalizeQuaternion(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < QuaternionNormTolerance || math.IsNaN(n) {
		return Identity()
	}
	return quat.Scale(1/n, q)
}

// Rotate maps a body-frame vector into the inertial frame: q ⊗ v ⊗ q*.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, raise(v)), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// InverseRotate maps an inertial-frame vector into the body frame: q* ⊗ v ⊗ q.
func InverseRotate(q quat.Number, v r3.Vec) r3.Vec {
	return Rotate(quat.Conj(q), v)
}

// AngleAxisToQuaternion returns the rotation of angle radians about axis.
// A zero angle or zero axis yields the identity.
func AngleAxisToQuaternion(angle float64, axis r3.Vec) quat.Number {
	unit := Normalize(axis)
	if angle == 0 || IsZero(unit) {
		return Identity()
	}
	s, c := math.Sincos(0.5 * angle)
	return quat.Number{Real: c, Imag: s * unit.X, Jmag: s * unit.Y, Kmag: s * unit.Z}
}

// QuaternionToAngleAxis returns the angle in [0, pi] and unit axis of q.
// The shortest rotation is chosen, so q and -q give the same result.
// The axis is the zero vector when the angle is zero.
func QuaternionToAngleAxis(q quat.Number) (float64, r3.Vec) {
	q = NormalizeQuaternion(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	vec := r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sinHalf := r3.Norm(vec)
	if sinHalf < QuaternionNormTolerance {
		return 0, r3.Vec{}
	}
	angle := 2 * math.Atan2(sinHalf, q.Real)
	return angle, r3.Scale(1/sinHalf, vec)
}

// QuaternionArray returns q as (w, x, y, z)
func QuaternionArray(q quat.Number) [4]float64 {
	return [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// QuaternionFromArray builds a quaternion from (w, x, y, z)
func QuaternionFromArray(a [4]float64) quat.Number {
	return quat.Number{Real: a[0], Imag: a[1], Jmag: a[2], Kmag: a[3]}
}

// QuaternionApproxEqual compares two orientations up to sign within tol
func QuaternionApproxEqual(a, b quat.Number, tol float64) bool {
	if quat.Abs(quat.Sub(a, b)) <= tol {
		return true
	}
	return quat.Abs(quat.Add(a, b)) <= tol
}

func raise(v r3.Vec) quat.Number {
	return quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
}
