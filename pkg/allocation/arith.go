// Package allocation maps commanded body accelerations to individual thruster
// forces. The rigid-body residual is written once over a generic scalar so it
// can be evaluated with plain floats or with dual numbers for exact
// derivatives.
package allocation

import (
	"gonum.org/v1/gonum/num/dual"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Arith is the arithmetic the residual needs from a scalar type.
type Arith[T any] interface {
	Const(x float64) T
	Add(a, b T) T
	Sub(a, b T) T
	Mul(a, b T) T
}

// Real is float64 arithmetic.
type Real struct{}

func (Real) Const(x float64) float64  { return x }
func (Real) Add(a, b float64) float64 { return a + b }
func (Real) Sub(a, b float64) float64 { return a - b }
func (Real) Mul(a, b float64) float64 { return a * b }

// Dual is forward-mode dual number arithmetic.
type Dual struct{}

func (Dual) Const(x float64) dual.Number      { return dual.Number{Real: x} }
func (Dual) Add(a, b dual.Number) dual.Number { return dual.Add(a, b) }
func (Dual) Sub(a, b dual.Number) dual.Number { return dual.Sub(a, b) }
func (Dual) Mul(a, b dual.Number) dual.Number { return dual.Mul(a, b) }

// Vec3 is a 3-vector over T.
type Vec3[T any] [3]T

// Quat is a quaternion over T with W the scalar part.
type Quat[T any] struct {
	W, X, Y, Z T
}

func constVec[T any](ar Arith[T], v r3.Vec) Vec3[T] {
	return Vec3[T]{ar.Const(v.X), ar.Const(v.Y), ar.Const(v.Z)}
}

func constQuat[T any](ar Arith[T], q quat.Number) Quat[T] {
	return Quat[T]{ar.Const(q.Real), ar.Const(q.Imag), ar.Const(q.Jmag), ar.Const(q.Kmag)}
}

func addVec[T any](ar Arith[T], a, b Vec3[T]) Vec3[T] {
	return Vec3[T]{ar.Add(a[0], b[0]), ar.Add(a[1], b[1]), ar.Add(a[2], b[2])}
}

func scaleVec[T any](ar Arith[T], s T, v Vec3[T]) Vec3[T] {
	return Vec3[T]{ar.Mul(s, v[0]), ar.Mul(s, v[1]), ar.Mul(s, v[2])}
}

// Cross returns a × b.
func Cross[T any](ar Arith[T], a, b Vec3[T]) Vec3[T] {
	return Vec3[T]{
		ar.Sub(ar.Mul(a[1], b[2]), ar.Mul(a[2], b[1])),
		ar.Sub(ar.Mul(a[2], b[0]), ar.Mul(a[0], b[2])),
		ar.Sub(ar.Mul(a[0], b[1]), ar.Mul(a[1], b[0])),
	}
}

// MatVec returns m·v for a constant 3x3 matrix.
func MatVec[T any](ar Arith[T], m [3][3]float64, v Vec3[T]) Vec3[T] {
	var out Vec3[T]
	for i := range out {
		sum := ar.Const(0)
		for j := 0; j < 3; j++ {
			sum = ar.Add(sum, ar.Mul(ar.Const(m[i][j]), v[j]))
		}
		out[i] = sum
	}
	return out
}

func quatMul[T any](ar Arith[T], a, b Quat[T]) Quat[T] {
	return Quat[T]{
		W: ar.Sub(ar.Sub(ar.Sub(ar.Mul(a.W, b.W), ar.Mul(a.X, b.X)), ar.Mul(a.Y, b.Y)), ar.Mul(a.Z, b.Z)),
		X: ar.Sub(ar.Add(ar.Add(ar.Mul(a.W, b.X), ar.Mul(a.X, b.W)), ar.Mul(a.Y, b.Z)), ar.Mul(a.Z, b.Y)),
		Y: ar.Add(ar.Add(ar.Sub(ar.Mul(a.W, b.Y), ar.Mul(a.X, b.Z)), ar.Mul(a.Y, b.W)), ar.Mul(a.Z, b.X)),
		Z: ar.Add(ar.Sub(ar.Add(ar.Mul(a.W, b.Z), ar.Mul(a.X, b.Y)), ar.Mul(a.Y, b.X)), ar.Mul(a.Z, b.W)),
	}
}

func conj[T any](ar Arith[T], q Quat[T]) Quat[T] {
	zero := ar.Const(0)
	return Quat[T]{W: q.W, X: ar.Sub(zero, q.X), Y: ar.Sub(zero, q.Y), Z: ar.Sub(zero, q.Z)}
}

// InverseRotate maps an inertial vector into the body frame: q* ⊗ v ⊗ q.
func InverseRotate[T any](ar Arith[T], q Quat[T], v Vec3[T]) Vec3[T] {
	p := Quat[T]{W: ar.Const(0), X: v[0], Y: v[1], Z: v[2]}
	r := quatMul(ar, quatMul(ar, conj(ar, q), p), q)
	return Vec3[T]{r.X, r.Y, r.Z}
}
