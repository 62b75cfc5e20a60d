package trajectory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/dual"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/physics"
)

// translationProfile runs one quintic per inertial axis over a shared
// duration.
type translationProfile [3]MinJerkTrajectory

func axisBoundary(w Waypoint, axis int) Boundary {
	return Boundary{
		Pos:   physics.Component(w.position, axis),
		Vel:   physics.Component(w.velocity, axis),
		Accel: physics.Component(w.acceleration, axis),
	}
}

func newTranslationProfile(start, end Waypoint, duration float64) (translationProfile, error) {
	var p translationProfile
	for axis := range p {
		seg, err := NewMinJerkTrajectory(axisBoundary(start, axis), axisBoundary(end, axis), duration)
		if err != nil {
			return p, fmt.Errorf("axis %d: %w", axis, err)
		}
		p[axis] = seg
	}
	return p, nil
}

func (p translationProfile) sample(t float64) (pos, vel, accel r3.Vec) {
	var x, v, a [3]float64
	for axis, seg := range p {
		x[axis], v[axis], a[axis] = seg.Evaluate(t)
	}
	return physics.FromArray(x), physics.FromArray(v), physics.FromArray(a)
}

// rotationProfile turns the vehicle through a rotation vector φ applied in
// the body frame, q(t) = q0 ⊗ Exp(φ(t)), with one quintic per component of
// φ. The body rate is J_r(φ)·φ̇, so any start and end angular velocity can be
// met exactly.
type rotationProfile struct {
	origin quat.Number
	phi    [3]MinJerkTrajectory
}

// rotationBetween returns the shortest rotation angle and its body axis from
// start to end.
func rotationBetween(start, end Waypoint) (float64, r3.Vec) {
	return physics.QuaternionToAngleAxis(quat.Mul(quat.Conj(start.orientation), end.orientation))
}

func newRotationProfile(start, end Waypoint, duration float64) (rotationProfile, error) {
	angle, axis := rotationBetween(start, end)
	return newRotationVectorProfile(start, end, r3.Scale(angle, axis), duration)
}

// newRotationVectorProfile turns through rotation, which may exceed half a
// turn. The orientation of end is not consulted.
func newRotationVectorProfile(start, end Waypoint, rotation r3.Vec, duration float64) (rotationProfile, error) {
	var phiDotEnd r3.Vec
	if !physics.IsZero(end.angularVelocity) {
		if r3.Norm(rotation) >= 2*math.Pi {
			return rotationProfile{}, fmt.Errorf("%w: end angular velocity after a full turn", ErrInfeasible)
		}
		phiDotEnd = inverseRightJacobian(rotation, end.angularVelocity)
	}

	p := rotationProfile{origin: start.orientation}
	for axis := range p.phi {
		from := Boundary{Vel: physics.Component(start.angularVelocity, axis)}
		to := Boundary{
			Pos: physics.Component(rotation, axis),
			Vel: physics.Component(phiDotEnd, axis),
		}
		seg, err := NewMinJerkTrajectory(from, to, duration)
		if err != nil {
			return rotationProfile{}, fmt.Errorf("rotation axis %d: %w", axis, err)
		}
		p.phi[axis] = seg
	}
	return p, nil
}

func (r rotationProfile) sample(t float64) (q quat.Number, rate, rateDot r3.Vec) {
	var phi, phiDot, phiDDot [3]float64
	for axis, seg := range r.phi {
		phi[axis], phiDot[axis], phiDDot[axis] = seg.Evaluate(t)
	}
	rotation := physics.FromArray(phi)
	q = quat.Mul(r.origin, physics.AngleAxisToQuaternion(r3.Norm(rotation), rotation))
	rate, rateDot = bodyRate(rotation, physics.FromArray(phiDot), physics.FromArray(phiDDot))
	return physics.NormalizeQuaternion(q), rate, rateDot
}

// dualVec carries a vector and its time derivative.
type dualVec [3]dual.Number

func newDualVec(v, dv r3.Vec) dualVec {
	return dualVec{
		{Real: v.X, Emag: dv.X},
		{Real: v.Y, Emag: dv.Y},
		{Real: v.Z, Emag: dv.Z},
	}
}

func (a dualVec) dot(b dualVec) dual.Number {
	return dual.Add(dual.Add(dual.Mul(a[0], b[0]), dual.Mul(a[1], b[1])), dual.Mul(a[2], b[2]))
}

func (a dualVec) cross(b dualVec) dualVec {
	return dualVec{
		dual.Sub(dual.Mul(a[1], b[2]), dual.Mul(a[2], b[1])),
		dual.Sub(dual.Mul(a[2], b[0]), dual.Mul(a[0], b[2])),
		dual.Sub(dual.Mul(a[0], b[1]), dual.Mul(a[1], b[0])),
	}
}

// bodyRate maps the rotation vector derivatives to the body angular velocity
// ω = J_r(φ)·φ̇ and its derivative.
func bodyRate(phi, phiDot, phiDDot r3.Vec) (rate, rateDot r3.Vec) {
	p := newDualVec(phi, phiDot)
	v := newDualVec(phiDot, phiDDot)
	a, b := rightJacobianCoefficients(p.dot(p))

	pv := p.cross(v)
	ppv := p.cross(pv)
	var w dualVec
	for i := range w {
		w[i] = dual.Add(dual.Sub(v[i], dual.Mul(a, pv[i])), dual.Mul(b, ppv[i]))
	}
	return r3.Vec{X: w[0].Real, Y: w[1].Real, Z: w[2].Real},
		r3.Vec{X: w[0].Emag, Y: w[1].Emag, Z: w[2].Emag}
}

// smallAngleSq is the squared angle below which the Jacobian coefficients
// switch to their Taylor series.
const smallAngleSq = 1e-4

// rightJacobianCoefficients returns a and b of J_r = I - a[φ]× + b[φ]×² for
// s = |φ|².
func rightJacobianCoefficients(s dual.Number) (a, b dual.Number) {
	if s.Real < smallAngleSq {
		s2 := dual.Mul(s, s)
		a = dual.Add(dual.Number{Real: 1.0 / 2}, dual.Add(dual.Scale(-1.0/24, s), dual.Scale(1.0/720, s2)))
		b = dual.Add(dual.Number{Real: 1.0 / 6}, dual.Add(dual.Scale(-1.0/120, s), dual.Scale(1.0/5040, s2)))
		return a, b
	}
	theta := dual.Sqrt(s)
	a = dual.Mul(dual.Sub(dual.Number{Real: 1}, dual.Cos(theta)), dual.Inv(s))
	b = dual.Mul(dual.Sub(theta, dual.Sin(theta)), dual.Inv(dual.Mul(s, theta)))
	return a, b
}

// inverseRightJacobian returns J_r(φ)⁻¹·w for |φ| < 2π.
func inverseRightJacobian(phi, w r3.Vec) r3.Vec {
	s := r3.Dot(phi, phi)
	var c float64
	if s < smallAngleSq {
		c = 1.0/12 + s/720 + s*s/30240
	} else {
		theta := math.Sqrt(s)
		c = 1/s - 1/(2*theta*math.Tan(0.5*theta))
	}
	pw := r3.Cross(phi, w)
	return r3.Add(r3.Add(w, r3.Scale(0.5, pw)), r3.Scale(c, r3.Cross(phi, pw)))
}

// restToRestTime is the min-jerk time for a motion of distance that starts
// and ends at rest.
func restToRestTime(distance float64, jerk JerkTable) (float64, error) {
	limit := jerk.At(distance)
	return SolveMinJerkTime(
		Boundary{Jerk: limit},
		Boundary{Pos: distance, Jerk: limit},
	)
}
