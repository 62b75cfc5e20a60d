package allocation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/physics"
)

// Problem dimensions.
const (
	NumThrusters = 8
	NumResiduals = 6
)

// ErrInvalidParams is returned by VehicleParams.Validate.
var ErrInvalidParams = errors.New("invalid vehicle parameters")

// VehicleParams are the rigid-body and actuator constants of the vehicle.
// They are loaded once and never mutated.
type VehicleParams struct {
	Weight           float64 // [N]
	Buoyancy         float64 // [N]
	CenterOfBuoyancy r3.Vec  // body frame, relative to the center of mass [m]
	Inertia          [3][3]float64

	// Drag rows 0..2 are linear and rows 3..5 quadratic coefficients per
	// axis. Column 0 applies to translation, column 1 to rotation.
	Drag [6][2]float64

	// Thrust maps the thruster forces to body force (rows 0..2) and
	// moment (rows 3..5).
	Thrust [NumResiduals][NumThrusters]float64

	// Disabled thrusters are held at zero force by the solver.
	Disabled [NumThrusters]bool
}

// Mass derived from the weight force.
func (p *VehicleParams) Mass() float64 {
	return p.Weight / physics.Gravity
}

// Validate checks the physical constants.
func (p *VehicleParams) Validate() error {
	if !(p.Weight > 0) || math.IsInf(p.Weight, 0) {
		return fmt.Errorf("%w: weight must be positive, got %g", ErrInvalidParams, p.Weight)
	}
	if p.Buoyancy < 0 || math.IsNaN(p.Buoyancy) || math.IsInf(p.Buoyancy, 0) {
		return fmt.Errorf("%w: buoyancy must be non-negative, got %g", ErrInvalidParams, p.Buoyancy)
	}
	if !physics.IsFinite(p.CenterOfBuoyancy) {
		return fmt.Errorf("%w: center of buoyancy is not finite", ErrInvalidParams)
	}
	for i := 0; i < 3; i++ {
		if !(p.Inertia[i][i] > 0) {
			return fmt.Errorf("%w: inertia diagonal %d must be positive, got %g", ErrInvalidParams, i, p.Inertia[i][i])
		}
		for j := 0; j < 3; j++ {
			if p.Inertia[i][j] != p.Inertia[j][i] {
				return fmt.Errorf("%w: inertia tensor is not symmetric", ErrInvalidParams)
			}
		}
	}
	for i, row := range p.Drag {
		for j, c := range row {
			if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w: drag[%d][%d] must be non-negative, got %g", ErrInvalidParams, i, j, c)
			}
		}
	}
	var norm float64
	for _, row := range p.Thrust {
		for j, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w: thrust matrix is not finite", ErrInvalidParams)
			}
			if !p.Disabled[j] {
				norm += c * c
			}
		}
	}
	if norm == 0 {
		return fmt.Errorf("%w: no enabled thruster produces force", ErrInvalidParams)
	}
	return nil
}

// ActiveThrusters returns the number of enabled thrusters
func (p *VehicleParams) ActiveThrusters() int {
	n := 0
	for _, off := range p.Disabled {
		if !off {
			n++
		}
	}
	return n
}

// withoutDisabled returns a copy whose disabled thrust columns are zero, so
// the residual no longer depends on those forces.
func (p VehicleParams) withoutDisabled() VehicleParams {
	for j, off := range p.Disabled {
		if !off {
			continue
		}
		for i := range p.Thrust {
			p.Thrust[i][j] = 0
		}
	}
	return p
}

// drag returns the linear plus signed quadratic drag for body rates v using
// the given Drag column.
func (p *VehicleParams) drag(v r3.Vec, column int) r3.Vec {
	var out [3]float64
	for i, vi := range physics.ToArray(v) {
		out[i] = p.Drag[i][column]*vi + physics.Sign(vi)*p.Drag[i+3][column]*vi*vi
	}
	return physics.FromArray(out)
}

// Kinematics is the per-call motion snapshot the residual is evaluated at.
type Kinematics struct {
	Quaternion         quat.Number // orientation
	UVW                r3.Vec      // body velocity [m/s]
	PQR                r3.Vec      // body angular velocity [rad/s]
	InertialTransAccel r3.Vec      // inertial acceleration in body frame [m/s^2]
	PQRDot             r3.Vec      // body angular acceleration [rad/s^2]
}

// Residual evaluates the six dynamics residuals for the thruster forces.
// Drag is taken at the measured velocities, so it is constant in forces.
func Residual[T any](ar Arith[T], p *VehicleParams, in *Kinematics, forces [NumThrusters]T) [NumResiduals]T {
	q := constQuat(ar, physics.NormalizeQuaternion(in.Quaternion))

	var thrust [NumResiduals]T
	for i, row := range p.Thrust {
		sum := ar.Const(0)
		for j, c := range row {
			sum = ar.Add(sum, ar.Mul(ar.Const(c), forces[j]))
		}
		thrust[i] = sum
	}

	var res [NumResiduals]T

	// translation
	gravity := InverseRotate(ar, q, constVec(ar, r3.Vec{Z: p.Weight - p.Buoyancy}))
	transDrag := constVec(ar, p.drag(in.UVW, 0))
	massAccel := scaleVec(ar, ar.Const(p.Mass()), constVec(ar, in.InertialTransAccel))
	for i := 0; i < 3; i++ {
		applied := ar.Add(ar.Sub(gravity[i], transDrag[i]), thrust[i])
		res[i] = ar.Sub(massAccel[i], applied)
	}

	// rotation
	pqr := constVec(ar, in.PQR)
	inertial := addVec(ar,
		MatVec(ar, p.Inertia, constVec(ar, in.PQRDot)),
		Cross(ar, pqr, MatVec(ar, p.Inertia, pqr)))
	buoyancy := InverseRotate(ar, q, constVec(ar, r3.Vec{Z: -p.Buoyancy}))
	righting := Cross(ar, constVec(ar, p.CenterOfBuoyancy), buoyancy)
	rotDrag := constVec(ar, p.drag(in.PQR, 1))
	for i := 0; i < 3; i++ {
		applied := ar.Add(ar.Sub(righting[i], rotDrag[i]), thrust[3+i])
		res[3+i] = ar.Sub(inertial[i], applied)
	}
	return res
}

// EvaluateResidual is Residual over float64.
func EvaluateResidual(p *VehicleParams, in *Kinematics, forces [NumThrusters]float64) [NumResiduals]float64 {
	return Residual[float64](Real{}, p, in, forces)
}

// Jacobian returns the 6x8 derivative of the residual with respect to the
// forces, one forward dual pass per thruster.
func Jacobian(p *VehicleParams, in *Kinematics, forces [NumThrusters]float64) *mat.Dense {
	jac := mat.NewDense(NumResiduals, NumThrusters, nil)
	for col := 0; col < NumThrusters; col++ {
		var seeded [NumThrusters]dual.Number
		for j, f := range forces {
			seeded[j] = dual.Number{Real: f}
		}
		seeded[col].Emag = 1

		res := Residual[dual.Number](Dual{}, p, in, seeded)
		for row, r := range res {
			jac.Set(row, col, r.Emag)
		}
	}
	return jac
}
