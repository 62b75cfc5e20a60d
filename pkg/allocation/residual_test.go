package allocation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/dual"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/physics"
)

// diagonalVehicle has one thruster per degree of freedom, no drag and the
// center of buoyancy at the center of mass.
func diagonalVehicle() VehicleParams {
	p := VehicleParams{
		Weight:   100,
		Buoyancy: 90,
		Inertia:  [3][3]float64{{2, 0, 0}, {0, 3, 0}, {0, 0, 4}},
	}
	for i := 0; i < NumResiduals; i++ {
		p.Thrust[i][i] = 1
	}
	return p
}

// symmetricSixThruster has surge thrusters at y = ±0.2 m, sway thrusters at
// x = ±0.3 m and heave thrusters at x = ±0.3 m. Columns 6 and 7 are unused.
func symmetricSixThruster() VehicleParams {
	p := VehicleParams{
		Weight:           300,
		Buoyancy:         300,
		CenterOfBuoyancy: r3.Vec{Z: -0.05},
		Inertia:          [3][3]float64{{1.5, 0, 0}, {0, 4, 0}, {0, 0, 4}},
	}
	p.Drag[0] = [2]float64{5, 2}
	p.Drag[1] = [2]float64{8, 2}
	p.Drag[2] = [2]float64{8, 2}
	p.Drag[3] = [2]float64{20, 1}
	p.Drag[4] = [2]float64{40, 1}
	p.Drag[5] = [2]float64{40, 1}

	// surge
	p.Thrust[0][0], p.Thrust[0][1] = 1, 1
	p.Thrust[5][0], p.Thrust[5][1] = -0.2, 0.2
	// sway
	p.Thrust[1][2], p.Thrust[1][3] = 1, 1
	p.Thrust[5][2], p.Thrust[5][3] = 0.3, -0.3
	// heave
	p.Thrust[2][4], p.Thrust[2][5] = 1, 1
	p.Thrust[4][4], p.Thrust[4][5] = -0.3, 0.3
	return p
}

func TestResidual_ZeroAtHandComputedSolution(t *testing.T) {
	p := diagonalVehicle()
	in := Kinematics{
		Quaternion:         physics.Identity(),
		UVW:                r3.Vec{X: 0.3, Y: -0.1},
		PQR:                r3.Vec{X: 0.1, Z: 0.2},
		InertialTransAccel: r3.Vec{X: 0.1, Y: 0.2, Z: 0.3},
		PQRDot:             r3.Vec{X: 0.01, Y: 0.02, Z: 0.03},
	}

	m := p.Mass()
	// I*wdot = (0.02, 0.06, 0.12); w x Iw = (0, -0.04, 0)
	forces := [NumThrusters]float64{
		m * 0.1,
		m * 0.2,
		m*0.3 - 10,
		0.02,
		0.02,
		0.12,
	}

	res := EvaluateResidual(&p, &in, forces)
	for i, r := range res {
		assert.InDelta(t, 0.0, r, 1e-12, "residual %d", i)
	}
}

func TestResidual_Drag(t *testing.T) {
	tests := []struct {
		name     string
		uvw      r3.Vec
		pqr      r3.Vec
		index    int
		expected float64
	}{
		// residual = -(0 - drag) with drag = lin*v + sign(v)*quad*v^2
		{"surge backwards", r3.Vec{X: -1}, r3.Vec{}, 0, 2*-1 + -3},
		{"surge forwards", r3.Vec{X: 2}, r3.Vec{}, 0, 2*2 + 3*4},
		{"yaw rate", r3.Vec{}, r3.Vec{Z: 0.5}, 5, 0.25*0.5 + 0.75*0.25},
		{"still", r3.Vec{}, r3.Vec{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := diagonalVehicle()
			p.Weight, p.Buoyancy = 100, 100
			p.Drag[0] = [2]float64{2, 0}
			p.Drag[3] = [2]float64{3, 0}
			p.Drag[2] = [2]float64{0, 0.25}
			p.Drag[5] = [2]float64{0, 0.75}

			in := Kinematics{Quaternion: physics.Identity(), UVW: tt.uvw, PQR: tt.pqr}
			res := EvaluateResidual(&p, &in, [NumThrusters]float64{})
			assert.InDelta(t, tt.expected, res[tt.index], 1e-12)
		})
	}
}

func TestResidual_RotatesWeightIntoBody(t *testing.T) {
	p := diagonalVehicle()
	roll := physics.AngleAxisToQuaternion(math.Pi/2, r3.Vec{X: 1})
	in := Kinematics{Quaternion: roll}

	res := EvaluateResidual(&p, &in, [NumThrusters]float64{})
	// net weight (0, 0, 10) appears on body +Y after a 90 degree roll
	assert.InDelta(t, 0.0, res[0], 1e-12)
	assert.InDelta(t, -10.0, res[1], 1e-12)
	assert.InDelta(t, 0.0, res[2], 1e-12)
}

func TestResidual_BuoyancyRightingMoment(t *testing.T) {
	p := diagonalVehicle()
	p.CenterOfBuoyancy = r3.Vec{Z: -0.1}
	roll := physics.AngleAxisToQuaternion(math.Pi/2, r3.Vec{X: 1})
	in := Kinematics{Quaternion: roll}

	res := EvaluateResidual(&p, &in, [NumThrusters]float64{})
	// buoyancy (0, 0, -90) maps to (0, -90, 0) in the body, so cob x f = (-9, 0, 0)
	assert.InDelta(t, 9.0, res[3], 1e-12)
	assert.InDelta(t, 0.0, res[4], 1e-12)
	assert.InDelta(t, 0.0, res[5], 1e-12)
}

func TestJacobian_IsNegatedThrustMatrix(t *testing.T) {
	p := symmetricSixThruster()
	in := Kinematics{
		Quaternion:         physics.AngleAxisToQuaternion(0.3, r3.Vec{X: 1, Y: 1}),
		UVW:                r3.Vec{X: 0.5},
		PQR:                r3.Vec{Z: 0.1},
		InertialTransAccel: r3.Vec{X: 0.2},
	}

	jac := Jacobian(&p, &in, [NumThrusters]float64{1, 2, 3, 4, 5, 6, 7, 8})
	rows, cols := jac.Dims()
	require.Equal(t, NumResiduals, rows)
	require.Equal(t, NumThrusters, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.InDelta(t, -p.Thrust[i][j], jac.At(i, j), 1e-15, "J[%d][%d]", i, j)
		}
	}
}

func TestResidual_DualMatchesReal(t *testing.T) {
	p := symmetricSixThruster()
	in := Kinematics{
		Quaternion: physics.AngleAxisToQuaternion(0.7, r3.Vec{Y: 1, Z: 1}),
		UVW:        r3.Vec{X: 0.4, Y: -0.1, Z: 0.05},
		PQR:        r3.Vec{X: 0.02, Y: -0.03, Z: 0.1},
		PQRDot:     r3.Vec{Z: 0.01},
	}
	forces := [NumThrusters]float64{3, -1, 0.5, 2, -4, 1, 0, 0}

	var lifted [NumThrusters]dual.Number
	for i, f := range forces {
		lifted[i] = dual.Number{Real: f}
	}
	plain := EvaluateResidual(&p, &in, forces)
	viaDual := Residual[dual.Number](Dual{}, &p, &in, lifted)
	for i := range plain {
		assert.InDelta(t, plain[i], viaDual[i].Real, 1e-12, "residual %d", i)
		assert.Equal(t, 0.0, viaDual[i].Emag, "residual %d", i)
	}

	// central differences agree with the dual-number Jacobian
	jac := Jacobian(&p, &in, forces)
	const h = 1e-6
	for j := 0; j < NumThrusters; j++ {
		up, down := forces, forces
		up[j] += h
		down[j] -= h
		rUp := EvaluateResidual(&p, &in, up)
		rDown := EvaluateResidual(&p, &in, down)
		for i := 0; i < NumResiduals; i++ {
			assert.InDelta(t, (rUp[i]-rDown[i])/(2*h), jac.At(i, j), 1e-6, "J[%d][%d]", i, j)
		}
	}
}

func TestVehicleParams_Validate(t *testing.T) {
	valid := symmetricSixThruster()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*VehicleParams)
	}{
		{"zero weight", func(p *VehicleParams) { p.Weight = 0 }},
		{"negative buoyancy", func(p *VehicleParams) { p.Buoyancy = -1 }},
		{"zero inertia", func(p *VehicleParams) { p.Inertia[1][1] = 0 }},
		{"asymmetric inertia", func(p *VehicleParams) { p.Inertia[0][1] = 0.1 }},
		{"negative drag", func(p *VehicleParams) { p.Drag[2][1] = -0.5 }},
		{"zero thrust", func(p *VehicleParams) { p.Thrust = [NumResiduals][NumThrusters]float64{} }},
		{"nan thrust", func(p *VehicleParams) { p.Thrust[0][0] = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := symmetricSixThruster()
			tt.mutate(&p)
			assert.True(t, errors.Is(p.Validate(), ErrInvalidParams))
		})
	}
}

func TestMass(t *testing.T) {
	p := VehicleParams{Weight: physics.Gravity * 25}
	assert.InDelta(t, 25.0, p.Mass(), 1e-12)
}
