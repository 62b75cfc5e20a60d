package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoConvergence is returned when the iteration budget runs out or
	// the solve is cancelled.
	ErrNoConvergence = errors.New("thrust allocation did not converge")
	// ErrResidualTooLarge is returned when the solver settles on forces that
	// do not satisfy the dynamics.
	ErrResidualTooLarge = errors.New("thrust allocation residual too large")
)

// Status is the outcome of a solve.
type Status int

const (
	StatusConverged Status = iota
	StatusMaxIterations
	StatusResidualTooLarge
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max_iterations"
	case StatusResidualTooLarge:
		return "residual_too_large"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// SolverOptions bound the Levenberg-Marquardt iteration.
type SolverOptions struct {
	MaxIterations      int
	FunctionTolerance  float64 // relative cost decrease
	GradientTolerance  float64 // max |J^T r|
	ParameterTolerance float64 // relative step size
	ResidualTolerance  float64 // max |r| accepted at the end [N, N m]
	InitialDamping     float64
}

// DefaultSolverOptions returns the options used by the controller.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		MaxIterations:      50,
		FunctionTolerance:  1e-12,
		GradientTolerance:  1e-10,
		ParameterTolerance: 1e-12,
		ResidualTolerance:  1e-6,
		InitialDamping:     1e-3,
	}
}

func (o SolverOptions) withDefaults() SolverOptions {
	d := DefaultSolverOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.FunctionTolerance <= 0 {
		o.FunctionTolerance = d.FunctionTolerance
	}
	if o.GradientTolerance <= 0 {
		o.GradientTolerance = d.GradientTolerance
	}
	if o.ParameterTolerance <= 0 {
		o.ParameterTolerance = d.ParameterTolerance
	}
	if o.ResidualTolerance <= 0 {
		o.ResidualTolerance = d.ResidualTolerance
	}
	if o.InitialDamping <= 0 {
		o.InitialDamping = d.InitialDamping
	}
	return o
}

// Damping bounds and update factors.
const (
	minDamping      = 1e-15
	maxDamping      = 1e15
	dampingDecrease = 1.0 / 3.0
	dampingIncrease = 4.0
)

// Result is the outcome of Solve. Forces always hold the last iterate, even
// when Status is not StatusConverged.
type Result struct {
	Forces     [NumThrusters]float64
	Residual   [NumResiduals]float64
	Cost       float64 // half the squared residual norm
	Iterations int
	Status     Status
}

// Converged reports whether the forces can be commanded
func (r Result) Converged() bool {
	return r.Status == StatusConverged
}

// Solver finds thruster forces that zero the dynamics residual. A Solver is
// stateless between calls and safe for concurrent use.
type Solver struct {
	params VehicleParams
	opts   SolverOptions
}

// NewSolver validates params and fills unset options with defaults.
// Disabled thrusters are removed from the thrust matrix.
func NewSolver(params VehicleParams, opts SolverOptions) (*Solver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Solver{params: params.withoutDisabled(), opts: opts.withDefaults()}, nil
}

// Params returns the vehicle parameters in use, with the thrust columns of
// disabled thrusters zeroed.
func (s *Solver) Params() VehicleParams { return s.params }

// Options returns the effective solver options
func (s *Solver) Options() SolverOptions { return s.opts }

// Solve runs damped Gauss-Newton steps from initial. Six equations in eight
// unknowns leave a family of exact solutions; the damping keeps each step
// short, so the result lies close to the initial guess and a repeated guess
// gives a repeated answer.
//
// Disabled thrusters start and stay at zero whatever the initial guess.
func (s *Solver) Solve(ctx context.Context, in Kinematics, initial [NumThrusters]float64) (Result, error) {
	x := initial
	for j, off := range s.params.Disabled {
		if off {
			x[j] = 0
		}
	}
	r := EvaluateResidual(&s.params, &in, x)
	result := Result{Forces: x, Residual: r, Cost: cost(r)}
	lambda := s.opts.InitialDamping

	converged := false
	for result.Iterations < s.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			result.Status = StatusCancelled
			return result, fmt.Errorf("%w: %w", ErrNoConvergence, err)
		}

		jac := Jacobian(&s.params, &in, x)
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(NumResiduals, r[:]))
		if mat.Norm(&grad, math.Inf(1)) <= s.opts.GradientTolerance {
			converged = true
			break
		}

		var normal mat.SymDense
		normal.SymOuterK(1, jac.T())

		var step mat.VecDense
		for {
			if !s.dampedStep(&step, &normal, &grad, lambda) {
				lambda *= dampingIncrease
				if lambda > maxDamping {
					break
				}
				continue
			}
			break
		}
		result.Iterations++
		if lambda > maxDamping {
			break
		}

		var candidate [NumThrusters]float64
		for i := range candidate {
			candidate[i] = x[i] - step.AtVec(i)
		}
		rNew := EvaluateResidual(&s.params, &in, candidate)
		costNew := cost(rNew)

		if costNew >= result.Cost {
			lambda = math.Min(lambda*dampingIncrease, maxDamping)
			continue
		}

		decrease := result.Cost - costNew
		stepNorm := mat.Norm(&step, 2)
		xNorm := floats.Norm(x[:], 2)

		x, r = candidate, rNew
		result.Forces, result.Residual, result.Cost = x, r, costNew
		lambda = math.Max(lambda*dampingDecrease, minDamping)

		if decrease <= s.opts.FunctionTolerance*(result.Cost+decrease) ||
			stepNorm <= s.opts.ParameterTolerance*(xNorm+s.opts.ParameterTolerance) {
			converged = true
			break
		}
	}

	if !converged {
		result.Status = StatusMaxIterations
		return result, fmt.Errorf("%w after %d iterations (cost %g)", ErrNoConvergence, result.Iterations, result.Cost)
	}
	if worst := floats.Norm(result.Residual[:], math.Inf(1)); worst > s.opts.ResidualTolerance {
		result.Status = StatusResidualTooLarge
		return result, fmt.Errorf("%w: max residual %g", ErrResidualTooLarge, worst)
	}
	result.Status = StatusConverged
	return result, nil
}

// dampedStep solves (J^T J + lambda I) step = J^T r.
func (s *Solver) dampedStep(step *mat.VecDense, normal *mat.SymDense, grad *mat.VecDense, lambda float64) bool {
	damped := mat.NewSymDense(NumThrusters, nil)
	damped.CopySym(normal)
	for i := 0; i < NumThrusters; i++ {
		damped.SetSym(i, i, damped.At(i, i)+lambda)
	}

	var chol mat.Cholesky
	if !chol.Factorize(damped) {
		return false
	}
	return chol.SolveVecTo(step, grad) == nil
}

func cost(r [NumResiduals]float64) float64 {
	n := floats.Norm(r[:], 2)
	return 0.5 * n * n
}
