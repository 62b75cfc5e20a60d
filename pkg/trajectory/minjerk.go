// Package trajectory generates smooth, jerk-limited reference trajectories
// between kinematic waypoints. A BasicTrajectory first brings the vehicle to
// rest and then moves it to the goal either with a single synchronized
// min-jerk phase or with an accelerate/cruise/decelerate phase.
package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Search bounds for the minimum-jerk duration solver.
const (
	MaxSegmentDuration = 3600.0 // [s]
	minSearchDuration  = 1e-3
	searchGrowth       = 1.5
	bisectIterations   = 100
	durationTolerance  = 1e-9
)

var (
	// ErrInfeasible is returned when no duration satisfies the jerk bound.
	ErrInfeasible = errors.New("no feasible min-jerk duration")
	// ErrInvalidDuration is returned for negative or non-finite durations.
	ErrInvalidDuration = errors.New("invalid segment duration")
)

// Boundary is a 1-D boundary condition of a min-jerk segment.
type Boundary struct {
	Pos   float64
	Vel   float64
	Accel float64
	Jerk  float64 // jerk limit at this end
}

func (b Boundary) sameMotion(o Boundary) bool {
	return b.Pos == o.Pos && b.Vel == o.Vel && b.Accel == o.Accel
}

// SolveMinJerkTime returns the shortest duration for which the quintic joining
// start and end keeps |jerk| under the smaller of the two jerk limits.
func SolveMinJerkTime(start, end Boundary) (float64, error) {
	if start.sameMotion(end) {
		return 0, nil
	}

	limit := math.Min(start.Jerk, end.Jerk)
	if !(limit > 0) {
		return 0, fmt.Errorf("%w: jerk limit %g", ErrInfeasible, limit)
	}

	feasible := func(duration float64) bool {
		return peakJerk(quinticCoefficients(start, end, duration), duration) <= limit
	}

	lo, hi := 0.0, minSearchDuration
	for !feasible(hi) {
		if hi >= MaxSegmentDuration {
			return 0, fmt.Errorf("%w: jerk limit %g not met within %gs", ErrInfeasible, limit, MaxSegmentDuration)
		}
		lo = hi
		hi = math.Min(hi*searchGrowth, MaxSegmentDuration)
	}

	for i := 0; i < bisectIterations && hi-lo > durationTolerance*hi; i++ {
		mid := 0.5 * (lo + hi)
		if feasible(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// MinJerkTrajectory is the closed-form quintic joining two boundaries over a
// fixed duration. It is immutable and safe for concurrent use.
type MinJerkTrajectory struct {
	start    Boundary
	end      Boundary
	duration float64
	coef     [6]float64
}

// NewMinJerkTrajectory builds the quintic joining start and end in duration
// seconds.
func NewMinJerkTrajectory(start, end Boundary, duration float64) (MinJerkTrajectory, error) {
	if duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return MinJerkTrajectory{}, fmt.Errorf("%w: %g", ErrInvalidDuration, duration)
	}
	traj := MinJerkTrajectory{start: start, end: end, duration: duration}
	if duration > 0 {
		traj.coef = quinticCoefficients(start, end, duration)
	}
	return traj, nil
}

// Duration returns the segment length in seconds
func (m MinJerkTrajectory) Duration() float64 {
	return m.duration
}

// Evaluate returns position, velocity and acceleration at time t. Times
// outside [0, Duration] are clamped; a zero-length segment always reports
// its end boundary.
func (m MinJerkTrajectory) Evaluate(t float64) (pos, vel, accel float64) {
	if m.duration == 0 {
		return m.end.Pos, m.end.Vel, m.end.Accel
	}
	t = clamp(t, 0, m.duration)
	c := m.coef
	pos = c[0] + t*(c[1]+t*(c[2]+t*(c[3]+t*(c[4]+t*c[5]))))
	vel = c[1] + t*(2*c[2]+t*(3*c[3]+t*(4*c[4]+t*5*c[5])))
	accel = 2*c[2] + t*(6*c[3]+t*(12*c[4]+t*20*c[5]))
	return pos, vel, accel
}

// PeakVelocity returns the signed velocity of largest magnitude reached over
// the segment.
func (m MinJerkTrajectory) PeakVelocity() float64 {
	if m.duration == 0 {
		return m.end.Vel
	}
	c := m.coef
	candidates := []float64{0, m.duration}
	for _, r := range realRoots([]float64{2 * c[2], 6 * c[3], 12 * c[4], 20 * c[5]}) {
		if r > 0 && r < m.duration {
			candidates = append(candidates, r)
		}
	}

	peak := 0.0
	for _, t := range candidates {
		if _, v, _ := m.Evaluate(t); math.Abs(v) > math.Abs(peak) {
			peak = v
		}
	}
	return peak
}

// quinticCoefficients returns c0..c5 of the polynomial matching position,
// velocity and acceleration at both ends.
func quinticCoefficients(start, end Boundary, T float64) [6]float64 {
	delta := end.Pos - start.Pos
	T2 := T * T
	T3 := T2 * T
	return [6]float64{
		start.Pos,
		start.Vel,
		start.Accel / 2,
		(20*delta - (8*end.Vel+12*start.Vel)*T - (3*start.Accel-end.Accel)*T2) / (2 * T3),
		(-30*delta + (14*end.Vel+16*start.Vel)*T + (3*start.Accel-2*end.Accel)*T2) / (2 * T3 * T),
		(12*delta - 6*(end.Vel+start.Vel)*T - (start.Accel-end.Accel)*T2) / (2 * T3 * T2),
	}
}

// peakJerk returns max |jerk| over [0, T]. Jerk is quadratic in t, so the
// extremum is at an end point or at the vertex.
func peakJerk(c [6]float64, T float64) float64 {
	jerk := func(t float64) float64 {
		return 6*c[3] + 24*c[4]*t + 60*c[5]*t*t
	}
	peak := math.Max(math.Abs(jerk(0)), math.Abs(jerk(T)))
	if c[5] != 0 {
		if vertex := -c[4] / (5 * c[5]); vertex > 0 && vertex < T {
			peak = math.Max(peak, math.Abs(jerk(vertex)))
		}
	}
	return peak
}

// realRoots returns the real roots of the polynomial with coefficients given
// in ascending order, using the eigenvalues of its companion matrix.
func realRoots(coeffs []float64) []float64 {
	scale := 0.0
	for _, c := range coeffs {
		scale = math.Max(scale, math.Abs(c))
	}
	if scale == 0 {
		return nil
	}

	n := len(coeffs) - 1
	for n > 0 && math.Abs(coeffs[n]) <= 1e-12*scale {
		n--
	}
	switch n {
	case 0:
		return nil
	case 1:
		return []float64{-coeffs[0] / coeffs[1]}
	}

	lead := coeffs[n]
	companion := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		companion.Set(0, j, -coeffs[n-1-j]/lead)
	}
	for i := 1; i < n; i++ {
		companion.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if !eig.Factorize(companion, mat.EigenNone) {
		return nil
	}
	var roots []float64
	for _, v := range eig.Values(nil) {
		if math.Abs(imag(v)) <= 1e-9*(1+math.Abs(real(v))) {
			roots = append(roots, real(v))
		}
	}
	return roots
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
