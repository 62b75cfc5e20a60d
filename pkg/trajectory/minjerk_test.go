package trajectory

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveMinJerkTime_IdenticalBoundaries(t *testing.T) {
	b := Boundary{Pos: 1.5, Vel: 0.2, Accel: -0.1, Jerk: 0.5}

	duration, err := SolveMinJerkTime(b, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, duration)
}

func TestSolveMinJerkTime_RestToRest(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		jerk     float64
	}{
		{"one metre", 1, 0.23},
		{"backwards", -4, 0.5},
		{"long", 100, 1.0},
		{"tiny", 1e-4, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := Boundary{Jerk: tt.jerk}
			end := Boundary{Pos: tt.distance, Jerk: tt.jerk}

			duration, err := SolveMinJerkTime(start, end)
			require.NoError(t, err)

			// rest-to-rest quintic peaks at 60*d/T^3
			expected := math.Cbrt(60 * math.Abs(tt.distance) / tt.jerk)
			assert.InDelta(t, expected, duration, 1e-6*expected)
			assert.LessOrEqual(t, peakJerk(quinticCoefficients(start, end, duration), duration), tt.jerk*(1+1e-9))
		})
	}
}

func TestSolveMinJerkTime_UsesSmallerJerkLimit(t *testing.T) {
	loose, err := SolveMinJerkTime(Boundary{Jerk: 2}, Boundary{Pos: 1, Jerk: 2})
	require.NoError(t, err)
	tight, err := SolveMinJerkTime(Boundary{Jerk: 2}, Boundary{Pos: 1, Jerk: 0.5})
	require.NoError(t, err)

	assert.Greater(t, tight, loose)
}

func TestSolveMinJerkTime_Infeasible(t *testing.T) {
	tests := []struct {
		name  string
		start Boundary
		end   Boundary
	}{
		{"zero jerk", Boundary{Jerk: 0}, Boundary{Pos: 1, Jerk: 0}},
		{"negative jerk", Boundary{Jerk: 1}, Boundary{Pos: 1, Jerk: -1}},
		{"nan jerk", Boundary{Jerk: math.NaN()}, Boundary{Pos: 1, Jerk: 1}},
		{"needs more than an hour", Boundary{Jerk: 1e-12}, Boundary{Pos: 1e6, Jerk: 1e-12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SolveMinJerkTime(tt.start, tt.end)
			assert.True(t, errors.Is(err, ErrInfeasible), "got %v", err)
		})
	}
}

func TestMinJerkTrajectory_ReproducesBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		start    Boundary
		end      Boundary
		duration float64
	}{
		{"rest to rest", Boundary{}, Boundary{Pos: 3}, 5},
		{"moving start", Boundary{Pos: -1, Vel: 0.5, Accel: 0.1}, Boundary{Pos: 2}, 4},
		{"moving end", Boundary{Pos: 0}, Boundary{Pos: 10, Vel: 1, Accel: -0.2}, 12},
		{"both moving", Boundary{Pos: 1, Vel: -0.3, Accel: 0.05}, Boundary{Pos: 1, Vel: 0.3, Accel: 0}, 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traj, err := NewMinJerkTrajectory(tt.start, tt.end, tt.duration)
			require.NoError(t, err)

			p, v, a := traj.Evaluate(0)
			assert.InDelta(t, tt.start.Pos, p, 1e-9)
			assert.InDelta(t, tt.start.Vel, v, 1e-9)
			assert.InDelta(t, tt.start.Accel, a, 1e-9)

			p, v, a = traj.Evaluate(tt.duration)
			assert.InDelta(t, tt.end.Pos, p, 1e-9)
			assert.InDelta(t, tt.end.Vel, v, 1e-9)
			assert.InDelta(t, tt.end.Accel, a, 1e-9)
		})
	}
}

func TestMinJerkTrajectory_ClampsTime(t *testing.T) {
	traj, err := NewMinJerkTrajectory(Boundary{}, Boundary{Pos: 2}, 4)
	require.NoError(t, err)

	p, v, _ := traj.Evaluate(10)
	assert.InDelta(t, 2.0, p, 1e-12)
	assert.InDelta(t, 0.0, v, 1e-12)

	p, _, _ = traj.Evaluate(-1)
	assert.InDelta(t, 0.0, p, 1e-12)
}

func TestMinJerkTrajectory_ZeroDuration(t *testing.T) {
	end := Boundary{Pos: 3, Vel: 0.5, Accel: 0.1}
	traj, err := NewMinJerkTrajectory(Boundary{Pos: 3}, end, 0)
	require.NoError(t, err)

	p, v, a := traj.Evaluate(0)
	assert.Equal(t, end.Pos, p)
	assert.Equal(t, end.Vel, v)
	assert.Equal(t, end.Accel, a)
	assert.Equal(t, end.Vel, traj.PeakVelocity())
}

func TestMinJerkTrajectory_InvalidDuration(t *testing.T) {
	for _, d := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := NewMinJerkTrajectory(Boundary{}, Boundary{Pos: 1}, d)
		assert.True(t, errors.Is(err, ErrInvalidDuration), "duration %v: %v", d, err)
	}
}

func TestMinJerkTrajectory_PeakVelocity(t *testing.T) {
	tests := []struct {
		name     string
		start    Boundary
		end      Boundary
		duration float64
		expected float64
	}{
		{"rest to rest", Boundary{}, Boundary{Pos: 2}, 4, 1.875 * 2 / 4},
		{"rest to rest backwards", Boundary{}, Boundary{Pos: -3}, 6, -1.875 * 3 / 6},
		{"decelerate to rest", Boundary{Vel: 1}, Boundary{Pos: 0.5}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traj, err := NewMinJerkTrajectory(tt.start, tt.end, tt.duration)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, traj.PeakVelocity(), 1e-9)
		})
	}
}

func TestRealRoots(t *testing.T) {
	tests := []struct {
		name     string
		coeffs   []float64
		expected []float64
	}{
		{"cubic", []float64{-6, 11, -6, 1}, []float64{1, 2, 3}},
		{"quadratic with trailing zero", []float64{-4, 0, 1, 0}, []float64{-2, 2}},
		{"linear", []float64{3, -1.5}, []float64{2}},
		{"complex pair", []float64{1, 0, 1}, nil},
		{"constant", []float64{5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roots := realRoots(tt.coeffs)
			sort.Float64s(roots)
			require.Len(t, roots, len(tt.expected))
			for i := range roots {
				assert.InDelta(t, tt.expected[i], roots[i], 1e-9)
			}
		})
	}
}
