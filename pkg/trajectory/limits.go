package trajectory

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidLimits is returned when kinematic limits are non-positive or a
// jerk table is malformed.
var ErrInvalidLimits = errors.New("invalid trajectory limits")

// JerkPoint is one sample of a jerk-versus-distance table.
type JerkPoint struct {
	Distance float64 `json:"distance"`
	Jerk     float64 `json:"jerk"`
}

// JerkTable maps a commanded distance to a jerk limit by linear
// interpolation. Distances beyond the last sample use the last jerk value.
type JerkTable struct {
	points []JerkPoint
}

// NewJerkTable validates and copies the samples. The first sample must be at
// distance 0, distances must increase, and jerks must be positive and
// non-decreasing.
func NewJerkTable(points ...JerkPoint) (JerkTable, error) {
	if len(points) == 0 {
		return JerkTable{}, fmt.Errorf("%w: empty jerk table", ErrInvalidLimits)
	}
	if points[0].Distance != 0 {
		return JerkTable{}, fmt.Errorf("%w: jerk table must start at distance 0, got %g", ErrInvalidLimits, points[0].Distance)
	}
	for i, p := range points {
		if !(p.Jerk > 0) || math.IsInf(p.Jerk, 0) {
			return JerkTable{}, fmt.Errorf("%w: jerk %g at distance %g", ErrInvalidLimits, p.Jerk, p.Distance)
		}
		if i == 0 {
			continue
		}
		if !(p.Distance > points[i-1].Distance) {
			return JerkTable{}, fmt.Errorf("%w: jerk table distances must increase (%g after %g)", ErrInvalidLimits, p.Distance, points[i-1].Distance)
		}
		if p.Jerk < points[i-1].Jerk {
			return JerkTable{}, fmt.Errorf("%w: jerk table is not monotonic at distance %g", ErrInvalidLimits, p.Distance)
		}
	}
	return JerkTable{points: append([]JerkPoint(nil), points...)}, nil
}

// ConstantJerk returns a table with the same jerk at every distance.
func ConstantJerk(jerk float64) (JerkTable, error) {
	return NewJerkTable(JerkPoint{Distance: 0, Jerk: jerk})
}

// At returns the jerk limit for |distance|.
func (jt JerkTable) At(distance float64) float64 {
	if len(jt.points) == 0 {
		return 0
	}
	d := math.Abs(distance)
	last := jt.points[len(jt.points)-1]
	if d >= last.Distance {
		return last.Jerk
	}
	for i := 1; i < len(jt.points); i++ {
		hi := jt.points[i]
		if d > hi.Distance {
			continue
		}
		lo := jt.points[i-1]
		frac := (d - lo.Distance) / (hi.Distance - lo.Distance)
		return lo.Jerk + frac*(hi.Jerk-lo.Jerk)
	}
	return last.Jerk
}

// Points returns a copy of the table samples
func (jt JerkTable) Points() []JerkPoint {
	return append([]JerkPoint(nil), jt.points...)
}

// TGenLimits is the kinematic envelope of a vehicle.
type TGenLimits struct {
	MaxVelocity        r3.Vec // per inertial axis [m/s]
	MaxAcceleration    r3.Vec // per inertial axis [m/s^2]
	MaxRotAcceleration float64
	TranslationalJerk  JerkTable
	RotationalJerk     JerkTable
	MaxXYDistance      float64 // beyond this a cruise phase is mandatory [m]
	MaxZDistance       float64
}

// NewTGenLimits returns validated limits
func NewTGenLimits(maxVel, maxAccel r3.Vec, maxRotAccel float64, transJerk, rotJerk JerkTable, maxXY, maxZ float64) (TGenLimits, error) {
	limits := TGenLimits{
		MaxVelocity:        maxVel,
		MaxAcceleration:    maxAccel,
		MaxRotAcceleration: maxRotAccel,
		TranslationalJerk:  transJerk,
		RotationalJerk:     rotJerk,
		MaxXYDistance:      maxXY,
		MaxZDistance:       maxZ,
	}
	if err := limits.Validate(); err != nil {
		return TGenLimits{}, err
	}
	return limits, nil
}

// Validate checks that every limit is strictly positive and both jerk tables
// are populated.
func (l TGenLimits) Validate() error {
	scalars := []struct {
		name  string
		value float64
	}{
		{"max x velocity", l.MaxVelocity.X},
		{"max y velocity", l.MaxVelocity.Y},
		{"max z velocity", l.MaxVelocity.Z},
		{"max x acceleration", l.MaxAcceleration.X},
		{"max y acceleration", l.MaxAcceleration.Y},
		{"max z acceleration", l.MaxAcceleration.Z},
		{"max rotational acceleration", l.MaxRotAcceleration},
		{"max xy distance", l.MaxXYDistance},
		{"max z distance", l.MaxZDistance},
	}
	for _, s := range scalars {
		if !(s.value > 0) || math.IsInf(s.value, 0) {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidLimits, s.name, s.value)
		}
	}
	if len(l.TranslationalJerk.points) == 0 {
		return fmt.Errorf("%w: translational jerk table is empty", ErrInvalidLimits)
	}
	if len(l.RotationalJerk.points) == 0 {
		return fmt.Errorf("%w: rotational jerk table is empty", ErrInvalidLimits)
	}
	return nil
}

// DefaultLimits returns the envelope of a small survey AUV.
func DefaultLimits() TGenLimits {
	transJerk, _ := NewJerkTable(
		JerkPoint{Distance: 0, Jerk: 0.2},
		JerkPoint{Distance: 10, Jerk: 0.5},
		JerkPoint{Distance: 100, Jerk: 1.0},
	)
	rotJerk, _ := NewJerkTable(
		JerkPoint{Distance: 0, Jerk: 0.2},
		JerkPoint{Distance: math.Pi, Jerk: 0.4},
	)
	return TGenLimits{
		MaxVelocity:        r3.Vec{X: 1.0, Y: 0.5, Z: 0.5},
		MaxAcceleration:    r3.Vec{X: 0.4, Y: 0.2, Z: 0.2},
		MaxRotAcceleration: 0.3,
		TranslationalJerk:  transJerk,
		RotationalJerk:     rotJerk,
		MaxXYDistance:      20,
		MaxZDistance:       5,
	}
}

// stopAcceleration picks the deceleration limit of the axis with the largest
// speed. Z wins whenever its speed beats the leading horizontal axis.
func (l TGenLimits) stopAcceleration(v r3.Vec) float64 {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	if ax > ay {
		if az > ax {
			return l.MaxAcceleration.Z
		}
		return l.MaxAcceleration.X
	}
	if az > ay {
		return l.MaxAcceleration.Z
	}
	return l.MaxAcceleration.Y
}
