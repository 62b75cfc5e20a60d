// Package validation checks goals and state snapshots that arrive from
// outside the controller before they reach the planner or the solver.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/physics"
	"github.com/opd-ai/go-auvgnc/pkg/trajectory"
)

var (
	// ErrInvalidInput is wrapped by every validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited is returned when a source submits goals too often. It
	// wraps ErrInvalidInput.
	ErrRateLimited = fmt.Errorf("%w: rate limit exceeded", ErrInvalidInput)
)

// Size and content limits for goal requests
const (
	MaxGoalSize       = 4 * 1024
	MaxGoalIDLen      = 64
	MaxGoalsPerMin    = 60
	MaxGoalDuration   = 24 * 3600.0 // [s]
	QuaternionNormTol = 1e-3
)

var validGoalIDChars = regexp.MustCompile(`^[a-zA-Z0-9\-_.:]+$`)

// GoalRequest is the wire form of a goal. Orientation is [w, x, y, z].
type GoalRequest struct {
	ID              string     `json:"id"`
	Position        [3]float64 `json:"position"`
	Velocity        [3]float64 `json:"velocity"`
	Acceleration    [3]float64 `json:"acceleration"`
	Orientation     [4]float64 `json:"orientation"`
	AngularVelocity [3]float64 `json:"angularVelocity"`
	Duration        float64    `json:"duration,omitempty"`
}

// Waypoint converts the request into a trajectory waypoint
func (g GoalRequest) Waypoint() trajectory.Waypoint {
	return trajectory.NewWaypoint(
		physics.FromArray(g.Position),
		physics.FromArray(g.Velocity),
		physics.FromArray(g.Acceleration),
		physics.QuaternionFromArray(g.Orientation),
		physics.FromArray(g.AngularVelocity),
	)
}

// GoalValidator parses goal requests and limits how often each source may
// submit them.
type GoalValidator struct {
	limits      trajectory.TGenLimits
	rateLimiter *RateLimiter
}

// NewGoalValidator creates a validator checking goals against limits
func NewGoalValidator(limits trajectory.TGenLimits) *GoalValidator {
	return &GoalValidator{
		limits:      limits,
		rateLimiter: NewRateLimiter(MaxGoalsPerMin, time.Minute),
	}
}

// ParseGoal decodes and validates a goal submitted by source
func (v *GoalValidator) ParseGoal(data []byte, source string) (GoalRequest, error) {
	if len(data) > MaxGoalSize {
		return GoalRequest{}, fmt.Errorf("%w: goal too large: %d bytes (max %d)", ErrInvalidInput, len(data), MaxGoalSize)
	}
	if !json.Valid(data) {
		return GoalRequest{}, fmt.Errorf("%w: invalid JSON format", ErrInvalidInput)
	}
	if !v.rateLimiter.Allow(source) {
		return GoalRequest{}, fmt.Errorf("%w: max %d goals per minute from %s", ErrRateLimited, MaxGoalsPerMin, source)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var goal GoalRequest
	if err := dec.Decode(&goal); err != nil {
		return GoalRequest{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if err := ValidateGoalID(goal.ID); err != nil {
		return GoalRequest{}, err
	}
	if err := ValidateDuration(goal.Duration); err != nil {
		return GoalRequest{}, err
	}
	if err := ValidateQuaternion(physics.QuaternionFromArray(goal.Orientation)); err != nil {
		return GoalRequest{}, fmt.Errorf("goal %s: %w", goal.ID, err)
	}
	if err := ValidateWaypoint(goal.Waypoint(), v.limits); err != nil {
		return GoalRequest{}, fmt.Errorf("goal %s: %w", goal.ID, err)
	}
	return goal, nil
}

// ValidateGoalID checks a goal identifier
func ValidateGoalID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: goal ID cannot be empty", ErrInvalidInput)
	}
	if len(id) > MaxGoalIDLen {
		return fmt.Errorf("%w: goal ID too long: %d characters (max %d)", ErrInvalidInput, len(id), MaxGoalIDLen)
	}
	if !validGoalIDChars.MatchString(id) {
		return fmt.Errorf("%w: goal ID contains invalid characters", ErrInvalidInput)
	}
	return nil
}

// ValidateDuration checks a requested goal duration. Zero means as fast as
// the limits allow.
func ValidateDuration(seconds float64) error {
	if math.IsNaN(seconds) || seconds < 0 || seconds > MaxGoalDuration {
		return fmt.Errorf("%w: duration %g outside [0, %g]", ErrInvalidInput, seconds, MaxGoalDuration)
	}
	return nil
}

// ValidateQuaternion checks that q is finite and close to unit norm.
// Waypoints normalize their orientation, so this runs on raw input.
func ValidateQuaternion(q quat.Number) error {
	for _, c := range physics.QuaternionArray(q) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: orientation is not finite", ErrInvalidInput)
		}
	}
	if n := quat.Abs(q); math.Abs(n-1) > QuaternionNormTol {
		return fmt.Errorf("%w: orientation norm %g is not 1", ErrInvalidInput, n)
	}
	return nil
}

// ValidateWaypoint checks a goal waypoint: every quantity is finite and the
// velocity fits the vehicle limits.
func ValidateWaypoint(w trajectory.Waypoint, limits trajectory.TGenLimits) error {
	if err := ValidateStartWaypoint(w); err != nil {
		return err
	}
	vel := w.Velocity()
	for axis, c := range physics.ToArray(vel) {
		if limit := physics.Component(limits.MaxVelocity, axis); math.Abs(c) > limit {
			return fmt.Errorf("%w: velocity %g on axis %d exceeds limit %g", ErrInvalidInput, c, axis, limit)
		}
	}
	return nil
}

// ValidateStartWaypoint checks a waypoint taken from a measurement. Only
// finiteness is required; any speed can be brought to rest.
func ValidateStartWaypoint(w trajectory.Waypoint) error {
	for name, v := range map[string]r3.Vec{
		"position":         w.Position(),
		"velocity":         w.Velocity(),
		"acceleration":     w.Acceleration(),
		"angular velocity": w.AngularVelocity(),
	} {
		if !physics.IsFinite(v) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidInput, name)
		}
	}
	return nil
}

// ValidateState checks a measured state snapshot before it is used for
// allocation.
func ValidateState(s trajectory.State) error {
	for name, v := range map[string]r3.Vec{
		"position":         s.Position,
		"velocity":         s.Velocity,
		"angular velocity": s.AngularVelocity,
	} {
		if !physics.IsFinite(v) {
			return fmt.Errorf("%w: measured %s is not finite", ErrInvalidInput, name)
		}
	}
	return ValidateQuaternion(s.Orientation)
}
