package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/opd-ai/go-auvgnc/pkg/trajectory"
	"github.com/opd-ai/go-auvgnc/pkg/validation"
)

// GoalIntake accepts goals from outside the process and plans them from the
// currently measured state.
type GoalIntake struct {
	controller *Controller
	source     StateSource
	validator  *validation.GoalValidator
}

// NewGoalIntake creates an intake feeding c. source supplies the start state
// of every new trajectory.
func NewGoalIntake(c *Controller, source StateSource) *GoalIntake {
	return &GoalIntake{
		controller: c,
		source:     source,
		validator:  validation.NewGoalValidator(c.Limits()),
	}
}

// ErrMeasurement is returned when the start state cannot be measured
var ErrMeasurement = errors.New("state measurement failed")

// Submit parses a JSON goal from the named sender and makes it the active
// trajectory, starting from the vehicle's measured state.
func (in *GoalIntake) Submit(ctx context.Context, data []byte, from string) (Plan, error) {
	req, err := in.validator.ParseGoal(data, from)
	if err != nil {
		return Plan{}, err
	}
	measured, err := in.source.Measure(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrMeasurement, err)
	}
	goal := Goal{ID: req.ID, End: req.Waypoint(), Duration: req.Duration}
	return in.controller.SetGoal(ctx, in.controller.clock(), trajectory.WaypointFromState(measured), goal)
}

type planResponse struct {
	TrajectoryID string  `json:"trajectory_id"`
	GoalID       string  `json:"goal_id"`
	Regime       string  `json:"regime"`
	StopDuration float64 `json:"stop_duration"` // [s]
	Duration     float64 `json:"duration"`      // [s]
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP accepts a POSTed goal. Requests are rate limited per remote host.
func (in *GoalIntake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, validation.MaxGoalSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	plan, err := in.Submit(r.Context(), data, remoteHost(r))
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	diag := plan.Diagnostics
	writeJSON(w, http.StatusAccepted, planResponse{
		TrajectoryID: plan.TrajectoryID,
		GoalID:       plan.GoalID,
		Regime:       diag.Regime.String(),
		StopDuration: diag.StopDuration,
		Duration:     diag.TotalDuration,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrMeasurement):
		return http.StatusServiceUnavailable
	case errors.Is(err, validation.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, trajectory.ErrInfeasible):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
