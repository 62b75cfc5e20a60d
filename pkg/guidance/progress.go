package guidance

import (
	"math"
	"time"
)

// Progress is the feedback for the active goal
type Progress struct {
	TrajectoryID string  `json:"trajectory_id"`
	GoalID       string  `json:"goal_id"`
	Regime       string  `json:"regime"`
	Elapsed      float64 `json:"elapsed"`  // [s]
	Total        float64 `json:"total"`    // [s]
	Fraction     float64 `json:"fraction"` // [0, 1]
	Done         bool    `json:"done"`
}

func newProgress(a *activeTrajectory, now time.Time) Progress {
	total := a.traj.Duration()
	elapsed := math.Max(a.elapsed(now), 0)
	fraction := 1.0
	if total > 0 {
		fraction = math.Min(elapsed/total, 1)
	}
	return Progress{
		TrajectoryID: a.id,
		GoalID:       a.goal.ID,
		Regime:       a.traj.Regime().String(),
		Elapsed:      elapsed,
		Total:        total,
		Fraction:     fraction,
		Done:         elapsed >= total,
	}
}
