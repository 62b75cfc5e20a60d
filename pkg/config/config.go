// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/opd-ai/go-auvgnc/pkg/allocation"
	"github.com/opd-ai/go-auvgnc/pkg/trajectory"
)

// ErrInvalidConfig is returned when a configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Fallback policies applied when thrust allocation fails
const (
	FallbackHold = "hold"
	FallbackZero = "zero"
)

// VehicleConfig contains the configuration of one vehicle and its controller
type VehicleConfig struct {
	Vehicle    VehicleParamsConfig `json:"vehicle"`
	Limits     LimitsConfig        `json:"limits"`
	Solver     SolverConfig        `json:"solver"`
	Controller ControllerConfig    `json:"controller"`
	Health     HealthConfig        `json:"health"`
}

// VehicleParamsConfig contains the rigid-body and actuator constants
type VehicleParamsConfig struct {
	Weight           float64                                                   `json:"weight"`
	Buoyancy         float64                                                   `json:"buoyancy"`
	CenterOfBuoyancy [3]float64                                                `json:"centerOfBuoyancy"`
	Inertia          [3][3]float64                                             `json:"inertia"`
	Drag             [6][2]float64                                             `json:"drag"`
	Thrust           [allocation.NumResiduals][allocation.NumThrusters]float64 `json:"thrust"`

	// ThrusterNames label the thrust matrix columns. InactiveThrusters
	// lists the names of thrusters the allocator must not use.
	ThrusterNames     [allocation.NumThrusters]string `json:"thrusterNames"`
	InactiveThrusters []string                        `json:"inactiveThrusters,omitempty"`
}

// LimitsConfig contains the kinematic envelope used for trajectory planning
type LimitsConfig struct {
	MaxVelocity        [3]float64             `json:"maxVelocity"`
	MaxAcceleration    [3]float64             `json:"maxAcceleration"`
	MaxRotAcceleration float64                `json:"maxRotAcceleration"`
	TranslationalJerk  []trajectory.JerkPoint `json:"translationalJerk"`
	RotationalJerk     []trajectory.JerkPoint `json:"rotationalJerk"`
	MaxXYDistance      float64                `json:"maxXYDistance"`
	MaxZDistance       float64                `json:"maxZDistance"`
}

// SolverConfig contains thrust allocation solver settings
type SolverConfig struct {
	MaxIterations      int     `json:"maxIterations"`
	FunctionTolerance  float64 `json:"functionTolerance"`
	GradientTolerance  float64 `json:"gradientTolerance"`
	ParameterTolerance float64 `json:"parameterTolerance"`
	ResidualTolerance  float64 `json:"residualTolerance"`
	InitialDamping     float64 `json:"initialDamping"`
}

// ControllerConfig contains control loop settings
type ControllerConfig struct {
	RateHz                  float64 `json:"rateHz"`
	Fallback                string  `json:"fallback"`
	BreakerMaxFailures      int     `json:"breakerMaxFailures"`
	BreakerTimeoutSeconds   float64 `json:"breakerTimeoutSeconds"`
	BreakerHalfOpenRequests int     `json:"breakerHalfOpenRequests"`
}

// HealthConfig contains health endpoint settings
type HealthConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// LoadConfig loads a configuration from a file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*VehicleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config VehicleConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.ApplyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *VehicleConfig, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every section. Limits and vehicle constants that cannot
// be flown are rejected here so nothing downstream has to.
func (c *VehicleConfig) Validate() error {
	if err := c.Vehicle.validateThrusters(); err != nil {
		return fmt.Errorf("%w: vehicle: %w", ErrInvalidConfig, err)
	}
	params := c.VehicleParams()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: vehicle: %w", ErrInvalidConfig, err)
	}
	if _, err := c.TrajectoryLimits(); err != nil {
		return fmt.Errorf("%w: limits: %w", ErrInvalidConfig, err)
	}

	s := c.Solver
	if s.MaxIterations <= 0 {
		return fmt.Errorf("%w: solver maxIterations must be positive, got %d", ErrInvalidConfig, s.MaxIterations)
	}
	for name, v := range map[string]float64{
		"functionTolerance":  s.FunctionTolerance,
		"gradientTolerance":  s.GradientTolerance,
		"parameterTolerance": s.ParameterTolerance,
		"residualTolerance":  s.ResidualTolerance,
		"initialDamping":     s.InitialDamping,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: solver %s must be positive, got %g", ErrInvalidConfig, name, v)
		}
	}

	ctl := c.Controller
	if !(ctl.RateHz > 0) || math.IsInf(ctl.RateHz, 0) {
		return fmt.Errorf("%w: controller rateHz must be positive, got %g", ErrInvalidConfig, ctl.RateHz)
	}
	if ctl.Fallback != FallbackHold && ctl.Fallback != FallbackZero {
		return fmt.Errorf("%w: controller fallback must be %q or %q, got %q", ErrInvalidConfig, FallbackHold, FallbackZero, ctl.Fallback)
	}
	if ctl.BreakerMaxFailures <= 0 {
		return fmt.Errorf("%w: controller breakerMaxFailures must be positive, got %d", ErrInvalidConfig, ctl.BreakerMaxFailures)
	}
	if !(ctl.BreakerTimeoutSeconds > 0) {
		return fmt.Errorf("%w: controller breakerTimeoutSeconds must be positive, got %g", ErrInvalidConfig, ctl.BreakerTimeoutSeconds)
	}
	if ctl.BreakerHalfOpenRequests <= 0 {
		return fmt.Errorf("%w: controller breakerHalfOpenRequests must be positive, got %d", ErrInvalidConfig, ctl.BreakerHalfOpenRequests)
	}

	if c.Health.Enabled && (c.Health.Port <= 0 || c.Health.Port > 65535) {
		return fmt.Errorf("%w: health port %d out of range", ErrInvalidConfig, c.Health.Port)
	}
	return nil
}

func (v *VehicleParamsConfig) validateThrusters() error {
	seen := make(map[string]bool, allocation.NumThrusters)
	for j, name := range v.ThrusterNames {
		if name == "" {
			return fmt.Errorf("thruster %d has no name", j)
		}
		if seen[name] {
			return fmt.Errorf("duplicate thruster name %q", name)
		}
		seen[name] = true
	}
	for _, name := range v.InactiveThrusters {
		if _, ok := v.ThrusterIndex(name); !ok {
			return fmt.Errorf("unknown inactive thruster %q", name)
		}
	}
	return nil
}

// ThrusterIndex returns the thrust matrix column of the named thruster
func (v *VehicleParamsConfig) ThrusterIndex(name string) (int, bool) {
	for j, n := range v.ThrusterNames {
		if n == name {
			return j, true
		}
	}
	return 0, false
}

// ActiveThrusterNames returns the names of the thrusters available to the
// allocator, in column order.
func (v *VehicleParamsConfig) ActiveThrusterNames() []string {
	inactive := make(map[string]bool, len(v.InactiveThrusters))
	for _, name := range v.InactiveThrusters {
		inactive[name] = true
	}
	var names []string
	for _, name := range v.ThrusterNames {
		if !inactive[name] {
			names = append(names, name)
		}
	}
	return names
}

// VehicleParams converts the vehicle section for the allocation solver.
// Inactive thrusters are marked disabled; unknown names are ignored here and
// rejected by Validate.
func (c *VehicleConfig) VehicleParams() allocation.VehicleParams {
	v := c.Vehicle
	params := allocation.VehicleParams{
		Weight:           v.Weight,
		Buoyancy:         v.Buoyancy,
		CenterOfBuoyancy: r3.Vec{X: v.CenterOfBuoyancy[0], Y: v.CenterOfBuoyancy[1], Z: v.CenterOfBuoyancy[2]},
		Inertia:          v.Inertia,
		Drag:             v.Drag,
		Thrust:           v.Thrust,
	}
	for _, name := range v.InactiveThrusters {
		if j, ok := v.ThrusterIndex(name); ok {
			params.Disabled[j] = true
		}
	}
	return params
}

// TrajectoryLimits converts and validates the limits section
func (c *VehicleConfig) TrajectoryLimits() (trajectory.TGenLimits, error) {
	l := c.Limits
	transJerk, err := trajectory.NewJerkTable(l.TranslationalJerk...)
	if err != nil {
		return trajectory.TGenLimits{}, fmt.Errorf("translational jerk: %w", err)
	}
	rotJerk, err := trajectory.NewJerkTable(l.RotationalJerk...)
	if err != nil {
		return trajectory.TGenLimits{}, fmt.Errorf("rotational jerk: %w", err)
	}
	return trajectory.NewTGenLimits(
		r3.Vec{X: l.MaxVelocity[0], Y: l.MaxVelocity[1], Z: l.MaxVelocity[2]},
		r3.Vec{X: l.MaxAcceleration[0], Y: l.MaxAcceleration[1], Z: l.MaxAcceleration[2]},
		l.MaxRotAcceleration,
		transJerk, rotJerk,
		l.MaxXYDistance, l.MaxZDistance,
	)
}

// SolverOptions converts the solver section
func (c *VehicleConfig) SolverOptions() allocation.SolverOptions {
	return allocation.SolverOptions{
		MaxIterations:      c.Solver.MaxIterations,
		FunctionTolerance:  c.Solver.FunctionTolerance,
		GradientTolerance:  c.Solver.GradientTolerance,
		ParameterTolerance: c.Solver.ParameterTolerance,
		ResidualTolerance:  c.Solver.ResidualTolerance,
		InitialDamping:     c.Solver.InitialDamping,
	}
}

// ControlPeriod returns the control loop period
func (c *VehicleConfig) ControlPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.Controller.RateHz)
}

// BreakerTimeout returns how long the allocation breaker stays open
func (c *VehicleConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.Controller.BreakerTimeoutSeconds * float64(time.Second))
}

// ApplyEnvironmentOverrides replaces settings with AUV_* environment
// variables when they are set.
func (c *VehicleConfig) ApplyEnvironmentOverrides() error {
	if v := os.Getenv("AUV_CONTROL_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: AUV_CONTROL_RATE: %w", ErrInvalidConfig, err)
		}
		c.Controller.RateHz = rate
	}
	if v := os.Getenv("AUV_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AUV_MAX_ITERATIONS: %w", ErrInvalidConfig, err)
		}
		c.Solver.MaxIterations = n
	}
	if v := os.Getenv("AUV_FALLBACK"); v != "" {
		c.Controller.Fallback = v
	}
	if v := os.Getenv("AUV_HEALTH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AUV_HEALTH_PORT: %w", ErrInvalidConfig, err)
		}
		c.Health.Port = port
		c.Health.Enabled = true
	}
	if v := os.Getenv("AUV_BREAKER_MAX_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AUV_BREAKER_MAX_FAILURES: %w", ErrInvalidConfig, err)
		}
		c.Controller.BreakerMaxFailures = n
	}
	if v, ok := os.LookupEnv("AUV_INACTIVE_THRUSTERS"); ok {
		c.Vehicle.InactiveThrusters = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Vehicle.InactiveThrusters = append(c.Vehicle.InactiveThrusters, name)
			}
		}
	}
	if v := os.Getenv("AUV_BREAKER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: AUV_BREAKER_TIMEOUT: %w", ErrInvalidConfig, err)
		}
		c.Controller.BreakerTimeoutSeconds = d.Seconds()
	}
	return nil
}

// DefaultConfig returns the configuration of an eight-thruster survey AUV:
// four vectored horizontal thrusters and four vertical ones.
func DefaultConfig() *VehicleConfig {
	const c = math.Sqrt2 / 2
	limits := trajectory.DefaultLimits()
	solver := allocation.DefaultSolverOptions()

	return &VehicleConfig{
		Vehicle: VehicleParamsConfig{
			Weight:           300,
			Buoyancy:         305,
			CenterOfBuoyancy: [3]float64{0, 0, -0.02},
			Inertia: [3][3]float64{
				{0.8, 0, 0},
				{0, 2.5, 0},
				{0, 0, 2.5},
			},
			Drag: [6][2]float64{
				{20, 2},
				{40, 4},
				{40, 4},
				{30, 1},
				{60, 2},
				{60, 2},
			},
			Thrust: [allocation.NumResiduals][allocation.NumThrusters]float64{
				{c, c, c, c, 0, 0, 0, 0},
				{-c, c, c, -c, 0, 0, 0, 0},
				{0, 0, 0, 0, 1, 1, 1, 1},
				{0, 0, 0, 0, 0.12, -0.12, 0.12, -0.12},
				{0, 0, 0, 0, -0.2, -0.2, 0.2, 0.2},
				{-0.25 * c, 0.25 * c, -0.25 * c, 0.25 * c, 0, 0, 0, 0},
			},
			ThrusterNames: [allocation.NumThrusters]string{
				"horizontal_front_starboard",
				"horizontal_front_port",
				"horizontal_rear_starboard",
				"horizontal_rear_port",
				"vertical_front_starboard",
				"vertical_front_port",
				"vertical_rear_starboard",
				"vertical_rear_port",
			},
		},
		Limits: LimitsConfig{
			MaxVelocity:        [3]float64{limits.MaxVelocity.X, limits.MaxVelocity.Y, limits.MaxVelocity.Z},
			MaxAcceleration:    [3]float64{limits.MaxAcceleration.X, limits.MaxAcceleration.Y, limits.MaxAcceleration.Z},
			MaxRotAcceleration: limits.MaxRotAcceleration,
			TranslationalJerk:  limits.TranslationalJerk.Points(),
			RotationalJerk:     limits.RotationalJerk.Points(),
			MaxXYDistance:      limits.MaxXYDistance,
			MaxZDistance:       limits.MaxZDistance,
		},
		Solver: SolverConfig{
			MaxIterations:      solver.MaxIterations,
			FunctionTolerance:  solver.FunctionTolerance,
			GradientTolerance:  solver.GradientTolerance,
			ParameterTolerance: solver.ParameterTolerance,
			ResidualTolerance:  solver.ResidualTolerance,
			InitialDamping:     solver.InitialDamping,
		},
		Controller: ControllerConfig{
			RateHz:                  20,
			Fallback:                FallbackHold,
			BreakerMaxFailures:      3,
			BreakerTimeoutSeconds:   2,
			BreakerHalfOpenRequests: 1,
		},
		Health: HealthConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}
