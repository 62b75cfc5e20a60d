// cmd/auvgnc/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/opd-ai/go-auvgnc/pkg/config"
	"github.com/opd-ai/go-auvgnc/pkg/guidance"
	"github.com/opd-ai/go-auvgnc/pkg/health"
	"github.com/opd-ai/go-auvgnc/pkg/logging"
	"github.com/opd-ai/go-auvgnc/pkg/physics"
	"github.com/opd-ai/go-auvgnc/pkg/resource"
	"github.com/opd-ai/go-auvgnc/pkg/trajectory"
	"github.com/opd-ai/go-auvgnc/pkg/validation"
)

// sample is one JSON line of output
type sample struct {
	Time         float64     `json:"t"`
	TrajectoryID string      `json:"trajectoryId,omitempty"`
	State        [13]float64 `json:"state"`
	Accel        [6]float64  `json:"accel"`
	Forces       [8]float64  `json:"forces"`
	Status       string      `json:"status"`
	Fallback     string      `json:"fallback,omitempty"`
}

func main() {
	logger := logging.NewLoggerWithWriter(os.Stderr)
	ctx := context.Background()

	configPath := flag.String("config", "auvgnc.json", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	goalPath := flag.String("goal", "", "Path to a goal JSON file, - for stdin")
	dt := flag.Float64("dt", 0.1, "Sample period in seconds when planning offline")
	serve := flag.Bool("serve", false, "Run the real-time control loop, health server and goal intake")
	flag.Parse()

	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err,
				"config_path", *configPath,
			)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file",
			"config_path", *configPath,
		)
		return
	}

	vehicleConfig, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
		os.Exit(1)
	}

	controller, err := guidance.NewController(vehicleConfig, guidance.WithLogger(logger))
	if err != nil {
		logger.Error(ctx, "Failed to create controller", err)
		os.Exit(1)
	}

	var goal *guidance.Goal
	if *goalPath != "" {
		g, err := readGoal(*goalPath, controller.Limits())
		if err != nil {
			logger.Error(ctx, "Invalid goal", err, "goal_path", *goalPath)
			os.Exit(1)
		}
		goal = &g
	}

	if *serve {
		if err := runService(vehicleConfig, controller, goal, logger); err != nil {
			logger.Error(ctx, "Service stopped with error", err)
			os.Exit(1)
		}
		return
	}

	if goal == nil {
		logger.Error(ctx, "A goal is required when planning offline", nil)
		os.Exit(2)
	}
	if !(*dt > 0) {
		logger.Error(ctx, "Sample period must be positive", nil, "dt", *dt)
		os.Exit(2)
	}
	if err := planOffline(ctx, controller, *goal, *dt, os.Stdout); err != nil {
		logger.Error(ctx, "Planning failed", err, "goal_id", goal.ID)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the file does not exist
func loadConfig(path string, logger *logging.Logger) (*config.VehicleConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info(context.Background(), "Configuration file not found, using default configuration",
			"config_path", path,
		)
		cfg := config.DefaultConfig()
		if err := cfg.ApplyEnvironmentOverrides(); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return config.LoadConfig(path)
}

func readGoal(path string, limits trajectory.TGenLimits) (guidance.Goal, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(os.Stdin, validation.MaxGoalSize+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return guidance.Goal{}, fmt.Errorf("read goal: %w", err)
	}

	validator := validation.NewGoalValidator(limits)

	req, err := validator.ParseGoal(data, "cli")
	if err != nil {
		return guidance.Goal{}, err
	}
	return guidance.Goal{ID: req.ID, End: req.Waypoint(), Duration: req.Duration}, nil
}

func restStart() trajectory.Waypoint {
	return trajectory.RestWaypoint(physics.Vec(0, 0, 0), physics.Identity())
}

// planOffline steps the controller on a simulated clock, feeding the
// reference back as the measurement, and writes one JSON line per sample.
func planOffline(ctx context.Context, controller *guidance.Controller, goal guidance.Goal, dt float64, w io.Writer) error {
	t0 := time.Unix(0, 0)
	plan, err := controller.SetGoal(ctx, t0, restStart(), goal)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	measured := restStart().State()
	total := plan.Diagnostics.TotalDuration
	steps := int(total/dt) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) * dt
		if t > total {
			t = total
		}
		now := t0.Add(time.Duration(t * float64(time.Second)))
		cmd, err := controller.Step(ctx, now, measured)
		if err != nil {
			return err
		}
		if err := enc.Encode(newSample(t, cmd)); err != nil {
			return err
		}
		measured = cmd.Reference
		if t >= total {
			break
		}
	}
	return nil
}

func newSample(t float64, cmd guidance.Command) sample {
	return sample{
		Time:         t,
		TrajectoryID: cmd.TrajectoryID,
		State:        cmd.Reference.Vector(),
		Accel:        cmd.Accel.Vector(),
		Forces:       cmd.Forces,
		Status:       cmd.AllocationStatus(),
		Fallback:     cmd.Fallback,
	}
}

// runService runs the control loop in real time until SIGINT or SIGTERM.
func runService(cfg *config.VehicleConfig, controller *guidance.Controller, goal *guidance.Goal, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := resource.NewTickMonitor(cfg.ControlPeriod(), logger, controller.Bus())
	tasks := resource.NewTasks(logger)

	if goal != nil {
		if _, err := controller.SetGoal(ctx, time.Now(), restStart(), *goal); err != nil {
			return err
		}
	}

	// Without a vehicle attached the reference is fed back as the
	// measurement.
	var last atomic.Pointer[trajectory.State]
	start := restStart().State()
	last.Store(&start)
	source := guidance.StateSourceFunc(func(context.Context) (trajectory.State, error) {
		return *last.Load(), nil
	})
	enc := json.NewEncoder(os.Stdout)
	began := time.Now()
	sink := guidance.CommandSinkFunc(func(_ context.Context, cmd guidance.Command) error {
		ref := cmd.Reference
		last.Store(&ref)
		return enc.Encode(newSample(cmd.Time.Sub(began).Seconds(), cmd))
	})

	var running atomic.Bool
	tasks.Go(ctx, "control-loop", func(ctx context.Context) error {
		running.Store(true)
		defer running.Store(false)
		return controller.Run(ctx, source, sink, monitor)
	})

	var healthServer *http.Server
	if cfg.Health.Enabled {
		healthChecker := health.NewHealthChecker()
		healthChecker.AddCheck(health.NewControlLoopHealthCheck(running.Load))
		healthChecker.AddCheck(health.NewAllocationHealthCheck(controller))
		healthChecker.AddCheck(resource.NewTickHealthCheck(monitor, 10, 10*cfg.ControlPeriod()))
		healthChecker.AddCheck(health.NewMemoryHealthCheck(500, nil))

		mux := healthChecker.Mux()
		mux.Handle("/goals", guidance.NewGoalIntake(controller, source))

		healthServer = &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Health.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		tasks.Go(ctx, "health-server", func(ctx context.Context) error {
			logger.Info(ctx, "Starting health check server", "port", cfg.Health.Port, "goal_path", "/goals")
			if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthServer != nil {
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "Health check server shutdown failed", err)
		}
	}
	stats := monitor.Stats()
	logger.Info(shutdownCtx, "Control loop statistics",
		"ticks", stats.Ticks,
		"overruns", stats.Overruns,
		"max_elapsed", stats.MaxElapsed,
	)
	return tasks.Wait(shutdownCtx)
}
