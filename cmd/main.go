package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/hypeedev/gest/internal/adapters/http/api"
	"github.com/hypeedev/gest/internal/adapters/shell"
	"github.com/hypeedev/gest/internal/adapters/touchpad"
	"github.com/hypeedev/gest/internal/adapters/wayland"
	app "github.com/hypeedev/gest/internal/app"
	"github.com/hypeedev/gest/internal/config"
	"github.com/hypeedev/gest/internal/domain/window"
	"github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
)

const (
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The logger may not be initialized yet
		_, _ = os.Stderr.WriteString("gest: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// setupLogging initializes the global logger for the daemon. -v wins over
// the configured level.
func setupLogging(opts *options, level string) error {
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		if err := logger.InitWithWriter(f); err != nil {
			return err
		}
	} else if err := logger.Init(); err != nil {
		return err
	}

	if opts.verbose > 0 {
		level = "debug"
	}
	return logger.SetLevelString(level)
}

// loadGestures loads path and compiles its gesture tables.
func loadGestures(ctx context.Context, path string) (*config.Config, *window.Set, error) {
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	set, err := cfg.GestureSet()
	if err != nil {
		return nil, nil, err
	}
	return cfg, set, nil
}

// reloader rebuilds the gesture set from path and reports the files it read,
// imports included.
func reloader(path string) app.Reloader {
	return func(ctx context.Context) (*window.Set, []string, error) {
		cfg, set, err := loadGestures(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return set, cfg.Files(), nil
	}
}

// run is the daemon body: it blocks until a signal arrives or the touchpad
// goes away.
func run(opts *options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, set, err := loadGestures(ctx, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := setupLogging(opts, cfg.LogLevel); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	log.Info(ctx, "configuration loaded",
		logger.String("file", path),
		logger.Int("gestures", set.Count()),
		logger.Float64("move_threshold", set.Options.MoveThreshold),
	)

	svcOpts := []app.Option{
		app.WithLogger(log),
		app.WithGestureSet(set),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithFrameSource(touchpad.New(
			touchpad.WithDevice(cfg.Device),
			touchpad.WithLogger(log.Named("touchpad")),
		)),
		app.WithRunner(shell.New(
			shell.WithShell(cfg.Shell),
			shell.WithLogger(log.Named("shell")),
		)),
	}
	if cfg.WindowTracker == config.TrackerWlroots {
		svcOpts = append(svcOpts, app.WithWindowTracker(wayland.New(wayland.WithLogger(log.Named("wayland")))))
	}
	if cfg.Watch {
		svcOpts = append(svcOpts, app.WithReload(cfg.Files(), reloader(path)))
	}

	svc := app.New(svcOpts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	if cfg.MetricsAddr != "" {
		mux := newMux(svc)
		go func() {
			if err := api.Serve(ctx, cfg.MetricsAddr, mux, log.Named("http")); err != nil {
				log.Error(ctx, "HTTP server failed", logger.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down...")
		return nil
	case <-svc.Done():
		if err := svc.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
