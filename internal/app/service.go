// Package service wires the gesture engine to its input sources and to the
// command dispatch pipeline.
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hypeedev/gest/internal/adapters/mq/queue"
	"github.com/hypeedev/gest/internal/adapters/mq/worker"
	"github.com/hypeedev/gest/internal/config"
	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/internal/domain/window"
	"github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
)

const (
	defaultWorkerCount = 2
	defaultQueueSize   = 64
	tickInterval       = 100 * time.Millisecond
	stopTimeout        = 5 * time.Second
	reapTimeout        = 2 * time.Second
)

// FrameSource delivers touch frames until ctx is done. *touchpad.Source
// implements it.
type FrameSource interface {
	Frames(ctx context.Context) (<-chan model.Frame, error)
}

// WindowTracker reports focus changes until ctx is done or the compositor
// goes away. *wayland.Tracker implements it.
type WindowTracker interface {
	Run(ctx context.Context, onChange func(model.Window)) error
}

// Reloader rebuilds the gesture set after a configuration file changed. It
// also returns the files the new configuration was read from, so imports
// added by the change are watched too.
type Reloader func(ctx context.Context) (*window.Set, []string, error)

// waiter is implemented by runners that reap their commands in the background.
type waiter interface {
	Wait(ctx context.Context) error
}

// Service runs the engine loop, the window tracker, the config watcher and
// the command worker pool.
type Service struct {
	mu sync.RWMutex

	// Core components
	resolver   *window.Resolver
	engine     *Engine
	dispatcher *Dispatcher
	queue      *queue.InMemoryQueue
	pool       *worker.Pool

	// Collaborators
	frames  FrameSource
	tracker WindowTracker
	runner  worker.Runner
	set     *window.Set
	reload  Reloader
	files   []string

	// Hot reload; reloadMu serializes reloads and watch replacement.
	reloadMu sync.Mutex
	watched  []string
	unwatch  context.CancelFunc

	// Configuration
	workerCount int
	queueSize   int

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	err     error

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of command workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGestureSet sets the compiled gesture configuration.
func WithGestureSet(set *window.Set) Option {
	return func(s *Service) { s.set = set }
}

// WithFrameSource sets the touch input.
func WithFrameSource(src FrameSource) Option {
	return func(s *Service) { s.frames = src }
}

// WithWindowTracker sets the focus tracker. Without one only global gestures
// are eligible.
func WithWindowTracker(t WindowTracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithRunner sets the command runner.
func WithRunner(r worker.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithReload watches files and swaps in the set built by reload whenever one
// of them changes.
func WithReload(files []string, reload Reloader) Option {
	return func(s *Service) {
		s.files = files
		s.reload = reload
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		done:        make(chan struct{}),
		logger:      nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the pipeline and starts its goroutines. The returned error
// covers setup only; a later failure of the frame source ends the service and
// is reported by Err once Done is closed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}
	switch {
	case s.set == nil:
		return ErrNoGestureSet
	case s.frames == nil:
		return ErrNoFrameSource
	case s.runner == nil:
		return ErrNoRunner
	}

	s.logger.Info(ctx, "starting gesture service...")
	s.done = make(chan struct{})
	s.err = nil

	resolver, err := window.NewResolver(s.set, window.WithLogger(s.logger.Named("resolver")))
	if err != nil {
		return fmt.Errorf("resolver: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	frames, err := s.frames.Frames(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("frame source: %w", err)
	}

	s.resolver = resolver
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.dispatcher = NewDispatcher(s.queue, s.logger.Named("dispatcher"))
	s.engine = NewEngine(resolver, s.dispatcher, s.logger.Named("engine"))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.runner, worker.WithLogger(s.logger))
	// Workers outlive runCtx so Stop can drain the queue.
	s.pool.Start(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(runCtx, frames)

	if s.tracker != nil {
		s.wg.Add(1)
		go s.track(runCtx)
	}

	if s.reload != nil && len(s.files) > 0 {
		s.reloadMu.Lock()
		s.watched, s.unwatch = nil, nil
		if err := s.rewatch(runCtx, s.files); err != nil {
			s.logger.Warn(ctx, "config hot reload disabled", logger.Error(err))
		}
		s.reloadMu.Unlock()
	}

	s.started = true
	s.logger.Info(ctx, "gesture service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("gestures", s.set.Count()),
		logger.Bool("windowTracking", s.tracker != nil),
	)

	return nil
}

// loop is the engine goroutine. It owns the normalizer and the matcher.
func (s *Service) loop(ctx context.Context, frames <-chan model.Frame) {
	defer s.wg.Done()
	defer s.engine.Reset()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.engine.Tick(ctx, now)
		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() == nil {
					s.logger.Error(ctx, "frame source closed")
					metrics.RecordErrorByComponent("touchpad", "closed")
					s.fail(ErrSourceClosed)
				}
				return
			}
			s.engine.HandleFrame(ctx, frame)
		}
	}
}

// track runs the window tracker. Losing the compositor is logged once and
// leaves an empty window context so global gestures keep working.
func (s *Service) track(ctx context.Context) {
	defer s.wg.Done()

	err := s.tracker.Run(ctx, func(w model.Window) {
		s.resolver.Update(ctx, w)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn(ctx, "window tracking lost, only global gestures remain active", logger.Error(err))
		metrics.RecordErrorByComponent("window_tracker", "lost")
	}
	s.resolver.Update(ctx, model.Window{})
}

// rewatch replaces the config watch when files differ from the watched list.
// reloadMu must be held.
func (s *Service) rewatch(ctx context.Context, files []string) error {
	if slices.Equal(files, s.watched) {
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	if err := config.Watch(watchCtx, s.logger.Named("watcher"), files, func(path string) {
		s.reloadFrom(ctx, path)
	}); err != nil {
		cancel()
		return err
	}
	if s.unwatch != nil {
		s.unwatch()
	}
	s.watched = slices.Clone(files)
	s.unwatch = cancel
	return nil
}

// Watched returns the configuration files currently watched for changes.
func (s *Service) Watched() []string {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	return slices.Clone(s.watched)
}

// reloadFrom rebuilds the configuration. A broken file keeps the previous
// gesture set active.
func (s *Service) reloadFrom(ctx context.Context, path string) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	set, files, err := s.reload(ctx)
	if err != nil {
		s.logger.Error(ctx, "config reload failed, keeping previous gestures",
			logger.String("file", path),
			logger.Error(err),
		)
		metrics.RecordConfigReload("error")
		return
	}
	if err := s.resolver.Reload(ctx, set); err != nil {
		s.logger.Error(ctx, "config reload rejected", logger.Error(err))
		metrics.RecordConfigReload("error")
		return
	}
	metrics.RecordConfigReload("ok")
	s.logger.Info(ctx, "config reloaded",
		logger.String("file", path),
		logger.Int("gestures", set.Count()),
	)
	if err := s.rewatch(ctx, files); err != nil {
		s.logger.Warn(ctx, "config watch not updated", logger.Error(err))
	}
}

// Reload swaps in a new gesture set immediately.
func (s *Service) Reload(ctx context.Context, set *window.Set) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return s.resolver.Reload(ctx, set)
}

func (s *Service) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Done is closed when the frame source fails or the service stops.
func (s *Service) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Err returns the failure that closed Done, if any.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Stop cancels the loops, drops in-flight sequences and drains the queued
// commands.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping gesture service...")

	s.cancel()
	s.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if w, ok := s.runner.(waiter); ok {
		reapCtx, cancelReap := context.WithTimeout(ctx, reapTimeout)
		if err := w.Wait(reapCtx); err != nil {
			s.logger.Info(ctx, "commands still running at shutdown", logger.Error(err))
		}
		cancelReap()
	}

	s.fail(nil)
	s.logger.Info(ctx, "gesture service stopped")
}

// Active returns the focused window.
func (s *Service) Active() model.Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.resolver == nil {
		return model.Window{}
	}
	return s.resolver.Active()
}

// Eligible returns the gestures eligible for the focused window.
func (s *Service) Eligible() []*model.Gesture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.resolver == nil {
		return nil
	}
	return s.resolver.Eligible()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.queue != nil {
		stats["queueSize"] = s.queue.Capacity()
	}

	if s.resolver != nil {
		snap := s.resolver.Snapshot()
		stats["generation"] = snap.Generation
		stats["windowClass"] = snap.Window.Class
		stats["windowTitle"] = snap.Window.Title
		stats["eligibleGestures"] = len(snap.Gestures)
		stats["liveCandidates"] = s.engine.Live()
		stats["motionEvents"] = s.engine.Events()
		stats["completions"] = s.dispatcher.Completed()
		stats["dropped"] = s.dispatcher.Dropped()
		stats["queueLength"] = s.queue.Len(ctx)
		stats["busyWorkers"] = s.pool.Busy()

		metrics.UpdateQueueSize(s.queue.Len(ctx))
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
