package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hypeedev/gest/internal/domain/matcher"
	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/internal/domain/motion"
	"github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
)

// Engine feeds frames through the normalizer into the matcher. HandleFrame,
// Tick and Reset must be called from a single goroutine.
type Engine struct {
	normalizer *motion.Normalizer
	matcher    *matcher.Matcher
	logger     logger.Logger

	live   atomic.Int64
	events atomic.Uint64
}

// NewEngine wires a normalizer and a matcher reading gestures from source
// and reporting completions to sink.
func NewEngine(source matcher.Source, sink matcher.Sink, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		normalizer: motion.New(motion.WithLogger(log.Named("normalizer"))),
		matcher:    matcher.New(source, sink, matcher.WithLogger(log.Named("matcher"))),
		logger:     log,
	}
}

// HandleFrame applies one frame. The normalizer emits at the threshold of the
// steps the matcher currently expects.
func (e *Engine) HandleFrame(ctx context.Context, frame model.Frame) {
	metrics.RecordFrameProcessed(len(frame.Samples))

	p := motion.ParamsFor(e.matcher.Options(), e.matcher.Threshold())
	ev, ok := e.normalizer.Apply(ctx, frame, p)
	if !ok {
		return
	}

	e.events.Add(1)
	metrics.RecordMotionEvent(ev.Kind.String())
	e.logger.Debug(ctx, "motion event",
		logger.String("kind", ev.Kind.String()),
		logger.Int("fingers", ev.Fingers),
		logger.String("direction", ev.Direction.String()),
		logger.String("edge", ev.Edge.String()),
		logger.Float64("distance", ev.Distance),
	)

	e.matcher.Handle(ctx, ev)
	e.live.Store(int64(e.matcher.Live()))
}

// Tick expires abandoned candidates.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.matcher.Expire(ctx, now)
	e.live.Store(int64(e.matcher.Live()))
}

// Reset drops all finger and candidate state.
func (e *Engine) Reset() {
	e.normalizer.Reset()
	e.matcher.Reset()
	e.live.Store(0)
}

// Live returns the live candidate count as of the last frame. Safe to call
// from any goroutine.
func (e *Engine) Live() int { return int(e.live.Load()) }

// Events returns the number of motion events produced so far.
func (e *Engine) Events() uint64 { return e.events.Load() }
