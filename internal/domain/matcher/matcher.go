// Package matcher implements the gesture sequence state machine. It consumes
// motion events in arrival order, tracks every gesture whose prefix matches
// what the fingers did so far, and reports completions to a Sink.
package matcher

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/internal/domain/window"
	"github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
)

// Source provides the eligible gesture snapshot taken when a new sequence
// starts. *window.Resolver implements it.
type Source interface {
	Snapshot() window.Snapshot
}

// Sink receives completions. It must not block.
type Sink interface {
	Complete(ctx context.Context, c model.Completion)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, c model.Completion)

// Complete calls f.
func (f SinkFunc) Complete(ctx context.Context, c model.Completion) { f(ctx, c) }

type candidate struct {
	gesture  *model.Gesture
	order    int       // position in the snapshot, used for tie-breaks
	next     int       // index of the step expected next
	started  time.Time // when the current step became expected
	progress float64   // move distance accumulated toward the current step
	sliding  bool      // slide mode, parked on the final step
	rearmed  bool      // tap mode, waiting for the sequence to start over
}

func (c *candidate) step() model.Step { return c.gesture.Sequence[c.next] }

// Matcher is idle when it has no live candidates and tracking otherwise. It
// is not safe for concurrent use; the engine goroutine owns it.
type Matcher struct {
	source Source
	sink   Sink
	logger logger.Logger

	snap       window.Snapshot
	candidates []candidate
	// latched suppresses new scans after a non-repeating completion until
	// every finger has lifted.
	latched bool
}

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithLogger sets the matcher logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates an idle matcher.
func New(source Source, sink Sink, opts ...Option) *Matcher {
	m := &Matcher{
		source: source,
		sink:   sink,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Live returns the number of live candidates.
func (m *Matcher) Live() int { return len(m.candidates) }

// Options returns the options of the sequence in progress, or the current
// configuration's options when idle.
func (m *Matcher) Options() model.Options {
	if len(m.candidates) > 0 {
		return m.snap.Options
	}
	return m.source.Snapshot().Options
}

// Threshold returns the move threshold the normalizer should emit at: the
// smallest outstanding distance among the move steps currently expected.
func (m *Matcher) Threshold() float64 {
	var opts model.Options
	best := math.Inf(1)

	if len(m.candidates) > 0 {
		opts = m.snap.Options
		for i := range m.candidates {
			c := &m.candidates[i]
			s := c.step()
			if s.Action != model.ActionMove {
				continue
			}
			if rest := opts.Requirement(s) - c.progress; rest > 0 && rest < best {
				best = rest
			}
		}
	} else {
		snap := m.source.Snapshot()
		opts = snap.Options
		for _, g := range snap.Gestures {
			s := g.Sequence[0]
			if s.Action != model.ActionMove {
				continue
			}
			if req := opts.Requirement(s); req > 0 && req < best {
				best = req
			}
		}
	}

	if math.IsInf(best, 1) {
		return opts.MoveThreshold
	}
	return best
}

// Expire drops candidates whose current step has waited longer than the
// configured step timeout. A zero timeout disables expiry.
func (m *Matcher) Expire(ctx context.Context, now time.Time) {
	timeout := m.snap.Options.StepTimeout
	if timeout <= 0 || len(m.candidates) == 0 {
		return
	}
	expired := 0
	for i := 0; i < len(m.candidates); {
		if now.Sub(m.candidates[i].started) > timeout {
			m.logger.Debug(ctx, "candidate expired", logger.String("gesture", m.candidates[i].gesture.Name))
			m.remove(i)
			expired++
			continue
		}
		i++
	}
	if expired > 0 {
		metrics.RecordCandidatesExpired(expired)
		metrics.UpdateLiveCandidates(len(m.candidates))
	}
}

// Reset drops every candidate and clears the latch.
func (m *Matcher) Reset() {
	m.candidates = m.candidates[:0]
	m.latched = false
	metrics.UpdateLiveCandidates(0)
}

// Handle processes one motion event.
func (m *Matcher) Handle(ctx context.Context, ev model.MotionEvent) {
	m.Expire(ctx, ev.Time)

	if len(m.candidates) == 0 {
		if !m.latched {
			m.scan(ctx, ev)
		}
	} else {
		m.advance(ctx, ev)
	}

	if ev.Kind == model.MotionTouchUp && ev.Remaining == 0 {
		m.latched = false
		m.disarm(ctx)
	}
	metrics.UpdateLiveCandidates(len(m.candidates))
}

// disarm drops tap candidates waiting to start over. Once every finger has
// lifted the next touch must scan a fresh snapshot.
func (m *Matcher) disarm(ctx context.Context) {
	for i := 0; i < len(m.candidates); {
		if c := &m.candidates[i]; c.rearmed && c.next == 0 {
			m.logger.Debug(ctx, "tap disarmed", logger.String("gesture", c.gesture.Name))
			m.remove(i)
			continue
		}
		i++
	}
}

// scan starts a new sequence against a fresh snapshot.
func (m *Matcher) scan(ctx context.Context, ev model.MotionEvent) {
	snap := m.source.Snapshot()
	for i, g := range snap.Gestures {
		if len(g.Sequence) == 0 || !g.Sequence[0].Accepts(ev) {
			continue
		}
		m.candidates = append(m.candidates, candidate{gesture: g, order: i, started: ev.Time})
	}
	if len(m.candidates) == 0 {
		return
	}
	m.snap = snap
	m.logger.Debug(ctx, "tracking started",
		logger.Int("candidates", len(m.candidates)),
		logger.Any("generation", snap.Generation),
		logger.String("class", snap.Window.Class),
	)
	m.advance(ctx, ev)
}

type outcome uint8

const (
	outcomePending outcome = iota
	outcomeMismatch
	outcomeComplete
)

// advance tests ev against every live candidate's current step.
func (m *Matcher) advance(ctx context.Context, ev model.MotionEvent) {
	var done []int
	for i := 0; i < len(m.candidates); {
		switch m.step(&m.candidates[i], ev) {
		case outcomeMismatch:
			m.logger.Debug(ctx, "candidate dropped",
				logger.String("gesture", m.candidates[i].gesture.Name),
				logger.Int("step", m.candidates[i].next),
			)
			if m.candidates[i].sliding {
				m.latched = true
			}
			// The swapped-in candidate has not been tested yet.
			m.remove(i)
			continue
		case outcomeComplete:
			done = append(done, i)
		}
		i++
	}
	if len(done) > 0 {
		m.complete(ctx, ev, done)
	}
}

// step applies ev to c and reports the outcome.
func (m *Matcher) step(c *candidate, ev model.MotionEvent) outcome {
	s := c.step()
	if !s.Accepts(ev) {
		// Continued motion in the direction of the step just satisfied.
		if ev.Kind == model.MotionMove && c.next > 0 {
			if prev := c.gesture.Sequence[c.next-1]; prev.Action == model.ActionMove && prev.Accepts(ev) {
				return outcomePending
			}
		}
		// Fingers lifting and landing between taps.
		if c.rearmed && c.next == 0 && ev.Kind != model.MotionMove && rearming(s, ev) {
			return outcomePending
		}
		return outcomeMismatch
	}

	if s.Action == model.ActionMove {
		c.progress += ev.Distance
		if c.progress < m.snap.Options.Requirement(s) {
			return outcomePending
		}
	}
	c.progress = 0
	c.started = ev.Time
	if c.sliding {
		return outcomeComplete
	}
	c.next++
	if c.next == len(c.gesture.Sequence) {
		return outcomeComplete
	}
	return outcomePending
}

// rearming reports whether a transition leaves between one finger and the
// first step's finger count down, from where the step can be performed again.
func rearming(first model.Step, ev model.MotionEvent) bool {
	after := ev.Fingers
	if ev.Kind == model.MotionTouchUp {
		after = ev.Remaining
	}
	return after >= 1 && after <= first.Fingers
}

// complete emits the winners among the candidates that finished on ev and
// applies their repeat policy. Losers are discarded.
func (m *Matcher) complete(ctx context.Context, ev model.MotionEvent, done []int) {
	sort.Slice(done, func(a, b int) bool {
		return m.candidates[done[a]].order < m.candidates[done[b]].order
	})
	winners := done
	if !m.snap.Options.RunAllMatches {
		winners = done[:1]
	}

	keep := make(map[int]bool, len(winners))
	for _, i := range winners {
		c := &m.candidates[i]
		repeat := c.sliding || c.rearmed
		m.logger.Debug(ctx, "gesture completed",
			logger.String("gesture", c.gesture.Name),
			logger.Bool("repeat", repeat),
		)
		metrics.RecordGestureCompleted(repeat)
		m.sink.Complete(ctx, model.Completion{Gesture: c.gesture, Repeat: repeat, Time: ev.Time})

		switch c.gesture.RepeatMode {
		case model.RepeatTap:
			c.next = 0
			c.rearmed = true
			keep[i] = true
		case model.RepeatSlide:
			c.next = len(c.gesture.Sequence) - 1
			c.sliding = true
			keep[i] = true
		default:
			m.latched = true
		}
	}

	// Remove from the highest index down so pending swaps stay valid.
	sort.Sort(sort.Reverse(sort.IntSlice(done)))
	for _, i := range done {
		if !keep[i] {
			m.remove(i)
		}
	}
}

func (m *Matcher) remove(i int) {
	last := len(m.candidates) - 1
	m.candidates[i] = m.candidates[last]
	m.candidates[last] = candidate{}
	m.candidates = m.candidates[:last]
}
