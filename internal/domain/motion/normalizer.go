// Package motion turns raw per-finger touch samples into discrete motion
// events: finger-set transitions and thresholded directional moves.
package motion

import (
	"context"
	"math"

	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/pkg/logger"
)

// Params are the per-call thresholds. The engine refreshes MoveThreshold from
// the matcher before every frame so the normalizer emits at the granularity of
// the steps currently expected.
type Params struct {
	MoveThreshold   float64
	EdgeThreshold   float64
	EdgeSensitivity float64
}

// ParamsFor builds Params from recognition options and a move threshold.
func ParamsFor(o model.Options, moveThreshold float64) Params {
	return Params{
		MoveThreshold:   moveThreshold,
		EdgeThreshold:   o.Edge.Threshold,
		EdgeSensitivity: o.Edge.Sensitivity,
	}
}

type point struct {
	x, y float64
}

type finger struct {
	id int
	point
}

// Normalizer tracks the fingers currently down. Displacement is measured on
// the centroid of all down fingers. Not safe for concurrent use; the engine
// goroutine owns it.
type Normalizer struct {
	logger  logger.Logger
	fingers []finger // in touch-down order
	origin  point    // centroid at the last emission or transition
	anchor  point    // centroid when the current finger set went down
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger used for debug traces.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Normalizer with no fingers down.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{logger: logger.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Fingers returns the number of fingers currently down.
func (n *Normalizer) Fingers() int { return len(n.fingers) }

// Reset forgets every finger.
func (n *Normalizer) Reset() {
	n.fingers = n.fingers[:0]
}

// Apply folds one frame into the finger state and returns at most one event.
func (n *Normalizer) Apply(ctx context.Context, frame model.Frame, p Params) (model.MotionEvent, bool) {
	before := len(n.fingers)
	added, removed := 0, 0

	for _, s := range frame.Samples {
		i := n.index(s.FingerID)
		switch s.Phase {
		case model.PhaseDown:
			if i >= 0 {
				n.logger.Debug(ctx, "duplicate touch down ignored", logger.Int("finger", s.FingerID))
				continue
			}
			n.fingers = append(n.fingers, finger{id: s.FingerID, point: point{s.X, s.Y}})
			added++
		case model.PhaseMove:
			if i < 0 {
				n.logger.Debug(ctx, "move for unknown finger ignored", logger.Int("finger", s.FingerID))
				continue
			}
			n.fingers[i].point = point{s.X, s.Y}
		case model.PhaseUp:
			if i < 0 {
				n.logger.Debug(ctx, "lift for unknown finger ignored", logger.Int("finger", s.FingerID))
				continue
			}
			n.fingers = append(n.fingers[:i], n.fingers[i+1:]...)
			removed++
		}
	}

	after := len(n.fingers)
	if added > 0 || removed > 0 {
		if after > 0 {
			c := n.centroid()
			n.origin, n.anchor = c, c
		}
		if after < before {
			return model.MotionEvent{
				Kind:      model.MotionTouchUp,
				Fingers:   before,
				Remaining: after,
				Time:      frame.Time,
			}, true
		}
		return model.MotionEvent{
			Kind:    model.MotionTouchDown,
			Fingers: after,
			Time:    frame.Time,
		}, true
	}

	if after == 0 {
		return model.MotionEvent{}, false
	}

	c := n.centroid()
	dx, dy := c.x-n.origin.x, c.y-n.origin.y

	var dir model.Direction
	var dist float64
	if math.Abs(dx) >= math.Abs(dy) {
		dist = math.Abs(dx)
		dir = model.DirectionRight
		if dx < 0 {
			dir = model.DirectionLeft
		}
	} else {
		dist = math.Abs(dy)
		dir = model.DirectionDown
		if dy < 0 {
			dir = model.DirectionUp
		}
	}
	if dist == 0 {
		return model.MotionEvent{}, false
	}

	edge := n.edge(dir, p.EdgeThreshold)
	if edge != model.EdgeNone && p.EdgeSensitivity > 0 {
		dist *= p.EdgeSensitivity
	}
	if dist < p.MoveThreshold {
		return model.MotionEvent{}, false
	}

	n.origin = c
	return model.MotionEvent{
		Kind:      model.MotionMove,
		Fingers:   after,
		Direction: dir,
		Edge:      edge,
		Distance:  dist,
		Time:      frame.Time,
	}, true
}

// edge classifies the anchor against the boundaries of the axis opposite the
// motion: vertical moves start at the left or right edge, horizontal moves at
// the top or bottom.
func (n *Normalizer) edge(dir model.Direction, threshold float64) model.Edge {
	if threshold <= 0 {
		return model.EdgeNone
	}
	if dir.Horizontal() {
		switch {
		case n.anchor.y <= threshold:
			return model.EdgeTop
		case n.anchor.y >= 1-threshold:
			return model.EdgeBottom
		}
		return model.EdgeNone
	}
	switch {
	case n.anchor.x <= threshold:
		return model.EdgeLeft
	case n.anchor.x >= 1-threshold:
		return model.EdgeRight
	}
	return model.EdgeNone
}

func (n *Normalizer) index(id int) int {
	for i := range n.fingers {
		if n.fingers[i].id == id {
			return i
		}
	}
	return -1
}

func (n *Normalizer) centroid() point {
	var c point
	for _, f := range n.fingers {
		c.x += f.x
		c.y += f.y
	}
	k := float64(len(n.fingers))
	return point{c.x / k, c.y / k}
}
