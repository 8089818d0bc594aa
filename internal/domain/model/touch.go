package model

import "time"

// Phase is the lifecycle state of a finger in a sample.
type Phase uint8

// Touch phases.
const (
	PhaseDown Phase = iota
	PhaseMove
	PhaseUp
)

func (p Phase) String() string {
	switch p {
	case PhaseDown:
		return "down"
	case PhaseUp:
		return "up"
	default:
		return "move"
	}
}

// Sample is one raw per-finger update from the input source.
type Sample struct {
	FingerID int
	X, Y     float64 // normalized to [0,1] of the touchpad extent
	Phase    Phase
}

// Frame is a batch of samples reported together (one evdev SYN_REPORT).
type Frame struct {
	Samples []Sample
	Time    time.Time
}

// MotionKind discriminates MotionEvent variants.
type MotionKind uint8

// Motion event kinds.
const (
	MotionMove MotionKind = iota
	MotionTouchDown
	MotionTouchUp
)

func (k MotionKind) String() string {
	switch k {
	case MotionTouchDown:
		return "touch_down"
	case MotionTouchUp:
		return "touch_up"
	default:
		return "move"
	}
}

// MotionEvent is a discrete event produced by the normalizer.
type MotionEvent struct {
	Kind      MotionKind
	Fingers   int       // simultaneous finger count; for TouchUp the count lifted from
	Direction Direction // move only
	Edge      Edge      // move only
	Distance  float64   // effective distance for moves, sensitivity applied
	Remaining int       // fingers still down after a TouchUp
	Time      time.Time
}
