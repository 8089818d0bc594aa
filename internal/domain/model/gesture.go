// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Direction is one of the four cardinal motion directions.
type Direction uint8

// Motion directions. DirectionNone is only valid on non-move steps and events.
const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "none"
	}
}

// Horizontal reports whether d lies on the x axis.
func (d Direction) Horizontal() bool {
	return d == DirectionLeft || d == DirectionRight
}

// Edge names a physical touchpad boundary.
type Edge uint8

// Touchpad edges. EdgeNone means the motion did not start near a boundary.
const (
	EdgeNone Edge = iota
	EdgeTop
	EdgeBottom
	EdgeLeft
	EdgeRight
)

func (e Edge) String() string {
	switch e {
	case EdgeTop:
		return "top"
	case EdgeBottom:
		return "bottom"
	case EdgeLeft:
		return "left"
	case EdgeRight:
		return "right"
	default:
		return "none"
	}
}

// ParseEdge maps a configuration spelling to an Edge.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return EdgeNone, nil
	case "top":
		return EdgeTop, nil
	case "bottom":
		return EdgeBottom, nil
	case "left":
		return EdgeLeft, nil
	case "right":
		return EdgeRight, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge %q", s)
}

// Action is what a step expects the fingers to do.
type Action uint8

// Step actions.
const (
	ActionMove Action = iota
	ActionTouchDown
	ActionTouchUp
)

func (a Action) String() string {
	switch a {
	case ActionTouchDown:
		return "touch_down"
	case ActionTouchUp:
		return "touch_up"
	default:
		return "move"
	}
}

// ParseAction accepts both "move_up" and "move up" spellings and returns the
// action together with the direction for move actions.
func ParseAction(s string) (Action, Direction, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	switch norm {
	case "touch_down":
		return ActionTouchDown, DirectionNone, nil
	case "touch_up":
		return ActionTouchUp, DirectionNone, nil
	case "move_up":
		return ActionMove, DirectionUp, nil
	case "move_down":
		return ActionMove, DirectionDown, nil
	case "move_left":
		return ActionMove, DirectionLeft, nil
	case "move_right":
		return ActionMove, DirectionRight, nil
	}
	return ActionMove, DirectionNone, fmt.Errorf("unknown action %q", s)
}

// RepeatMode controls what happens after a gesture completes.
type RepeatMode uint8

// Repeat modes.
const (
	RepeatNone RepeatMode = iota
	RepeatTap
	RepeatSlide
)

func (r RepeatMode) String() string {
	switch r {
	case RepeatTap:
		return "tap"
	case RepeatSlide:
		return "slide"
	default:
		return "none"
	}
}

// ParseRepeatMode maps a configuration spelling to a RepeatMode.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RepeatNone, nil
	case "tap":
		return RepeatTap, nil
	case "slide":
		return RepeatSlide, nil
	}
	return RepeatNone, fmt.Errorf("unknown repeat mode %q", s)
}

// Step is one element of a configured sequence.
type Step struct {
	Fingers   int       // simultaneous finger count, > 0
	Action    Action    // move, touch down or touch up
	Direction Direction // move steps only
	Edge      Edge      // move steps only; EdgeNone requires a non-edge move
	Distance  float64   // 0 uses the global move threshold, else in (0,1]
}

// Accepts reports whether ev has the shape this step expects. Distance is not
// considered here; the matcher accumulates it across events.
func (s Step) Accepts(ev MotionEvent) bool {
	if ev.Fingers != s.Fingers {
		return false
	}
	switch s.Action {
	case ActionTouchDown:
		return ev.Kind == MotionTouchDown
	case ActionTouchUp:
		return ev.Kind == MotionTouchUp
	default:
		return ev.Kind == MotionMove && ev.Direction == s.Direction && ev.Edge == s.Edge
	}
}

func (s Step) String() string {
	if s.Action != ActionMove {
		return fmt.Sprintf("%s(%d)", s.Action, s.Fingers)
	}
	if s.Edge != EdgeNone {
		return fmt.Sprintf("move_%s@%s(%d)", s.Direction, s.Edge, s.Fingers)
	}
	return fmt.Sprintf("move_%s(%d)", s.Direction, s.Fingers)
}

// Gesture is a named sequence of steps bound to a command.
type Gesture struct {
	Name       string
	Sequence   []Step
	RepeatMode RepeatMode
	Command    string
}

// EdgeOptions configures edge classification.
type EdgeOptions struct {
	Threshold   float64 // distance from a boundary counted as the edge, as a fraction of extent
	Sensitivity float64 // multiplier applied to edge-move distance
}

// Options are the process-wide recognition settings.
type Options struct {
	MoveThreshold float64
	Edge          EdgeOptions
	RunAllMatches bool          // dispatch every gesture completing on the same event
	StepTimeout   time.Duration // 0 disables abandoned-candidate expiry
}

// Requirement returns the distance a move step must accumulate.
func (o Options) Requirement(s Step) float64 {
	if s.Distance > 0 {
		return s.Distance
	}
	return o.MoveThreshold
}

// Window is the focused toplevel as reported by the window tracker.
type Window struct {
	Class string
	Title string
}

// Completion signals a recognized gesture.
type Completion struct {
	Gesture *Gesture
	Repeat  bool
	Time    time.Time
}

// Dispatch is a command job flowing through the dispatch queue.
type Dispatch struct {
	ID      string    // unique job id for log correlation
	Gesture string    // gesture name
	Command string    // shell command line
	Repeat  bool      // true for tap/slide repeats
	TS      time.Time // completion time
}
