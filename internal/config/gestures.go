package config

import (
	"fmt"
	"strings"

	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/internal/domain/window"
)

// RecognitionOptions converts the options section to the domain type.
func (c *Config) RecognitionOptions() model.Options {
	return model.Options{
		MoveThreshold: c.Options.MoveThreshold,
		Edge: model.EdgeOptions{
			Threshold:   c.Options.Edge.Threshold,
			Sensitivity: c.Options.Edge.Sensitivity,
		},
		RunAllMatches: c.Options.RunAllMatches,
		StepTimeout:   c.Options.StepTimeout,
	}
}

// GestureSet validates the gesture tables and compiles them with their
// window patterns. Errors wrap ErrInvalidConfig and name the offending
// gesture and step.
func (c *Config) GestureSet() (*window.Set, error) {
	set := &window.Set{Options: c.RecognitionOptions()}

	for i, gc := range c.Gestures {
		g, err := compileGesture(gc)
		if err != nil {
			return nil, fmt.Errorf("gestures[%d]: %w", i, err)
		}
		set.Global = append(set.Global, g)
	}

	for i, ac := range c.ApplicationGestures {
		sc, err := compileScope(ac)
		if err != nil {
			return nil, fmt.Errorf("application_gestures[%d]: %w", i, err)
		}
		set.Scopes = append(set.Scopes, sc)
	}
	return set, nil
}

func compileScope(ac ApplicationConfig) (window.Scope, error) {
	var (
		expr   string
		target window.Target
		n      int
	)
	if ac.Match != "" {
		expr, target, n = ac.Match, window.TargetAny, n+1
	}
	if ac.Class != "" {
		expr, target, n = ac.Class, window.TargetClass, n+1
	}
	if ac.Title != "" {
		expr, target, n = ac.Title, window.TargetTitle, n+1
	}
	if n != 1 {
		return window.Scope{}, fmt.Errorf("%w: exactly one of match, class or title is required", ErrInvalidConfig)
	}

	pattern, err := window.Compile(expr)
	if err != nil {
		return window.Scope{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	sc := window.Scope{Pattern: pattern, Target: target}
	for i, gc := range ac.Gestures {
		g, err := compileGesture(gc)
		if err != nil {
			return window.Scope{}, fmt.Errorf("%s %q: gestures[%d]: %w", target, expr, i, err)
		}
		sc.Gestures = append(sc.Gestures, g)
	}
	return sc, nil
}

func compileGesture(gc GestureConfig) (*model.Gesture, error) {
	name := strings.TrimSpace(gc.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: gesture name must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(gc.Command) == "" {
		return nil, fmt.Errorf("%w: gesture %q: command must not be empty", ErrInvalidConfig, name)
	}
	if len(gc.Sequence) == 0 {
		return nil, fmt.Errorf("%w: gesture %q: sequence must not be empty", ErrInvalidConfig, name)
	}
	mode, err := model.ParseRepeatMode(gc.RepeatMode)
	if err != nil {
		return nil, fmt.Errorf("%w: gesture %q: %w", ErrInvalidConfig, name, err)
	}

	g := &model.Gesture{
		Name:       name,
		Sequence:   make([]model.Step, 0, len(gc.Sequence)),
		RepeatMode: mode,
		Command:    gc.Command,
	}
	for i, sc := range gc.Sequence {
		step, err := compileStep(sc)
		if err != nil {
			return nil, fmt.Errorf("%w: gesture %q: step %d: %w", ErrInvalidConfig, name, i, err)
		}
		g.Sequence = append(g.Sequence, step)
	}
	return g, nil
}

func compileStep(sc StepConfig) (model.Step, error) {
	if sc.Fingers <= 0 {
		return model.Step{}, fmt.Errorf("fingers must be positive, got %d", sc.Fingers)
	}
	action, dir, err := model.ParseAction(sc.Action)
	if err != nil {
		return model.Step{}, err
	}
	edge, err := model.ParseEdge(sc.Edge)
	if err != nil {
		return model.Step{}, err
	}
	if action != model.ActionMove {
		if edge != model.EdgeNone {
			return model.Step{}, fmt.Errorf("edge is only valid on move steps")
		}
		if sc.Distance != 0 {
			return model.Step{}, fmt.Errorf("distance is only valid on move steps")
		}
	}
	if sc.Distance < 0 || sc.Distance > 1 {
		return model.Step{}, fmt.Errorf("distance must be in (0,1], got %g", sc.Distance)
	}
	return model.Step{
		Fingers:   sc.Fingers,
		Action:    action,
		Direction: dir,
		Edge:      edge,
		Distance:  sc.Distance,
	}, nil
}
