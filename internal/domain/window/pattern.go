// Package window resolves the gestures eligible for the focused window.
package window

import (
	"fmt"
	"regexp"

	"github.com/hypeedev/gest/internal/domain/model"
)

// Pattern matches window class or title text.
type Pattern interface {
	Match(text string) bool
	String() string
}

// Target selects which window field a scope pattern is tested against.
type Target uint8

// Scope targets.
const (
	TargetAny Target = iota // class or title
	TargetClass
	TargetTitle
)

func (t Target) String() string {
	switch t {
	case TargetClass:
		return "class"
	case TargetTitle:
		return "title"
	default:
		return "match"
	}
}

type regexpPattern struct {
	re *regexp.Regexp
}

// Compile builds an unanchored regular expression pattern.
func Compile(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, expr, err)
	}
	return regexpPattern{re: re}, nil
}

// MustCompile is like Compile but panics on error. Tests only.
func MustCompile(expr string) Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p regexpPattern) Match(text string) bool { return p.re.MatchString(text) }
func (p regexpPattern) String() string         { return p.re.String() }

// Scope binds gestures to windows matching a pattern.
type Scope struct {
	Pattern  Pattern
	Target   Target
	Gestures []*model.Gesture
}

// Matches reports whether the scope applies to w. A window with neither class
// nor title is "no context" and matches no scope.
func (s Scope) Matches(w model.Window) bool {
	if w == (model.Window{}) {
		return false
	}
	switch s.Target {
	case TargetClass:
		return s.Pattern.Match(w.Class)
	case TargetTitle:
		return s.Pattern.Match(w.Title)
	default:
		return s.Pattern.Match(w.Class) || s.Pattern.Match(w.Title)
	}
}

// Set is a compiled gesture configuration. It is never mutated after
// construction; a reload builds a new Set.
type Set struct {
	Options model.Options
	Global  []*model.Gesture
	Scopes  []Scope
}

// Eligible returns the global gestures followed by the gestures of every
// scope matching w, in declaration order. Duplicates are kept.
func (s *Set) Eligible(w model.Window) []*model.Gesture {
	out := make([]*model.Gesture, 0, len(s.Global))
	out = append(out, s.Global...)
	for _, sc := range s.Scopes {
		if sc.Matches(w) {
			out = append(out, sc.Gestures...)
		}
	}
	return out
}

// Count returns the number of gestures in the set, scoped ones included.
func (s *Set) Count() int {
	n := len(s.Global)
	for _, sc := range s.Scopes {
		n += len(sc.Gestures)
	}
	return n
}
