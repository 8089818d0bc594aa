package model_test

import (
	"testing"
	"time"

	model "github.com/hypeedev/gest/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseAction(t *testing.T) {
	convey.Convey("Given configuration action spellings", t, func() {
		convey.Convey("When parsing underscore and space forms", func() {
			a1, d1, err1 := model.ParseAction("move_up")
			a2, d2, err2 := model.ParseAction("move up")
			a3, d3, err3 := model.ParseAction(" Touch Down ")

			convey.Convey("Then both spellings should be equivalent", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(err3, convey.ShouldBeNil)
				convey.So(a1, convey.ShouldEqual, model.ActionMove)
				convey.So(d1, convey.ShouldEqual, model.DirectionUp)
				convey.So(a2, convey.ShouldEqual, a1)
				convey.So(d2, convey.ShouldEqual, d1)
				convey.So(a3, convey.ShouldEqual, model.ActionTouchDown)
				convey.So(d3, convey.ShouldEqual, model.DirectionNone)
			})
		})

		convey.Convey("When parsing an unknown action", func() {
			_, _, err := model.ParseAction("pinch_in")

			convey.Convey("Then it should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "pinch_in")
			})
		})
	})
}

func TestParseEdgeAndRepeatMode(t *testing.T) {
	convey.Convey("Given edge and repeat mode spellings", t, func() {
		e, err := model.ParseEdge("Right")
		convey.So(err, convey.ShouldBeNil)
		convey.So(e, convey.ShouldEqual, model.EdgeRight)

		e, err = model.ParseEdge("")
		convey.So(err, convey.ShouldBeNil)
		convey.So(e, convey.ShouldEqual, model.EdgeNone)

		_, err = model.ParseEdge("middle")
		convey.So(err, convey.ShouldNotBeNil)

		r, err := model.ParseRepeatMode("slide")
		convey.So(err, convey.ShouldBeNil)
		convey.So(r, convey.ShouldEqual, model.RepeatSlide)

		r, err = model.ParseRepeatMode("")
		convey.So(err, convey.ShouldBeNil)
		convey.So(r, convey.ShouldEqual, model.RepeatNone)

		_, err = model.ParseRepeatMode("forever")
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestStepAccepts(t *testing.T) {
	convey.Convey("Given a three finger edge swipe step", t, func() {
		step := model.Step{Fingers: 3, Action: model.ActionMove, Direction: model.DirectionUp, Edge: model.EdgeRight}
		ev := model.MotionEvent{Kind: model.MotionMove, Fingers: 3, Direction: model.DirectionUp, Edge: model.EdgeRight, Time: time.Now()}

		convey.Convey("Then an identical move should be accepted", func() {
			convey.So(step.Accepts(ev), convey.ShouldBeTrue)
		})

		convey.Convey("Then a move without the edge should be rejected", func() {
			ev.Edge = model.EdgeNone
			convey.So(step.Accepts(ev), convey.ShouldBeFalse)
		})

		convey.Convey("Then a different finger count should be rejected", func() {
			ev.Fingers = 2
			convey.So(step.Accepts(ev), convey.ShouldBeFalse)
		})

		convey.Convey("Then a touch transition should be rejected", func() {
			ev.Kind = model.MotionTouchUp
			convey.So(step.Accepts(ev), convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given a touch up step", t, func() {
		step := model.Step{Fingers: 2, Action: model.ActionTouchUp}

		convey.Convey("Then only a touch up from two fingers should be accepted", func() {
			convey.So(step.Accepts(model.MotionEvent{Kind: model.MotionTouchUp, Fingers: 2, Remaining: 1}), convey.ShouldBeTrue)
			convey.So(step.Accepts(model.MotionEvent{Kind: model.MotionTouchDown, Fingers: 2}), convey.ShouldBeFalse)
			convey.So(step.Accepts(model.MotionEvent{Kind: model.MotionTouchUp, Fingers: 3}), convey.ShouldBeFalse)
		})
	})
}

func TestOptionsRequirement(t *testing.T) {
	convey.Convey("Given options with a global move threshold", t, func() {
		opts := model.Options{MoveThreshold: 0.15}

		convey.So(opts.Requirement(model.Step{Fingers: 1}), convey.ShouldEqual, 0.15)
		convey.So(opts.Requirement(model.Step{Fingers: 1, Distance: 0.4}), convey.ShouldEqual, 0.4)
	})
}
