package touchpad

import (
	"sort"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/hypeedev/gest/internal/domain/model"
)

// AxisRange is the reported extent of one absolute axis.
type AxisRange struct {
	Min, Max int32
}

// Normalize maps v into [0,1].
func (r AxisRange) Normalize(v int32) float64 {
	if r.Max <= r.Min {
		return 0
	}
	f := float64(v-r.Min) / float64(r.Max-r.Min)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

type slot struct {
	id     int32 // tracking id, -1 when empty
	x, y   int32
	lifted int32 // tracking id that ended in this report, -1 if none
	down   bool
	moved  bool
}

// Assembler turns a multitouch protocol B event stream into frames, one per
// SYN_REPORT. Finger ids are the kernel tracking ids.
type Assembler struct {
	x, y    AxisRange
	current int
	slots   map[int]*slot
}

// NewAssembler creates an assembler for the given axis ranges.
func NewAssembler(x, y AxisRange) *Assembler {
	return &Assembler{x: x, y: y, slots: make(map[int]*slot)}
}

func (a *Assembler) slot() *slot {
	s, ok := a.slots[a.current]
	if !ok {
		s = &slot{id: -1, lifted: -1}
		a.slots[a.current] = s
	}
	return s
}

// Feed consumes one input event. It returns a frame when ev is a
// SYN_REPORT that changed at least one finger.
func (a *Assembler) Feed(typ, code uint16, value int32, ts time.Time) (model.Frame, bool) {
	switch typ {
	case evdev.EV_ABS:
		switch code {
		case evdev.ABS_MT_SLOT:
			a.current = int(value)
		case evdev.ABS_MT_TRACKING_ID:
			s := a.slot()
			if s.id >= 0 {
				s.lifted = s.id
			}
			s.id = value
			s.down = value >= 0
		case evdev.ABS_MT_POSITION_X:
			s := a.slot()
			s.x = value
			s.moved = true
		case evdev.ABS_MT_POSITION_Y:
			s := a.slot()
			s.y = value
			s.moved = true
		}
	case evdev.EV_SYN:
		switch code {
		case evdev.SYN_REPORT:
			return a.flush(ts)
		case evdev.SYN_DROPPED:
			return a.drop(ts)
		}
	}
	return model.Frame{}, false
}

func (a *Assembler) flush(ts time.Time) (model.Frame, bool) {
	keys := make([]int, 0, len(a.slots))
	for k := range a.slots {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var samples []model.Sample
	for _, k := range keys {
		s := a.slots[k]
		if s.lifted >= 0 {
			samples = append(samples, model.Sample{FingerID: int(s.lifted), Phase: model.PhaseUp})
		}
		if s.id >= 0 {
			phase := model.PhaseMove
			if s.down {
				phase = model.PhaseDown
			}
			if s.down || s.moved {
				samples = append(samples, model.Sample{
					FingerID: int(s.id),
					X:        a.x.Normalize(s.x),
					Y:        a.y.Normalize(s.y),
					Phase:    phase,
				})
			}
		}
		s.lifted = -1
		s.down = false
		s.moved = false
	}
	if len(samples) == 0 {
		return model.Frame{}, false
	}
	return model.Frame{Samples: samples, Time: ts}, true
}

// drop lifts every known finger after the kernel dropped events; slot state
// can no longer be trusted.
func (a *Assembler) drop(ts time.Time) (model.Frame, bool) {
	var samples []model.Sample
	for _, s := range a.slots {
		if s.lifted >= 0 {
			samples = append(samples, model.Sample{FingerID: int(s.lifted), Phase: model.PhaseUp})
		}
		if s.id >= 0 && !s.down {
			samples = append(samples, model.Sample{FingerID: int(s.id), Phase: model.PhaseUp})
		}
	}
	a.Reset()
	if len(samples) == 0 {
		return model.Frame{}, false
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].FingerID < samples[j].FingerID })
	return model.Frame{Samples: samples, Time: ts}, true
}

// Reset forgets every slot.
func (a *Assembler) Reset() {
	a.current = 0
	a.slots = make(map[int]*slot)
}
