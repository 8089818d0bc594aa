package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// GesturesHandler lists the gestures eligible for the focused window.
type GesturesHandler struct {
	deps Dependencies
}

// NewGesturesHandler creates a new gestures handler.
func NewGesturesHandler(deps Dependencies) *GesturesHandler {
	return &GesturesHandler{deps: deps}
}

type windowView struct {
	Class string `json:"class"`
	Title string `json:"title"`
}

type gestureView struct {
	Name       string   `json:"name"`
	Sequence   []string `json:"sequence"`
	RepeatMode string   `json:"repeat_mode"`
	Command    string   `json:"command"`
}

type gesturesResponse struct {
	Window   windowView    `json:"window"`
	Gestures []gestureView `json:"gestures"`
}

// HandleGetGestures handles GET /gestures[?fingers=N] requests. The optional
// fingers filter keeps gestures whose first step uses that many fingers.
func (h *GesturesHandler) HandleGetGestures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	fingers := 0
	if v := r.URL.Query().Get("fingers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: fingers must be a positive integer", ErrBadRequest))
			return
		}
		fingers = n
	}

	active := h.deps.Active()
	resp := gesturesResponse{
		Window:   windowView{Class: active.Class, Title: active.Title},
		Gestures: []gestureView{},
	}
	for _, g := range h.deps.Eligible() {
		if fingers > 0 && g.Sequence[0].Fingers != fingers {
			continue
		}
		v := gestureView{
			Name:       g.Name,
			Sequence:   make([]string, len(g.Sequence)),
			RepeatMode: g.RepeatMode.String(),
			Command:    g.Command,
		}
		for i, s := range g.Sequence {
			v.Sequence[i] = s.String()
		}
		resp.Gestures = append(resp.Gestures, v)
	}
	writeJSON(w, http.StatusOK, resp)
}
