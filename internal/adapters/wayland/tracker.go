// Package wayland tracks the focused toplevel on wlroots compositors through
// the zwlr_foreign_toplevel_manager_v1 protocol.
package wayland

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/pkg/logger"
)

const managerInterface = "zwlr_foreign_toplevel_manager_v1"

// Object ids allocated by the client.
const (
	displayID  uint32 = 1
	registryID uint32 = 2
	callbackID uint32 = 3
	managerID  uint32 = 4
)

// Requests and events used from the core and toplevel protocols.
const (
	displaySync        uint16 = 0
	displayGetRegistry uint16 = 1
	displayError       uint16 = 0
	registryBind       uint16 = 0
	registryGlobal     uint16 = 0

	managerToplevel uint16 = 0
	managerFinished uint16 = 1

	handleTitle  uint16 = 0
	handleAppID  uint16 = 1
	handleState  uint16 = 4
	handleDone   uint16 = 5
	handleClosed uint16 = 6

	stateActivated uint32 = 2
)

type toplevel struct {
	class     string
	title     string
	activated bool
}

// Tracker reports the activated toplevel's app_id and title.
type Tracker struct {
	socket string
	logger logger.Logger
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithSocket sets the compositor socket path instead of deriving it from
// WAYLAND_DISPLAY and XDG_RUNTIME_DIR.
func WithSocket(path string) Option {
	return func(t *Tracker) {
		if path != "" {
			t.socket = path
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SocketPath resolves the compositor socket from the environment.
func SocketPath() (string, error) {
	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		return "", fmt.Errorf("%w: WAYLAND_DISPLAY is not set", ErrNoDisplay)
	}
	if filepath.IsAbs(display) {
		return display, nil
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR is not set", ErrNoDisplay)
	}
	return filepath.Join(dir, display), nil
}

// Run connects to the compositor and calls onChange whenever the activated
// toplevel or its title changes. It returns when ctx is done or the
// connection fails.
func (t *Tracker) Run(ctx context.Context, onChange func(model.Window)) error {
	path := t.socket
	if path == "" {
		var err error
		if path, err = SocketPath(); err != nil {
			return err
		}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("connect %s: %w", path, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	t.logger.Info(ctx, "connected to compositor", logger.String("socket", path))
	err = t.Track(ctx, conn, onChange)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Track binds the toplevel manager on an established connection and
// dispatches its events.
func (t *Tracker) Track(ctx context.Context, rw io.ReadWriter, onChange func(model.Window)) error {
	if err := bind(rw); err != nil {
		return err
	}

	handles := make(map[uint32]*toplevel)
	var active uint32

	for {
		m, err := readMessage(rw)
		if err != nil {
			return err
		}

		switch {
		case m.object == displayID && m.opcode == displayError:
			return displayErr(m.payload)
		case m.object == managerID && m.opcode == managerToplevel:
			id, _, err := getUint(m.payload)
			if err != nil {
				return err
			}
			handles[id] = &toplevel{}
		case m.object == managerID && m.opcode == managerFinished:
			return ErrFinished
		default:
			h, ok := handles[m.object]
			if !ok {
				continue
			}
			switch m.opcode {
			case handleTitle:
				if h.title, _, err = getString(m.payload); err != nil {
					return err
				}
			case handleAppID:
				if h.class, _, err = getString(m.payload); err != nil {
					return err
				}
			case handleState:
				states, _, err := getArray(m.payload)
				if err != nil {
					return err
				}
				h.activated = hasState(states, stateActivated)
			case handleDone:
				if h.activated {
					active = m.object
					w := model.Window{Class: h.class, Title: h.title}
					t.logger.Debug(ctx, "activated toplevel", logger.String("class", w.Class), logger.String("title", w.Title))
					onChange(w)
				}
			case handleClosed:
				delete(handles, m.object)
				if active == m.object {
					active = 0
					onChange(model.Window{})
				}
			}
		}
	}
}

// bind requests the registry, a sync callback and binds the manager global.
// A callback done before the global appears means it is not offered.
func bind(rw io.ReadWriter) error {
	if err := writeMessage(rw, displayID, displayGetRegistry, putUint(nil, registryID)); err != nil {
		return err
	}
	if err := writeMessage(rw, displayID, displaySync, putUint(nil, callbackID)); err != nil {
		return err
	}

	for {
		m, err := readMessage(rw)
		if err != nil {
			return err
		}
		switch {
		case m.object == displayID && m.opcode == displayError:
			return displayErr(m.payload)
		case m.object == callbackID:
			return ErrInterfaceMissing
		case m.object == registryID && m.opcode == registryGlobal:
			_, rest, err := getUint(m.payload)
			if err != nil {
				return err
			}
			iface, _, err := getString(rest)
			if err != nil {
				return err
			}
			if iface != managerInterface {
				continue
			}
			// bind(name, interface, version, new_id) reuses the global's
			// name, interface and version verbatim.
			req := append(append([]byte(nil), m.payload...), 0, 0, 0, 0)
			binary.LittleEndian.PutUint32(req[len(req)-4:], managerID)
			return writeMessage(rw, registryID, registryBind, req)
		}
	}
}

func hasState(states []byte, want uint32) bool {
	for len(states) >= 4 {
		if binary.LittleEndian.Uint32(states) == want {
			return true
		}
		states = states[4:]
	}
	return false
}

func displayErr(p []byte) error {
	_, rest, err := getUint(p)
	if err != nil {
		return err
	}
	code, rest, err := getUint(rest)
	if err != nil {
		return err
	}
	msg, _, err := getString(rest)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: code %d: %s", ErrProtocol, code, msg)
}
