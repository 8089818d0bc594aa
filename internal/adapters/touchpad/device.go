// Package touchpad reads multitouch samples from an evdev touchpad.
package touchpad

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"

	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/pkg/logger"
)

const frameBuffer = 64

// absInfo mirrors struct input_absinfo.
type absInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// eviocgabs is EVIOCGABS(abs): _IOR('E', 0x40 + abs, struct input_absinfo).
func eviocgabs(abs uint16) uintptr {
	const (
		iocRead  = 2
		dirShift = 30
		sizShift = 16
		typShift = 8
	)
	return uintptr(iocRead<<dirShift | int(unsafe.Sizeof(absInfo{}))<<sizShift | int('E')<<typShift | (0x40 + int(abs)))
}

func axisRange(fd uintptr, abs uint16) (AxisRange, error) {
	var info absInfo
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgabs(abs), uintptr(unsafe.Pointer(&info))); errno != 0 {
		return AxisRange{}, fmt.Errorf("EVIOCGABS %#x: %w", abs, errno)
	}
	r := AxisRange{Min: info.Minimum, Max: info.Maximum}
	if r.Max <= r.Min {
		return AxisRange{}, fmt.Errorf("%w: axis %#x [%d, %d]", ErrInvalidRange, abs, r.Min, r.Max)
	}
	return r, nil
}

// IsTouchpad reports whether a capability set describes a multitouch
// touchpad: BTN_TOUCH plus multitouch positions.
func IsTouchpad(caps map[evdev.CapabilityType][]evdev.CapabilityCode) bool {
	var touch, mtX, mtY bool
	for typ, codes := range caps {
		for _, c := range codes {
			switch {
			case typ.Type == evdev.EV_KEY && c.Code == evdev.BTN_TOUCH:
				touch = true
			case typ.Type == evdev.EV_ABS && c.Code == evdev.ABS_MT_POSITION_X:
				mtX = true
			case typ.Type == evdev.EV_ABS && c.Code == evdev.ABS_MT_POSITION_Y:
				mtY = true
			}
		}
	}
	return touch && mtX && mtY
}

// Source streams frames from one touchpad.
type Source struct {
	path   string
	logger logger.Logger
}

// Option applies a configuration option to the Source.
type Option func(*Source)

// WithDevice pins the device node instead of discovering one.
func WithDevice(path string) Option {
	return func(s *Source) {
		s.path = path
	}
}

// WithLogger sets the source logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Source.
func New(opts ...Option) *Source {
	s := &Source{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover returns the device node of the first touchpad.
func Discover() (string, error) {
	devices, err := evdev.ListInputDevices()
	if err != nil {
		return "", fmt.Errorf("list input devices: %w", err)
	}
	for _, d := range devices {
		if IsTouchpad(d.Capabilities) {
			return d.Fn, nil
		}
	}
	return "", ErrNoTouchpad
}

// Frames opens the touchpad and streams its frames until ctx is done or the
// device fails. The channel is closed when reading stops.
func (s *Source) Frames(ctx context.Context) (<-chan model.Frame, error) {
	path := s.path
	if path == "" {
		found, err := Discover()
		if err != nil {
			return nil, err
		}
		path = found
	}

	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !IsTouchpad(dev.Capabilities) {
		_ = dev.File.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotTouchpad, path)
	}

	fd := dev.File.Fd()
	xr, err := axisRange(fd, evdev.ABS_MT_POSITION_X)
	if err != nil {
		_ = dev.File.Close()
		return nil, err
	}
	yr, err := axisRange(fd, evdev.ABS_MT_POSITION_Y)
	if err != nil {
		_ = dev.File.Close()
		return nil, err
	}

	s.logger.Info(ctx, "touchpad opened",
		logger.String("device", path),
		logger.String("name", dev.Name),
		logger.Any("x", xr),
		logger.Any("y", yr),
	)

	out := make(chan model.Frame, frameBuffer)
	go s.read(ctx, dev, NewAssembler(xr, yr), out)
	return out, nil
}

func (s *Source) read(ctx context.Context, dev *evdev.InputDevice, asm *Assembler, out chan<- model.Frame) {
	defer close(out)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		// Unblocks Read.
		_ = dev.File.Close()
	}()

	for {
		events, err := dev.Read()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error(ctx, "touchpad read failed", logger.Error(err))
			}
			return
		}
		for _, ev := range events {
			frame, ok := asm.Feed(ev.Type, ev.Code, ev.Value, time.Unix(0, ev.Time.Nano()))
			if !ok {
				continue
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}
