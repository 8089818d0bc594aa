package wayland

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/hypeedev/gest/internal/domain/model"
)

// compositor plays the server side of the connection in tests.
type compositor struct {
	conn net.Conn
}

func (c *compositor) expect(object uint32, opcode uint16) message {
	m, err := readMessage(c.conn)
	So(err, ShouldBeNil)
	So(m.object, ShouldEqual, object)
	So(m.opcode, ShouldEqual, opcode)
	return m
}

func (c *compositor) send(object uint32, opcode uint16, payload []byte) {
	So(writeMessage(c.conn, object, opcode, payload), ShouldBeNil)
}

func global(name uint32, iface string, version uint32) []byte {
	p := putUint(nil, name)
	p = putString(p, iface)
	return putUint(p, version)
}

func states(s ...uint32) []byte {
	var a []byte
	for _, v := range s {
		a = putUint(a, v)
	}
	return putArray(nil, a)
}

func TestWire(t *testing.T) {
	Convey("Given the wire encoding", t, func() {
		Convey("messages round trip with the size in the header", func() {
			var buf bytes.Buffer
			payload := putString(nil, "firefox")
			So(writeMessage(&buf, 7, 3, payload), ShouldBeNil)
			So(buf.Len(), ShouldEqual, headerSize+4+8)

			m, err := readMessage(&buf)
			So(err, ShouldBeNil)
			So(m.object, ShouldEqual, 7)
			So(m.opcode, ShouldEqual, 3)
			s, rest, err := getString(m.payload)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, "firefox")
			So(rest, ShouldBeEmpty)
		})

		Convey("strings are NUL terminated and padded to four bytes", func() {
			b := putString(nil, "abc")
			So(b, ShouldResemble, []byte{4, 0, 0, 0, 'a', 'b', 'c', 0})
			b = putString(nil, "abcd")
			So(len(b), ShouldEqual, 4+8)
		})

		Convey("an empty string decodes from a zero length", func() {
			s, _, err := getString(putUint(nil, 0))
			So(err, ShouldBeNil)
			So(s, ShouldEqual, "")
		})

		Convey("truncated payloads are protocol errors", func() {
			_, _, err := getString([]byte{9, 0, 0, 0, 'a'})
			So(errors.Is(err, ErrProtocol), ShouldBeTrue)
			_, _, err = getUint([]byte{1})
			So(errors.Is(err, ErrProtocol), ShouldBeTrue)
		})

		Convey("a header smaller than itself is rejected", func() {
			var buf bytes.Buffer
			buf.Write([]byte{1, 0, 0, 0, 0, 0, 4, 0})
			_, err := readMessage(&buf)
			So(errors.Is(err, ErrProtocol), ShouldBeTrue)
		})

		Convey("state arrays are scanned for the activated state", func() {
			a, _, err := getArray(states(0, 2))
			So(err, ShouldBeNil)
			So(hasState(a, stateActivated), ShouldBeTrue)
			a, _, _ = getArray(states(1))
			So(hasState(a, stateActivated), ShouldBeFalse)
		})
	})
}

func TestTrack(t *testing.T) {
	Convey("Given a tracker talking to a fake compositor", t, func() {
		client, server := net.Pipe()
		defer client.Close()
		defer server.Close()

		windows := make(chan model.Window, 8)
		done := make(chan error, 1)
		go func() {
			done <- New().Track(context.Background(), client, func(w model.Window) { windows <- w })
		}()
		c := &compositor{conn: server}

		c.expect(displayID, displayGetRegistry)
		c.expect(displayID, displaySync)

		Convey("it binds the manager and reports the activated toplevel", func() {
			c.send(registryID, registryGlobal, global(1, "wl_compositor", 5))
			c.send(registryID, registryGlobal, global(9, managerInterface, 3))
			bindReq := c.expect(registryID, registryBind)
			name, rest, err := getUint(bindReq.payload)
			So(err, ShouldBeNil)
			So(name, ShouldEqual, 9)
			iface, rest, err := getString(rest)
			So(err, ShouldBeNil)
			So(iface, ShouldEqual, managerInterface)
			_, rest, _ = getUint(rest)
			id, _, _ := getUint(rest)
			So(id, ShouldEqual, managerID)

			const handle uint32 = 0xff000001
			c.send(managerID, managerToplevel, putUint(nil, handle))
			c.send(handle, handleAppID, putString(nil, "firefox"))
			c.send(handle, handleTitle, putString(nil, "Mozilla Firefox"))
			c.send(handle, handleState, states(stateActivated))
			c.send(handle, handleDone, nil)

			select {
			case w := <-windows:
				So(w, ShouldResemble, model.Window{Class: "firefox", Title: "Mozilla Firefox"})
			case <-time.After(time.Second):
				So("no window reported", ShouldBeEmpty)
			}

			Convey("an inactive toplevel does not change focus", func() {
				const other uint32 = 0xff000002
				c.send(managerID, managerToplevel, putUint(nil, other))
				c.send(other, handleAppID, putString(nil, "kitty"))
				c.send(other, handleState, states())
				c.send(other, handleDone, nil)

				c.send(handle, handleClosed, nil)
				select {
				case w := <-windows:
					So(w, ShouldResemble, model.Window{})
				case <-time.After(time.Second):
					So("no window reported", ShouldBeEmpty)
				}
			})

			Convey("manager finish ends tracking", func() {
				c.send(managerID, managerFinished, nil)
				So(errors.Is(<-done, ErrFinished), ShouldBeTrue)
			})
		})

		Convey("it fails when the interface is not offered", func() {
			c.send(registryID, registryGlobal, global(1, "wl_compositor", 5))
			c.send(callbackID, 0, putUint(nil, 1))
			So(errors.Is(<-done, ErrInterfaceMissing), ShouldBeTrue)
		})

		Convey("display errors surface as protocol errors", func() {
			p := putUint(nil, displayID)
			p = putUint(p, 1)
			p = putString(p, "invalid method")
			c.send(displayID, displayError, p)
			err := <-done
			So(errors.Is(err, ErrProtocol), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "invalid method")
		})
	})
}

func TestSocketPath(t *testing.T) {
	Convey("Given the Wayland environment", t, func() {
		Convey("a relative display joins the runtime dir", func() {
			t.Setenv("WAYLAND_DISPLAY", "wayland-1")
			t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
			p, err := SocketPath()
			So(err, ShouldBeNil)
			So(p, ShouldEqual, "/run/user/1000/wayland-1")
		})

		Convey("an absolute display is used as is", func() {
			t.Setenv("WAYLAND_DISPLAY", "/tmp/wl.sock")
			p, err := SocketPath()
			So(err, ShouldBeNil)
			So(p, ShouldEqual, "/tmp/wl.sock")
		})

		Convey("a missing display is an error", func() {
			t.Setenv("WAYLAND_DISPLAY", "")
			_, err := SocketPath()
			So(errors.Is(err, ErrNoDisplay), ShouldBeTrue)
		})
	})
}
