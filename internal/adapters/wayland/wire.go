package wayland

import (
	"encoding/binary"
	"fmt"
	"io"
)

const headerSize = 8

type message struct {
	object  uint32
	opcode  uint16
	payload []byte
}

// writeMessage encodes a request: object id, then size<<16 | opcode, then
// the payload, all little endian.
func writeMessage(w io.Writer, object uint32, opcode uint16, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], object)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf))<<16|uint32(opcode))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

func readMessage(r io.Reader) (message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return message{}, err
	}
	word := binary.LittleEndian.Uint32(hdr[4:8])
	size := int(word >> 16)
	if size < headerSize {
		return message{}, fmt.Errorf("%w: message size %d", ErrProtocol, size)
	}
	m := message{
		object:  binary.LittleEndian.Uint32(hdr[0:4]),
		opcode:  uint16(word & 0xffff),
		payload: make([]byte, size-headerSize),
	}
	if _, err := io.ReadFull(r, m.payload); err != nil {
		return message{}, err
	}
	return m, nil
}

func padded(n int) int { return (n + 3) &^ 3 }

func putUint(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// putString appends a length-prefixed, NUL terminated, 4-byte padded string.
func putString(b []byte, s string) []byte {
	b = putUint(b, uint32(len(s)+1))
	b = append(b, s...)
	for i := len(s); i < padded(len(s)+1); i++ {
		b = append(b, 0)
	}
	return b
}

// putArray appends a length-prefixed, 4-byte padded byte array.
func putArray(b []byte, a []byte) []byte {
	b = putUint(b, uint32(len(a)))
	b = append(b, a...)
	for i := len(a); i < padded(len(a)); i++ {
		b = append(b, 0)
	}
	return b
}

func getUint(p []byte) (uint32, []byte, error) {
	if len(p) < 4 {
		return 0, nil, fmt.Errorf("%w: short uint", ErrProtocol)
	}
	return binary.LittleEndian.Uint32(p), p[4:], nil
}

func getString(p []byte) (string, []byte, error) {
	n, rest, err := getUint(p)
	if err != nil {
		return "", nil, err
	}
	if n == 0 {
		return "", rest, nil
	}
	if int(n) > len(rest) || padded(int(n)) > len(rest) {
		return "", nil, fmt.Errorf("%w: string of %d bytes", ErrProtocol, n)
	}
	return string(rest[:n-1]), rest[padded(int(n)):], nil
}

func getArray(p []byte) ([]byte, []byte, error) {
	n, rest, err := getUint(p)
	if err != nil {
		return nil, nil, err
	}
	if padded(int(n)) > len(rest) {
		return nil, nil, fmt.Errorf("%w: array of %d bytes", ErrProtocol, n)
	}
	return rest[:n], rest[padded(int(n)):], nil
}
