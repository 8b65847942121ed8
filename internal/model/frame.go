package model

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Frame is one classical CAN frame as seen by the interlock: the bus it was
// received on (or is destined for), its identifier and up to 8 payload bytes.
type Frame struct {
	Bus  uint8   `json:"bus"`
	Addr uint32  `json:"addr"`
	Len  uint8   `json:"len"`
	Data [8]byte `json:"data"`
}

// Validation limits.
const (
	MaxBus     = 3
	MaxStdAddr = 0x7FF
	MaxExtAddr = 0x1FFFFFFF
	MaxDataLen = 8
)

var (
	ErrInvalidAddr = errors.New("model: invalid CAN address")
	ErrInvalidLen  = errors.New("model: invalid data length")
	ErrInvalidBus  = errors.New("model: invalid bus index")
)

// Validate returns an error if the frame cannot exist on a classical CAN bus.
func (f Frame) Validate() error {
	if f.Len > MaxDataLen {
		return ErrInvalidLen
	}
	if f.Addr > MaxExtAddr {
		return ErrInvalidAddr
	}
	if f.Bus > MaxBus {
		return ErrInvalidBus
	}
	return nil
}

// Extended reports whether the address needs a 29-bit identifier.
func (f Frame) Extended() bool {
	return f.Addr > MaxStdAddr
}

// Payload returns the meaningful bytes of the frame.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

// Byte returns payload byte i, or 0 when i is outside the frame length.
func (f Frame) Byte(i int) byte {
	if i < 0 || i >= int(f.Len) || i >= MaxDataLen {
		return 0
	}
	return f.Data[i]
}

// NewFrame builds a frame on the given bus from a payload slice.
func NewFrame(bus uint8, addr uint32, data []byte) (Frame, error) {
	if len(data) > MaxDataLen {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{Bus: bus, Addr: addr, Len: uint8(len(data))}
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// MustFrame is NewFrame that panics on invalid input. Intended for tests and tables.
func MustFrame(bus uint8, addr uint32, data []byte) Frame {
	f, err := NewFrame(bus, addr, data)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseHexFrame builds a frame from a hex payload string such as "0005000000000000".
// Spaces are ignored.
func ParseHexFrame(bus uint8, addr uint32, payload string) (Frame, error) {
	raw, err := hex.DecodeString(strings.ReplaceAll(payload, " ", ""))
	if err != nil {
		return Frame{}, fmt.Errorf("model: decode payload %q: %w", payload, err)
	}
	return NewFrame(bus, addr, raw)
}

// HexData renders the payload as lowercase hex.
func (f Frame) HexData() string {
	return hex.EncodeToString(f.Payload())
}

// String renders the frame in candump compact form prefixed by its bus, e.g. "0:399#0005000000000000".
func (f Frame) String() string {
	if f.Extended() {
		return fmt.Sprintf("%d:%08X#%s", f.Bus, f.Addr, strings.ToUpper(f.HexData()))
	}
	return fmt.Sprintf("%d:%03X#%s", f.Bus, f.Addr, strings.ToUpper(f.HexData()))
}

// ParseFrame is the inverse of String: "BUS:ADDR#DATA" with a hex address.
// The "BUS:" prefix is optional and defaults to bus 0.
func ParseFrame(s string) (Frame, error) {
	s = strings.TrimSpace(s)
	var bus uint64
	if i := strings.IndexByte(s, ':'); i >= 0 {
		n, err := strconv.ParseUint(s[:i], 10, 8)
		if err != nil {
			return Frame{}, fmt.Errorf("model: frame %q: bus: %w", s, ErrInvalidBus)
		}
		bus = n
		s = s[i+1:]
	}
	id, payload, ok := strings.Cut(s, "#")
	if !ok {
		return Frame{}, fmt.Errorf("model: frame %q: missing '#'", s)
	}
	addr, err := strconv.ParseUint(id, 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("model: frame %q: %w", s, ErrInvalidAddr)
	}
	return ParseHexFrame(uint8(bus), uint32(addr), payload)
}
