package safety

import "github.com/ppiankov/cangate/internal/model"

// CanMsg is one entry of a variant's transmit allow-list.
type CanMsg struct {
	Addr uint32 `json:"addr"`
	Bus  uint8  `json:"bus"`
	Len  uint8  `json:"len"`
}

// Matches reports whether the frame has exactly this address, bus and length.
func (m CanMsg) Matches(f model.Frame) bool {
	return f.Addr == m.Addr && f.Bus == m.Bus && f.Len == m.Len
}

// MsgAllowed reports whether the frame's (bus, address, length) appears in table.
func MsgAllowed(f model.Frame, table []CanMsg) bool {
	for _, m := range table {
		if m.Matches(f) {
			return true
		}
	}
	return false
}
