package safety

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/cangate/internal/model"
)

// Hooks is the capability record every vehicle variant implements. Call
// sites only ever go through this interface.
type Hooks interface {
	// Init prepares variant-local state for a new session and returns the
	// rx validity rules. A nil result accepts every frame.
	Init(param int16) *AddrChecks
	// Rx updates engagement from an inbound frame and reports validity.
	Rx(s *RxState, f model.Frame) bool
	// Tx decides whether the host may put f on the bus.
	Tx(s *TxState, f model.Frame, longitudinalAllowed bool) bool
	// TxLin decides whether the host may send a LIN frame.
	TxLin(s *TxState, lin int, data []byte) bool
	// Fwd returns the bus to relay f to, or model.NoForward.
	Fwd(bus int, f model.Frame) int
}

// Mode identifies a safety variant.
type Mode uint16

// Supported safety modes.
const (
	ModeNoOutput   Mode = 0
	ModeMitsubishi Mode = 1
)

// ErrUnknownMode is returned for a mode missing from the dispatch table.
var ErrUnknownMode = errors.New("safety: unknown safety mode")

var modeNames = map[Mode]string{
	ModeNoOutput:   "nooutput",
	ModeMitsubishi: "mitsubishi",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// ParseMode accepts a mode name or its number.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		if _, ok := modeNames[Mode(n)]; ok {
			return Mode(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Modes lists every known mode in numeric order.
func Modes() []Mode {
	out := make([]Mode, 0, len(modeNames))
	for m := range modeNames {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Factory builds a fresh Hooks value for one interlock instance.
type Factory func() Hooks

// Table is the dispatch table from mode to variant factory.
type Table map[Mode]Factory

// Lookup returns a fresh Hooks for mode. nooutput is always available.
func (t Table) Lookup(m Mode) (Hooks, error) {
	f, ok := t[m]
	if !ok || f == nil {
		if m == ModeNoOutput {
			return NoOutput{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, m)
	}
	return f(), nil
}
