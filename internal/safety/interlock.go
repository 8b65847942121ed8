package safety

import (
	"time"

	"github.com/ppiankov/cangate/internal/model"
)

// Clock returns a free-running microsecond timestamp. It may wrap.
type Clock func() uint32

// MonotonicClock returns a Clock counting microseconds since the call.
func MonotonicClock() Clock {
	start := time.Now()
	return func() uint32 {
		return uint32(time.Since(start).Microseconds())
	}
}

// Transition describes a change of controls_allowed or relay malfunction.
type Transition struct {
	TS               uint32 `json:"ts"`
	Mode             Mode   `json:"mode"`
	Cause            string `json:"cause"`
	ControlsAllowed  bool   `json:"controls_allowed"`
	RelayMalfunction bool   `json:"relay_malfunction"`
}

// Transition causes.
const (
	CauseInit  = "init"
	CauseRx    = "rx"
	CauseRelay = "relay"
)

// Counters are running totals since the interlock was created.
type Counters struct {
	RxValid    uint64 `json:"rx_valid"`
	RxInvalid  uint64 `json:"rx_invalid"`
	TxAllowed  uint64 `json:"tx_allowed"`
	TxDenied   uint64 `json:"tx_denied"`
	Forwarded  uint64 `json:"forwarded"`
	Reentrant  uint64 `json:"reentrant"`
	ModeErrors uint64 `json:"mode_errors"`
}

// Status is a point-in-time report of an interlock.
type Status struct {
	Mode       Mode         `json:"mode"`
	ModeName   string       `json:"mode_name"`
	Param      int16        `json:"param"`
	State      Snapshot     `json:"state"`
	Counters   Counters     `json:"counters"`
	AddrChecks []AddrStatus `json:"addr_checks,omitempty"`
	Lagging    bool         `json:"lagging"`
}

// Option configures an Interlock.
type Option func(*Interlock)

// WithClock overrides the timestamp source.
func WithClock(c Clock) Option {
	return func(il *Interlock) { il.clock = c }
}

// WithObserver registers a callback for engagement transitions. It runs
// after the hook that caused the change has returned.
func WithObserver(fn func(Transition)) Option {
	return func(il *Interlock) { il.observer = fn }
}

// Interlock owns one engagement state and the active variant. It is not
// safe for concurrent use; callers serialize access.
type Interlock struct {
	table    Table
	clock    Clock
	observer func(Transition)

	mode   Mode
	param  int16
	hooks  Hooks
	checks *AddrChecks
	state  State

	busy     bool
	counters Counters
}

// NewInterlock returns an interlock in nooutput mode.
func NewInterlock(table Table, opts ...Option) *Interlock {
	il := &Interlock{table: table}
	for _, opt := range opts {
		opt(il)
	}
	if il.clock == nil {
		il.clock = MonotonicClock()
	}
	il.hooks = NoOutput{}
	il.mode = ModeNoOutput
	il.Init(0)
	return il
}

// SetSafetyMode selects a variant and initializes it with param. An unknown
// mode leaves the interlock in nooutput and returns ErrUnknownMode.
func (il *Interlock) SetSafetyMode(mode Mode, param int16) error {
	hooks, err := il.table.Lookup(mode)
	if err != nil {
		il.counters.ModeErrors++
		il.mode = ModeNoOutput
		il.hooks = NoOutput{}
		il.Init(0)
		return err
	}
	il.mode = mode
	il.hooks = hooks
	il.Init(param)
	return nil
}

// Init resets engagement, the torque tracker and relay malfunction, and
// reloads the variant's rx validity rules.
func (il *Interlock) Init(param int16) {
	if il.busy {
		il.counters.Reentrant++
		return
	}
	il.busy = true
	before := il.state
	now := il.clock()
	il.state.reset(now)
	il.param = param
	il.checks = il.hooks.Init(param)
	il.busy = false
	il.notify(before, CauseInit, now, true)
}

// Rx processes an inbound frame and reports whether it passed validity
// checks. The result is informational; the frame is never dropped.
func (il *Interlock) Rx(f model.Frame) bool {
	if il.busy {
		il.counters.Reentrant++
		il.counters.RxInvalid++
		return false
	}
	il.busy = true
	before := il.state
	now := il.clock()

	valid := f.Validate() == nil && il.checks.Validate(f, now)
	if valid {
		rs := RxState{s: &il.state, now: now}
		valid = il.hooks.Rx(&rs, f)
	}
	if il.state.relayMalfunction {
		il.state.controlsAllowed = false
	}
	if valid {
		il.counters.RxValid++
	} else {
		il.counters.RxInvalid++
	}
	il.busy = false
	il.notify(before, CauseRx, now, false)
	return valid
}

// Tx decides whether the host may transmit f. Relay malfunction denies
// regardless of the variant's decision.
func (il *Interlock) Tx(f model.Frame, longitudinalAllowed bool) bool {
	if il.busy {
		il.counters.Reentrant++
		il.counters.TxDenied++
		return false
	}
	il.busy = true
	ok := false
	if f.Validate() == nil {
		ts := TxState{s: &il.state, now: il.clock()}
		ok = il.hooks.Tx(&ts, f, longitudinalAllowed)
	}
	if il.state.relayMalfunction {
		ok = false
	}
	il.count(ok)
	il.busy = false
	return ok
}

// TxLin decides whether the host may send a LIN frame.
func (il *Interlock) TxLin(lin int, data []byte) bool {
	if il.busy {
		il.counters.Reentrant++
		il.counters.TxDenied++
		return false
	}
	il.busy = true
	ts := TxState{s: &il.state, now: il.clock()}
	ok := il.hooks.TxLin(&ts, lin, data) && !il.state.relayMalfunction
	il.count(ok)
	il.busy = false
	return ok
}

// Fwd returns the bus f should be relayed to, or model.NoForward. Results
// outside the bus range or equal to the source bus are treated as no
// forward.
func (il *Interlock) Fwd(bus int, f model.Frame) int {
	if il.busy {
		il.counters.Reentrant++
		return model.NoForward
	}
	il.busy = true
	dst := il.hooks.Fwd(bus, f)
	il.busy = false
	if dst < 0 || dst > model.MaxBus || dst == bus {
		return model.NoForward
	}
	il.counters.Forwarded++
	return dst
}

// SetRelayMalfunction asserts the relay fault reported by the hardware. It
// is cleared only by Init.
func (il *Interlock) SetRelayMalfunction() {
	before := il.state
	il.state.relayMalfunction = true
	il.state.controlsAllowed = false
	il.notify(before, CauseRelay, il.clock(), false)
}

// ControlsAllowed reports the current engagement.
func (il *Interlock) ControlsAllowed() bool { return il.state.controlsAllowed }

// RelayMalfunction reports the relay fault flag.
func (il *Interlock) RelayMalfunction() bool { return il.state.relayMalfunction }

// Mode returns the active safety mode.
func (il *Interlock) Mode() Mode { return il.mode }

// Param returns the parameter passed to the last Init.
func (il *Interlock) Param() int16 { return il.param }

// Status reports state, counters and rx liveness.
func (il *Interlock) Status() Status {
	il.checks.UpdateLagging(il.clock())
	return Status{
		Mode:       il.mode,
		ModeName:   il.mode.String(),
		Param:      il.param,
		State:      il.state.snapshot(),
		Counters:   il.counters,
		AddrChecks: il.checks.Status(),
		Lagging:    il.checks.Lagging(),
	}
}

func (il *Interlock) count(ok bool) {
	if ok {
		il.counters.TxAllowed++
	} else {
		il.counters.TxDenied++
	}
}

func (il *Interlock) notify(before State, cause string, now uint32, always bool) {
	if il.observer == nil {
		return
	}
	if !always && before.controlsAllowed == il.state.controlsAllowed &&
		before.relayMalfunction == il.state.relayMalfunction {
		return
	}
	il.observer(Transition{
		TS:               now,
		Mode:             il.mode,
		Cause:            cause,
		ControlsAllowed:  il.state.controlsAllowed,
		RelayMalfunction: il.state.relayMalfunction,
	})
}
