// Package mitsubishi implements the safety variant for the Mitsubishi
// Outlander platform.
package mitsubishi

import (
	"fmt"

	"github.com/ppiankov/cangate/internal/limits"
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
)

// Steering torque limits. Commands are sent at 100Hz.
const (
	MaxTorque      = 1500
	MaxRateUp      = 10
	MaxRateDown    = 25
	MaxTorqueError = 350
	MaxRTDelta     = 375
	RTInterval     = 250000
)

// GasInterceptorThr is the averaged pedal reading above which gas counts
// as pressed.
const GasInterceptorThr = 845

// DefaultTorqueFactor is the EPS torque scale in percent used when Init
// gets a non-positive parameter.
const DefaultTorqueFactor = 100

// CAN addresses.
const (
	AddrWheelSpeeds         = 0xAA
	AddrInterceptorFeedback = 0x201
	AddrBrake               = 0x1D2
	AddrGear1               = 0x224
	AddrGear2               = 0x226
	AddrACCStatus           = 0x240
	AddrEPSTorque           = 0x260
	AddrLKASCommand         = 0x399
	AddrInterceptorCommand  = 0x3B6
)

// Limits is the steering torque policy.
var Limits = limits.TorqueLimits{
	MaxValue:    MaxTorque,
	MaxRateUp:   MaxRateUp,
	MaxRateDown: MaxRateDown,
	MaxError:    MaxTorqueError,
	MaxRTDelta:  MaxRTDelta,
	RTInterval:  RTInterval,
}

// TxMsgs is the transmit allow-list.
var TxMsgs = []safety.CanMsg{
	{Addr: AddrLKASCommand, Bus: 0, Len: 8},
}

// InterceptorMsg is the pedal interceptor channel, allowed outside TxMsgs.
var InterceptorMsg = safety.CanMsg{Addr: AddrInterceptorCommand, Bus: 0, Len: 8}

// Engagement selects how controls are granted.
type Engagement string

const (
	// EngageAlways grants controls on every received frame.
	EngageAlways Engagement = "always"
	// EngageCruiseEdge engages on the rising edge of ACC_STATUS cruise.
	EngageCruiseEdge Engagement = "cruise_edge"
)

// ParseEngagement validates an engagement name. Empty means EngageAlways.
func ParseEngagement(s string) (Engagement, error) {
	switch Engagement(s) {
	case "", EngageAlways:
		return EngageAlways, nil
	case EngageCruiseEdge:
		return EngageCruiseEdge, nil
	}
	return "", fmt.Errorf("mitsubishi: unknown engagement %q", s)
}

// Options tunes the variant.
type Options struct {
	Engagement Engagement
	// AddrChecks enables rx checksum and liveness rules.
	AddrChecks bool
}

// Hooks is the Mitsubishi safety variant.
type Hooks struct {
	opts         Options
	torqueFactor int
}

// New returns variant hooks with opts.
func New(opts Options) *Hooks {
	if opts.Engagement == "" {
		opts.Engagement = EngageAlways
	}
	return &Hooks{opts: opts, torqueFactor: DefaultTorqueFactor}
}

// Factory returns a dispatch factory producing fresh hooks per interlock.
func Factory(opts Options) safety.Factory {
	return func() safety.Hooks { return New(opts) }
}

// RxChecks returns a fresh copy of the rx validity rules.
func RxChecks() *safety.AddrChecks {
	return &safety.AddrChecks{
		Checks: []safety.AddrCheck{
			safety.NewAddrCheck(safety.MsgCheck{Addr: AddrWheelSpeeds, Bus: 0, Len: 8, ExpectedTimestep: 12000}),
			safety.NewAddrCheck(safety.MsgCheck{Addr: AddrEPSTorque, Bus: 0, Len: 8, CheckChecksum: true, ExpectedTimestep: 20000}),
			safety.NewAddrCheck(safety.MsgCheck{Addr: AddrBrake, Bus: 0, Len: 8, CheckChecksum: true, ExpectedTimestep: 30000}),
			safety.NewAddrCheck(
				safety.MsgCheck{Addr: AddrGear1, Bus: 0, Len: 8, ExpectedTimestep: 25000},
				safety.MsgCheck{Addr: AddrGear2, Bus: 0, Len: 8, ExpectedTimestep: 25000},
			),
		},
		Checksum: Checksum,
		Received: ReceivedChecksum,
	}
}

func (h *Hooks) Init(param int16) *safety.AddrChecks {
	h.torqueFactor = int(param)
	if h.torqueFactor <= 0 {
		h.torqueFactor = DefaultTorqueFactor
	}
	if !h.opts.AddrChecks {
		return nil
	}
	return RxChecks()
}

func (h *Hooks) Rx(s *safety.RxState, f model.Frame) bool {
	if h.opts.Engagement == EngageAlways {
		s.AllowControls(true)
	}
	if f.Bus != 0 {
		return true
	}

	switch f.Addr {
	case AddrACCStatus:
		if h.opts.Engagement == EngageCruiseEdge {
			s.UpdateCruise(CruiseEngaged(f))
		}
	case AddrEPSTorque:
		s.SetMeasuredTorque(EPSTorque(f, h.torqueFactor))
	case AddrInterceptorFeedback:
		s.SetGasInterceptorDetected()
		s.SetGasPressed(InterceptorGas(f) > GasInterceptorThr)
	case AddrLKASCommand:
		// Our own command coming from the car side: the stock camera is
		// still connected.
		s.DetectStockECU()
	}
	return true
}

func (h *Hooks) Tx(s *safety.TxState, f model.Frame, longitudinalAllowed bool) bool {
	if InterceptorMsg.Matches(f) {
		if InterceptorGas(f) == 0 {
			return true
		}
		return longitudinalAllowed && s.ControlsAllowed() && s.GasInterceptorDetected()
	}
	if !safety.MsgAllowed(f, TxMsgs) {
		return false
	}
	if f.Addr == AddrLKASCommand {
		return s.CheckTorque(LKASTorque(f), Limits)
	}
	return true
}

func (h *Hooks) TxLin(*safety.TxState, int, []byte) bool { return false }

func (h *Hooks) Fwd(int, model.Frame) int { return model.NoForward }
