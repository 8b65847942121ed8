package safety

import "github.com/ppiankov/cangate/internal/limits"

// State is the engagement state of one interlock instance. Fields are only
// reachable through RxState (engagement mutators) and TxState (read access
// plus the applied-value tracker).
type State struct {
	controlsAllowed        bool
	cruiseEngagedPrev      bool
	cruiseSeen             bool
	relayMalfunction       bool
	gasInterceptorDetected bool
	gasPressed             bool
	measuredTorque         int
	torque                 limits.Tracker
	lastViolations         limits.Violations
}

func (s *State) reset(now uint32) {
	*s = State{}
	s.torque.Reset(now)
}

// Snapshot is a copy of the engagement state for reporting.
type Snapshot struct {
	ControlsAllowed        bool           `json:"controls_allowed"`
	CruiseEngagedPrev      bool           `json:"cruise_engaged_prev"`
	RelayMalfunction       bool           `json:"relay_malfunction"`
	GasInterceptorDetected bool           `json:"gas_interceptor_detected"`
	GasPressed             bool           `json:"gas_pressed"`
	MeasuredTorque         int            `json:"measured_torque"`
	Torque                 limits.Tracker `json:"torque"`
	LastViolations         string         `json:"last_violations"`
}

func (s *State) snapshot() Snapshot {
	return Snapshot{
		ControlsAllowed:        s.controlsAllowed,
		CruiseEngagedPrev:      s.cruiseEngagedPrev,
		RelayMalfunction:       s.relayMalfunction,
		GasInterceptorDetected: s.gasInterceptorDetected,
		GasPressed:             s.gasPressed,
		MeasuredTorque:         s.measuredTorque,
		Torque:                 s.torque,
		LastViolations:         s.lastViolations.String(),
	}
}

// RxState is the view of State handed to Rx hooks. It is the only place
// engagement can change outside Init.
type RxState struct {
	s   *State
	now uint32
}

// Now is the hook-call timestamp in microseconds.
func (r *RxState) Now() uint32 { return r.now }

// ControlsAllowed reports the current engagement.
func (r *RxState) ControlsAllowed() bool { return r.s.controlsAllowed }

// UpdateCruise feeds the car's cruise-engaged signal. Controls engage on a
// rising edge and disengage whenever the signal is low. A signal that is
// already high the first time it is observed after Init does not engage.
func (r *RxState) UpdateCruise(engaged bool) {
	if engaged && r.s.cruiseSeen && !r.s.cruiseEngagedPrev {
		r.s.controlsAllowed = true
	}
	if !engaged {
		r.s.controlsAllowed = false
	}
	r.s.cruiseEngagedPrev = engaged
	r.s.cruiseSeen = true
}

// AllowControls sets engagement directly, for variants without a cruise
// signal.
func (r *RxState) AllowControls(allowed bool) { r.s.controlsAllowed = allowed }

// SetMeasuredTorque records the torque reported by the steering actuator.
func (r *RxState) SetMeasuredTorque(v int) { r.s.measuredTorque = v }

// SetGasInterceptorDetected marks an aftermarket pedal interceptor present.
func (r *RxState) SetGasInterceptorDetected() { r.s.gasInterceptorDetected = true }

// SetGasPressed records whether the driver is pressing the accelerator.
func (r *RxState) SetGasPressed(pressed bool) { r.s.gasPressed = pressed }

// DetectStockECU asserts relay malfunction: a frame the interlock owns was
// seen coming from the car side, so the relay is not isolating it.
func (r *RxState) DetectStockECU() {
	r.s.relayMalfunction = true
	r.s.controlsAllowed = false
}

// TxState is the view of State handed to Tx hooks. Only the applied-value
// tracker can be mutated through it.
type TxState struct {
	s   *State
	now uint32
}

// Now is the hook-call timestamp in microseconds.
func (t *TxState) Now() uint32 { return t.now }

// ControlsAllowed reports the current engagement.
func (t *TxState) ControlsAllowed() bool { return t.s.controlsAllowed }

// RelayMalfunction reports whether the relay fault flag is asserted.
func (t *TxState) RelayMalfunction() bool { return t.s.relayMalfunction }

// GasInterceptorDetected reports whether a pedal interceptor was seen.
func (t *TxState) GasInterceptorDetected() bool { return t.s.gasInterceptorDetected }

// GasPressed reports the last observed accelerator state.
func (t *TxState) GasPressed() bool { return t.s.gasPressed }

// MeasuredTorque is the last torque reported by the steering actuator.
func (t *TxState) MeasuredTorque() int { return t.s.measuredTorque }

// Torque returns a copy of the applied steering torque tracker.
func (t *TxState) Torque() limits.Tracker { return t.s.torque }

// CheckTorque gates a steering torque command. While controls are not
// allowed only zero torque passes and the tracker is held at zero.
// LastViolations in the snapshot only reflects engaged evaluations.
// Otherwise every limit check must pass; the tracker advances only on
// success.
func (t *TxState) CheckTorque(v int, l limits.TorqueLimits) bool {
	if !t.s.controlsAllowed {
		t.s.torque.Reset(t.now)
		return v == 0
	}
	viol := limits.CheckTorque(v, t.s.measuredTorque, l, &t.s.torque, t.now)
	t.s.lastViolations = viol
	return !viol.Any()
}
