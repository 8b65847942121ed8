package limits

// Violations records which primitive checks rejected a candidate value.
// The zero value means the value passed every check.
type Violations struct {
	MaxValue bool
	Rate     bool
	Error    bool
	RTDelta  bool
}

// Any reports whether at least one check failed.
func (v Violations) Any() bool {
	return v.MaxValue || v.Rate || v.Error || v.RTDelta
}

// String lists failed checks, for diagnostics only.
func (v Violations) String() string {
	s := ""
	add := func(name string) {
		if s != "" {
			s += ","
		}
		s += name
	}
	if v.MaxValue {
		add("max_value")
	}
	if v.Rate {
		add("rate")
	}
	if v.Error {
		add("error")
	}
	if v.RTDelta {
		add("rt_delta")
	}
	if s == "" {
		return "none"
	}
	return s
}

// MaxLimitViolated reports |v| > max.
func MaxLimitViolated(v, max int) bool {
	return v > max || v < -max
}

// RateViolated checks the per-cycle ramp against the last applied value.
// Moving away from zero (or across it) is bounded by up; moving toward zero
// is bounded by down.
func RateViolated(v, last, up, down int) bool {
	highest := maxInt(last, 0) + up
	lowest := minInt(last, 0) - up
	if last > 0 {
		lowest = maxInt(lowest, last-down)
	}
	if last < 0 {
		highest = minInt(highest, last+down)
	}
	return v < lowest || v > highest
}

// ErrorViolated reports |v - measured| > maxErr.
func ErrorViolated(v, measured, maxErr int) bool {
	d := v - measured
	if d < 0 {
		d = -d
	}
	return d > maxErr
}

// RTViolated checks the cumulative change since the real-time checkpoint.
func RTViolated(v, checkpoint, maxDelta int) bool {
	highest := maxInt(checkpoint, 0) + maxDelta
	lowest := minInt(checkpoint, 0) - maxDelta
	return v < lowest || v > highest
}

// CheckTorque evaluates all four primitives for a candidate value. The
// tracker's real-time window is rolled first; the applied value is only
// recorded when every check passes, otherwise the previous value is kept.
// A policy without limits only accepts zero.
func CheckTorque(v, measured int, l TorqueLimits, t *Tracker, now uint32) Violations {
	if !l.HasLimits() {
		if v != 0 {
			return Violations{MaxValue: true}
		}
		t.Reset(now)
		return Violations{}
	}
	t.Roll(now, l.RTInterval)

	viol := Violations{
		MaxValue: MaxLimitViolated(v, l.MaxValue),
		Rate:     RateViolated(v, t.Last, l.MaxRateUp, l.MaxRateDown),
		Error:    ErrorViolated(v, measured, l.MaxError),
		RTDelta:  RTViolated(v, t.RTCheckpoint, l.MaxRTDelta),
	}
	if !viol.Any() {
		t.Accept(v, now)
	}
	return viol
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
