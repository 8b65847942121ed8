package limits

// TorqueLimits is the immutable numeric policy of one actuator, in the
// actuator's native command units. Ramp up is deliberately slower than
// ramp down so the system can de-actuate faster than it can actuate.
type TorqueLimits struct {
	MaxValue    int    `yaml:"max_value"     json:"max_value"`
	MaxRateUp   int    `yaml:"max_rate_up"   json:"max_rate_up"`
	MaxRateDown int    `yaml:"max_rate_down" json:"max_rate_down"`
	MaxError    int    `yaml:"max_error"     json:"max_error"`
	MaxRTDelta  int    `yaml:"max_rt_delta"  json:"max_rt_delta"`
	RTInterval  uint32 `yaml:"rt_interval_us" json:"rt_interval_us"`
}

// HasLimits returns true if the policy can permit any non-zero value.
// A zero policy denies every non-zero command.
func (l TorqueLimits) HasLimits() bool {
	return l.MaxValue > 0 && l.MaxRateUp > 0 && l.MaxRTDelta > 0 && l.RTInterval > 0
}
