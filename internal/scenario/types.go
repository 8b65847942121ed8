package scenario

// Step is one timed interlock call. At most one of Rx, Tx, Fwd, Init and
// Relay is set; a step with none of them only asserts state.
type Step struct {
	// AtUS sets the clock to an absolute microsecond timestamp.
	AtUS *uint32 `yaml:"at_us,omitempty"`
	// AfterUS advances the clock, wrapping at 2^32.
	AfterUS uint32 `yaml:"after_us,omitempty"`

	Rx           string `yaml:"rx,omitempty"`
	Tx           string `yaml:"tx,omitempty"`
	Longitudinal bool   `yaml:"longitudinal,omitempty"`
	Fwd          string `yaml:"fwd,omitempty"`
	Init         *int16 `yaml:"init,omitempty"`
	Relay        bool   `yaml:"relay,omitempty"`

	// Expect is "allow" or "deny" for rx and tx steps.
	Expect string `yaml:"expect,omitempty"`
	// ExpectDest is the forwarding destination, -1 for none.
	ExpectDest     *int  `yaml:"expect_dest,omitempty"`
	ExpectControls *bool `yaml:"expect_controls,omitempty"`
	ExpectRelay    *bool `yaml:"expect_relay,omitempty"`
	// ExpectApplied is the last applied torque after the step.
	ExpectApplied *int `yaml:"expect_applied,omitempty"`
}

// Scenario is a named sequence of steps against one safety mode.
type Scenario struct {
	Name       string `yaml:"name"`
	Mode       string `yaml:"mode"`
	Param      int16  `yaml:"param,omitempty"`
	Engagement string `yaml:"engagement,omitempty"`
	AddrChecks bool   `yaml:"addr_checks,omitempty"`
	Steps      []Step `yaml:"steps"`
}

// StepResult is the outcome of one assertion.
type StepResult struct {
	Index    int    `json:"index"`
	At       uint32 `json:"at_us"`
	Call     string `json:"call"`
	Frame    string `json:"frame,omitempty"`
	Check    string `json:"check"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// RunResult is the outcome of running one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Mode   string       `json:"mode"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Steps  []StepResult `json:"steps"`
}
