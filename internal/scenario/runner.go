// Package scenario replays scripted frame sequences through an interlock
// with a controlled clock and checks the decisions.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/cangate/internal/dispatch"
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
	"github.com/ppiankov/cangate/internal/safety/mitsubishi"
)

// Call names.
const (
	CallRx     = "rx"
	CallTx     = "tx"
	CallFwd    = "fwd"
	CallInit   = "init"
	CallRelay  = "relay"
	CallAssert = "assert"
)

// call returns the step's interlock call.
func (st Step) call() string {
	switch {
	case st.Rx != "":
		return CallRx
	case st.Tx != "":
		return CallTx
	case st.Fwd != "":
		return CallFwd
	case st.Init != nil:
		return CallInit
	case st.Relay:
		return CallRelay
	}
	return CallAssert
}

func (st Step) frameText() string {
	switch {
	case st.Rx != "":
		return st.Rx
	case st.Tx != "":
		return st.Tx
	}
	return st.Fwd
}

// Validate checks structure, frames and the mode before running.
func (s *Scenario) Validate() error {
	var errs []error
	if _, err := safety.ParseMode(s.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := mitsubishi.ParseEngagement(s.Engagement); err != nil {
		errs = append(errs, err)
	}
	for i, st := range s.Steps {
		calls := 0
		for _, set := range []bool{st.Rx != "", st.Tx != "", st.Fwd != "", st.Init != nil, st.Relay} {
			if set {
				calls++
			}
		}
		if calls > 1 {
			errs = append(errs, fmt.Errorf("step %d: more than one call", i+1))
		}
		if txt := st.frameText(); txt != "" {
			if _, err := model.ParseFrame(txt); err != nil {
				errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
			}
		}
		switch strings.ToLower(st.Expect) {
		case "":
		case string(model.Allow), string(model.Deny):
			if c := st.call(); c != CallRx && c != CallTx {
				errs = append(errs, fmt.Errorf("step %d: expect needs rx or tx", i+1))
			}
		default:
			errs = append(errs, fmt.Errorf("step %d: expect must be allow or deny, got %q", i+1, st.Expect))
		}
		if st.ExpectDest != nil && st.call() != CallFwd {
			errs = append(errs, fmt.Errorf("step %d: expect_dest needs fwd", i+1))
		}
	}
	return errors.Join(errs...)
}

type runner struct {
	il     *safety.Interlock
	now    uint32
	result *RunResult
}

func (r *runner) check(i int, st Step, check, expected, actual string) {
	sr := StepResult{
		Index:    i + 1,
		At:       r.now,
		Call:     st.call(),
		Frame:    st.frameText(),
		Check:    check,
		Expected: expected,
		Actual:   actual,
		Passed:   expected == actual,
	}
	r.result.Total++
	if sr.Passed {
		r.result.Passed++
	} else {
		r.result.Failed++
	}
	r.result.Steps = append(r.result.Steps, sr)
}

// Run executes the scenario on a fresh interlock. Each run starts at clock
// zero. Run assumes Validate passed; frames that fail to parse are skipped.
func Run(s *Scenario) *RunResult {
	mode, _ := safety.ParseMode(s.Mode)
	engagement, _ := mitsubishi.ParseEngagement(s.Engagement)
	table := dispatch.NewTable(dispatch.Options{
		Mitsubishi: mitsubishi.Options{Engagement: engagement, AddrChecks: s.AddrChecks},
	})

	r := &runner{result: &RunResult{Name: s.Name, Mode: mode.String()}}
	r.il = safety.NewInterlock(table, safety.WithClock(func() uint32 { return r.now }))
	_ = r.il.SetSafetyMode(mode, s.Param)

	for i, st := range s.Steps {
		if st.AtUS != nil {
			r.now = *st.AtUS
		}
		r.now += st.AfterUS

		var f model.Frame
		if txt := st.frameText(); txt != "" {
			var err error
			if f, err = model.ParseFrame(txt); err != nil {
				continue
			}
		}

		var ok bool
		switch st.call() {
		case CallRx:
			ok = r.il.Rx(f)
		case CallTx:
			ok = r.il.Tx(f, st.Longitudinal)
		case CallFwd:
			dst := r.il.Fwd(int(f.Bus), f)
			if st.ExpectDest != nil {
				r.check(i, st, "dest", strconv.Itoa(*st.ExpectDest), strconv.Itoa(dst))
			}
		case CallInit:
			r.il.Init(*st.Init)
		case CallRelay:
			r.il.SetRelayMalfunction()
		}

		if st.Expect != "" {
			r.check(i, st, "decision", strings.ToLower(st.Expect), string(model.DecisionOf(ok)))
		}
		if st.ExpectControls != nil {
			r.check(i, st, "controls_allowed", strconv.FormatBool(*st.ExpectControls), strconv.FormatBool(r.il.ControlsAllowed()))
		}
		if st.ExpectRelay != nil {
			r.check(i, st, "relay_malfunction", strconv.FormatBool(*st.ExpectRelay), strconv.FormatBool(r.il.RelayMalfunction()))
		}
		if st.ExpectApplied != nil {
			applied := r.il.Status().State.Torque.Last
			r.check(i, st, "applied", strconv.Itoa(*st.ExpectApplied), strconv.Itoa(applied))
		}
	}
	return r.result
}

// Load reads and validates a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and runs it.
func LoadAndRun(path string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(s)
	result.File = path
	return result, nil
}
