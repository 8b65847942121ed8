// Package dispatch builds the safety mode table from configuration.
package dispatch

import (
	"github.com/ppiankov/cangate/internal/config"
	"github.com/ppiankov/cangate/internal/safety"
	"github.com/ppiankov/cangate/internal/safety/mitsubishi"
)

// Options carries per-variant tuning.
type Options struct {
	Mitsubishi mitsubishi.Options
}

// OptionsFrom extracts variant options from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{Mitsubishi: cfg.MitsubishiOptions()}
}

// NewTable returns the table of every supported variant.
func NewTable(opts Options) safety.Table {
	return safety.Table{
		safety.ModeNoOutput:   func() safety.Hooks { return safety.NoOutput{} },
		safety.ModeMitsubishi: mitsubishi.Factory(opts.Mitsubishi),
	}
}

// NewInterlock builds an interlock for cfg and selects the configured mode.
func NewInterlock(cfg *config.Config, opts ...safety.Option) (*safety.Interlock, error) {
	il := safety.NewInterlock(NewTable(OptionsFrom(cfg)), opts...)
	if err := il.SetSafetyMode(cfg.SafetyMode(), cfg.Param); err != nil {
		return il, err
	}
	return il, nil
}
