package dispatch

import (
	"testing"

	"github.com/ppiankov/cangate/internal/config"
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
	"github.com/ppiankov/cangate/internal/safety/mitsubishi"
)

func TestTableCoversEveryMode(t *testing.T) {
	table := NewTable(Options{})
	for _, m := range safety.Modes() {
		h, err := table.Lookup(m)
		if err != nil {
			t.Fatalf("mode %s: %v", m, err)
		}
		if h == nil {
			t.Fatalf("mode %s: nil hooks", m)
		}
	}
}

func TestFactoriesReturnFreshHooks(t *testing.T) {
	table := NewTable(Options{})
	a, _ := table.Lookup(safety.ModeMitsubishi)
	b, _ := table.Lookup(safety.ModeMitsubishi)
	if a == b {
		t.Fatal("each lookup must produce independent hooks")
	}
}

// Classification property: for every variant, frames outside the allow-list
// are denied even when engaged and longitudinal control is permitted.
func TestUnlistedFramesDeniedForEveryMode(t *testing.T) {
	for _, m := range safety.Modes() {
		t.Run(m.String(), func(t *testing.T) {
			now := uint32(0)
			il := safety.NewInterlock(NewTable(Options{}), safety.WithClock(func() uint32 { return now }))
			if err := il.SetSafetyMode(m, 0); err != nil {
				t.Fatal(err)
			}
			il.Rx(mitsubishi.EncodeACCStatus(false))
			il.Rx(mitsubishi.EncodeACCStatus(true))
			for addr := uint32(0x100); addr < 0x800; addr += 0x11 {
				f := model.MustFrame(0, addr, make([]byte, 8))
				if m == safety.ModeMitsubishi && (addr == mitsubishi.AddrLKASCommand || addr == mitsubishi.AddrInterceptorCommand) {
					continue
				}
				now += 10000
				if il.Tx(f, true) {
					t.Fatalf("%s: expected %s denied", m, f)
				}
			}
		})
	}
}

// Every variant denies torque beyond the absolute bound.
func TestOverLimitTorqueDeniedForEveryMode(t *testing.T) {
	for _, m := range safety.Modes() {
		now := uint32(0)
		il := safety.NewInterlock(NewTable(Options{}), safety.WithClock(func() uint32 { return now }))
		if err := il.SetSafetyMode(m, 0); err != nil {
			t.Fatal(err)
		}
		il.Rx(mitsubishi.EncodeACCStatus(false))
		for _, v := range []int16{1501, -1501, 1600, 32767, -32768} {
			now += 10000
			if il.Tx(mitsubishi.EncodeLKAS(v, 0, 0), false) {
				t.Fatalf("%s: torque %d allowed", m, v)
			}
		}
	}
}

func TestNewInterlockFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = "mitsubishi"
	cfg.Param = 50
	cfg.Variants.Mitsubishi.Engagement = "cruise_edge"

	il, err := NewInterlock(cfg)
	if err != nil {
		t.Fatalf("NewInterlock: %v", err)
	}
	if il.Mode() != safety.ModeMitsubishi || il.Param() != 50 {
		t.Fatalf("unexpected mode/param %s/%d", il.Mode(), il.Param())
	}
	il.Rx(mitsubishi.EncodeACCStatus(true))
	if il.ControlsAllowed() {
		t.Fatal("cruise_edge option must be honoured")
	}
}
