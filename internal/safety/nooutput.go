package safety

import "github.com/ppiankov/cangate/internal/model"

// NoOutput is the default variant: it listens to everything and lets
// nothing out.
type NoOutput struct{}

func (NoOutput) Init(int16) *AddrChecks { return nil }

func (NoOutput) Rx(*RxState, model.Frame) bool { return true }

func (NoOutput) Tx(*TxState, model.Frame, bool) bool { return false }

func (NoOutput) TxLin(*TxState, int, []byte) bool { return false }

func (NoOutput) Fwd(int, model.Frame) int { return model.NoForward }
