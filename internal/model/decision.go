package model

// Decision is the recorded outcome of a hook call.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// DecisionOf maps a boolean hook result to a Decision.
func DecisionOf(ok bool) Decision {
	if ok {
		return Allow
	}
	return Deny
}

// HookKind names the interlock entry point that produced a decision.
type HookKind string

const (
	HookRx    HookKind = "rx"
	HookTx    HookKind = "tx"
	HookTxLin HookKind = "tx_lin"
	HookFwd   HookKind = "fwd"
)

// NoForward is the Forward hook sentinel meaning "do not relay".
const NoForward = -1
