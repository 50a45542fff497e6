package probe

import "fmt"

// Kind classifies how a UI step or sub-procedure ended. It replaces the
// portal client's old habit of string-matching thrown error messages with an
// explicit tagged result.
type Kind int

const (
	// KindOK means the step or procedure succeeded.
	KindOK Kind = iota
	// KindSoft means a normal negative outcome: an element never appeared,
	// no slots were available. No diagnostics, no escalation.
	KindSoft
	// KindRateLimited means the portal rejected us for request frequency.
	// Always terminal for the current probe.
	KindRateLimited
	// KindHard means an interaction kept failing past all retries.
	// Diagnostics are captured and the failure propagates to the probe.
	KindHard
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindSoft:
		return "soft"
	case KindRateLimited:
		return "rate_limited"
	case KindHard:
		return "hard"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is a Kind with the terminal error for the hard case.
type Result struct {
	Kind Kind
	Err  error
}

func ok() Result          { return Result{Kind: KindOK} }
func soft() Result        { return Result{Kind: KindSoft} }
func rateLimited() Result { return Result{Kind: KindRateLimited} }
func hard(err error) Result {
	return Result{Kind: KindHard, Err: err}
}
