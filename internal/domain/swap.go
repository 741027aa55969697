package domain

import (
	"github.com/gagliardetto/solana-go"
)

// Direction distinguishes a buy (native -> token) from a sell (token -> native).
type Direction uint8

const (
	DirectionBuy Direction = iota
	DirectionSell
)

func (d Direction) String() string {
	if d == DirectionSell {
		return "sell"
	}
	return "buy"
}

// SwapRequest describes one user-initiated swap. Amounts are always integer
// base units; decimal amounts exist only at the UI boundary.
type SwapRequest struct {
	OwnerID string

	Direction Direction

	InputMint solana.PublicKey

	OutputMint solana.PublicKey

	// Amount in smallest token units (lamports for the native asset).
	Amount uint64

	SlippageBps uint16

	// PlatformFeeBps is an optional aggregator platform fee.
	PlatformFeeBps uint16

	Signer solana.PrivateKey
}

// TradedMint returns the non-native side of the pair, the mint whose holding
// the ledger tracks.
func (r *SwapRequest) TradedMint() solana.PublicKey {
	if r.Direction == DirectionBuy {
		return r.OutputMint
	}
	return r.InputMint
}

// SubmissionKind selects the broadcast strategy.
type SubmissionKind uint8

const (
	SubmitDirect SubmissionKind = iota
	SubmitBundled
)

// SubmissionHandle is the opaque token returned by a submitter. It is used
// solely to poll status; a stale handle must never be resubmitted.
type SubmissionHandle struct {
	Kind SubmissionKind

	// Signature of the broadcast transaction. Set on both paths: the bundled
	// relay still lands a transaction confirmable by signature.
	Signature solana.Signature

	BundleID string
}

// ConfirmationState is the bounded confirmation state machine.
// Finalized, Failed and Expired are terminal.
type ConfirmationState uint8

const (
	StateSubmitted ConfirmationState = iota
	StateProcessed
	StateConfirmed
	StateFinalized
	StateFailed
	StateExpired
)

func (s ConfirmationState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateProcessed:
		return "processed"
	case StateConfirmed:
		return "confirmed"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state machine stops here.
func (s ConfirmationState) Terminal() bool {
	return s == StateFinalized || s == StateFailed || s == StateExpired
}

// Success reports whether the terminal state represents an executed swap.
func (s ConfirmationState) Success() bool {
	return s == StateFinalized
}

// SwapResult is the terminal outcome of one pipeline run, returned to the
// caller as a tagged result. The pipeline performs no user-facing messaging.
type SwapResult struct {
	State ConfirmationState `json:"state"`

	Signature string `json:"signature,omitempty"`

	BundleID string `json:"bundleId,omitempty"`

	// Measured on-chain effects, populated only after reconciliation.
	SpentLamports    uint64 `json:"spentLamports,omitempty"`
	ReceivedLamports uint64 `json:"receivedLamports,omitempty"`
	TokenDelta       uint64 `json:"tokenDelta,omitempty"`

	Attempts int `json:"attempts"`
}
