package domain

import (
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// RoutePlanStep is one hop of the aggregator's proposed route.
type RoutePlanStep struct {
	SwapInfo struct {
		AmmKey     string `json:"ammKey"`
		Label      string `json:"label,omitempty"`
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
		InAmount   string `json:"inAmount"`
		OutAmount  string `json:"outAmount"`
		FeeAmount  string `json:"feeAmount"`
		FeeMint    string `json:"feeMint"`
	} `json:"swapInfo"`
	Percent uint8 `json:"percent"`
}

// Quote is the aggregator's priced route proposal. It is short-lived and
// attempt-scoped: never reused across submission attempts.
type Quote struct {
	InputMint   string          `json:"inputMint"`
	OutputMint  string          `json:"outputMint"`
	InAmount    string          `json:"inAmount"`
	OutAmount   string          `json:"outAmount"`
	SlippageBps uint16          `json:"slippageBps"`
	PriceImpact string          `json:"priceImpactPct"`
	RoutePlan   []RoutePlanStep `json:"routePlan"`

	// Raw is the exact quote payload as returned by the aggregator; the
	// instruction endpoint requires it verbatim.
	Raw []byte `json:"-"`
}

// OutAmountBaseUnits parses the quoted output amount. Returns 0 on a
// malformed payload; callers must treat 0 as no viable route.
func (q *Quote) OutAmountBaseUnits() uint64 {
	return parseUint(q.OutAmount)
}

// InAmountBaseUnits parses the quoted input amount.
func (q *Quote) InAmountBaseUnits() uint64 {
	return parseUint(q.InAmount)
}

// parseUint decodes a base-unit amount. Anything malformed, signed or
// larger than uint64 is 0: amounts never wrap.
func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// EncodedAccountMeta mirrors the aggregator wire format for instruction
// account references.
type EncodedAccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// EncodedInstruction is an instruction as serialized by the aggregator:
// base58 program id, account metas and base64 data.
type EncodedInstruction struct {
	ProgramID string               `json:"programId"`
	Accounts  []EncodedAccountMeta `json:"accounts"`
	Data      string               `json:"data"`
}

// InstructionBundle is the structured response of the aggregator instruction
// endpoint. Implementations standardize on this shape; an opaque pre-built
// transaction payload is adapted into it.
type InstructionBundle struct {
	SetupInstructions   []EncodedInstruction `json:"setupInstructions"`
	SwapInstruction     *EncodedInstruction  `json:"swapInstruction"`
	CleanupInstruction  *EncodedInstruction  `json:"cleanupInstruction"`
	LookupTableAddrs    []string             `json:"addressLookupTableAddresses"`
	Error               string               `json:"error,omitempty"`
	SimulationSlot      uint64               `json:"contextSlot,omitempty"`
	SwapTransactionB64  string               `json:"swapTransaction,omitempty"`
}

// InstructionSet is the fully decoded, lookup-table-resolved payload ready
// for sizing and building. Rebuilt fresh per attempt, never cached.
type InstructionSet struct {
	Instructions []solana.Instruction

	// Tables maps every lookup table the route references to its resolved
	// address list. A referenced table that could not be resolved never
	// appears here; assembly fails instead.
	Tables map[solana.PublicKey]solana.PublicKeySlice
}

// ValidityCheckpoint binds a transaction to a short-lived ledger reference.
// Once expired the bound transaction is permanently invalid.
type ValidityCheckpoint struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	ObservedAt           time.Time
}

// Expired reports whether the checkpoint is past its usable lifetime.
// Blockhashes are valid for ~150 blocks; maxAge is the local wall-clock bound.
func (c ValidityCheckpoint) Expired(maxAge time.Duration) bool {
	return time.Since(c.ObservedAt) > maxAge
}

// PreparedTransaction is a signed binary payload bound to one checkpoint.
// Exactly one use: once the checkpoint expires it must be rebuilt from a new
// quote, never resent.
type PreparedTransaction struct {
	Tx         *solana.Transaction
	Serialized []byte
	Signature  solana.Signature
	Checkpoint ValidityCheckpoint

	ComputeUnitLimit uint32
	UnitPriceMicro   uint64
}
