// Package builder compiles a sized instruction set into a signed,
// serialized transaction bound to a blockhash checkpoint.
package builder

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
)

// BuildParams carries everything one compilation needs. The signer key is
// used for exactly one Sign call and is not retained.
type BuildParams struct {
	Set        *domain.InstructionSet
	Checkpoint domain.ValidityCheckpoint

	ComputeUnitLimit uint32
	UnitPriceMicro   uint64

	Signer solana.PrivateKey

	// TipLamports > 0 appends a transfer to TipReceiver as the final
	// instruction. Relay operators require the tip inside the
	// transaction itself.
	TipReceiver solana.PublicKey
	TipLamports uint64
}

// Builder turns instruction sets into prepared transactions.
type Builder struct {
	maxCheckpointAge time.Duration
}

func New(maxCheckpointAge time.Duration) *Builder {
	return &Builder{maxCheckpointAge: maxCheckpointAge}
}

// Build prepends the compute budget, compiles a v0 message against the
// checkpoint blockhash, and signs it. A checkpoint past its age bound is
// rejected before any compilation work: a transaction built on it would
// be dead on arrival.
func (b *Builder) Build(params BuildParams) (*domain.PreparedTransaction, error) {
	if params.Checkpoint.Expired(b.maxCheckpointAge) {
		return nil, fmt.Errorf("%w: checkpoint observed at %s",
			common.ErrStaleCheckpoint, params.Checkpoint.ObservedAt.Format(time.RFC3339))
	}
	if params.Set == nil || len(params.Set.Instructions) == 0 {
		return nil, fmt.Errorf("instruction set is empty")
	}
	if params.ComputeUnitLimit == 0 {
		return nil, fmt.Errorf("compute unit limit is zero")
	}

	limitIx, err := computebudget.NewSetComputeUnitLimitInstruction(params.ComputeUnitLimit).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("compute unit limit instruction: %w", err)
	}
	priceIx, err := computebudget.NewSetComputeUnitPriceInstruction(params.UnitPriceMicro).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("compute unit price instruction: %w", err)
	}

	payer := params.Signer.PublicKey()

	instructions := make([]solana.Instruction, 0, len(params.Set.Instructions)+3)
	instructions = append(instructions, limitIx, priceIx)
	instructions = append(instructions, params.Set.Instructions...)
	if params.TipLamports > 0 {
		if params.TipReceiver.IsZero() {
			return nil, fmt.Errorf("tip requested without a tip receiver")
		}
		instructions = append(instructions, system.NewTransferInstruction(
			params.TipLamports,
			payer,
			params.TipReceiver,
		).Build())
	}

	tx, err := solana.NewTransaction(
		instructions,
		params.Checkpoint.Blockhash,
		solana.TransactionPayer(payer),
		solana.TransactionAddressTables(params.Set.Tables),
	)
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &params.Signer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	serialized, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	return &domain.PreparedTransaction{
		Tx:               tx,
		Serialized:       serialized,
		Signature:        tx.Signatures[0],
		Checkpoint:       params.Checkpoint,
		ComputeUnitLimit: params.ComputeUnitLimit,
		UnitPriceMicro:   params.UnitPriceMicro,
	}, nil
}
