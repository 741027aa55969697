// Package engine orchestrates the swap execution pipeline: quote,
// assembly, sizing, build, broadcast, confirmation and settlement.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/metrics"
	"github.com/solstream/trade-engine/internal/services/builder"
	"github.com/solstream/trade-engine/internal/services/reconciler"
	"github.com/solstream/trade-engine/internal/services/submitter"
	"github.com/solstream/trade-engine/internal/services/tracker"
)

// maxFeeAccounts bounds the account list sent to the prioritization fee
// endpoint; the RPC rejects larger lists.
const maxFeeAccounts = 128

// QuoteSource fetches routes and exchanges them for instruction bundles.
type QuoteSource interface {
	GetQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16, includeFee bool) (*domain.Quote, error)
	GetSwapInstructions(ctx context.Context, quote *domain.Quote, signer solana.PublicKey, feeAccount string) (*domain.InstructionBundle, error)
}

// InstructionAssembler decodes a bundle into an executable instruction set.
type InstructionAssembler interface {
	Assemble(ctx context.Context, bundle *domain.InstructionBundle) (*domain.InstructionSet, error)
}

// CheckpointSource yields the freshest blockhash validity checkpoint.
type CheckpointSource interface {
	Checkpoint(ctx context.Context) (domain.ValidityCheckpoint, error)
}

// UnitPricer estimates the priority fee per compute unit.
type UnitPricer interface {
	EstimateUnitPrice(ctx context.Context, accounts solana.PublicKeySlice) uint64
}

// ComputeSizer measures the compute unit limit for a candidate transaction.
type ComputeSizer interface {
	EstimateLimit(ctx context.Context, tx *solana.Transaction) (uint32, error)
}

// TransactionBuilder compiles and signs prepared transactions.
type TransactionBuilder interface {
	Build(params builder.BuildParams) (*domain.PreparedTransaction, error)
}

// ConfirmationAwaiter drives the bounded confirmation state machine.
type ConfirmationAwaiter interface {
	Await(ctx context.Context, poller tracker.StatusPoller, handle domain.SubmissionHandle) (domain.ConfirmationState, error)
}

// SettlementApplier folds a finalized transaction into the ledger.
type SettlementApplier interface {
	Reconcile(ctx context.Context, req *domain.SwapRequest, sig solana.Signature) (*reconciler.Settlement, error)
}

// PipelineDeps wires one pipeline. Submitter and Poller must match: a
// bundled submitter needs the bundle poller, a direct one the signature
// poller.
type PipelineDeps struct {
	Quotes      QuoteSource
	Assembler   InstructionAssembler
	Checkpoints CheckpointSource
	Fees        UnitPricer
	Compute     ComputeSizer
	Builder     TransactionBuilder
	Submitter   submitter.Submitter
	Awaiter     ConfirmationAwaiter
	Poller      tracker.StatusPoller
	Settlements SettlementApplier

	// TipLamports > 0 routes a relay tip into every built transaction.
	TipReceiver solana.PublicKey
	TipLamports uint64

	// FeeAccount, when set, collects the aggregator platform fee.
	FeeAccount string
}

// Pipeline executes swaps end to end. Every attempt starts from a fresh
// quote and a fresh checkpoint; no artifact survives a restart.
type Pipeline struct {
	deps PipelineDeps

	attempts        int
	defaultSlippage uint16
}

func NewPipeline(deps PipelineDeps, attempts int, defaultSlippage uint16) *Pipeline {
	if attempts < 1 {
		attempts = 1
	}
	return &Pipeline{
		deps:            deps,
		attempts:        attempts,
		defaultSlippage: defaultSlippage,
	}
}

// ExecuteSwap runs the pipeline until a terminal outcome or the restart
// bound. Only restartable failures trigger another attempt; anything else
// surfaces immediately.
func (p *Pipeline) ExecuteSwap(ctx context.Context, req *domain.SwapRequest) (*domain.SwapResult, error) {
	if req.Amount == 0 {
		return nil, common.ErrInvalidAmount
	}
	if len(req.Signer) == 0 {
		return nil, fmt.Errorf("swap request has no signer")
	}
	if req.SlippageBps == 0 {
		scoped := *req
		scoped.SlippageBps = p.defaultSlippage
		req = &scoped
	}

	start := time.Now()
	var (
		result *domain.SwapResult
		err    error
	)
	for attempt := 1; attempt <= p.attempts; attempt++ {
		result, err = p.runAttempt(ctx, req, attempt)
		if err == nil {
			break
		}
		if !common.Restartable(err) || ctx.Err() != nil || attempt == p.attempts {
			break
		}
		metrics.PipelineRestarts.Inc()
		log.Warn().Err(err).Int("attempt", attempt).
			Str("owner", req.OwnerID).
			Msg("[Pipeline] attempt failed, restarting from fresh quote")
	}

	direction := req.Direction.String()
	metrics.SwapDuration.WithLabelValues(direction).Observe(time.Since(start).Seconds())
	if result != nil {
		metrics.SwapsTotal.WithLabelValues(direction, result.State.String()).Inc()
	} else {
		metrics.SwapsTotal.WithLabelValues(direction, "error").Inc()
	}
	return result, err
}

// runAttempt is one full pass. The returned result is non-nil once a
// transaction was broadcast, so callers can report the signature even for
// failed and expired outcomes.
func (p *Pipeline) runAttempt(ctx context.Context, req *domain.SwapRequest, attempt int) (*domain.SwapResult, error) {
	quote, err := p.deps.Quotes.GetQuote(ctx, req.InputMint, req.OutputMint, req.Amount, req.SlippageBps, req.PlatformFeeBps > 0)
	if err != nil {
		return nil, err
	}

	signerKey := req.Signer.PublicKey()
	bundle, err := p.deps.Quotes.GetSwapInstructions(ctx, quote, signerKey, p.deps.FeeAccount)
	if err != nil {
		return nil, err
	}

	set, err := p.deps.Assembler.Assemble(ctx, bundle)
	if err != nil {
		return nil, err
	}

	checkpoint, err := p.deps.Checkpoints.Checkpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("no validity checkpoint available: %w", err)
	}

	// Unsigned probe for simulation; the simulator replaces the blockhash
	// and skips signature verification.
	probe, err := solana.NewTransaction(set.Instructions, checkpoint.Blockhash,
		solana.TransactionPayer(signerKey),
		solana.TransactionAddressTables(set.Tables),
	)
	if err != nil {
		return nil, fmt.Errorf("probe compilation failed: %w", err)
	}

	// The two estimates are independent; run them concurrently. The fee
	// estimate cannot fail, the compute estimate can and gates submission.
	var (
		wg        sync.WaitGroup
		unitPrice uint64
		cuLimit   uint32
		cuErr     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		unitPrice = p.deps.Fees.EstimateUnitPrice(ctx, writableAccounts(set))
	}()
	go func() {
		defer wg.Done()
		cuLimit, cuErr = p.deps.Compute.EstimateLimit(ctx, probe)
	}()
	wg.Wait()
	if cuErr != nil {
		return nil, cuErr
	}

	prepared, err := p.deps.Builder.Build(builder.BuildParams{
		Set:              set,
		Checkpoint:       checkpoint,
		ComputeUnitLimit: cuLimit,
		UnitPriceMicro:   unitPrice,
		Signer:           req.Signer,
		TipReceiver:      p.deps.TipReceiver,
		TipLamports:      p.deps.TipLamports,
	})
	if err != nil {
		return nil, err
	}

	handle, err := p.deps.Submitter.Submit(ctx, prepared)
	if err != nil {
		return nil, err
	}

	result := &domain.SwapResult{
		Signature: handle.Signature.String(),
		BundleID:  handle.BundleID,
		Attempts:  attempt,
	}

	state, err := p.deps.Awaiter.Await(ctx, p.deps.Poller, handle)
	result.State = state
	if err != nil {
		return result, err
	}

	settlement, err := p.deps.Settlements.Reconcile(ctx, req, handle.Signature)
	if err != nil {
		// The swap executed; a reconciliation failure must not turn it
		// into a pipeline failure. The ledger catches up on rebuild.
		log.Error().Err(err).Str("signature", result.Signature).
			Msg("[Pipeline] finalized swap could not be reconciled")
		return result, nil
	}
	result.SpentLamports = settlement.SpentLamports
	result.ReceivedLamports = settlement.ReceivedLamports
	result.TokenDelta = settlement.TokenDelta
	return result, nil
}

// writableAccounts collects the deduplicated writable accounts of the set,
// the inputs the prioritization fee endpoint weighs.
func writableAccounts(set *domain.InstructionSet) solana.PublicKeySlice {
	seen := make(map[solana.PublicKey]struct{})
	var out solana.PublicKeySlice
	for _, ix := range set.Instructions {
		for _, meta := range ix.Accounts() {
			if !meta.IsWritable {
				continue
			}
			if _, ok := seen[meta.PublicKey]; ok {
				continue
			}
			seen[meta.PublicKey] = struct{}{}
			out = append(out, meta.PublicKey)
			if len(out) == maxFeeAccounts {
				return out
			}
		}
	}
	return out
}
