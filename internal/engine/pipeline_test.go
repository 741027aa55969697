package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/services/builder"
	"github.com/solstream/trade-engine/internal/services/reconciler"
	"github.com/solstream/trade-engine/internal/services/tracker"
)

type fakeQuotes struct {
	quoteCalls   int
	lastSlippage uint16
	quoteErr     error
}

func (f *fakeQuotes) GetQuote(_ context.Context, _, _ solana.PublicKey, _ uint64, slippageBps uint16, _ bool) (*domain.Quote, error) {
	f.quoteCalls++
	f.lastSlippage = slippageBps
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &domain.Quote{}, nil
}

func (f *fakeQuotes) GetSwapInstructions(_ context.Context, _ *domain.Quote, _ solana.PublicKey, _ string) (*domain.InstructionBundle, error) {
	return &domain.InstructionBundle{}, nil
}

type fakeAssembler struct {
	payer solana.PublicKey
}

func (f *fakeAssembler) Assemble(_ context.Context, _ *domain.InstructionBundle) (*domain.InstructionSet, error) {
	ix := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{solana.Meta(f.payer).WRITE().SIGNER()},
		[]byte{2, 0, 0, 0},
	)
	return &domain.InstructionSet{Instructions: []solana.Instruction{ix}}, nil
}

type fakeCheckpoints struct{}

func (f *fakeCheckpoints) Checkpoint(_ context.Context) (domain.ValidityCheckpoint, error) {
	return domain.ValidityCheckpoint{
		Blockhash:            solana.Hash{1},
		LastValidBlockHeight: 1000,
		ObservedAt:           time.Now(),
	}, nil
}

type fakeFees struct{ price uint64 }

func (f *fakeFees) EstimateUnitPrice(_ context.Context, _ solana.PublicKeySlice) uint64 {
	return f.price
}

type fakeCompute struct {
	calls int
	limit uint32
	err   error
}

func (f *fakeCompute) EstimateLimit(_ context.Context, _ *solana.Transaction) (uint32, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.limit, nil
}

type fakeBuilder struct {
	calls  int
	params []builder.BuildParams
	err    error
}

func (f *fakeBuilder) Build(params builder.BuildParams) (*domain.PreparedTransaction, error) {
	f.calls++
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PreparedTransaction{
		Serialized:       []byte{1, 2, 3},
		Signature:        solana.Signature{byte(f.calls)},
		Checkpoint:       params.Checkpoint,
		ComputeUnitLimit: params.ComputeUnitLimit,
		UnitPriceMicro:   params.UnitPriceMicro,
	}, nil
}

type fakeSubmitter struct {
	calls int
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, prepared *domain.PreparedTransaction) (domain.SubmissionHandle, error) {
	f.calls++
	if f.err != nil {
		return domain.SubmissionHandle{}, f.err
	}
	return domain.SubmissionHandle{Kind: domain.SubmitDirect, Signature: prepared.Signature}, nil
}

type awaitOutcome struct {
	state domain.ConfirmationState
	err   error
}

type fakeAwaiter struct {
	calls    int
	outcomes []awaitOutcome
}

func (f *fakeAwaiter) Await(_ context.Context, _ tracker.StatusPoller, _ domain.SubmissionHandle) (domain.ConfirmationState, error) {
	out := f.outcomes[f.calls]
	f.calls++
	return out.state, out.err
}

type fakeSettlements struct {
	calls      int
	settlement *reconciler.Settlement
	err        error
}

func (f *fakeSettlements) Reconcile(_ context.Context, _ *domain.SwapRequest, sig solana.Signature) (*reconciler.Settlement, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := *f.settlement
	s.Signature = sig
	return &s, nil
}

type pipelineFixture struct {
	quotes      *fakeQuotes
	compute     *fakeCompute
	builder     *fakeBuilder
	submitter   *fakeSubmitter
	awaiter     *fakeAwaiter
	settlements *fakeSettlements
	signer      solana.PrivateKey
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	wallet := solana.NewWallet()
	return &pipelineFixture{
		quotes:    &fakeQuotes{},
		compute:   &fakeCompute{limit: 200_000},
		builder:   &fakeBuilder{},
		submitter: &fakeSubmitter{},
		awaiter: &fakeAwaiter{outcomes: []awaitOutcome{
			{state: domain.StateFinalized},
		}},
		settlements: &fakeSettlements{settlement: &reconciler.Settlement{
			SpentLamports: 1_000_000,
			TokenDelta:    42_000,
			FeeLamports:   5_000,
			Applied:       true,
		}},
		signer: wallet.PrivateKey,
	}
}

func (fx *pipelineFixture) pipeline(attempts int) *Pipeline {
	return NewPipeline(PipelineDeps{
		Quotes:      fx.quotes,
		Assembler:   &fakeAssembler{payer: fx.signer.PublicKey()},
		Checkpoints: &fakeCheckpoints{},
		Fees:        &fakeFees{price: 7_500},
		Compute:     fx.compute,
		Builder:     fx.builder,
		Submitter:   fx.submitter,
		Awaiter:     fx.awaiter,
		Poller:      nil,
		Settlements: fx.settlements,
	}, attempts, 50)
}

func (fx *pipelineFixture) request() *domain.SwapRequest {
	return &domain.SwapRequest{
		OwnerID:     "owner-1",
		Direction:   domain.DirectionBuy,
		InputMint:   common.NativeMint,
		OutputMint:  solana.NewWallet().PublicKey(),
		Amount:      1_000_000,
		SlippageBps: 100,
		Signer:      fx.signer,
	}
}

func TestExecuteSwapRejectsZeroAmount(t *testing.T) {
	fx := newPipelineFixture(t)
	req := fx.request()
	req.Amount = 0

	_, err := fx.pipeline(3).ExecuteSwap(context.Background(), req)
	if !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if fx.quotes.quoteCalls != 0 {
		t.Fatalf("zero-amount request must not reach the aggregator")
	}
}

func TestExecuteSwapHappyPath(t *testing.T) {
	fx := newPipelineFixture(t)

	res, err := fx.pipeline(3).ExecuteSwap(context.Background(), fx.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != domain.StateFinalized {
		t.Fatalf("expected finalized, got %s", res.State)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", res.Attempts)
	}
	if res.SpentLamports != 1_000_000 || res.TokenDelta != 42_000 {
		t.Fatalf("settlement not folded into result: %+v", res)
	}
	if fx.submitter.calls != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", fx.submitter.calls)
	}
	if got := fx.builder.params[0]; got.ComputeUnitLimit != 200_000 || got.UnitPriceMicro != 7_500 {
		t.Fatalf("estimates not forwarded to builder: limit=%d price=%d", got.ComputeUnitLimit, got.UnitPriceMicro)
	}
}

func TestRentFailureNeverBroadcasts(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.compute.err = common.ErrInsufficientFundsForRent

	_, err := fx.pipeline(3).ExecuteSwap(context.Background(), fx.request())
	if !errors.Is(err, common.ErrInsufficientFundsForRent) {
		t.Fatalf("expected rent error, got %v", err)
	}
	if fx.submitter.calls != 0 {
		t.Fatalf("unsubmittable transaction was broadcast %d times", fx.submitter.calls)
	}
	if fx.compute.calls != 1 {
		t.Fatalf("rent failure must not restart the pipeline, got %d attempts", fx.compute.calls)
	}
}

func TestExpiredConfirmationRestartsFromFreshQuote(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.awaiter.outcomes = []awaitOutcome{
		{state: domain.StateExpired, err: common.ErrConfirmationExpired},
		{state: domain.StateFinalized},
	}

	res, err := fx.pipeline(3).ExecuteSwap(context.Background(), fx.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != domain.StateFinalized {
		t.Fatalf("expected finalized after restart, got %s", res.State)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	if fx.quotes.quoteCalls != 2 {
		t.Fatalf("restart must re-quote, got %d quote calls", fx.quotes.quoteCalls)
	}
	if fx.builder.calls != 2 {
		t.Fatalf("restart must rebuild, got %d builds", fx.builder.calls)
	}
	if fx.submitter.calls != 2 {
		t.Fatalf("expected two distinct submissions, got %d", fx.submitter.calls)
	}
}

func TestExhaustedRestartsSurfaceExpiredState(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.awaiter.outcomes = []awaitOutcome{
		{state: domain.StateExpired, err: common.ErrConfirmationExpired},
		{state: domain.StateExpired, err: common.ErrConfirmationExpired},
	}

	res, err := fx.pipeline(2).ExecuteSwap(context.Background(), fx.request())
	if !errors.Is(err, common.ErrConfirmationExpired) {
		t.Fatalf("expected ErrConfirmationExpired, got %v", err)
	}
	if res == nil || res.State != domain.StateExpired {
		t.Fatalf("expected expired result, got %+v", res)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected exhausted attempt budget of 2, got %d", res.Attempts)
	}
	if res.Signature == "" {
		t.Fatalf("expired result must still carry the broadcast signature")
	}
}

func TestSubmissionRejectionDoesNotRestart(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.submitter.err = common.ErrSubmissionRejected

	_, err := fx.pipeline(3).ExecuteSwap(context.Background(), fx.request())
	if !errors.Is(err, common.ErrSubmissionRejected) {
		t.Fatalf("expected ErrSubmissionRejected, got %v", err)
	}
	if fx.quotes.quoteCalls != 1 {
		t.Fatalf("rejection is not restartable, got %d attempts", fx.quotes.quoteCalls)
	}
}

func TestDefaultSlippageApplied(t *testing.T) {
	fx := newPipelineFixture(t)
	req := fx.request()
	req.SlippageBps = 0

	if _, err := fx.pipeline(1).ExecuteSwap(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fx.quotes.lastSlippage != 50 {
		t.Fatalf("expected default slippage 50, got %d", fx.quotes.lastSlippage)
	}
	if req.SlippageBps != 0 {
		t.Fatalf("caller request must not be mutated")
	}
}

func TestReconcileFailureDoesNotFailTheSwap(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.settlements.err = common.ErrLedgerWriteConflict

	res, err := fx.pipeline(1).ExecuteSwap(context.Background(), fx.request())
	if err != nil {
		t.Fatalf("finalized swap must succeed despite reconcile failure, got %v", err)
	}
	if res.State != domain.StateFinalized {
		t.Fatalf("expected finalized, got %s", res.State)
	}
	if res.SpentLamports != 0 {
		t.Fatalf("unreconciled result must not report measured deltas")
	}
}

func TestOnChainFailureRestarts(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.awaiter.outcomes = []awaitOutcome{
		{state: domain.StateFailed, err: common.ErrExecutionFailed},
		{state: domain.StateFinalized},
	}

	res, err := fx.pipeline(3).ExecuteSwap(context.Background(), fx.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != domain.StateFinalized || res.Attempts != 2 {
		t.Fatalf("expected finalized on second attempt, got %+v", res)
	}
}
