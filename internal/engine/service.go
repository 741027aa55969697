package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/solstream/trade-engine/internal/adapters/blockchain"
	"github.com/solstream/trade-engine/internal/adapters/persistence"
	"github.com/solstream/trade-engine/internal/config"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/services"
	"github.com/solstream/trade-engine/internal/services/assembler"
	"github.com/solstream/trade-engine/internal/services/builder"
	"github.com/solstream/trade-engine/internal/services/priority"
	"github.com/solstream/trade-engine/internal/services/quote"
	"github.com/solstream/trade-engine/internal/services/reconciler"
	"github.com/solstream/trade-engine/internal/services/submitter"
	"github.com/solstream/trade-engine/internal/services/tracker"
)

const ENGINE_SERVICE = "engine-svc"

// Broadcast retry bounds. These cover transport flaps only; submission
// never re-signs or rebuilds.
const (
	submitAttempts   = 3
	submitRetryDelay = 250 * time.Millisecond
)

// Service is the container face of the execution pipeline. It resolves
// signers, runs swaps and serves ledger reads.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	conf      *config.EngineConfig
	relayConf *config.RelayConfig

	rpcClient  *rpc.Client
	quotes     *quote.Client
	pipeline   *Pipeline
	sessions   *SessionRegistry
	store      *persistence.LedgerStore
	reconciler *reconciler.Reconciler

	defaultSigner solana.PrivateKey
}

func (svc *Service) ID() string {
	return ENGINE_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	rpcConf := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	aggConf := c.GetConfig(config.AGGREGATOR_CONFIG_KEY).(*config.AggregatorConfig)
	svc.relayConf = c.GetConfig(config.RELAY_CONFIG_KEY).(*config.RelayConfig)
	svc.conf = c.GetConfig(config.ENGINE_CONFIG_KEY).(*config.EngineConfig)

	checkpoints := c.Instance(blockchain.CHECKPOINT_CACHE_SERVICE).(*blockchain.CheckpointCacheService)
	storeSvc := c.Instance(persistence.LEDGER_STORE_SERVICE).(*persistence.LedgerStoreService)

	svc.rpcClient = rpc.New(rpcConf.RPCUrl)
	svc.quotes = quote.NewClient(aggConf)
	svc.store = storeSvc.Store()
	svc.reconciler = reconciler.New(reconciler.NewRPCFetcher(svc.rpcClient), svc.rpcClient, svc.store)
	svc.sessions = NewSessionRegistry(svc.conf.SessionTTL)

	if rpcConf.SignerKey != "" {
		signer, err := solana.PrivateKeyFromBase58(rpcConf.SignerKey)
		if err != nil {
			return fmt.Errorf("invalid default signer key: %w", err)
		}
		svc.defaultSigner = signer
	}

	deps := PipelineDeps{
		Quotes:      svc.quotes,
		Assembler:   assembler.New(assembler.NewRPCTableResolver(svc.rpcClient)),
		Checkpoints: checkpoints,
		Fees:        priority.NewFeeEstimator(svc.rpcClient),
		Compute:     priority.NewCUEstimator(priority.NewRPCSimulator(svc.rpcClient), svc.conf.SimulationAttempts, svc.conf.SimulationDelay),
		Builder:     builder.New(svc.conf.CheckpointMaxAge),
		Awaiter:     tracker.New(svc.conf.ConfirmAttempts, svc.conf.ConfirmInterval),
		Settlements: svc.reconciler,
	}

	if svc.relayConf.Enabled {
		tip, err := solana.PublicKeyFromBase58(svc.relayConf.TipAccount)
		if err != nil {
			return fmt.Errorf("invalid relay tip account: %w", err)
		}
		relay := submitter.NewRelayClient(svc.relayConf)
		deps.Submitter = submitter.NewBundledSubmitter(relay, submitAttempts, submitRetryDelay)
		deps.Poller = tracker.NewBundlePoller(relay)
		deps.TipReceiver = tip
		deps.TipLamports = svc.relayConf.TipLamports
	} else {
		deps.Submitter = submitter.NewDirectSubmitter(svc.rpcClient, submitAttempts, submitRetryDelay)
		deps.Poller = tracker.NewSignaturePoller(svc.rpcClient)
	}

	svc.pipeline = NewPipeline(deps, svc.conf.PipelineAttempts, svc.conf.DefaultSlippageBps)
	return nil
}

func (svc *Service) Start() error {
	svc.sessions.Start()
	mode := "direct"
	if svc.relayConf.Enabled {
		mode = "bundled"
	}
	svc.logger.Info().Str("broadcast", mode).Msg("[EngineService] started")
	return nil
}

func (svc *Service) Stop() error {
	svc.sessions.Close()
	return nil
}

// ExecuteSwap resolves the request's signer and runs the pipeline. Session
// signers win over the configured default.
func (svc *Service) ExecuteSwap(ctx context.Context, req *domain.SwapRequest) (*domain.SwapResult, error) {
	if len(req.Signer) == 0 {
		signer, err := svc.resolveSigner(req.OwnerID)
		if err != nil {
			return nil, err
		}
		req.Signer = signer
	}
	return svc.pipeline.ExecuteSwap(ctx, req)
}

// PreviewQuote fetches a route without executing it.
func (svc *Service) PreviewQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16) (*domain.Quote, error) {
	if slippageBps == 0 {
		slippageBps = svc.conf.DefaultSlippageBps
	}
	return svc.quotes.GetQuote(ctx, inputMint, outputMint, amount, slippageBps, false)
}

// OpenSession registers a signer for ownerID.
func (svc *Service) OpenSession(ownerID, signerKey string) error {
	signer, err := solana.PrivateKeyFromBase58(signerKey)
	if err != nil {
		return fmt.Errorf("invalid signer key: %w", err)
	}
	svc.sessions.Put(ownerID, signer)
	return nil
}

// CloseSession drops the signer for ownerID.
func (svc *Service) CloseSession(ownerID string) {
	svc.sessions.Drop(ownerID)
}

// Ledger returns the cached ledger entry for ownerID, nil when unknown.
func (svc *Service) Ledger(ctx context.Context, ownerID string) (*domain.WalletLedgerEntry, error) {
	return svc.store.Get(ctx, ownerID)
}

// Ledgers lists every cached ledger entry.
func (svc *Service) Ledgers(ctx context.Context) ([]*domain.WalletLedgerEntry, error) {
	return svc.store.List(ctx)
}

// RebuildLedger discards the cached entry for ownerID and rebuilds it from
// chain state.
func (svc *Service) RebuildLedger(ctx context.Context, ownerID string) (*domain.WalletLedgerEntry, error) {
	owner, err := svc.resolveOwnerKey(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return svc.reconciler.Rebuild(ctx, ownerID, owner)
}

func (svc *Service) resolveSigner(ownerID string) (solana.PrivateKey, error) {
	if signer, ok := svc.sessions.Signer(ownerID); ok {
		return signer, nil
	}
	if len(svc.defaultSigner) > 0 {
		return svc.defaultSigner, nil
	}
	return nil, fmt.Errorf("no signer for owner %s", ownerID)
}

func (svc *Service) resolveOwnerKey(ctx context.Context, ownerID string) (solana.PublicKey, error) {
	if entry, err := svc.store.Get(ctx, ownerID); err == nil && entry != nil && entry.PublicKey != "" {
		return solana.PublicKeyFromBase58(entry.PublicKey)
	}
	signer, err := svc.resolveSigner(ownerID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return signer.PublicKey(), nil
}
