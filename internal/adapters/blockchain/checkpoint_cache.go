// Package blockchain adapts live chain surfaces: a streaming-fed cache of
// blockhash validity checkpoints.
package blockchain

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	pb "github.com/andrew-solarstorm/yellowstone-grpc-client-go/proto"
	container "github.com/thehyperflames/dicontainer-go"
	"github.com/thehyperflames/yellowstone"

	"github.com/solstream/trade-engine/internal/config"
	"github.com/solstream/trade-engine/internal/domain"
)

const CHECKPOINT_CACHE_SERVICE = "cache-checkpoint-svc"

// freshWindow is how long a streamed checkpoint is served without
// falling back to an RPC fetch.
const freshWindow = 2 * time.Second

// CheckpointCacheService keeps the freshest blockhash validity checkpoint
// available without a per-swap RPC round trip. Block-meta stream updates
// feed it; GetLatestBlockhash is the fallback when the stream is quiet.
type CheckpointCacheService struct {
	container.BaseDIInstance

	mu        sync.RWMutex
	current   *domain.ValidityCheckpoint
	ySvc      *yellowstone.Service
	rpcClient *rpc.Client
	subID     string
}

func (svc *CheckpointCacheService) ID() string {
	return CHECKPOINT_CACHE_SERVICE
}

func (svc *CheckpointCacheService) Configure(c container.IContainer) error {
	svc.ySvc = c.Instance(yellowstone.YELLOWSTONE_SERVICE).(*yellowstone.Service)
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)

	svc.rpcClient = rpc.New(rpcConfig.RPCUrl)
	return nil
}

func (svc *CheckpointCacheService) Start() error {
	ctx := context.Background()
	if err := svc.fetchCheckpoint(ctx); err != nil {
		log.Warn().Err(err).Msg("[CheckpointCacheService] failed to fetch initial checkpoint, will retry on first request")
	}

	subID, err := svc.ySvc.SubscribeBlockMeta(svc.handleBlockMeta)
	if err != nil {
		log.Error().Err(err).Msg("[CheckpointCacheService] failed to subscribe to block meta")
		return err
	}
	svc.subID = subID
	log.Info().Str("subID", subID).Msg("[CheckpointCacheService] subscribed to block meta for checkpoint updates")

	return nil
}

func (svc *CheckpointCacheService) Stop() error {
	if svc.subID != "" {
		return svc.ySvc.Unsubscribe(svc.subID)
	}
	return nil
}

func (svc *CheckpointCacheService) fetchCheckpoint(ctx context.Context) error {
	res, err := svc.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return err
	}

	svc.set(domain.ValidityCheckpoint{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
		ObservedAt:           time.Now(),
	})
	return nil
}

func (svc *CheckpointCacheService) handleBlockMeta(update *pb.SubscribeUpdate) error {
	blockMeta := update.GetBlockMeta()
	if blockMeta == nil {
		return nil
	}

	blockhashStr := blockMeta.GetBlockhash()
	if blockhashStr == "" {
		return nil
	}
	blockhash, err := solana.HashFromBase58(blockhashStr)
	if err != nil {
		return nil
	}

	blockHeight := uint64(0)
	if bh := blockMeta.GetBlockHeight(); bh != nil {
		blockHeight = bh.GetBlockHeight()
	}

	// A blockhash stays valid for 150 blocks past its observation.
	svc.set(domain.ValidityCheckpoint{
		Blockhash:            blockhash,
		LastValidBlockHeight: blockHeight + 150,
		ObservedAt:           time.Now(),
	})
	return nil
}

func (svc *CheckpointCacheService) set(checkpoint domain.ValidityCheckpoint) {
	svc.mu.Lock()
	svc.current = &checkpoint
	svc.mu.Unlock()
}

// Checkpoint returns a fresh validity checkpoint, preferring the streamed
// value and falling back to RPC. A stale cached value is still returned
// when the RPC fallback fails; the builder's age bound decides whether it
// is usable.
func (svc *CheckpointCacheService) Checkpoint(ctx context.Context) (domain.ValidityCheckpoint, error) {
	svc.mu.RLock()
	cached := svc.current
	svc.mu.RUnlock()

	if cached != nil && time.Since(cached.ObservedAt) < freshWindow {
		return *cached, nil
	}

	if err := svc.fetchCheckpoint(ctx); err != nil {
		if cached != nil {
			return *cached, nil
		}
		return domain.ValidityCheckpoint{}, err
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return *svc.current, nil
}
