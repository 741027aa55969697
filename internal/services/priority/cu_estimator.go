package priority

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/metrics"
)

const (
	// cuHeadroomNum/cuHeadroomDen apply a 20% margin over measured usage.
	cuHeadroomNum = 12
	cuHeadroomDen = 10

	// MaxComputeUnits is the runtime's per-transaction ceiling.
	MaxComputeUnits = 1_400_000
)

// Simulator executes a transaction against current ledger state without
// broadcasting it.
type Simulator interface {
	Simulate(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error)
}

// RPCSimulator simulates without signature verification so the probe
// transaction does not need to be signed against a live blockhash.
type RPCSimulator struct {
	rpcClient *rpc.Client
}

func NewRPCSimulator(rpcClient *rpc.Client) *RPCSimulator {
	return &RPCSimulator{rpcClient: rpcClient}
}

func (s *RPCSimulator) Simulate(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
	return s.rpcClient.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: true,
		Commitment:             rpc.CommitmentProcessed,
	})
}

// CUEstimator measures the compute units a transaction actually consumes
// and pads the measurement into a limit.
type CUEstimator struct {
	simulator Simulator
	attempts  int
	delay     time.Duration
}

func NewCUEstimator(simulator Simulator, attempts int, delay time.Duration) *CUEstimator {
	return &CUEstimator{simulator: simulator, attempts: attempts, delay: delay}
}

// EstimateLimit simulates tx and returns measured usage plus headroom,
// capped at the runtime maximum. Transient simulation failures are
// retried; a deterministic on-chain failure aborts immediately.
func (e *CUEstimator) EstimateLimit(ctx context.Context, tx *solana.Transaction) (uint32, error) {
	var consumed uint64

	err := common.Retry(ctx, e.attempts, e.delay, func(ctx context.Context) error {
		metrics.SimulationAttempts.Inc()

		resp, err := e.simulator.Simulate(ctx, tx)
		if err != nil {
			log.Warn().Err(err).Msg("[priority] simulation transport error")
			return err
		}
		if resp == nil || resp.Value == nil {
			return fmt.Errorf("empty simulation response")
		}

		if resp.Value.Err != nil {
			simErr := fmt.Sprintf("%v", resp.Value.Err)
			if strings.Contains(simErr, "InsufficientFundsForRent") {
				return common.Permanent(fmt.Errorf("%w: %s", common.ErrInsufficientFundsForRent, simErr))
			}
			log.Warn().Str("err", simErr).Msg("[priority] simulation reported failure")
			return fmt.Errorf("simulation failed: %s", simErr)
		}

		if resp.Value.UnitsConsumed == nil || *resp.Value.UnitsConsumed == 0 {
			return fmt.Errorf("simulation reported no compute usage")
		}
		consumed = *resp.Value.UnitsConsumed
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrInsufficientFundsForRent) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", common.ErrSimulationExhausted, err)
	}

	limit := (consumed*cuHeadroomNum + cuHeadroomDen - 1) / cuHeadroomDen
	if limit > MaxComputeUnits {
		limit = MaxComputeUnits
	}
	return uint32(limit), nil
}
