// Package priority sizes the compute budget of a swap: the unit price
// from recent network fees and the unit limit from simulation.
package priority

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/metrics"
)

const (
	// DefaultFeeMicroLamports is used whenever the fee surface is
	// unreachable or returns no usable samples.
	DefaultFeeMicroLamports = 10_000

	// maxFeeSamples bounds how many recent slots feed the average.
	maxFeeSamples = 150
)

// RecentFeeSource is the slice of the RPC surface the estimator needs.
type RecentFeeSource interface {
	GetRecentPrioritizationFees(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error)
}

// FeeEstimator derives a per-compute-unit price from recently landed
// transactions. It is advisory: every failure path degrades to the
// default price instead of failing the swap.
type FeeEstimator struct {
	source RecentFeeSource
}

func NewFeeEstimator(source RecentFeeSource) *FeeEstimator {
	return &FeeEstimator{source: source}
}

// EstimateUnitPrice returns the mean of the most recent fee samples in
// microlamports per compute unit. Zero samples count toward the mean:
// quiet slots pull the price down.
func (f *FeeEstimator) EstimateUnitPrice(ctx context.Context, accounts solana.PublicKeySlice) uint64 {
	recentFees, err := f.source.GetRecentPrioritizationFees(ctx, accounts)
	if err != nil {
		log.Warn().Err(err).Msg("[priority] recent fee fetch failed, using default")
		metrics.PriorityFeeMicroLamports.Set(DefaultFeeMicroLamports)
		return DefaultFeeMicroLamports
	}

	if len(recentFees) > maxFeeSamples {
		recentFees = recentFees[len(recentFees)-maxFeeSamples:]
	}
	if len(recentFees) == 0 {
		metrics.PriorityFeeMicroLamports.Set(DefaultFeeMicroLamports)
		return DefaultFeeMicroLamports
	}

	var sum uint64
	for _, fee := range recentFees {
		sum += fee.PrioritizationFee
	}

	price := sum / uint64(len(recentFees))
	metrics.PriorityFeeMicroLamports.Set(float64(price))
	return price
}
