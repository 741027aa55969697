// Package tracker follows a submitted transaction to a terminal
// confirmation state within a bounded polling window.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/metrics"
	"github.com/solstream/trade-engine/internal/services/submitter"
)

// Observation is one poll's view of the submission.
type Observation struct {
	State domain.ConfirmationState
	Err   string
}

// StatusPoller answers "where is this submission now". A submission the
// cluster has not seen yet reports StateSubmitted, not an error.
type StatusPoller interface {
	Poll(ctx context.Context, handle domain.SubmissionHandle) (Observation, error)
}

// Tracker drives a StatusPoller until the submission reaches a terminal
// state or the window closes. Every poll consumes one attempt whether or
// not it reached the cluster, so the worst case is exactly
// attempts x interval.
type Tracker struct {
	attempts int
	interval time.Duration
}

func New(attempts int, interval time.Duration) *Tracker {
	return &Tracker{attempts: attempts, interval: interval}
}

// Await polls until Finalized, Failed, or window exhaustion. Exhaustion
// returns StateExpired with ErrConfirmationExpired: the transaction may
// still land later, which is the reconciler's problem, not the tracker's.
func (t *Tracker) Await(ctx context.Context, poller StatusPoller, handle domain.SubmissionHandle) (domain.ConfirmationState, error) {
	state := domain.StateSubmitted

	for i := 0; i < t.attempts; i++ {
		if i > 0 {
			if err := common.Sleep(ctx, t.interval); err != nil {
				return state, err
			}
		}

		metrics.ConfirmationPolls.Inc()
		obs, err := poller.Poll(ctx, handle)
		if err != nil {
			log.Warn().Err(err).Str("signature", handle.Signature.String()).Msg("[tracker] status poll failed")
			continue
		}

		if obs.State > state || obs.State.Terminal() {
			state = obs.State
		}

		switch {
		case state == domain.StateFailed:
			metrics.ConfirmationOutcomes.WithLabelValues(state.String()).Inc()
			return state, fmt.Errorf("%w: %s", common.ErrExecutionFailed, obs.Err)
		case state == domain.StateFinalized:
			metrics.ConfirmationOutcomes.WithLabelValues(state.String()).Inc()
			return state, nil
		}
	}

	metrics.ConfirmationOutcomes.WithLabelValues(domain.StateExpired.String()).Inc()
	return domain.StateExpired, fmt.Errorf("%w: signature %s after %d polls",
		common.ErrConfirmationExpired, handle.Signature, t.attempts)
}

// SignatureStatusSource is the slice of the RPC surface signature polling
// needs.
type SignatureStatusSource interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SignaturePoller follows a directly broadcast transaction by signature.
type SignaturePoller struct {
	source SignatureStatusSource
}

func NewSignaturePoller(source SignatureStatusSource) *SignaturePoller {
	return &SignaturePoller{source: source}
}

func (p *SignaturePoller) Poll(ctx context.Context, handle domain.SubmissionHandle) (Observation, error) {
	out, err := p.source.GetSignatureStatuses(ctx, false, handle.Signature)
	if err != nil {
		return Observation{}, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return Observation{State: domain.StateSubmitted}, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return Observation{
			State: domain.StateFailed,
			Err:   fmt.Sprintf("%v", status.Err),
		}, nil
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return Observation{State: domain.StateFinalized}, nil
	case rpc.ConfirmationStatusConfirmed:
		return Observation{State: domain.StateConfirmed}, nil
	case rpc.ConfirmationStatusProcessed:
		return Observation{State: domain.StateProcessed}, nil
	default:
		return Observation{State: domain.StateSubmitted}, nil
	}
}

// BundleStatusSource is the relay surface bundle polling needs.
type BundleStatusSource interface {
	GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]submitter.BundleStatus, error)
}

// BundlePoller follows a relayed submission by bundle id. A bundle the
// relay no longer reports is treated as still in flight; the window
// bound decides when to give up.
type BundlePoller struct {
	source BundleStatusSource
}

func NewBundlePoller(source BundleStatusSource) *BundlePoller {
	return &BundlePoller{source: source}
}

func (p *BundlePoller) Poll(ctx context.Context, handle domain.SubmissionHandle) (Observation, error) {
	statuses, err := p.source.GetBundleStatuses(ctx, []string{handle.BundleID})
	if err != nil {
		return Observation{}, err
	}

	for _, status := range statuses {
		if status.BundleID != handle.BundleID {
			continue
		}
		if status.Failed() {
			return Observation{
				State: domain.StateFailed,
				Err:   status.FailureDetail(),
			}, nil
		}
		switch status.ConfirmationStatus {
		case "finalized":
			return Observation{State: domain.StateFinalized}, nil
		case "confirmed":
			return Observation{State: domain.StateConfirmed}, nil
		case "processed":
			return Observation{State: domain.StateProcessed}, nil
		case "failed":
			return Observation{
				State: domain.StateFailed,
				Err:   fmt.Sprintf("relay reported bundle %s failed", handle.BundleID),
			}, nil
		}
	}
	return Observation{State: domain.StateSubmitted}, nil
}
