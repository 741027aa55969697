// Package submitter broadcasts prepared transactions, either straight to
// the RPC node or through a bundle relay.
package submitter

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/metrics"
)

// Submitter broadcasts one prepared transaction exactly once per call.
// Re-broadcast decisions belong to the pipeline, never to this layer.
type Submitter interface {
	Submit(ctx context.Context, prepared *domain.PreparedTransaction) (domain.SubmissionHandle, error)
}

// RawSender is the slice of the RPC surface direct submission needs.
type RawSender interface {
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error)
}

// DirectSubmitter ships the serialized transaction to the RPC node with
// preflight skipped: the pipeline already simulated, and a preflight
// re-simulation against a different node only adds a failure mode.
type DirectSubmitter struct {
	sender   RawSender
	attempts int
	delay    time.Duration
}

func NewDirectSubmitter(sender RawSender, attempts int, delay time.Duration) *DirectSubmitter {
	return &DirectSubmitter{sender: sender, attempts: attempts, delay: delay}
}

func (s *DirectSubmitter) Submit(ctx context.Context, prepared *domain.PreparedTransaction) (domain.SubmissionHandle, error) {
	var sig solana.Signature

	err := common.Retry(ctx, s.attempts, s.delay, func(ctx context.Context) error {
		got, err := s.sender.SendRawTransactionWithOpts(ctx, prepared.Serialized, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentProcessed,
		})
		if err != nil {
			log.Warn().Err(err).Str("signature", prepared.Signature.String()).Msg("[submitter] broadcast attempt failed")
			return err
		}
		sig = got
		return nil
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("direct", "rejected").Inc()
		return domain.SubmissionHandle{}, fmt.Errorf("%w: %v", common.ErrSubmissionRejected, err)
	}

	metrics.SubmissionsTotal.WithLabelValues("direct", "accepted").Inc()
	return domain.SubmissionHandle{
		Kind:      domain.SubmitDirect,
		Signature: sig,
	}, nil
}

// BundleSender enqueues transactions at the relay.
type BundleSender interface {
	SendBundle(ctx context.Context, txs []string) (string, error)
}

// BundledSubmitter wraps the transaction into a single-transaction bundle.
// The tip transfer must already be inside the transaction; the relay
// rejects tipless bundles.
type BundledSubmitter struct {
	relay    BundleSender
	attempts int
	delay    time.Duration
}

func NewBundledSubmitter(relay BundleSender, attempts int, delay time.Duration) *BundledSubmitter {
	return &BundledSubmitter{relay: relay, attempts: attempts, delay: delay}
}

func (s *BundledSubmitter) Submit(ctx context.Context, prepared *domain.PreparedTransaction) (domain.SubmissionHandle, error) {
	encoded := base64.StdEncoding.EncodeToString(prepared.Serialized)

	var bundleID string
	err := common.Retry(ctx, s.attempts, s.delay, func(ctx context.Context) error {
		got, err := s.relay.SendBundle(ctx, []string{encoded})
		if err != nil {
			log.Warn().Err(err).Str("signature", prepared.Signature.String()).Msg("[submitter] bundle enqueue failed")
			return err
		}
		bundleID = got
		return nil
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("bundled", "rejected").Inc()
		return domain.SubmissionHandle{}, fmt.Errorf("%w: %v", common.ErrSubmissionRejected, err)
	}

	metrics.SubmissionsTotal.WithLabelValues("bundled", "accepted").Inc()
	return domain.SubmissionHandle{
		Kind:      domain.SubmitBundled,
		Signature: prepared.Signature,
		BundleID:  bundleID,
	}, nil
}
