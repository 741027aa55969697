// Package reconciler settles finished swaps into the wallet ledger from
// measured on-chain deltas, never from quoted amounts.
package reconciler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/metrics"
)

// FetchedTransaction is the balance-relevant slice of a finalized
// transaction.
type FetchedTransaction struct {
	AccountKeys []solana.PublicKey

	Fee uint64

	// Err carries the on-chain execution error, nil on success.
	Err interface{}

	PreBalances  []uint64
	PostBalances []uint64

	PreTokenBalances  []rpc.TokenBalance
	PostTokenBalances []rpc.TokenBalance
}

// TransactionFetcher loads a finalized transaction with its balance meta.
type TransactionFetcher interface {
	Fetch(ctx context.Context, sig solana.Signature) (*FetchedTransaction, error)
}

// RPCFetcher reads finalized transactions from the ledger RPC surface.
type RPCFetcher struct {
	rpcClient *rpc.Client
}

func NewRPCFetcher(rpcClient *rpc.Client) *RPCFetcher {
	return &RPCFetcher{rpcClient: rpcClient}
}

func (f *RPCFetcher) Fetch(ctx context.Context, sig solana.Signature) (*FetchedTransaction, error) {
	maxVersion := uint64(0)
	out, err := f.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Meta == nil {
		return nil, fmt.Errorf("transaction %s has no balance meta", sig)
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}
	return &FetchedTransaction{
		AccountKeys:       tx.Message.AccountKeys,
		Fee:               out.Meta.Fee,
		Err:               out.Meta.Err,
		PreBalances:       out.Meta.PreBalances,
		PostBalances:      out.Meta.PostBalances,
		PreTokenBalances:  out.Meta.PreTokenBalances,
		PostTokenBalances: out.Meta.PostTokenBalances,
	}, nil
}

// LedgerStore is the persistence surface the reconciler mutates. The store
// serializes writers per owner and enforces signature idempotence:
// ApplyReconciliation returns false without calling apply when the
// signature was already settled.
type LedgerStore interface {
	ApplyReconciliation(ctx context.Context, ownerID string, sig solana.Signature, apply func(*domain.WalletLedgerEntry) error) (bool, error)
	Save(ctx context.Context, entry *domain.WalletLedgerEntry) error
}

// ChainStateSource is the RPC slice a full ledger rebuild needs.
type ChainStateSource interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
}

// Settlement is the measured outcome of one finalized swap.
type Settlement struct {
	Signature solana.Signature

	// SpentLamports / ReceivedLamports are the owner's native balance
	// change, transaction fee included. At most one is non-zero.
	SpentLamports    uint64
	ReceivedLamports uint64

	// TokenDelta is the absolute change of the traded mint's balance.
	TokenDelta uint64

	FeeLamports uint64

	// Applied is false when the signature was already reconciled.
	Applied bool
}

// Reconciler applies measured deltas to the ledger.
type Reconciler struct {
	fetcher TransactionFetcher
	chain   ChainStateSource
	store   LedgerStore
}

func New(fetcher TransactionFetcher, chain ChainStateSource, store LedgerStore) *Reconciler {
	return &Reconciler{fetcher: fetcher, chain: chain, store: store}
}

// Reconcile reads the finalized transaction named by sig and folds its
// measured effects into the owner's ledger entry. Running it twice for the
// same signature applies the mutation exactly once.
func (r *Reconciler) Reconcile(ctx context.Context, req *domain.SwapRequest, sig solana.Signature) (*Settlement, error) {
	fetched, err := r.fetcher.Fetch(ctx, sig)
	if err != nil {
		metrics.Reconciliations.WithLabelValues("fetch_error").Inc()
		return nil, fmt.Errorf("fetch transaction %s: %w", sig, err)
	}

	owner := req.Signer.PublicKey()
	ownerIdx := -1
	for i, key := range fetched.AccountKeys {
		if key.Equals(owner) {
			ownerIdx = i
			break
		}
	}
	if ownerIdx < 0 || ownerIdx >= len(fetched.PreBalances) || ownerIdx >= len(fetched.PostBalances) {
		return nil, fmt.Errorf("owner %s not present in transaction %s", owner, sig)
	}

	pre := fetched.PreBalances[ownerIdx]
	post := fetched.PostBalances[ownerIdx]

	tradedMint := req.TradedMint()
	preToken := ownedTokenAmount(fetched.PreTokenBalances, owner, tradedMint)
	postToken := ownedTokenAmount(fetched.PostTokenBalances, owner, tradedMint)

	settlement := &Settlement{
		Signature:   sig,
		FeeLamports: fetched.Fee,
		Applied:     true,
	}
	if post < pre {
		settlement.SpentLamports = pre - post
	} else {
		settlement.ReceivedLamports = post - pre
	}
	if postToken > preToken {
		settlement.TokenDelta = postToken - preToken
	} else {
		settlement.TokenDelta = preToken - postToken
	}

	applied, err := r.store.ApplyReconciliation(ctx, req.OwnerID, sig, func(entry *domain.WalletLedgerEntry) error {
		entry.PublicKey = owner.String()
		entry.Lamports = post
		entry.UpdatedAt = time.Now()

		if fetched.Err != nil {
			// Failed on chain: only the fee moved, holdings are untouched.
			return nil
		}

		mint := tradedMint.String()
		switch {
		case postToken > preToken:
			gained := postToken - preToken
			holding := domain.TokenHolding{
				Mint:      mint,
				Amount:    gained,
				UpdatedAt: time.Now(),
			}
			if prev := entry.Holding(mint); prev != nil {
				holding.Amount = prev.Amount + gained
				holding.UnitCostLamports = weightedUnitCost(prev.Amount, prev.UnitCostLamports, gained, settlement.SpentLamports)
			} else if gained > 0 {
				holding.UnitCostLamports = float64(settlement.SpentLamports) / float64(gained)
			}
			entry.UpsertHolding(holding)

		case preToken > postToken:
			sold := preToken - postToken
			prev := entry.Holding(mint)
			if prev == nil {
				break
			}
			if prev.Amount <= sold {
				entry.RemoveHolding(mint)
				break
			}
			prev.Amount -= sold
			prev.UpdatedAt = time.Now()
		}
		return nil
	})
	if err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", common.ErrLedgerWriteConflict, err)
	}
	if !applied {
		metrics.Reconciliations.WithLabelValues("duplicate").Inc()
		settlement.Applied = false
		return settlement, nil
	}

	metrics.Reconciliations.WithLabelValues("applied").Inc()
	log.Info().
		Str("owner", req.OwnerID).
		Str("signature", sig.String()).
		Uint64("spent", settlement.SpentLamports).
		Uint64("received", settlement.ReceivedLamports).
		Uint64("token_delta", settlement.TokenDelta).
		Msg("[reconciler] ledger settled")
	return settlement, nil
}

// Rebuild discards the cached entry and reconstructs it from live chain
// state: native balance plus every token account the owner holds. Unit
// costs are unknowable from a snapshot and reset to zero.
func (r *Reconciler) Rebuild(ctx context.Context, ownerID string, owner solana.PublicKey) (*domain.WalletLedgerEntry, error) {
	balance, err := r.chain.GetBalance(ctx, owner, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("fetch balance for %s: %w", owner, err)
	}

	entry := &domain.WalletLedgerEntry{
		OwnerID:   ownerID,
		PublicKey: owner.String(),
		Lamports:  balance.Value,
		UpdatedAt: time.Now(),
	}

	// Holdings live under either token program; scan both.
	for _, program := range []solana.PublicKey{common.TokenProgramID, common.Token2022ID} {
		if err := r.collectHoldings(ctx, owner, program, entry); err != nil {
			return nil, err
		}
	}

	if err := r.store.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrLedgerWriteConflict, err)
	}
	metrics.Reconciliations.WithLabelValues("rebuilt").Inc()
	return entry, nil
}

func (r *Reconciler) collectHoldings(ctx context.Context, owner, program solana.PublicKey, entry *domain.WalletLedgerEntry) error {
	accounts, err := r.chain.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &program},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return fmt.Errorf("fetch token accounts for %s: %w", owner, err)
	}

	for _, acc := range accounts.Value {
		data := acc.Account.Data.GetBinary()
		if len(data) == 0 {
			continue
		}
		// Token-2022 accounts carry the same base layout, extensions trail it.
		var parsed token.Account
		if err := bin.NewBinDecoder(data).Decode(&parsed); err != nil {
			log.Warn().Err(err).Str("account", acc.Pubkey.String()).Msg("[reconciler] undecodable token account skipped")
			continue
		}
		if parsed.Amount == 0 {
			continue
		}
		entry.UpsertHolding(domain.TokenHolding{
			Mint:      parsed.Mint.String(),
			Amount:    parsed.Amount,
			UpdatedAt: time.Now(),
		})
	}
	return nil
}

func ownedTokenAmount(balances []rpc.TokenBalance, owner, mint solana.PublicKey) uint64 {
	var total uint64
	for _, b := range balances {
		if b.Owner == nil || !b.Owner.Equals(owner) || !b.Mint.Equals(mint) {
			continue
		}
		if b.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		total += amount
	}
	return total
}

// weightedUnitCost folds a new lot into an existing position's average
// acquisition cost.
func weightedUnitCost(prevAmount uint64, prevCost float64, gained, spent uint64) float64 {
	total := prevAmount + gained
	if total == 0 {
		return 0
	}
	return (float64(prevAmount)*prevCost + float64(spent)) / float64(total)
}
