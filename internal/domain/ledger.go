package domain

import "time"

// TokenHolding is one cached position inside a wallet ledger entry.
// UnitCostLamports is derived from a measured buy (spend / received) and is
// presentation input only; quantities are always integer base units.
type TokenHolding struct {
	Mint string `json:"mint"`

	// Amount in token base units.
	Amount uint64 `json:"amount"`

	UnitCostLamports float64 `json:"unitCostLamports"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// WalletLedgerEntry is the cached balance view for one owner. It is an
// authoritative cache, not ground truth: mutated only from measured
// on-chain deltas and fully rebuildable from chain state.
type WalletLedgerEntry struct {
	OwnerID string `json:"ownerId"`

	PublicKey string `json:"publicKey"`

	// Lamports is the cached native-asset balance in base units.
	Lamports uint64 `json:"lamports"`

	Holdings []TokenHolding `json:"holdings,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Holding returns the holding for mint, or nil.
func (e *WalletLedgerEntry) Holding(mint string) *TokenHolding {
	for i := range e.Holdings {
		if e.Holdings[i].Mint == mint {
			return &e.Holdings[i]
		}
	}
	return nil
}

// UpsertHolding replaces or appends the holding for h.Mint.
func (e *WalletLedgerEntry) UpsertHolding(h TokenHolding) {
	for i := range e.Holdings {
		if e.Holdings[i].Mint == h.Mint {
			e.Holdings[i] = h
			return
		}
	}
	e.Holdings = append(e.Holdings, h)
}

// RemoveHolding deletes the holding for mint if present.
func (e *WalletLedgerEntry) RemoveHolding(mint string) {
	for i := range e.Holdings {
		if e.Holdings[i].Mint == mint {
			e.Holdings = append(e.Holdings[:i], e.Holdings[i+1:]...)
			return
		}
	}
}
