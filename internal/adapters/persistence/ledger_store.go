// Package persistence keeps the wallet ledger on disk. BoltDB holds the
// durable copy; a write-through in-memory view serves reads.
package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/domain"
)

const (
	LedgerBucket     = "wallet_ledger"
	ReconciledBucket = "reconciled_signatures"

	DefaultDBPath = "./data/trade-engine.db"
)

// reconciledMark records which settlement produced a ledger mutation.
type reconciledMark struct {
	OwnerID   string    `json:"ownerId"`
	SettledAt time.Time `json:"settledAt"`
}

// LedgerStore serializes all writes per owner: two pipelines finishing for
// the same wallet never interleave their read-modify-write cycles.
type LedgerStore struct {
	db     *boltdb.BoltDatabase
	dbPath string

	mu         sync.Mutex
	ownerLocks map[string]*sync.Mutex
	entries    map[string]*domain.WalletLedgerEntry
	reconciled map[string]struct{}
}

func NewLedgerStore(dbPath string) (*LedgerStore, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	os.MkdirAll(filepath.Dir(dbPath), 0755)

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	s := &LedgerStore{
		db:         db,
		dbPath:     dbPath,
		ownerLocks: make(map[string]*sync.Mutex),
		entries:    make(map[string]*domain.WalletLedgerEntry),
		reconciled: make(map[string]struct{}),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", dbPath).
		Int("owners", len(s.entries)).
		Int("settled_signatures", len(s.reconciled)).
		Msg("[ledgerStore] opened database")
	return s, nil
}

func (s *LedgerStore) load() error {
	entries, err := s.db.List(LedgerBucket)
	if err != nil {
		return fmt.Errorf("failed to list ledger entries: %w", err)
	}
	for ownerID, value := range entries {
		var entry domain.WalletLedgerEntry
		if err := sonic.Unmarshal(value, &entry); err != nil {
			log.Error().Str("owner", ownerID).Err(err).Msg("[ledgerStore] failed to unmarshal entry, skipping")
			continue
		}
		s.entries[ownerID] = &entry
	}

	marks, err := s.db.List(ReconciledBucket)
	if err != nil {
		return fmt.Errorf("failed to list reconciled signatures: %w", err)
	}
	for sig := range marks {
		s.reconciled[sig] = struct{}{}
	}
	return nil
}

func (s *LedgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *LedgerStore) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.ownerLocks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.ownerLocks[ownerID] = lock
	}
	return lock
}

// Get returns a copy of the owner's entry, or nil when none exists yet.
func (s *LedgerStore) Get(_ context.Context, ownerID string) (*domain.WalletLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ownerID]
	if !ok {
		return nil, nil
	}
	return copyEntry(entry), nil
}

// List returns copies of every ledger entry.
func (s *LedgerStore) List(_ context.Context) ([]*domain.WalletLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.WalletLedgerEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, copyEntry(entry))
	}
	return out, nil
}

// Save replaces the owner's entry wholesale. Used by rebuilds; swap
// settlements go through ApplyReconciliation.
func (s *LedgerStore) Save(_ context.Context, entry *domain.WalletLedgerEntry) error {
	lock := s.ownerLock(entry.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.persistEntry(entry); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[entry.OwnerID] = copyEntry(entry)
	s.mu.Unlock()
	return nil
}

// ApplyReconciliation runs apply against the owner's entry under the
// owner's lock, once per signature. Returns false without calling apply
// when sig was already settled.
func (s *LedgerStore) ApplyReconciliation(_ context.Context, ownerID string, sig solana.Signature, apply func(*domain.WalletLedgerEntry) error) (bool, error) {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	sigKey := sig.String()

	s.mu.Lock()
	_, done := s.reconciled[sigKey]
	entry, ok := s.entries[ownerID]
	s.mu.Unlock()
	if done {
		return false, nil
	}

	var work *domain.WalletLedgerEntry
	if ok {
		work = copyEntry(entry)
	} else {
		work = &domain.WalletLedgerEntry{OwnerID: ownerID}
	}

	if err := apply(work); err != nil {
		return false, err
	}

	mark, err := sonic.Marshal(reconciledMark{OwnerID: ownerID, SettledAt: time.Now()})
	if err != nil {
		return false, err
	}
	entryData, err := sonic.Marshal(work)
	if err != nil {
		return false, fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	batch := s.db.NewBatch()
	for _, op := range []*boltdb.WriteOperation{
		{Bucket: []byte(LedgerBucket), Key: []byte(ownerID), Value: &entryData, Op: boltdb.OpSet},
		{Bucket: []byte(ReconciledBucket), Key: []byte(sigKey), Value: &mark, Op: boltdb.OpSet},
	} {
		if err := batch.Add(op); err != nil {
			return false, err
		}
	}
	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Str("owner", ownerID).Msg("[ledgerStore] FAILED to persist settlement")
		return false, err
	}

	s.mu.Lock()
	s.entries[ownerID] = work
	s.reconciled[sigKey] = struct{}{}
	s.mu.Unlock()
	return true, nil
}

func (s *LedgerStore) persistEntry(entry *domain.WalletLedgerEntry) error {
	data, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	return s.db.Set(LedgerBucket, []byte(entry.OwnerID), data)
}

func copyEntry(entry *domain.WalletLedgerEntry) *domain.WalletLedgerEntry {
	out := *entry
	out.Holdings = make([]domain.TokenHolding, len(entry.Holdings))
	copy(out.Holdings, entry.Holdings)
	return &out
}
