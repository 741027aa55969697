package engine

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

func TestSessionRegistryPutAndSigner(t *testing.T) {
	reg := NewSessionRegistry(time.Hour)
	defer reg.Close()

	key := solana.NewWallet().PrivateKey
	reg.Put("owner-1", key)

	got, ok := reg.Signer("owner-1")
	if !ok {
		t.Fatalf("expected session for owner-1")
	}
	if got.PublicKey() != key.PublicKey() {
		t.Fatalf("wrong signer returned")
	}
	if _, ok := reg.Signer("owner-2"); ok {
		t.Fatalf("unexpected session for unknown owner")
	}
}

func TestSessionRegistryDrop(t *testing.T) {
	reg := NewSessionRegistry(time.Hour)
	defer reg.Close()

	reg.Put("owner-1", solana.NewWallet().PrivateKey)
	reg.Drop("owner-1")
	if _, ok := reg.Signer("owner-1"); ok {
		t.Fatalf("dropped session still resolvable")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestSessionRegistryEvictsIdleOnly(t *testing.T) {
	reg := NewSessionRegistry(time.Minute)
	defer reg.Close()

	reg.Put("idle", solana.NewWallet().PrivateKey)
	reg.Put("active", solana.NewWallet().PrivateKey)

	// Lookup refreshes the idle timer.
	reg.mu.Lock()
	reg.sessions["idle"].lastSeen = time.Now().Add(-2 * time.Minute)
	reg.mu.Unlock()
	if _, ok := reg.Signer("active"); !ok {
		t.Fatalf("expected active session")
	}

	if n := reg.evictExpired(time.Now()); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := reg.Signer("idle"); ok {
		t.Fatalf("idle session survived eviction")
	}
	if _, ok := reg.Signer("active"); !ok {
		t.Fatalf("active session evicted")
	}
}
