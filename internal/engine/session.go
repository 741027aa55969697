package engine

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/metrics"
)

type session struct {
	signer   solana.PrivateKey
	lastSeen time.Time
}

// SessionRegistry holds per-owner signing keys with idle eviction. A signer
// is touched on every lookup, so an active owner never expires mid-trade.
type SessionRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*session

	stop chan struct{}
	once sync.Once
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		ttl:      ttl,
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
	}
}

// Start launches the eviction loop.
func (r *SessionRegistry) Start() {
	interval := r.ttl / 10
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case now := <-ticker.C:
				if n := r.evictExpired(now); n > 0 {
					log.Info().Int("evicted", n).Msg("[SessionRegistry] expired idle sessions")
				}
			}
		}
	}()
}

func (r *SessionRegistry) Close() {
	r.once.Do(func() { close(r.stop) })
}

// Put registers or refreshes the signer for ownerID.
func (r *SessionRegistry) Put(ownerID string, signer solana.PrivateKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[ownerID] = &session{signer: signer, lastSeen: time.Now()}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Signer returns the live signer for ownerID and refreshes its idle timer.
func (r *SessionRegistry) Signer(ownerID string) (solana.PrivateKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ownerID]
	if !ok {
		return nil, false
	}
	s.lastSeen = time.Now()
	return s.signer, true
}

// Drop removes the session for ownerID.
func (r *SessionRegistry) Drop(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, ownerID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) evictExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.ttl {
			delete(r.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	return evicted
}
