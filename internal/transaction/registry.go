package transaction

import (
	"context"
	"sync"
	"time"

	"github.com/omarshaarawi/rosterbot/internal/metrics"
	"github.com/omarshaarawi/rosterbot/internal/models"
)

const DefaultIdleTTL = 24 * time.Hour

type ledgerKey struct {
	owner int64
	orgID int
}

// Registry holds each GM's open ledgers. A ledger leaves the registry when it
// is cleared, when its submission succeeds, or when Sweep finds it idle for
// longer than the TTL.
type Registry struct {
	mu      sync.Mutex
	backend Backend
	ttl     time.Duration
	ledgers map[ledgerKey]*Ledger
}

func NewRegistry(backend Backend, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		backend: backend,
		ttl:     ttl,
		ledgers: make(map[ledgerKey]*Ledger),
	}
}

// Get returns the owner's ledger for org, creating an empty one on first use.
func (r *Registry) Get(owner int64, org models.Org, season int) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ledgerKey{owner: owner, orgID: org.ID()}
	l, ok := r.ledgers[key]
	if !ok {
		l = NewLedger(r.backend, owner, org, season)
		r.ledgers[key] = l
		metrics.SetRegistrySize("ledgers", len(r.ledgers))
	}
	return l
}

func (r *Registry) Lookup(owner int64, orgID int) (*Ledger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[ledgerKey{owner: owner, orgID: orgID}]
	return l, ok
}

// Clear empties and discards the owner's ledger for org. Nothing persisted is
// touched.
func (r *Registry) Clear(owner int64, orgID int) {
	r.mu.Lock()
	key := ledgerKey{owner: owner, orgID: orgID}
	l, ok := r.ledgers[key]
	if ok {
		delete(r.ledgers, key)
		metrics.SetRegistrySize("ledgers", len(r.ledgers))
	}
	r.mu.Unlock()

	if ok {
		l.Clear()
	}
}

// Submit submits the owner's ledger for org and discards it on success.
func (r *Registry) Submit(ctx context.Context, owner int64, orgID int, week int) ([]models.FinalizedTransaction, error) {
	l, ok := r.Lookup(owner, orgID)
	if !ok {
		return nil, Reject(KindEmpty, "no transaction staged")
	}

	created, err := l.Submit(ctx, week)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := ledgerKey{owner: owner, orgID: orgID}
	if r.ledgers[key] == l {
		delete(r.ledgers, key)
		metrics.SetRegistrySize("ledgers", len(r.ledgers))
	}
	return created, nil
}

// Sweep discards ledgers idle for longer than the TTL and returns how many
// were evicted. Ledgers in use are skipped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.backend.clock().Now()
	evicted := 0
	for key, l := range r.ledgers {
		lastUsed, ok := l.idleSince()
		if !ok || now.Sub(lastUsed) <= r.ttl {
			continue
		}
		delete(r.ledgers, key)
		evicted++
	}
	metrics.SetRegistrySize("ledgers", len(r.ledgers))
	if evicted > 0 {
		r.backend.logger().Info("Evicted idle ledgers", "count", evicted)
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ledgers)
}
