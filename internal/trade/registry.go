package trade

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omarshaarawi/rosterbot/internal/lock"
	"github.com/omarshaarawi/rosterbot/internal/metrics"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/transaction"
)

// Registry holds open negotiations by id. Accepted trades leave the registry,
// as do trades Sweep finds idle for longer than the TTL.
type Registry struct {
	mu      sync.Mutex
	backend transaction.Backend
	players PlayerSource
	locker  lock.Locker
	ttl     time.Duration
	trades  map[string]*Negotiation
}

func NewRegistry(backend transaction.Backend, players PlayerSource, locker lock.Locker, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = transaction.DefaultIdleTTL
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Registry{
		backend: backend,
		players: players,
		locker:  locker,
		ttl:     ttl,
		trades:  make(map[string]*Negotiation),
	}
}

// Start opens a draft trade with org as its first participant.
func (r *Registry) Start(initiatedBy int64, org models.Org, season int) *Negotiation {
	n := newNegotiation(uuid.NewString(), initiatedBy, org, season, r.backend, r.players, r.locker)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[n.ID()] = n
	metrics.SetRegistrySize("trades", len(r.trades))
	return n
}

func (r *Registry) Get(id string) (*Negotiation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.trades[id]
	return n, ok
}

// ForOrg lists the open trades orgID takes part in.
func (r *Registry) ForOrg(orgID int) []*Negotiation {
	r.mu.Lock()
	trades := make([]*Negotiation, 0, len(r.trades))
	for _, n := range r.trades {
		trades = append(trades, n)
	}
	r.mu.Unlock()

	out := trades[:0]
	for _, n := range trades {
		if n.IsParticipant(orgID) {
			out = append(out, n)
		}
	}
	return out
}

// Accept records orgID's acceptance of trade id and drops the trade once it
// has been submitted.
func (r *Registry) Accept(ctx context.Context, id string, orgID int) (bool, error) {
	n, ok := r.Get(id)
	if !ok {
		return false, transaction.Reject(transaction.KindInvalidState, "trade %s not found", id)
	}

	done, err := n.Accept(ctx, orgID)
	if err != nil || !done {
		return done, err
	}
	r.Discard(id)
	return true, nil
}

func (r *Registry) Discard(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trades[id]; ok {
		delete(r.trades, id)
		metrics.SetRegistrySize("trades", len(r.trades))
	}
}

// Sweep discards trades idle for longer than the TTL and returns how many
// were evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.backend.Clock != nil {
		now = r.backend.Clock.Now()
	}

	evicted := 0
	for id, n := range r.trades {
		lastUsed, ok := n.idleSince()
		if !ok || now.Sub(lastUsed) <= r.ttl {
			continue
		}
		delete(r.trades, id)
		evicted++
	}
	metrics.SetRegistrySize("trades", len(r.trades))
	if evicted > 0 && r.backend.Logger != nil {
		r.backend.Logger.Info("Evicted idle trades", "count", evicted)
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trades)
}
