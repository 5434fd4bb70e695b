// Package transaction stages a GM's roster moves for one org and submits
// them as a single batch.
package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omarshaarawi/rosterbot/internal/metrics"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
	"github.com/omarshaarawi/rosterbot/internal/roster"
)

// Backend bundles the collaborators ledgers validate and submit against.
type Backend struct {
	Validator *roster.Validator
	Store     repository.TransactionStore
	League    repository.LeagueClock
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

func (b Backend) clock() clockwork.Clock {
	if b.Clock == nil {
		return clockwork.NewRealClock()
	}
	return b.Clock
}

func (b Backend) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// Ledger is one GM's staging area for one org: an ordered list of moves
// holding at most one move per player.
type Ledger struct {
	mu       sync.Mutex
	backend  Backend
	owner    int64
	org      models.Org
	season   int
	moves    []models.Move
	lastUsed time.Time
}

func NewLedger(backend Backend, owner int64, org models.Org, season int) *Ledger {
	return &Ledger{
		backend:  backend,
		owner:    owner,
		org:      org,
		season:   season,
		moves:    []models.Move{},
		lastUsed: backend.clock().Now(),
	}
}

func (l *Ledger) Owner() int64    { return l.owner }
func (l *Ledger) Org() models.Org { return l.org }
func (l *Ledger) Season() int     { return l.season }

func (l *Ledger) AddMove(m models.Move) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()

	if m.IsNoOp() {
		return Reject(KindNoOp, "%s would stay on %s %s", m.Player.Name, m.ToOrg.Abbrev(), m.ToSlot.Short())
	}
	if m.ToOrg.Contains(m.Player.Team) && m.Player.Team.RosterSlot() == m.ToSlot {
		return Reject(KindNoOp, "%s is already on %s", m.Player.Name, m.Player.Team.Abbrev)
	}
	for _, existing := range l.moves {
		if existing.Player.ID == m.Player.ID {
			return Reject(KindDuplicatePlayer, "%s already has a move in this transaction", m.Player.Name)
		}
	}

	l.moves = append(l.moves, m)
	return nil
}

func (l *Ledger) RemoveMove(playerID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()

	for i, m := range l.moves {
		if m.Player.ID == playerID {
			l.moves = append(l.moves[:i:i], l.moves[i+1:]...)
			return true
		}
	}
	return false
}

// Moves returns a copy of the staged moves in the order they were added.
func (l *Ledger) Moves() []models.Move {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Move(nil), l.moves...)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.moves)
}

func (l *Ledger) HasPlayer(playerID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.moves {
		if m.Player.ID == playerID {
			return true
		}
	}
	return false
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()
	l.moves = []models.Move{}
}

func (l *Ledger) Validate(ctx context.Context) (models.ValidationResult, error) {
	return l.ValidateForWeek(ctx, 0)
}

// ValidateForWeek also counts frozen transactions already scheduled for week.
func (l *Ledger) ValidateForWeek(ctx context.Context, week int) (models.ValidationResult, error) {
	moves := l.Moves()
	return l.backend.Validator.Validate(ctx, l.org, moves, week)
}

// Submit validates the staged moves for week and hands them to the store as
// one batch. The ledger is emptied only when the store accepts the batch.
func (l *Ledger) Submit(ctx context.Context, week int) ([]models.FinalizedTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()

	created, err := l.submit(ctx, week)
	switch {
	case err == nil:
		metrics.RecordSubmission("ledger", "ok")
	case IsRejection(err):
		metrics.RecordSubmission("ledger", "rejected")
	default:
		metrics.RecordSubmission("ledger", "error")
	}
	return created, err
}

func (l *Ledger) submit(ctx context.Context, week int) ([]models.FinalizedTransaction, error) {
	if len(l.moves) == 0 {
		return nil, Reject(KindEmpty, "no moves staged for %s", l.org.Abbrev())
	}

	moves := append([]models.Move(nil), l.moves...)
	result, err := l.backend.Validator.Validate(ctx, l.org, moves, week)
	if err != nil {
		return nil, fmt.Errorf("error validating transaction: %w", err)
	}
	if !result.Legal {
		r := Reject(KindIllegalRoster, "transaction would leave %s with an illegal roster", l.org.Abbrev())
		r.Errors = append(r.Errors, result.Errors...)
		return nil, r
	}

	state, err := l.backend.League.GetCurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching league state: %w", err)
	}

	batch := Batch{
		Key:     NewBatchKey(l.season, week, l.backend.clock().Now()),
		Week:    week,
		Season:  l.season,
		OwnerID: l.owner,
		Frozen:  state.Frozen,
	}
	created, err := l.backend.Store.CreateBatch(ctx, batch.Finalize(moves))
	if err != nil {
		return nil, fmt.Errorf("error creating transaction batch %s: %w", batch.Key, err)
	}

	l.backend.logger().Info("Submitted transaction",
		"org", l.org.Abbrev(), "owner", l.owner, "week", week, "moveid", batch.Key, "moves", models.Describe(moves), "frozen", batch.Frozen)
	l.moves = []models.Move{}
	return created, nil
}

func (l *Ledger) touch() {
	l.lastUsed = l.backend.clock().Now()
}

// idleSince reports when the ledger was last used, or false when another
// goroutine holds it.
func (l *Ledger) idleSince() (time.Time, bool) {
	if !l.mu.TryLock() {
		return time.Time{}, false
	}
	defer l.mu.Unlock()
	return l.lastUsed, true
}
