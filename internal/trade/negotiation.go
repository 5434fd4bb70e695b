// Package trade coordinates multi-team trades: each participating org stages
// its side in its own ledger, and the trade is submitted as one batch once
// every participant accepts.
package trade

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/omarshaarawi/rosterbot/internal/lock"
	"github.com/omarshaarawi/rosterbot/internal/metrics"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/transaction"
)

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusProposed Status = "PROPOSED"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

type PlayerSource interface {
	GetPlayer(ctx context.Context, playerID int) (models.Player, error)
}

// Participant is one org's side of a trade.
type Participant struct {
	Org           models.Org
	Giving        []models.Move
	Receiving     []models.Move
	Supplementary []models.Move

	ledger *transaction.Ledger
}

func (p *Participant) hasMoves() bool {
	return len(p.Giving)+len(p.Receiving)+len(p.Supplementary) > 0
}

func (p *Participant) snapshot() Participant {
	return Participant{
		Org:           p.Org,
		Giving:        append([]models.Move{}, p.Giving...),
		Receiving:     append([]models.Move{}, p.Receiving...),
		Supplementary: append([]models.Move{}, p.Supplementary...),
	}
}

type Negotiation struct {
	id          string
	initiatedBy int64
	season      int
	backend     transaction.Backend
	players     PlayerSource
	locker      lock.Locker

	mu            sync.Mutex
	status        Status
	participants  []*Participant
	crossOrg      []models.Move
	supplementary []models.Move
	accepted      map[int]struct{}
	finalized     []models.FinalizedTransaction
	lastUsed      time.Time
}

func newNegotiation(id string, initiatedBy int64, org models.Org, season int, backend transaction.Backend, players PlayerSource, locker lock.Locker) *Negotiation {
	n := &Negotiation{
		id:            id,
		initiatedBy:   initiatedBy,
		season:        season,
		backend:       backend,
		players:       players,
		locker:        locker,
		status:        StatusDraft,
		participants:  []*Participant{},
		crossOrg:      []models.Move{},
		supplementary: []models.Move{},
		accepted:      make(map[int]struct{}),
	}
	n.lastUsed = n.now()
	n.participants = append(n.participants, n.newParticipant(org))
	return n
}

func (n *Negotiation) newParticipant(org models.Org) *Participant {
	return &Participant{
		Org:           org,
		Giving:        []models.Move{},
		Receiving:     []models.Move{},
		Supplementary: []models.Move{},
		ledger:        transaction.NewLedger(n.backend, n.initiatedBy, org, n.season),
	}
}

func (n *Negotiation) ID() string         { return n.id }
func (n *Negotiation) InitiatedBy() int64 { return n.initiatedBy }
func (n *Negotiation) Season() int        { return n.season }

func (n *Negotiation) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Participants returns copies of every side in joining order.
func (n *Negotiation) Participants() []Participant {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Participant, len(n.participants))
	for i, p := range n.participants {
		out[i] = p.snapshot()
	}
	return out
}

func (n *Negotiation) CrossOrgMoves() []models.Move {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Move{}, n.crossOrg...)
}

func (n *Negotiation) SupplementaryMoves() []models.Move {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Move{}, n.supplementary...)
}

func (n *Negotiation) AcceptedOrgs() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int, 0, len(n.accepted))
	for id := range n.accepted {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (n *Negotiation) IsParticipant(orgID int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.participant(orgID) != nil
}

// Transactions returns what the store created when the trade was accepted.
func (n *Negotiation) Transactions() []models.FinalizedTransaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.FinalizedTransaction(nil), n.finalized...)
}

// mutate runs fn under the negotiation's lock.
func (n *Negotiation) mutate(ctx context.Context, fn func(context.Context) error) error {
	return n.locker.WithLock(ctx, "trade:"+n.id, func(ctx context.Context) error {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.lastUsed = n.now()
		return fn(ctx)
	})
}

// editable refuses edits to a finished trade and sends a proposed trade back
// to draft, since acceptances only cover the terms that were proposed.
func (n *Negotiation) editable() error {
	switch n.status {
	case StatusAccepted:
		return transaction.Reject(transaction.KindInvalidState, "trade %s has already been accepted", n.id)
	case StatusProposed, StatusRejected:
		n.status = StatusDraft
		clear(n.accepted)
	}
	return nil
}

func (n *Negotiation) AddTeam(ctx context.Context, org models.Org) error {
	return n.mutate(ctx, func(context.Context) error {
		if org.IsFreeAgency() {
			return transaction.Reject(transaction.KindInvalidState, "free agency cannot take part in a trade")
		}
		if n.participantFor(org) != nil {
			return transaction.Reject(transaction.KindAlreadyParticipant, "%s is already part of this trade", org.Abbrev())
		}
		if err := n.editable(); err != nil {
			return err
		}
		n.participants = append(n.participants, n.newParticipant(org))
		return nil
	})
}

func (n *Negotiation) RemoveTeam(ctx context.Context, orgID int) error {
	return n.mutate(ctx, func(context.Context) error {
		p := n.participant(orgID)
		if p == nil {
			return transaction.Reject(transaction.KindNotParticipant, "team %d is not part of this trade", orgID)
		}
		if p.hasMoves() {
			return transaction.Reject(transaction.KindHasMoves, "%s still has moves in this trade", p.Org.Abbrev())
		}
		if err := n.editable(); err != nil {
			return err
		}
		for i, q := range n.participants {
			if q == p {
				n.participants = append(n.participants[:i:i], n.participants[i+1:]...)
				break
			}
		}
		return nil
	})
}

// AddPlayerMove sends player from fromOrg to toOrg. Each side is mirrored into
// that org's ledger against free agency, so each org's roster math only sees
// its own roster.
func (n *Negotiation) AddPlayerMove(ctx context.Context, player models.Player, fromOrg, toOrg models.Org, fromSlot, toSlot models.RosterSlot) error {
	return n.mutate(ctx, func(ctx context.Context) error {
		current, err := n.players.GetPlayer(ctx, player.ID)
		if err != nil {
			return fmt.Errorf("error fetching player %d: %w", player.ID, err)
		}
		if !fromOrg.Contains(current.Team) {
			return transaction.Reject(transaction.KindWrongOrganization, "%s is on %s, not %s", current.Name, current.Team.Abbrev, fromOrg.Abbrev())
		}
		if current.IsFreeAgent() {
			return transaction.Reject(transaction.KindFreeAgent, "%s is a free agent; sign free agents with a transaction", current.Name)
		}

		giver := n.participantFor(fromOrg)
		if giver == nil {
			return transaction.Reject(transaction.KindNotParticipant, "%s is not part of this trade", fromOrg.Abbrev())
		}
		receiver := n.participantFor(toOrg)
		if receiver == nil {
			return transaction.Reject(transaction.KindNotParticipant, "%s is not part of this trade", toOrg.Abbrev())
		}
		move := models.Move{Player: current, FromSlot: fromSlot, ToSlot: toSlot, FromOrg: giver.Org, ToOrg: receiver.Org}
		if !move.IsCrossOrg() {
			return transaction.Reject(transaction.KindInvalidState, "%s cannot trade %s to itself", fromOrg.Abbrev(), current.Name)
		}
		if n.involves(current.ID) {
			return transaction.Reject(transaction.KindDuplicatePlayer, "%s is already part of this trade", current.Name)
		}
		if err := n.editable(); err != nil {
			return err
		}

		leaving := models.Move{Player: current, FromSlot: fromSlot, ToSlot: models.FreeAgency, FromOrg: giver.Org, ToOrg: models.FreeAgencyOrg}
		joining := models.Move{Player: current, FromSlot: models.FreeAgency, ToSlot: toSlot, FromOrg: models.FreeAgencyOrg, ToOrg: receiver.Org}

		if err := giver.ledger.AddMove(leaving); err != nil {
			return err
		}
		if err := receiver.ledger.AddMove(joining); err != nil {
			giver.ledger.RemoveMove(current.ID)
			return err
		}

		giver.Giving = append(giver.Giving, move)
		receiver.Receiving = append(receiver.Receiving, move)
		n.crossOrg = append(n.crossOrg, move)
		return nil
	})
}

// AddSupplementaryMove stages a move inside one org, such as a promotion to
// open a roster spot, or a release to free agency.
func (n *Negotiation) AddSupplementaryMove(ctx context.Context, org models.Org, player models.Player, fromSlot, toSlot models.RosterSlot) error {
	return n.mutate(ctx, func(ctx context.Context) error {
		p := n.participantFor(org)
		if p == nil {
			return transaction.Reject(transaction.KindNotParticipant, "%s is not part of this trade", org.Abbrev())
		}
		if fromSlot == models.FreeAgency {
			return transaction.Reject(transaction.KindFreeAgent, "%s is a free agent; sign free agents with a transaction", player.Name)
		}

		current, err := n.players.GetPlayer(ctx, player.ID)
		if err != nil {
			return fmt.Errorf("error fetching player %d: %w", player.ID, err)
		}
		if !p.Org.Contains(current.Team) {
			return transaction.Reject(transaction.KindWrongOrganization, "%s is on %s, not %s", current.Name, current.Team.Abbrev, p.Org.Abbrev())
		}
		if n.involves(current.ID) {
			return transaction.Reject(transaction.KindDuplicatePlayer, "%s is already part of this trade", current.Name)
		}

		toOrg := p.Org
		if toSlot == models.FreeAgency {
			toOrg = models.FreeAgencyOrg
		}
		move, err := models.NewMove(current, p.Org, fromSlot, toOrg, toSlot)
		if err != nil {
			return transaction.Reject(transaction.KindNoOp, "%s would stay on %s %s", current.Name, p.Org.Abbrev(), toSlot.Short())
		}
		if err := n.editable(); err != nil {
			return err
		}
		if err := p.ledger.AddMove(move); err != nil {
			return err
		}

		p.Supplementary = append(p.Supplementary, move)
		n.supplementary = append(n.supplementary, move)
		return nil
	})
}

// RemoveMove strips the player's move from every list and ledger it lives in.
func (n *Negotiation) RemoveMove(ctx context.Context, playerID int) error {
	return n.mutate(ctx, func(context.Context) error {
		if !n.involves(playerID) {
			return transaction.Reject(transaction.KindMoveNotFound, "player %d has no move in this trade", playerID)
		}
		if err := n.editable(); err != nil {
			return err
		}

		n.crossOrg = withoutPlayer(n.crossOrg, playerID)
		n.supplementary = withoutPlayer(n.supplementary, playerID)
		for _, p := range n.participants {
			p.Giving = withoutPlayer(p.Giving, playerID)
			p.Receiving = withoutPlayer(p.Receiving, playerID)
			p.Supplementary = withoutPlayer(p.Supplementary, playerID)
			p.ledger.RemoveMove(playerID)
		}
		return nil
	})
}

type BalanceResult struct {
	Legal  bool
	Errors []string
}

// ValidateTradeBalance checks that every player given away is received by
// exactly one other org.
func (n *Negotiation) ValidateTradeBalance() BalanceResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balance()
}

func (n *Negotiation) balance() BalanceResult {
	result := BalanceResult{Errors: []string{}}

	if len(n.participants) < 2 {
		result.Errors = append(result.Errors, "A trade needs at least 2 teams")
	}
	if len(n.crossOrg) == 0 {
		result.Errors = append(result.Errors, "A trade needs at least one player moving between teams")
	}

	given := make(map[int]models.Org)
	received := make(map[int]models.Org)
	var ids []int
	for _, p := range n.participants {
		for _, m := range p.Giving {
			if prev, ok := given[m.Player.ID]; ok {
				result.Errors = append(result.Errors, fmt.Sprintf("Player %d is given by both %s and %s", m.Player.ID, prev.Abbrev(), p.Org.Abbrev()))
				continue
			}
			given[m.Player.ID] = p.Org
			ids = append(ids, m.Player.ID)
		}
		for _, m := range p.Receiving {
			if prev, ok := received[m.Player.ID]; ok {
				result.Errors = append(result.Errors, fmt.Sprintf("Player %d is received by both %s and %s", m.Player.ID, prev.Abbrev(), p.Org.Abbrev()))
				continue
			}
			received[m.Player.ID] = p.Org
		}
	}

	sort.Ints(ids)
	for _, id := range ids {
		giver := given[id]
		receiver, ok := received[id]
		switch {
		case !ok:
			result.Errors = append(result.Errors, fmt.Sprintf("Player %d is given by %s but not received by any team", id, giver.Abbrev()))
		case receiver.Equal(giver):
			result.Errors = append(result.Errors, fmt.Sprintf("Player %d is given and received by %s", id, giver.Abbrev()))
		}
	}

	var orphans []int
	for id := range received {
		if _, ok := given[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Ints(orphans)
	for _, id := range orphans {
		result.Errors = append(result.Errors, fmt.Sprintf("Player %d is received by %s but not given by any team", id, received[id].Abbrev()))
	}

	result.Legal = len(result.Errors) == 0
	return result
}

type OrgValidation struct {
	Org    models.Org
	Result models.ValidationResult
}

type ValidationResult struct {
	Legal       bool
	Balance     BalanceResult
	Orgs        []OrgValidation
	Errors      []string
	Warnings    []string
	Suggestions []string
}

// ValidateTrade checks the trade balance and every participant's projected
// roster.
func (n *Negotiation) ValidateTrade(ctx context.Context) (ValidationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.validate(ctx)
}

func (n *Negotiation) validate(ctx context.Context) (ValidationResult, error) {
	result := ValidationResult{
		Balance:     n.balance(),
		Orgs:        make([]OrgValidation, 0, len(n.participants)),
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}
	result.Errors = append(result.Errors, result.Balance.Errors...)
	result.Legal = result.Balance.Legal

	for _, p := range n.participants {
		r, err := p.ledger.Validate(ctx)
		if err != nil {
			return ValidationResult{}, fmt.Errorf("error validating %s: %w", p.Org.Abbrev(), err)
		}
		result.Orgs = append(result.Orgs, OrgValidation{Org: p.Org, Result: r})
		for _, e := range r.Errors {
			result.Errors = append(result.Errors, p.Org.Abbrev()+": "+e)
		}
		for _, w := range r.Warnings {
			result.Warnings = append(result.Warnings, p.Org.Abbrev()+": "+w)
		}
		for _, s := range r.Suggestions {
			result.Suggestions = append(result.Suggestions, p.Org.Abbrev()+": "+s)
		}
		result.Legal = result.Legal && r.Legal
	}
	return result, nil
}

// Propose puts a legal draft in front of the other GMs.
func (n *Negotiation) Propose(ctx context.Context) error {
	return n.mutate(ctx, func(ctx context.Context) error {
		if n.status == StatusAccepted {
			return transaction.Reject(transaction.KindInvalidState, "trade %s has already been accepted", n.id)
		}
		if n.status == StatusProposed {
			return nil
		}

		v, err := n.validate(ctx)
		if err != nil {
			return err
		}
		if !v.Legal {
			kind := transaction.KindIllegalRoster
			if !v.Balance.Legal {
				kind = transaction.KindUnbalanced
			}
			r := transaction.Reject(kind, "trade %s is not legal", n.id)
			r.Errors = append(r.Errors, v.Errors...)
			return r
		}

		n.status = StatusProposed
		clear(n.accepted)
		return nil
	})
}

// Accept records orgID's consent. The acceptance that completes the quorum
// also submits the whole trade as one batch, under the same lock, so exactly
// one caller finalizes. It reports whether every participant has accepted.
func (n *Negotiation) Accept(ctx context.Context, orgID int) (bool, error) {
	var done bool
	err := n.mutate(ctx, func(ctx context.Context) error {
		if n.participant(orgID) == nil {
			return transaction.Reject(transaction.KindNotParticipant, "team %d is not part of this trade", orgID)
		}
		if n.status == StatusAccepted {
			done = true
			return nil
		}
		if n.status != StatusProposed {
			return transaction.Reject(transaction.KindInvalidState, "trade %s has not been proposed", n.id)
		}

		n.accepted[orgID] = struct{}{}
		if len(n.accepted) < len(n.participants) {
			return nil
		}

		if err := n.finalize(ctx); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

func (n *Negotiation) finalize(ctx context.Context) error {
	state, err := n.backend.League.GetCurrentState(ctx)
	if err != nil {
		metrics.RecordSubmission("trade", "error")
		return fmt.Errorf("error fetching league state: %w", err)
	}

	week := state.Week + 1
	batch := transaction.Batch{
		Key:     transaction.NewBatchKey(n.season, week, n.now()),
		Week:    week,
		Season:  n.season,
		OwnerID: n.initiatedBy,
	}
	moves := make([]models.Move, 0, len(n.crossOrg)+len(n.supplementary))
	moves = append(moves, n.crossOrg...)
	moves = append(moves, n.supplementary...)

	created, err := n.backend.Store.CreateBatch(ctx, batch.Finalize(moves))
	if err != nil {
		metrics.RecordSubmission("trade", "error")
		return fmt.Errorf("error creating trade batch %s: %w", batch.Key, err)
	}

	for _, p := range n.participants {
		p.ledger.Clear()
	}
	n.finalized = created
	n.status = StatusAccepted
	metrics.RecordSubmission("trade", "ok")
	n.logger().Info("Trade accepted", "trade", n.id, "moveid", batch.Key, "week", week, "moves", models.Describe(moves))
	return nil
}

// Reject marks the trade rejected and drops every acceptance. Participants
// and moves stay; the next edit returns it to draft.
func (n *Negotiation) Reject(ctx context.Context, orgID int) error {
	return n.mutate(ctx, func(context.Context) error {
		if n.participant(orgID) == nil {
			return transaction.Reject(transaction.KindNotParticipant, "team %d is not part of this trade", orgID)
		}
		if n.status == StatusAccepted {
			return transaction.Reject(transaction.KindInvalidState, "trade %s has already been accepted", n.id)
		}
		n.status = StatusRejected
		clear(n.accepted)
		return nil
	})
}

func (n *Negotiation) participant(orgID int) *Participant {
	for _, p := range n.participants {
		if p.Org.ID() == orgID {
			return p
		}
	}
	return nil
}

func (n *Negotiation) participantFor(org models.Org) *Participant {
	for _, p := range n.participants {
		if p.Org.Equal(org) {
			return p
		}
	}
	return nil
}

func (n *Negotiation) involves(playerID int) bool {
	for _, m := range n.crossOrg {
		if m.Player.ID == playerID {
			return true
		}
	}
	for _, m := range n.supplementary {
		if m.Player.ID == playerID {
			return true
		}
	}
	return false
}

// idleSince reports when the trade was last touched, or false while it is
// being worked on.
func (n *Negotiation) idleSince() (time.Time, bool) {
	if !n.mu.TryLock() {
		return time.Time{}, false
	}
	defer n.mu.Unlock()
	return n.lastUsed, true
}

func (n *Negotiation) now() time.Time {
	if n.backend.Clock == nil {
		return time.Now()
	}
	return n.backend.Clock.Now()
}

func (n *Negotiation) logger() *slog.Logger {
	if n.backend.Logger == nil {
		return slog.Default()
	}
	return n.backend.Logger
}

func withoutPlayer(moves []models.Move, playerID int) []models.Move {
	out := moves[:0:0]
	for _, m := range moves {
		if m.Player.ID != playerID {
			out = append(out, m)
		}
	}
	if out == nil {
		out = []models.Move{}
	}
	return out
}
