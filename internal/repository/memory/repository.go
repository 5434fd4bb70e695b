// Package memory holds league state in process. It backs local runs and is
// the collaborator fake used across the engine's tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
)

var (
	_ repository.RosterRepository = (*Repository)(nil)
	_ repository.TransactionStore = (*Repository)(nil)
	_ repository.LeagueClock      = (*Repository)(nil)
)

type Repository struct {
	mu           sync.RWMutex
	state        models.LeagueState
	teams        map[int]models.Team
	players      map[int]models.Player
	standings    map[string]models.Standings
	transactions []models.FinalizedTransaction
}

func NewRepository() *Repository {
	return &Repository{
		teams:     make(map[int]models.Team),
		players:   make(map[int]models.Player),
		standings: make(map[string]models.Standings),
	}
}

func (r *Repository) SetState(state models.LeagueState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *Repository) SaveTeam(team models.Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[team.ID] = team
}

// SaveOrg stores all three affiliates of org.
func (r *Repository) SaveOrg(org models.Org) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range []models.Team{org.Major, org.Minor, org.Injured} {
		r.teams[t.ID] = t
	}
}

func (r *Repository) SavePlayer(player models.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[player.ID] = player
}

func (r *Repository) SaveStandings(standings models.Standings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.standings[standingsKey(standings.Abbrev, standings.Season)] = standings
}

// Transactions returns a copy of every stored transaction in insertion order.
func (r *Repository) Transactions() []models.FinalizedTransaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.FinalizedTransaction, len(r.transactions))
	copy(out, r.transactions)
	return out
}

func (r *Repository) GetCurrentState(_ context.Context) (models.LeagueState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, nil
}

func (r *Repository) AdvanceWeek(_ context.Context, week int, frozen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Week = week
	r.state.Frozen = frozen
	return nil
}

// GetRoster ignores the week kind: the in-memory league keeps one roster.
func (r *Repository) GetRoster(_ context.Context, orgID int, _ models.WeekKind) (models.Roster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	major, ok := r.teams[orgID]
	if !ok {
		return models.Roster{}, fmt.Errorf("team %d: %w", orgID, repository.ErrNotFound)
	}

	roster := models.Roster{
		OrgID:       orgID,
		Active:      []models.Player{},
		MinorLeague: []models.Player{},
		InjuredList: []models.Player{},
	}
	for _, p := range r.sortedPlayers() {
		if p.IsFreeAgent() || !major.SameOrganization(p.Team) {
			continue
		}
		switch p.Team.RosterSlot() {
		case models.MajorLeague:
			roster.Active = append(roster.Active, p)
		case models.MinorLeague:
			roster.MinorLeague = append(roster.MinorLeague, p)
		case models.InjuredList:
			roster.InjuredList = append(roster.InjuredList, p)
		}
	}
	return roster, nil
}

func (r *Repository) sortedPlayers() []models.Player {
	players := make([]models.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

func (r *Repository) GetStandings(_ context.Context, abbrev string, season int) (models.Standings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.standings[standingsKey(abbrev, season)]
	if !ok {
		return models.Standings{}, fmt.Errorf("standings %s season %d: %w", abbrev, season, repository.ErrNotFound)
	}
	return s, nil
}

func (r *Repository) GetOrg(_ context.Context, teamID int) (models.Org, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	team, ok := r.teams[teamID]
	if !ok {
		return models.Org{}, fmt.Errorf("team %d: %w", teamID, repository.ErrNotFound)
	}

	org := models.Org{}
	for _, t := range r.teams {
		if !t.SameOrganization(team) {
			continue
		}
		switch t.RosterSlot() {
		case models.MajorLeague:
			org.Major = t
		case models.MinorLeague:
			org.Minor = t
		case models.InjuredList:
			org.Injured = t
		}
	}
	if org.Major.Abbrev == "" {
		return models.Org{}, fmt.Errorf("major league club for team %d: %w", teamID, repository.ErrNotFound)
	}
	return org, nil
}

func (r *Repository) GetPlayer(_ context.Context, playerID int) (models.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	if !ok {
		return models.Player{}, fmt.Errorf("player %d: %w", playerID, repository.ErrNotFound)
	}
	return p, nil
}

// AssignPlayer moves the player onto teamID. Team 0 is free agency.
func (r *Repository) AssignPlayer(_ context.Context, playerID, teamID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerID]
	if !ok {
		return fmt.Errorf("player %d: %w", playerID, repository.ErrNotFound)
	}
	team := models.FreeAgents
	if teamID != models.FreeAgents.ID {
		team, ok = r.teams[teamID]
		if !ok {
			return fmt.Errorf("team %d: %w", teamID, repository.ErrNotFound)
		}
	}
	p.Team = team
	r.players[playerID] = p
	return nil
}

func (r *Repository) CreateBatch(_ context.Context, txs []models.FinalizedTransaction) ([]models.FinalizedTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := make([]models.FinalizedTransaction, len(txs))
	for i, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		created[i] = tx
	}
	r.transactions = append(r.transactions, created...)
	return created, nil
}

func (r *Repository) Cancel(_ context.Context, batchKey string) error {
	return r.updateBatch(batchKey, func(tx *models.FinalizedTransaction) { tx.Cancelled = true })
}

func (r *Repository) Unfreeze(_ context.Context, batchKey string) error {
	return r.updateBatch(batchKey, func(tx *models.FinalizedTransaction) { tx.Frozen = false })
}

func (r *Repository) updateBatch(batchKey string, update func(*models.FinalizedTransaction)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for i := range r.transactions {
		if r.transactions[i].MoveBatchKey == batchKey {
			update(&r.transactions[i])
			found = true
		}
	}
	if !found {
		return fmt.Errorf("batch %s: %w", batchKey, repository.ErrNotFound)
	}
	return nil
}

func (r *Repository) GetFrozenForWeek(_ context.Context, week int) ([]models.FinalizedTransaction, error) {
	return r.filter(func(tx models.FinalizedTransaction) bool {
		return tx.Week == week && tx.Frozen && !tx.Cancelled
	}), nil
}

func (r *Repository) GetScheduledForWeek(_ context.Context, week int) ([]models.FinalizedTransaction, error) {
	return r.filter(func(tx models.FinalizedTransaction) bool {
		return tx.Week == week && !tx.Frozen && !tx.Cancelled
	}), nil
}

func (r *Repository) filter(keep func(models.FinalizedTransaction) bool) []models.FinalizedTransaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.FinalizedTransaction
	for _, tx := range r.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func standingsKey(abbrev string, season int) string {
	return fmt.Sprintf("%s/%d", strings.ToUpper(abbrev), season)
}
