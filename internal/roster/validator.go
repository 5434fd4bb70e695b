// Package roster decides whether a staged set of moves leaves an org with a
// legal roster.
package roster

import (
	"context"
	"fmt"
	"sort"

	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
)

const (
	// Weeks up to and including this one use the early-season limits.
	EarlySeasonLastWeek = 14

	CapCountedPlayers = 26
	DefaultSalaryCap  = 32.0
	CapTolerance      = 0.001
)

type Limits struct {
	MajorLeague int
	MinorLeague int
}

func LimitsForWeek(week int) Limits {
	if week <= EarlySeasonLastWeek {
		return Limits{MajorLeague: 26, MinorLeague: 6}
	}
	return Limits{MajorLeague: 25, MinorLeague: 14}
}

// CapSpace sums the cheapest CapCountedPlayers values out of the roster plus
// any additions. Expensive players beyond that count ride free.
func CapSpace(values []float64, additions ...float64) float64 {
	all := make([]float64, 0, len(values)+len(additions))
	all = append(all, values...)
	all = append(all, additions...)
	sort.Float64s(all)

	n := min(CapCountedPlayers, len(all))
	var sum float64
	for _, v := range all[:n] {
		sum += v
	}
	return sum
}

type CapCheck struct {
	Used  float64
	Limit float64
	Legal bool
}

// CheckCap compares the cheapest-26 sum against the team's cap, or
// defaultCap when the team has no override.
func CheckCap(team models.Team, values []float64, defaultCap float64, additions ...float64) CapCheck {
	limit := defaultCap
	if team.SalaryCap != nil {
		limit = *team.SalaryCap
	}
	used := CapSpace(values, additions...)
	return CapCheck{
		Used:  used,
		Limit: limit,
		Legal: used <= limit+CapTolerance,
	}
}

type Validator struct {
	rosters    repository.RosterRepository
	store      repository.TransactionStore
	league     repository.LeagueClock
	defaultCap float64
}

func NewValidator(rosters repository.RosterRepository, store repository.TransactionStore, league repository.LeagueClock, defaultCap float64) *Validator {
	if defaultCap <= 0 {
		defaultCap = DefaultSalaryCap
	}
	return &Validator{
		rosters:    rosters,
		store:      store,
		league:     league,
		defaultCap: defaultCap,
	}
}

func (v *Validator) DefaultCap() float64 {
	return v.defaultCap
}

// Validate projects org's roster after moves and checks it against the
// roster size limits for the current league week and the cap. When
// targetWeek is positive, frozen transactions already scheduled for that
// week are folded in too, except those for players the moves already cover.
func (v *Validator) Validate(ctx context.Context, org models.Org, moves []models.Move, targetWeek int) (models.ValidationResult, error) {
	state, err := v.league.GetCurrentState(ctx)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("error fetching league state: %w", err)
	}

	kind := models.WeekCurrent
	if targetWeek > state.Week {
		kind = models.WeekNext
	}
	current, err := v.rosters.GetRoster(ctx, org.ID(), kind)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("error fetching roster for %s: %w", org.Abbrev(), err)
	}

	p := newProjection(org, current)

	if targetWeek > 0 {
		staged := make(map[int]struct{}, len(moves))
		for _, m := range moves {
			staged[m.Player.ID] = struct{}{}
		}

		frozen, err := v.store.GetFrozenForWeek(ctx, targetWeek)
		if err != nil {
			return models.ValidationResult{}, fmt.Errorf("error fetching frozen transactions for week %d: %w", targetWeek, err)
		}
		for _, tx := range frozen {
			if tx.Cancelled {
				continue
			}
			if _, ok := staged[tx.Player.ID]; ok {
				continue
			}
			p.apply(tx.Player, tx.FromTeam, tx.ToTeam)
		}
	}

	for _, m := range moves {
		p.apply(m.Player, m.FromTeam(), m.ToTeam())
	}

	return v.evaluate(org, p, state.Week, len(moves) == 0), nil
}

func (v *Validator) evaluate(org models.Org, p *projection, week int, empty bool) models.ValidationResult {
	limits := LimitsForWeek(week)
	result := models.NewValidationResult()

	result.ProjectedMLCount = len(p.slots[models.MajorLeague])
	result.ProjectedMiLCount = len(p.slots[models.MinorLeague])
	result.ProjectedMLWar = p.war(models.MajorLeague)
	result.ProjectedMiLWar = p.war(models.MinorLeague)

	if over := result.ProjectedMLCount - limits.MajorLeague; over > 0 {
		result.AddError("Major League roster would have %d players (limit: %d)", result.ProjectedMLCount, limits.MajorLeague)
		result.AddSuggestion("Drop %d ML player(s)", over)
	} else if over == 0 {
		result.AddWarning("Major League roster is full (%d/%d)", result.ProjectedMLCount, limits.MajorLeague)
	}

	if over := result.ProjectedMiLCount - limits.MinorLeague; over > 0 {
		result.AddError("Minor League roster would have %d players (limit: %d)", result.ProjectedMiLCount, limits.MinorLeague)
		result.AddSuggestion("Drop %d MiL player(s)", over)
	}

	capCheck := CheckCap(org.Major, p.values(models.MajorLeague), v.defaultCap)
	result.CapUsed = capCheck.Used
	result.CapLimit = capCheck.Limit
	if !capCheck.Legal {
		result.AddError("Major League sWAR would be %.2f (cap: %.2f)", capCheck.Used, capCheck.Limit)
		result.AddSuggestion("Shed %.2f sWAR from the Major League roster", capCheck.Used-capCheck.Limit)
	}

	if empty {
		result.AddSuggestion("Add player moves to build a transaction")
	}

	result.Legal = len(result.Errors) == 0
	return result
}

// projection is an org's roster with moves folded onto it.
type projection struct {
	org   models.Org
	slots map[models.RosterSlot][]models.Player
}

func newProjection(org models.Org, r models.Roster) *projection {
	p := &projection{org: org, slots: make(map[models.RosterSlot][]models.Player, 3)}
	for _, slot := range []models.RosterSlot{models.MajorLeague, models.MinorLeague, models.InjuredList} {
		p.slots[slot] = append([]models.Player(nil), r.Slot(slot)...)
	}
	return p
}

// apply removes player from the source slot and adds them to the
// destination slot, each only when that side belongs to the org.
func (p *projection) apply(player models.Player, from, to models.Team) {
	if p.org.Contains(from) {
		p.remove(from.RosterSlot(), player.ID)
	}
	if p.org.Contains(to) {
		p.add(to.RosterSlot(), player)
	}
}

func (p *projection) remove(slot models.RosterSlot, playerID int) {
	players := p.slots[slot]
	for i, pl := range players {
		if pl.ID == playerID {
			p.slots[slot] = append(players[:i:i], players[i+1:]...)
			return
		}
	}
}

func (p *projection) add(slot models.RosterSlot, player models.Player) {
	if slot == models.FreeAgency {
		return
	}
	for _, pl := range p.slots[slot] {
		if pl.ID == player.ID {
			return
		}
	}
	p.slots[slot] = append(p.slots[slot], player)
}

func (p *projection) values(slot models.RosterSlot) []float64 {
	players := p.slots[slot]
	values := make([]float64, len(players))
	for i, pl := range players {
		values[i] = pl.Wara
	}
	return values
}

func (p *projection) war(slot models.RosterSlot) float64 {
	var total float64
	for _, pl := range p.slots[slot] {
		total += pl.Wara
	}
	return total
}
