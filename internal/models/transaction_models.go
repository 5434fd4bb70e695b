package models

import (
	"errors"
	"fmt"
)

var ErrNoOpMove = errors.New("move does not change the player's team or roster slot")

// Move relocates one player between roster slots, possibly across orgs. A
// move to or from FreeAgency uses FreeAgencyOrg on that side.
type Move struct {
	Player   Player
	FromSlot RosterSlot
	ToSlot   RosterSlot
	FromOrg  Org
	ToOrg    Org
}

func NewMove(player Player, fromOrg Org, fromSlot RosterSlot, toOrg Org, toSlot RosterSlot) (Move, error) {
	m := Move{
		Player:   player,
		FromSlot: fromSlot,
		ToSlot:   toSlot,
		FromOrg:  fromOrg,
		ToOrg:    toOrg,
	}
	if m.IsNoOp() {
		return Move{}, fmt.Errorf("%s to %s %s: %w", player.Name, toOrg.Abbrev(), toSlot.Short(), ErrNoOpMove)
	}
	return m, nil
}

func (m Move) IsNoOp() bool {
	return m.FromOrg.Equal(m.ToOrg) && m.FromSlot == m.ToSlot
}

func (m Move) FromTeam() Team {
	if m.FromSlot == FreeAgency {
		return FreeAgents
	}
	return m.FromOrg.Affiliate(m.FromSlot)
}

func (m Move) ToTeam() Team {
	if m.ToSlot == FreeAgency {
		return FreeAgents
	}
	return m.ToOrg.Affiliate(m.ToSlot)
}

func (m Move) IsCrossOrg() bool {
	return !m.FromOrg.Equal(m.ToOrg)
}

func (m Move) String() string {
	return fmt.Sprintf("%s: %s %s → %s %s",
		m.Player.Name, m.FromOrg.Abbrev(), m.FromSlot.Short(), m.ToOrg.Abbrev(), m.ToSlot.Short())
}

// Describe renders moves for logs and messages.
func Describe(moves []Move) []string {
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = m.String()
	}
	return out
}

type FinalizedTransaction struct {
	ID           string `json:"id"`
	Week         int    `json:"week"`
	Season       int    `json:"season"`
	MoveBatchKey string `json:"moveid"`
	Player       Player `json:"player"`
	FromTeam     Team   `json:"oldteam"`
	ToTeam       Team   `json:"newteam"`
	OwnerID      int64  `json:"owner_id"`
	Cancelled    bool   `json:"cancelled"`
	Frozen       bool   `json:"frozen"`
}

// IsAcquisition reports whether the transaction puts the player on a roster.
// Drops to free agency are never contested.
func (t FinalizedTransaction) IsAcquisition() bool {
	return t.ToTeam.RosterSlot() != FreeAgency
}

func (t FinalizedTransaction) Pending() bool {
	return t.Frozen && !t.Cancelled
}

type ValidationResult struct {
	Legal             bool     `json:"legal"`
	ProjectedMLCount  int      `json:"projected_ml_count"`
	ProjectedMiLCount int      `json:"projected_mil_count"`
	ProjectedMLWar    float64  `json:"projected_ml_war"`
	ProjectedMiLWar   float64  `json:"projected_mil_war"`
	CapUsed           float64  `json:"cap_used"`
	CapLimit          float64  `json:"cap_limit"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings"`
	Suggestions       []string `json:"suggestions"`
}

func NewValidationResult() ValidationResult {
	return ValidationResult{
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
	}
}

func (r *ValidationResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) AddSuggestion(format string, args ...any) {
	r.Suggestions = append(r.Suggestions, fmt.Sprintf(format, args...))
}
