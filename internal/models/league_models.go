package models

import (
	"strings"
)

type RosterSlot string

const (
	MajorLeague RosterSlot = "MAJOR_LEAGUE"
	MinorLeague RosterSlot = "MINOR_LEAGUE"
	InjuredList RosterSlot = "INJURED_LIST"
	FreeAgency  RosterSlot = "FREE_AGENCY"
)

func (s RosterSlot) Short() string {
	switch s {
	case MajorLeague:
		return "ML"
	case MinorLeague:
		return "MiL"
	case InjuredList:
		return "IL"
	case FreeAgency:
		return "FA"
	default:
		return string(s)
	}
}

const FreeAgentAbbrev = "FA"

// FreeAgents is the sentinel team every unrostered player belongs to.
var FreeAgents = Team{Abbrev: FreeAgentAbbrev, ShortName: "Free Agents", LongName: "Free Agency"}

type Team struct {
	ID        int      `json:"id"`
	Abbrev    string   `json:"abbrev"`
	ShortName string   `json:"sname"`
	LongName  string   `json:"lname"`
	Season    int      `json:"season"`
	SalaryCap *float64 `json:"salary_cap,omitempty"`
	GMIDs     []int64  `json:"gm_ids,omitempty"`
}

func (t Team) IsFreeAgency() bool {
	return strings.EqualFold(t.Abbrev, FreeAgentAbbrev)
}

// RosterSlot classifies the team from its abbreviation and short name.
//
// Affiliates are named by suffix: "XYZMiL" for the minor league club and
// "XYZIL" for the injured list. When the parent abbreviation itself ends in
// "M" its injured list ("XYZMIL") collides with the minor league suffix, so
// a whole-word "IL" token in the short name wins.
func (t Team) RosterSlot() RosterSlot {
	if t.IsFreeAgency() {
		return FreeAgency
	}

	abbrev := strings.ToUpper(t.Abbrev)
	if len(abbrev) <= 3 {
		return MajorLeague
	}

	if strings.HasSuffix(abbrev, "MIL") {
		if hasILToken(t.ShortName) {
			return InjuredList
		}
		return MinorLeague
	}

	if strings.HasSuffix(abbrev, "IL") {
		return InjuredList
	}

	return MajorLeague
}

func hasILToken(name string) bool {
	for _, word := range strings.Fields(name) {
		if word == "IL" {
			return true
		}
	}
	return false
}

// ParentAbbrev returns the abbreviation of the major league club that owns
// this team.
func (t Team) ParentAbbrev() string {
	switch t.RosterSlot() {
	case MinorLeague:
		return t.Abbrev[:len(t.Abbrev)-3]
	case InjuredList:
		return t.Abbrev[:len(t.Abbrev)-2]
	default:
		return t.Abbrev
	}
}

func (t Team) SameOrganization(other Team) bool {
	return strings.EqualFold(t.ParentAbbrev(), other.ParentAbbrev())
}

// Org is a franchise: the major league club and its two affiliates.
type Org struct {
	Major   Team `json:"major"`
	Minor   Team `json:"minor"`
	Injured Team `json:"injured"`
}

// FreeAgencyOrg stands in for the source or destination of moves to and from
// free agency.
var FreeAgencyOrg = Org{Major: FreeAgents, Minor: FreeAgents, Injured: FreeAgents}

func NewOrg(major, minor, injured Team) Org {
	return Org{Major: major, Minor: minor, Injured: injured}
}

func (o Org) ID() int {
	return o.Major.ID
}

func (o Org) Abbrev() string {
	return o.Major.Abbrev
}

func (o Org) IsFreeAgency() bool {
	return o.Major.IsFreeAgency()
}

func (o Org) Equal(other Org) bool {
	return o.Major.SameOrganization(other.Major)
}

// Contains reports whether team is one of this org's affiliates.
func (o Org) Contains(team Team) bool {
	if o.IsFreeAgency() || team.IsFreeAgency() {
		return o.IsFreeAgency() && team.IsFreeAgency()
	}
	return o.Major.SameOrganization(team)
}

func (o Org) Affiliate(slot RosterSlot) Team {
	switch slot {
	case MajorLeague:
		return o.Major
	case MinorLeague:
		return o.Minor
	case InjuredList:
		return o.Injured
	default:
		return FreeAgents
	}
}

type Player struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Wara float64 `json:"wara"`
	Team Team    `json:"team"`
}

func (p Player) IsFreeAgent() bool {
	return p.Team.IsFreeAgency()
}

type WeekKind string

const (
	WeekCurrent WeekKind = "current"
	WeekNext    WeekKind = "next"
)

type Roster struct {
	OrgID       int      `json:"org_id"`
	Active      []Player `json:"active"`
	MinorLeague []Player `json:"minor_league"`
	InjuredList []Player `json:"injured_list"`
}

func (r Roster) Slot(slot RosterSlot) []Player {
	switch slot {
	case MajorLeague:
		return r.Active
	case MinorLeague:
		return r.MinorLeague
	case InjuredList:
		return r.InjuredList
	default:
		return nil
	}
}

type Standings struct {
	Abbrev string `json:"abbrev"`
	Season int    `json:"season"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

func (s Standings) WinPercentage() float64 {
	games := s.Wins + s.Losses
	if games == 0 {
		return 0
	}
	return float64(s.Wins) / float64(games)
}

type LeagueState struct {
	Week   int  `json:"week"`
	Season int  `json:"season"`
	Frozen bool `json:"frozen"`
}
