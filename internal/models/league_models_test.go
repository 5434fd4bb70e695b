package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamRosterSlot(t *testing.T) {
	tests := []struct {
		name  string
		team  Team
		want  RosterSlot
		owner string
	}{
		{name: "major league", team: Team{Abbrev: "NYY", ShortName: "Yankees"}, want: MajorLeague, owner: "NYY"},
		{name: "short abbreviation", team: Team{Abbrev: "KC", ShortName: "Royals"}, want: MajorLeague, owner: "KC"},
		{name: "minor league", team: Team{Abbrev: "NYYMiL", ShortName: "Yankees MiL"}, want: MinorLeague, owner: "NYY"},
		{name: "minor league upper case", team: Team{Abbrev: "XYZMIL", ShortName: "Xylos MiL"}, want: MinorLeague, owner: "XYZ"},
		{name: "injured list", team: Team{Abbrev: "NYYIL", ShortName: "Yankees IL"}, want: InjuredList, owner: "NYY"},
		{name: "injured list of team ending in M", team: Team{Abbrev: "BHMIL", ShortName: "Iron IL"}, want: InjuredList, owner: "BHM"},
		{name: "minor league of team ending in M", team: Team{Abbrev: "BHMMiL", ShortName: "Iron MiL"}, want: MinorLeague, owner: "BHM"},
		{name: "IL inside a word is not a token", team: Team{Abbrev: "CHIMIL", ShortName: "Chills MiL"}, want: MinorLeague, owner: "CHI"},
		{name: "four letter major league", team: Team{Abbrev: "WVSS", ShortName: "Sluggers"}, want: MajorLeague, owner: "WVSS"},
		{name: "free agency", team: FreeAgents, want: FreeAgency, owner: "FA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.team.RosterSlot())
			assert.Equal(t, tt.owner, tt.team.ParentAbbrev())
		})
	}
}

func TestSameOrganization(t *testing.T) {
	major := Team{Abbrev: "XYZ"}
	assert.True(t, major.SameOrganization(Team{Abbrev: "XYZMiL", ShortName: "X MiL"}))
	assert.True(t, major.SameOrganization(Team{Abbrev: "xyzil", ShortName: "X IL"}))
	assert.False(t, major.SameOrganization(Team{Abbrev: "ABCMiL", ShortName: "A MiL"}))
}

func TestNewMoveRejectsNoOp(t *testing.T) {
	org := NewOrg(
		Team{ID: 1, Abbrev: "NYY"},
		Team{ID: 2, Abbrev: "NYYMiL", ShortName: "Yankees MiL"},
		Team{ID: 3, Abbrev: "NYYIL", ShortName: "Yankees IL"},
	)
	player := Player{ID: 7, Name: "Joe Ace", Team: org.Major}

	_, err := NewMove(player, org, MajorLeague, org, MajorLeague)
	require.ErrorIs(t, err, ErrNoOpMove)

	_, err = NewMove(player, FreeAgencyOrg, FreeAgency, FreeAgencyOrg, FreeAgency)
	require.ErrorIs(t, err, ErrNoOpMove)

	m, err := NewMove(player, org, MajorLeague, org, MinorLeague)
	require.NoError(t, err)
	assert.Equal(t, "NYYMiL", m.ToTeam().Abbrev)
	assert.False(t, m.IsCrossOrg())

	drop, err := NewMove(player, org, MajorLeague, FreeAgencyOrg, FreeAgency)
	require.NoError(t, err)
	assert.True(t, drop.ToTeam().IsFreeAgency())
	assert.True(t, drop.IsCrossOrg())

	assert.Equal(t, []string{"Joe Ace: NYY ML → NYY MiL", "Joe Ace: NYY ML → FA FA"}, Describe([]Move{m, drop}))
}

func TestStandingsWinPercentage(t *testing.T) {
	assert.InDelta(t, 0.3, Standings{Wins: 3, Losses: 7}.WinPercentage(), 1e-9)
	assert.Zero(t, Standings{}.WinPercentage())
}
