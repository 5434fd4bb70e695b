// Package testutil builds small leagues on the in-memory repository.
package testutil

import (
	"fmt"

	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository/memory"
)

const Season = 12

func NewLeague(week int) *memory.Repository {
	repo := memory.NewRepository()
	repo.SetState(models.LeagueState{Week: week, Season: Season})
	return repo
}

// Org builds an org whose affiliates use ids id, id+1000 and id+2000.
func Org(id int, abbrev string, gmID int64) models.Org {
	return models.NewOrg(
		models.Team{ID: id, Abbrev: abbrev, ShortName: abbrev, Season: Season, GMIDs: []int64{gmID}},
		models.Team{ID: id + 1000, Abbrev: abbrev + "MiL", ShortName: abbrev + " MiL", Season: Season},
		models.Team{ID: id + 2000, Abbrev: abbrev + "IL", ShortName: abbrev + " IL", Season: Season},
	)
}

// AddOrg stores org in repo and returns it.
func AddOrg(repo *memory.Repository, id int, abbrev string, gmID int64) models.Org {
	org := Org(id, abbrev, gmID)
	repo.SaveOrg(org)
	return org
}

// Fill rosters n players with the given value onto the org's affiliate for
// slot, numbering them from firstID.
func Fill(repo *memory.Repository, org models.Org, slot models.RosterSlot, n int, wara float64, firstID int) []models.Player {
	team := org.Affiliate(slot)
	players := make([]models.Player, n)
	for i := range n {
		players[i] = models.Player{
			ID:   firstID + i,
			Name: fmt.Sprintf("%s Player %d", team.Abbrev, firstID+i),
			Wara: wara,
			Team: team,
		}
		repo.SavePlayer(players[i])
	}
	return players
}

// FreeAgent stores an unrostered player.
func FreeAgent(repo *memory.Repository, id int, wara float64) models.Player {
	p := models.Player{ID: id, Name: fmt.Sprintf("Free Agent %d", id), Wara: wara, Team: models.FreeAgents}
	repo.SavePlayer(p)
	return p
}
