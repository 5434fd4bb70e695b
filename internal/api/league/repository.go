// Package league reads rosters, standings and organizations from the league
// database API and writes roster assignments back to it.
package league

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
)

var _ repository.RosterRepository = (*API)(nil)

type API struct {
	client *Client
}

func NewAPI(client *Client) *API {
	return &API{client: client}
}

type rosterResponse struct {
	Active      []models.Player `json:"active"`
	MinorLeague []models.Player `json:"minor_league"`
	InjuredList []models.Player `json:"injured_list"`
}

func (a *API) GetRoster(ctx context.Context, orgID int, week models.WeekKind) (models.Roster, error) {
	var resp rosterResponse
	endpoint := fmt.Sprintf("/teams/%d/roster", orgID)
	params := map[string]string{
		"week": string(week),
	}

	if err := a.client.Get(ctx, endpoint, params, &resp); err != nil {
		return models.Roster{}, fmt.Errorf("fetching roster: %w", err)
	}

	return models.Roster{
		OrgID:       orgID,
		Active:      nonNil(resp.Active),
		MinorLeague: nonNil(resp.MinorLeague),
		InjuredList: nonNil(resp.InjuredList),
	}, nil
}

func (a *API) GetStandings(ctx context.Context, abbrev string, season int) (models.Standings, error) {
	var standings models.Standings
	endpoint := fmt.Sprintf("/standings/%s", strings.ToUpper(abbrev))
	params := map[string]string{
		"season": strconv.Itoa(season),
	}

	if err := a.client.Get(ctx, endpoint, params, &standings); err != nil {
		return models.Standings{}, fmt.Errorf("fetching standings: %w", err)
	}
	return standings, nil
}

// GetOrg returns the organization teamID belongs to, whichever affiliate it
// is.
func (a *API) GetOrg(ctx context.Context, teamID int) (models.Org, error) {
	var org models.Org
	endpoint := fmt.Sprintf("/teams/%d/organization", teamID)

	if err := a.client.Get(ctx, endpoint, nil, &org); err != nil {
		return models.Org{}, fmt.Errorf("fetching organization: %w", err)
	}
	return org, nil
}

func (a *API) GetPlayer(ctx context.Context, playerID int) (models.Player, error) {
	var player models.Player
	endpoint := fmt.Sprintf("/players/%d", playerID)

	if err := a.client.Get(ctx, endpoint, nil, &player); err != nil {
		return models.Player{}, fmt.Errorf("fetching player: %w", err)
	}
	if player.Team.Abbrev == "" {
		player.Team = models.FreeAgents
	}
	return player, nil
}

type assignRequest struct {
	TeamID int `json:"team_id"`
}

// AssignPlayer puts the player on teamID. Team 0 releases them to free
// agency.
func (a *API) AssignPlayer(ctx context.Context, playerID, teamID int) error {
	endpoint := fmt.Sprintf("/players/%d", playerID)
	if err := a.client.Patch(ctx, endpoint, assignRequest{TeamID: teamID}, nil); err != nil {
		return fmt.Errorf("assigning player %d to team %d: %w", playerID, teamID, err)
	}
	return nil
}

func nonNil(players []models.Player) []models.Player {
	if players == nil {
		return []models.Player{}
	}
	return players
}
