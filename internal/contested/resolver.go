// Package contested settles frozen claims on the same player. The claim from
// the team with the worst record wins.
package contested

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/omarshaarawi/rosterbot/internal/metrics"
	"github.com/omarshaarawi/rosterbot/internal/models"
)

type StandingsSource interface {
	GetStandings(ctx context.Context, abbrev string, season int) (models.Standings, error)
}

// Claim is one frozen acquisition with its priority. Lower scores win.
type Claim struct {
	Tx       models.FinalizedTransaction
	Score    float64
	Tiebreak float64
}

func (c Claim) less(other Claim) bool {
	if c.Score != other.Score {
		return c.Score < other.Score
	}
	return c.Tiebreak < other.Tiebreak
}

type Contest struct {
	Player models.Player
	Winner Claim
	Losers []Claim
}

// Outcome lists batch keys. A batch that lost any contest is only in Losers,
// even when it won another.
type Outcome struct {
	Winners  []string
	Losers   []string
	Contests []Contest
}

func (o Outcome) Lost(batchKey string) bool {
	for _, k := range o.Losers {
		if k == batchKey {
			return true
		}
	}
	return false
}

type Option func(*Resolver)

// WithTiebreak replaces the random draw that orders claims with equal scores.
func WithTiebreak(draw func() float64) Option {
	return func(r *Resolver) { r.draw = draw }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

type Resolver struct {
	standings StandingsSource
	draw      func() float64
	logger    *slog.Logger
}

func NewResolver(standings StandingsSource, opts ...Option) *Resolver {
	r := &Resolver{
		standings: standings,
		draw:      rand.Float64,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve picks one winner per player among txs. Only pending acquisitions
// take part; everything else is ignored.
func (r *Resolver) Resolve(ctx context.Context, txs []models.FinalizedTransaction, season int) Outcome {
	groups := make(map[int][]models.FinalizedTransaction)
	var playerIDs []int
	for _, tx := range txs {
		if !tx.Pending() || !tx.IsAcquisition() {
			continue
		}
		if _, ok := groups[tx.Player.ID]; !ok {
			playerIDs = append(playerIDs, tx.Player.ID)
		}
		groups[tx.Player.ID] = append(groups[tx.Player.ID], tx)
	}
	sort.Ints(playerIDs)

	winners := make(map[string]struct{})
	losers := make(map[string]struct{})
	outcome := Outcome{Winners: []string{}, Losers: []string{}, Contests: []Contest{}}
	uncontested, lost := 0, 0

	for _, id := range playerIDs {
		group := groups[id]
		if len(group) == 1 {
			winners[group[0].MoveBatchKey] = struct{}{}
			uncontested++
			continue
		}

		claims := make([]Claim, len(group))
		for i, tx := range group {
			claims[i] = Claim{Tx: tx, Score: r.score(ctx, tx.ToTeam, season), Tiebreak: r.draw()}
		}
		sort.SliceStable(claims, func(i, j int) bool { return claims[i].less(claims[j]) })

		contest := Contest{Player: claims[0].Tx.Player, Winner: claims[0], Losers: claims[1:]}
		winners[contest.Winner.Tx.MoveBatchKey] = struct{}{}
		for _, c := range contest.Losers {
			losers[c.Tx.MoveBatchKey] = struct{}{}
		}
		lost += len(contest.Losers)
		outcome.Contests = append(outcome.Contests, contest)

		r.logger.Info("Resolved contested claim",
			"player", contest.Player.Name, "winner", contest.Winner.Tx.ToTeam.Abbrev, "score", contest.Winner.Score, "claims", len(claims))
	}

	for key := range losers {
		outcome.Losers = append(outcome.Losers, key)
	}
	for key := range winners {
		if _, isLoser := losers[key]; !isLoser {
			outcome.Winners = append(outcome.Winners, key)
		}
	}
	sort.Strings(outcome.Winners)
	sort.Strings(outcome.Losers)

	metrics.RecordContestedClaims("uncontested", uncontested)
	metrics.RecordContestedClaims("won", len(outcome.Contests))
	metrics.RecordContestedClaims("lost", lost)
	return outcome
}

// score is the claiming org's win percentage. Affiliates are looked up under
// their major league club, and a missing record scores 0.
func (r *Resolver) score(ctx context.Context, team models.Team, season int) float64 {
	abbrev := team.ParentAbbrev()
	standings, err := r.standings.GetStandings(ctx, abbrev, season)
	if err != nil {
		r.logger.Warn("No standings for claim, scoring 0", "team", abbrev, "season", season, "error", err)
		return 0
	}
	return standings.WinPercentage()
}
