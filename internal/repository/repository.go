// Package repository declares the collaborators the transaction engine reads
// league data from and hands finalized moves to.
package repository

import (
	"context"
	"errors"

	"github.com/omarshaarawi/rosterbot/internal/models"
)

var ErrNotFound = errors.New("not found")

type RosterRepository interface {
	GetRoster(ctx context.Context, orgID int, week models.WeekKind) (models.Roster, error)
	// GetStandings returns ErrNotFound when the team has no standings row.
	GetStandings(ctx context.Context, abbrev string, season int) (models.Standings, error)
	GetOrg(ctx context.Context, teamID int) (models.Org, error)
	GetPlayer(ctx context.Context, playerID int) (models.Player, error)
	AssignPlayer(ctx context.Context, playerID, teamID int) error
}

// TransactionStore persists finalized transactions. Cancel and Unfreeze act on
// every transaction sharing the batch key.
type TransactionStore interface {
	CreateBatch(ctx context.Context, txs []models.FinalizedTransaction) ([]models.FinalizedTransaction, error)
	Cancel(ctx context.Context, batchKey string) error
	Unfreeze(ctx context.Context, batchKey string) error
	GetFrozenForWeek(ctx context.Context, week int) ([]models.FinalizedTransaction, error)
	GetScheduledForWeek(ctx context.Context, week int) ([]models.FinalizedTransaction, error)
}

type LeagueClock interface {
	GetCurrentState(ctx context.Context) (models.LeagueState, error)
	AdvanceWeek(ctx context.Context, week int, frozen bool) error
}

type NotificationSink interface {
	PostAnnouncement(ctx context.Context, text string) error
	DMUser(ctx context.Context, userID int64, text string) error
}
