package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
	"github.com/omarshaarawi/rosterbot/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to ROSTERBOT_TEST_POSTGRES_DSN and starts from empty
// tables. Tests are skipped without it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ROSTERBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROSTERBOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewStore(pool)
	require.NoError(t, s.Migrate(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE transactions; DELETE FROM league_state`)
	require.NoError(t, err)
	return s
}

func TestLeagueClock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetCurrentState(ctx)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.AdvanceWeek(ctx, 2, true), repository.ErrNotFound)

	require.NoError(t, s.EnsureState(ctx, models.LeagueState{Week: 10, Season: 12}))
	require.NoError(t, s.EnsureState(ctx, models.LeagueState{Week: 1, Season: 1}))
	require.NoError(t, s.AdvanceWeek(ctx, 11, true))

	state, err := s.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LeagueState{Week: 11, Season: 12, Frozen: true}, state)
}

func TestTransactionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureState(ctx, models.LeagueState{Week: 11, Season: 12, Frozen: true}))

	nyy := models.NewOrg(
		models.Team{ID: 1, Abbrev: "NYY", ShortName: "NYY", Season: 12, GMIDs: []int64{100}},
		models.Team{ID: 1001, Abbrev: "NYYMiL", ShortName: "NYY MiL", Season: 12},
		models.Team{ID: 2001, Abbrev: "NYYIL", ShortName: "NYY IL", Season: 12},
	)
	fa := models.Player{ID: 500, Name: "Free Agent", Wara: 1.25, Team: models.FreeAgents}
	move, err := models.NewMove(fa, models.FreeAgencyOrg, models.FreeAgency, nyy, models.MinorLeague)
	require.NoError(t, err)

	frozen := transaction.Batch{Key: "Season-012-Week-12-1-1", Week: 12, Season: 12, OwnerID: 100, Frozen: true}
	scheduled := transaction.Batch{Key: "Season-012-Week-12-1-2", Week: 12, Season: 12, OwnerID: 100}

	created, err := s.CreateBatch(ctx, frozen.Finalize([]models.Move{move}))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].ID)
	_, err = s.CreateBatch(ctx, scheduled.Finalize([]models.Move{move}))
	require.NoError(t, err)

	got, err := s.GetFrozenForWeek(ctx, 12)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, created[0], got[0])
	assert.Equal(t, nyy.Minor, got[0].ToTeam)

	sched, err := s.GetScheduledForWeek(ctx, 12)
	require.NoError(t, err)
	require.Len(t, sched, 1)
	assert.Equal(t, scheduled.Key, sched[0].MoveBatchKey)

	require.NoError(t, s.Unfreeze(ctx, frozen.Key))
	got, err = s.GetFrozenForWeek(ctx, 12)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Cancel(ctx, scheduled.Key))
	sched, err = s.GetScheduledForWeek(ctx, 12)
	require.NoError(t, err)
	assert.Len(t, sched, 1)
	assert.Equal(t, frozen.Key, sched[0].MoveBatchKey)

	assert.ErrorIs(t, s.Cancel(ctx, "missing"), repository.ErrNotFound)
}
