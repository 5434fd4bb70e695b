package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omarshaarawi/rosterbot/internal/contested"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository/memory"
	"github.com/omarshaarawi/rosterbot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerID = 1

// recordingStore records store calls and can fail cancellation of one batch.
type recordingStore struct {
	*memory.Repository
	mu         sync.Mutex
	calls      []string
	failCancel string
}

func (s *recordingStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingStore) GetScheduledForWeek(ctx context.Context, week int) ([]models.FinalizedTransaction, error) {
	s.record("GetScheduledForWeek")
	return s.Repository.GetScheduledForWeek(ctx, week)
}

func (s *recordingStore) GetFrozenForWeek(ctx context.Context, week int) ([]models.FinalizedTransaction, error) {
	s.record("GetFrozenForWeek")
	return s.Repository.GetFrozenForWeek(ctx, week)
}

func (s *recordingStore) Cancel(ctx context.Context, batchKey string) error {
	s.record("Cancel")
	if batchKey == s.failCancel {
		return errors.New("write failed")
	}
	return s.Repository.Cancel(ctx, batchKey)
}

// flakyLeague fails GetCurrentState while fail is set.
type flakyLeague struct {
	*memory.Repository
	fail atomic.Bool
}

func (l *flakyLeague) GetCurrentState(ctx context.Context) (models.LeagueState, error) {
	if l.fail.Load() {
		return models.LeagueState{}, errors.New("league database unreachable")
	}
	return l.Repository.GetCurrentState(ctx)
}

type countingSweeper struct{ n int }

func (c *countingSweeper) Sweep() int {
	c.n++
	return 0
}

type fixture struct {
	repo     *memory.Repository
	store    *recordingStore
	league   *flakyLeague
	notifier *memory.Notifier
	clock    *clockwork.FakeClock
	sweeper  *countingSweeper
	sched    *Scheduler
	nyy      models.Org
	bos      models.Org
	chc      models.Org
}

func newFixture(t *testing.T, now time.Time, week int, frozen bool) *fixture {
	t.Helper()
	repo := testutil.NewLeague(week)
	repo.SetState(models.LeagueState{Week: week, Season: testutil.Season, Frozen: frozen})

	f := &fixture{
		repo:     repo,
		store:    &recordingStore{Repository: repo},
		league:   &flakyLeague{Repository: repo},
		notifier: memory.NewNotifier(),
		clock:    clockwork.NewFakeClockAt(now),
		sweeper:  &countingSweeper{},
		nyy:      testutil.AddOrg(repo, 1, "NYY", 100),
		bos:      testutil.AddOrg(repo, 2, "BOS", 200),
		chc:      testutil.AddOrg(repo, 3, "CHC", 300),
	}
	repo.SaveStandings(models.Standings{Abbrev: "NYY", Season: testutil.Season, Wins: 3, Losses: 7})
	repo.SaveStandings(models.Standings{Abbrev: "BOS", Season: testutil.Season, Wins: 7, Losses: 3})
	repo.SaveStandings(models.Standings{Abbrev: "CHC", Season: testutil.Season, Wins: 8, Losses: 2})

	sched, err := NewScheduler(
		Config{Window: DefaultWindow(), Location: time.UTC, OwnerID: ownerID},
		Deps{
			Rosters:  repo,
			Store:    f.store,
			League:   f.league,
			Notifier: f.notifier,
			Resolver: contested.NewResolver(repo, contested.WithTiebreak(func() float64 { return 0 })),
			Sweepers: []Sweeper{f.sweeper},
			Clock:    f.clock,
		},
	)
	require.NoError(t, err)
	f.sched = sched
	return f
}

func (f *fixture) batch(t *testing.T, key string, week int, owner int64, frozen bool, moves ...models.Move) {
	t.Helper()
	txs := make([]models.FinalizedTransaction, len(moves))
	for i, m := range moves {
		txs[i] = models.FinalizedTransaction{
			Week:         week,
			Season:       testutil.Season,
			MoveBatchKey: key,
			Player:       m.Player,
			FromTeam:     m.FromTeam(),
			ToTeam:       m.ToTeam(),
			OwnerID:      owner,
			Frozen:       frozen,
		}
	}
	_, err := f.repo.CreateBatch(context.Background(), txs)
	require.NoError(t, err)
}

func sign(player models.Player, org models.Org, slot models.RosterSlot) models.Move {
	return models.Move{Player: player, FromOrg: models.FreeAgencyOrg, FromSlot: models.FreeAgency, ToOrg: org, ToSlot: slot}
}

func byBatch(txs []models.FinalizedTransaction) map[string][]models.FinalizedTransaction {
	out := make(map[string][]models.FinalizedTransaction)
	for _, tx := range txs {
		out[tx.MoveBatchKey] = append(out[tx.MoveBatchKey], tx)
	}
	return out
}

func TestBeginFreezeAdvancesWeekAndAppliesScheduledMoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(4, 1, 0), 10, false)

	scheduled := testutil.FreeAgent(f.repo, 500, 1.0)
	claimed := testutil.FreeAgent(f.repo, 501, 1.0)
	ghost := models.Player{ID: 999, Name: "Ghost", Team: models.FreeAgents}

	f.batch(t, "scheduled", 11, 100, false, sign(scheduled, f.nyy, models.MinorLeague), sign(ghost, f.nyy, models.MajorLeague))
	f.batch(t, "nyy-claim", 12, 100, true, sign(claimed, f.nyy, models.MajorLeague))
	f.batch(t, "bos-claim", 12, 200, true, sign(claimed, f.bos, models.MajorLeague))

	require.NoError(t, f.sched.RunCycle(ctx))

	state, err := f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, state.Week)
	assert.True(t, state.Frozen)

	p, err := f.repo.GetPlayer(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, f.nyy.Minor, p.Team)

	assert.Equal(t, []string{"GetScheduledForWeek"}, f.store.Calls())
	for _, tx := range f.repo.Transactions() {
		if tx.Week == 12 {
			assert.True(t, tx.Frozen)
			assert.False(t, tx.Cancelled)
		}
	}

	assert.Equal(t, []string{"Freeze has begun for week 11. 1 scheduled move(s) processed."}, f.notifier.Announcements())
	assert.Empty(t, f.notifier.DirectMessages())

	// Nothing more to do until the window closes.
	require.NoError(t, f.sched.RunCycle(ctx))
	state, err = f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, state.Week)
	assert.Len(t, f.notifier.Announcements(), 1)
}

func TestEndFreezeResolvesClaimsAndReopens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(9, 1, 0), 11, true)

	contestedFA := testutil.FreeAgent(f.repo, 500, 1.0)
	otherFA := testutil.FreeAgent(f.repo, 501, 1.0)
	bosML := testutil.Fill(f.repo, f.bos, models.MajorLeague, 1, 1.0, 101)

	drop := models.Move{Player: bosML[0], FromOrg: f.bos, FromSlot: models.MajorLeague, ToOrg: models.FreeAgencyOrg, ToSlot: models.FreeAgency}
	f.batch(t, "nyy-batch", 12, 100, true, sign(contestedFA, f.nyy, models.MajorLeague))
	f.batch(t, "bos-batch", 12, 200, true, sign(contestedFA, f.bos, models.MajorLeague), drop)
	f.batch(t, "chc-batch", 12, 300, true, sign(otherFA, f.chc, models.MinorLeague))

	require.NoError(t, f.sched.RunCycle(ctx))

	state, err := f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LeagueState{Week: 11, Season: testutil.Season, Frozen: false}, state)

	batches := byBatch(f.repo.Transactions())
	for _, tx := range batches["nyy-batch"] {
		assert.False(t, tx.Frozen)
		assert.False(t, tx.Cancelled)
	}
	for _, tx := range batches["chc-batch"] {
		assert.False(t, tx.Frozen)
		assert.False(t, tx.Cancelled)
	}
	require.Len(t, batches["bos-batch"], 2)
	for _, tx := range batches["bos-batch"] {
		assert.True(t, tx.Cancelled)
	}

	dms := f.notifier.DirectMessages()
	require.Len(t, dms, 1)
	assert.Equal(t, int64(200), dms[0].UserID)
	assert.Contains(t, dms[0].Text, "Free Agent 500")

	announcements := f.notifier.Announcements()
	require.Len(t, announcements, 1)
	assert.Contains(t, announcements[0], "Freeze is over for week 11.")
	assert.Contains(t, announcements[0], "Free Agent 500 → NYY")
}

func TestEndFreezeIsolatesCancelFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(9, 1, 0), 11, true)
	f.store.failCancel = "bos-batch"

	first := testutil.FreeAgent(f.repo, 500, 1.0)
	second := testutil.FreeAgent(f.repo, 501, 1.0)
	f.batch(t, "nyy-first", 12, 100, true, sign(first, f.nyy, models.MajorLeague))
	f.batch(t, "bos-batch", 12, 200, true, sign(first, f.bos, models.MajorLeague))
	f.batch(t, "nyy-second", 12, 100, true, sign(second, f.nyy, models.MinorLeague))
	f.batch(t, "chc-batch", 12, 300, true, sign(second, f.chc, models.MajorLeague))

	err := f.sched.RunCycle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bos-batch")

	state, err := f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.False(t, state.Frozen)

	batches := byBatch(f.repo.Transactions())
	assert.True(t, batches["chc-batch"][0].Cancelled)
	assert.False(t, batches["bos-batch"][0].Cancelled)
	assert.False(t, batches["nyy-first"][0].Frozen)
	assert.False(t, batches["nyy-second"][0].Frozen)

	var users []int64
	for _, dm := range f.notifier.DirectMessages() {
		users = append(users, dm.UserID)
	}
	assert.ElementsMatch(t, []int64{300, ownerID}, users)

	// The stuck batch is retried on later cycles until the cancel lands.
	err = f.sched.RunCycle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bos-batch is still frozen")
	assert.Len(t, f.notifier.DirectMessages(), 2)

	f.store.failCancel = ""
	require.NoError(t, f.sched.RunCycle(ctx))
	batches = byBatch(f.repo.Transactions())
	assert.True(t, batches["bos-batch"][0].Cancelled)

	calls := len(f.store.Calls())
	require.NoError(t, f.sched.RunCycle(ctx))
	assert.Len(t, f.store.Calls(), calls)
}

func TestOwnerAlertIsLatched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(6, 12, 0), 11, true)
	f.league.fail.Store(true)

	require.Error(t, f.sched.RunCycle(ctx))
	require.Error(t, f.sched.RunCycle(ctx))
	require.Len(t, f.notifier.DirectMessages(), 1)
	assert.Equal(t, int64(ownerID), f.notifier.DirectMessages()[0].UserID)
	assert.Contains(t, f.notifier.DirectMessages()[0].Text, "league database unreachable")

	f.league.fail.Store(false)
	require.NoError(t, f.sched.RunCycle(ctx))

	f.league.fail.Store(true)
	require.Error(t, f.sched.RunCycle(ctx))
	assert.Len(t, f.notifier.DirectMessages(), 2)
}

func TestOffseasonSkipsCycles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(4, 1, 0), 10, false)
	f.sched.SetOffseason(true)

	require.NoError(t, f.sched.RunCycle(ctx))
	state, err := f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, state.Week)
	assert.False(t, state.Frozen)

	f.sched.SetOffseason(false)
	require.NoError(t, f.sched.RunCycle(ctx))
	state, err = f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, state.Week)
}

func TestRunCycleDoesNotOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(4, 1, 0), 10, false)

	f.sched.cycleMu.Lock()
	require.NoError(t, f.sched.RunCycle(ctx))
	f.sched.cycleMu.Unlock()

	state, err := f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, state.Week)
}

func TestStartRunsInitialCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, at(4, 1, 0), 10, false)

	require.NoError(t, f.sched.Start(ctx))
	defer func() { assert.NoError(t, f.sched.Stop()) }()

	state, err := f.repo.GetCurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, state.Week)
	assert.True(t, state.Frozen)
}

func TestSweepRunsEverySweeper(t *testing.T) {
	f := newFixture(t, at(4, 1, 0), 10, false)
	f.sched.sweep()
	f.sched.sweep()
	assert.Equal(t, 2, f.sweeper.n)
}

func TestNewSchedulerRejectsEmptyWindow(t *testing.T) {
	_, err := NewScheduler(Config{Window: Window{BeginDay: time.Monday, EndDay: time.Monday}}, Deps{})
	assert.Error(t, err)
}
