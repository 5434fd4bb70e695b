package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/omarshaarawi/rosterbot/internal/contested"
	"github.com/omarshaarawi/rosterbot/internal/metrics"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
)

const DefaultSweepInterval = 15 * time.Minute

// Sweeper evicts idle staging state.
type Sweeper interface {
	Sweep() int
}

type Config struct {
	Window        Window
	Location      *time.Location
	OwnerID       int64
	Offseason     bool
	SweepInterval time.Duration
}

type Deps struct {
	Rosters  repository.RosterRepository
	Store    repository.TransactionStore
	League   repository.LeagueClock
	Notifier repository.NotificationSink
	Resolver *contested.Resolver
	Sweepers []Sweeper
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Scheduler runs the weekly freeze. Every job fire runs a cycle that
// compares the stored freeze flag with the window and performs whichever
// transition is due, so a missed fire is caught up by the next one.
type Scheduler struct {
	s         gocron.Scheduler
	cfg       Config
	deps      Deps
	offseason atomic.Bool

	cycleMu sync.Mutex
	alerted bool
	// Losing batches whose cancellation failed, retried every cycle.
	pendingCancels map[string]struct{}
}

func NewScheduler(cfg Config, deps Deps) (*Scheduler, error) {
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Resolver == nil {
		deps.Resolver = contested.NewResolver(deps.Rosters, contested.WithLogger(deps.Logger))
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Location),
		gocron.WithClock(deps.Clock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	sched := &Scheduler{s: s, cfg: cfg, deps: deps, pendingCancels: make(map[string]struct{})}
	sched.offseason.Store(cfg.Offseason)
	return sched, nil
}

func (s *Scheduler) SetOffseason(offseason bool) {
	s.offseason.Store(offseason)
}

// Start registers the jobs, starts gocron and runs one cycle right away.
func (s *Scheduler) Start(ctx context.Context) error {
	var err error

	// Freeze begins
	_, err = s.s.NewJob(
		gocron.CronJob(s.cfg.Window.BeginSpec(), false),
		gocron.NewTask(s.runCycle, ctx),
		gocron.WithName("freeze-begin"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create freeze begin job: %w", err)
	}

	// Freeze ends
	_, err = s.s.NewJob(
		gocron.CronJob(s.cfg.Window.EndSpec(), false),
		gocron.NewTask(s.runCycle, ctx),
		gocron.WithName("freeze-end"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create freeze end job: %w", err)
	}

	_, err = s.s.NewJob(
		gocron.DurationJob(s.cfg.SweepInterval),
		gocron.NewTask(s.sweep),
		gocron.WithName("registry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create registry sweep job: %w", err)
	}

	s.s.Start()
	s.runCycle(ctx)
	return nil
}

func (s *Scheduler) Stop() error {
	return s.s.Shutdown()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	_ = s.RunCycle(ctx)
}

// RunCycle performs the transition the window calls for, if any. Cycles do
// not overlap: a cycle that finds another one running returns at once.
// Failures are reported to the owner once until a cycle succeeds again.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	if !s.cycleMu.TryLock() {
		s.deps.Logger.Warn("Skipping scheduler cycle, previous cycle still running")
		metrics.RecordSchedulerCycle("skipped")
		return nil
	}
	defer s.cycleMu.Unlock()

	if s.offseason.Load() {
		metrics.RecordSchedulerCycle("offseason")
		return nil
	}

	if err := s.cycle(ctx); err != nil {
		metrics.RecordSchedulerCycle("error")
		s.deps.Logger.Error("Scheduler cycle failed", "error", err)
		s.alertOwner(ctx, err)
		return err
	}

	s.alerted = false
	metrics.RecordSchedulerCycle("ok")
	return nil
}

func (s *Scheduler) cycle(ctx context.Context) error {
	state, err := s.deps.League.GetCurrentState(ctx)
	if err != nil {
		return fmt.Errorf("error fetching league state: %w", err)
	}

	retryErr := s.retryCancels(ctx)

	now := s.deps.Clock.Now().In(s.cfg.Location)
	inWindow := s.cfg.Window.Contains(now)

	switch {
	case inWindow && !state.Frozen:
		err = s.beginFreeze(ctx, state)
	case !inWindow && state.Frozen:
		err = s.endFreeze(ctx, state)
	}

	if next, nerr := s.cfg.Window.NextTransition(now); nerr == nil {
		s.deps.Logger.Info("Scheduler cycle complete", "week", state.Week, "frozen", inWindow, "next_transition", next)
	}
	return errors.Join(retryErr, err)
}

// retryCancels cancels losing batches an earlier end of freeze could not.
// A batch that no longer exists is forgotten.
func (s *Scheduler) retryCancels(ctx context.Context) error {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(s.pendingCancels)) {
		err := s.deps.Store.Cancel(ctx, key)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			errs = append(errs, fmt.Errorf("batch %s is still frozen, cancel failed: %w", key, err))
			continue
		}
		delete(s.pendingCancels, key)
		s.deps.Logger.Info("Cancelled losing batch on retry", "moveid", key)
	}
	return errors.Join(errs...)
}

// beginFreeze advances the league a week, freezes it, and applies the moves
// that were scheduled for the new week. Applying those moves is an ordinary
// roster update and always happens before any contested claims are settled.
func (s *Scheduler) beginFreeze(ctx context.Context, state models.LeagueState) error {
	week := state.Week + 1

	scheduled, err := s.deps.Store.GetScheduledForWeek(ctx, week)
	if err != nil {
		return fmt.Errorf("error fetching scheduled transactions for week %d: %w", week, err)
	}

	if err := s.deps.League.AdvanceWeek(ctx, week, true); err != nil {
		return fmt.Errorf("error advancing to week %d: %w", week, err)
	}

	applied := 0
	for _, tx := range scheduled {
		if err := s.deps.Rosters.AssignPlayer(ctx, tx.Player.ID, tx.ToTeam.ID); err != nil {
			s.deps.Logger.Error("Failed to apply scheduled transaction",
				"moveid", tx.MoveBatchKey, "player", tx.Player.Name, "team", tx.ToTeam.Abbrev, "error", err)
			continue
		}
		applied++
	}

	metrics.RecordFreezeTransition("begin")
	s.deps.Logger.Info("Freeze started", "week", week, "scheduled", len(scheduled), "applied", applied)
	s.announce(ctx, fmt.Sprintf("Freeze has begun for week %d. %d scheduled move(s) processed.", week, applied))
	return nil
}

// endFreeze settles the claims submitted during the freeze, cancels losing
// batches, releases everything else and reopens the league. A failure on one
// batch does not stop the others; such failures are returned once the league
// is open again.
func (s *Scheduler) endFreeze(ctx context.Context, state models.LeagueState) error {
	week := state.Week + 1

	frozen, err := s.deps.Store.GetFrozenForWeek(ctx, week)
	if err != nil {
		return fmt.Errorf("error fetching frozen transactions for week %d: %w", week, err)
	}

	outcome := s.deps.Resolver.Resolve(ctx, frozen, state.Season)

	var errs []error
	cancelled := make(map[string]bool, len(outcome.Losers))
	for _, key := range outcome.Losers {
		if err := s.deps.Store.Cancel(ctx, key); err != nil {
			s.deps.Logger.Error("Failed to cancel losing batch", "moveid", key, "error", err)
			errs = append(errs, fmt.Errorf("cancel %s: %w", key, err))
			s.pendingCancels[key] = struct{}{}
			continue
		}
		cancelled[key] = true
	}

	for _, contest := range outcome.Contests {
		for _, loser := range contest.Losers {
			if !cancelled[loser.Tx.MoveBatchKey] || loser.Tx.OwnerID == 0 {
				continue
			}
			msg := fmt.Sprintf("Your claim for %s (%s) lost to %s and was cancelled.",
				contest.Player.Name, loser.Tx.ToTeam.Abbrev, contest.Winner.Tx.ToTeam.ParentAbbrev())
			if err := s.deps.Notifier.DMUser(ctx, loser.Tx.OwnerID, msg); err != nil {
				s.deps.Logger.Warn("Failed to notify losing GM", "user", loser.Tx.OwnerID, "error", err)
			}
		}
	}

	released := 0
	seen := make(map[string]bool)
	for _, tx := range frozen {
		key := tx.MoveBatchKey
		if seen[key] || outcome.Lost(key) {
			continue
		}
		seen[key] = true
		if err := s.deps.Store.Unfreeze(ctx, key); err != nil {
			s.deps.Logger.Error("Failed to unfreeze batch", "moveid", key, "error", err)
			errs = append(errs, fmt.Errorf("unfreeze %s: %w", key, err))
			continue
		}
		released++
	}

	if err := s.deps.League.AdvanceWeek(ctx, state.Week, false); err != nil {
		return fmt.Errorf("error ending freeze for week %d: %w", state.Week, err)
	}

	metrics.RecordFreezeTransition("end")
	s.deps.Logger.Info("Freeze ended", "week", state.Week, "contests", len(outcome.Contests), "cancelled", len(cancelled), "released", released)
	s.announce(ctx, endFreezeAnnouncement(state.Week, outcome))

	return errors.Join(errs...)
}

func endFreezeAnnouncement(week int, outcome contested.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Freeze is over for week %d.", week)
	if len(outcome.Contests) == 0 {
		b.WriteString(" No contested claims.")
		return b.String()
	}
	fmt.Fprintf(&b, " %d contested claim(s) resolved:", len(outcome.Contests))
	for _, c := range outcome.Contests {
		fmt.Fprintf(&b, "\n%s → %s", c.Player.Name, c.Winner.Tx.ToTeam.ParentAbbrev())
	}
	return b.String()
}

func (s *Scheduler) announce(ctx context.Context, text string) {
	if err := s.deps.Notifier.PostAnnouncement(ctx, text); err != nil {
		s.deps.Logger.Warn("Failed to post announcement", "error", err)
	}
}

func (s *Scheduler) alertOwner(ctx context.Context, cause error) {
	if s.alerted || s.cfg.OwnerID == 0 {
		return
	}
	s.alerted = true
	if err := s.deps.Notifier.DMUser(ctx, s.cfg.OwnerID, fmt.Sprintf("Weekly transaction cycle failed: %v", cause)); err != nil {
		s.deps.Logger.Error("Failed to alert owner", "error", err)
	}
}

func (s *Scheduler) sweep() {
	for _, sw := range s.deps.Sweepers {
		sw.Sweep()
	}
}
