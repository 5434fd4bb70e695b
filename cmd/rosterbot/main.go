package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/omarshaarawi/rosterbot/internal/api/league"
	"github.com/omarshaarawi/rosterbot/internal/bot"
	"github.com/omarshaarawi/rosterbot/internal/config"
	"github.com/omarshaarawi/rosterbot/internal/contested"
	"github.com/omarshaarawi/rosterbot/internal/lock"
	"github.com/omarshaarawi/rosterbot/internal/metrics"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
	"github.com/omarshaarawi/rosterbot/internal/repository/memory"
	"github.com/omarshaarawi/rosterbot/internal/repository/postgres"
	"github.com/omarshaarawi/rosterbot/internal/roster"
	"github.com/omarshaarawi/rosterbot/internal/scheduler"
	"github.com/omarshaarawi/rosterbot/internal/trade"
	"github.com/omarshaarawi/rosterbot/internal/transaction"
	goredislib "github.com/redis/go-redis/v9"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("Error running application", "error", err)
		os.Exit(1)
	}
}

type storage interface {
	repository.TransactionStore
	repository.LeagueClock
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Error("Error loading .env file", "error", err)
	}

	cfg, err := config.New()
	if err != nil {
		return err
	}

	location, err := cfg.League.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rosters := league.NewAPI(league.NewClient(cfg.LeagueAPI))

	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	telegramBot, err := bot.NewTelegramBot(cfg.TelegramBot.Token, cfg.TelegramBot.ChatID)
	if err != nil {
		return err
	}

	locker, closeLocker, err := openLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	backend := transaction.Backend{
		Validator: roster.NewValidator(rosters, store, store, cfg.League.SalaryCap),
		Store:     store,
		League:    store,
		Logger:    slog.Default(),
	}
	ledgers := transaction.NewRegistry(backend, cfg.Schedule.IdleTTL)
	trades := trade.NewRegistry(backend, rosters, locker, cfg.Schedule.IdleTTL)

	sched, err := scheduler.NewScheduler(
		scheduler.Config{
			Window: scheduler.Window{
				BeginDay:  cfg.Schedule.FreezeBeginDay,
				BeginHour: cfg.Schedule.FreezeBeginHour,
				EndDay:    cfg.Schedule.FreezeEndDay,
				EndHour:   cfg.Schedule.FreezeEndHour,
			},
			Location:      location,
			OwnerID:       cfg.TelegramBot.OwnerID,
			Offseason:     cfg.League.Offseason,
			SweepInterval: cfg.Schedule.SweepInterval,
		},
		scheduler.Deps{
			Rosters:  rosters,
			Store:    store,
			League:   store,
			Notifier: telegramBot,
			Resolver: contested.NewResolver(rosters, contested.WithLogger(slog.Default())),
			Sweepers: []scheduler.Sweeper{ledgers, trades},
			Logger:   slog.Default(),
		},
	)
	if err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() {
		err := sched.Stop()
		if err != nil {
			slog.Error("Error stopping scheduler", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", healthCheckHandler)
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Error starting HTTP server", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStorage uses Postgres when a DSN is configured and keeps everything in
// memory otherwise.
func openStorage(ctx context.Context, cfg *config.Config) (storage, func(), error) {
	seed := models.LeagueState{Week: 0, Season: cfg.League.Season}

	if cfg.Postgres.DSN == "" {
		slog.Warn("POSTGRES_DSN not set, transactions will not survive a restart")
		repo := memory.NewRepository()
		repo.SetState(seed)
		return repo, func() {}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.EnsureState(ctx, seed); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// openLocker shares trade locks through redis when an address is configured.
func openLocker(cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewKeyedMutex(), func() {}, nil
	}

	client := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	locker, err := lock.NewRedisLocker(client, lock.DefaultRedisOptions(), slog.Default())
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return locker, func() { client.Close() }, nil
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
