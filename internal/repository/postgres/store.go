// Package postgres persists finalized transactions and the league clock.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omarshaarawi/rosterbot/internal/models"
	"github.com/omarshaarawi/rosterbot/internal/repository"
)

//go:embed schema.sql
var schema string

var (
	_ repository.TransactionStore = (*Store)(nil)
	_ repository.LeagueClock      = (*Store)(nil)
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// EnsureState seeds the league clock on first run. An existing row is left
// alone.
func (s *Store) EnsureState(ctx context.Context, state models.LeagueState) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO league_state (id, week, season, frozen)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, state.Week, state.Season, state.Frozen)
	if err != nil {
		return fmt.Errorf("seed league state: %w", err)
	}
	return nil
}

func (s *Store) GetCurrentState(ctx context.Context) (models.LeagueState, error) {
	var state models.LeagueState
	err := s.db.QueryRow(ctx, `
		SELECT week, season, frozen FROM league_state WHERE id = 1
	`).Scan(&state.Week, &state.Season, &state.Frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LeagueState{}, fmt.Errorf("league state: %w", repository.ErrNotFound)
	}
	if err != nil {
		return models.LeagueState{}, fmt.Errorf("query league state: %w", err)
	}
	return state, nil
}

func (s *Store) AdvanceWeek(ctx context.Context, week int, frozen bool) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE league_state SET week = $1, frozen = $2 WHERE id = 1
	`, week, frozen)
	if err != nil {
		return fmt.Errorf("update league state: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("league state: %w", repository.ErrNotFound)
	}
	return nil
}

// CreateBatch inserts every transaction in one database transaction.
func (s *Store) CreateBatch(ctx context.Context, txs []models.FinalizedTransaction) ([]models.FinalizedTransaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]models.FinalizedTransaction, len(txs))
	for i, t := range txs {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions (id, week, season, moveid, player, from_team, to_team, owner_id, cancelled, frozen)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, t.ID, t.Week, t.Season, t.MoveBatchKey, t.Player, t.FromTeam, t.ToTeam, t.OwnerID, t.Cancelled, t.Frozen)
		if err != nil {
			return nil, fmt.Errorf("insert transaction for player %d: %w", t.Player.ID, err)
		}
		created[i] = t
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (s *Store) Cancel(ctx context.Context, batchKey string) error {
	return s.updateBatch(ctx, `UPDATE transactions SET cancelled = TRUE WHERE moveid = $1`, batchKey)
}

func (s *Store) Unfreeze(ctx context.Context, batchKey string) error {
	return s.updateBatch(ctx, `UPDATE transactions SET frozen = FALSE WHERE moveid = $1`, batchKey)
}

func (s *Store) updateBatch(ctx context.Context, query, batchKey string) error {
	cmd, err := s.db.Exec(ctx, query, batchKey)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", batchKey, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", batchKey, repository.ErrNotFound)
	}
	return nil
}

// GetFrozenForWeek returns the current season's frozen transactions for week.
func (s *Store) GetFrozenForWeek(ctx context.Context, week int) ([]models.FinalizedTransaction, error) {
	return s.query(ctx, `
		SELECT t.id::text, t.week, t.season, t.moveid, t.player, t.from_team, t.to_team, t.owner_id, t.cancelled, t.frozen
		FROM transactions t
		JOIN league_state l ON l.id = 1 AND l.season = t.season
		WHERE t.week = $1 AND t.frozen AND NOT t.cancelled
		ORDER BY t.created_at, t.moveid
	`, week)
}

// GetScheduledForWeek returns the current season's unfrozen transactions for
// week.
func (s *Store) GetScheduledForWeek(ctx context.Context, week int) ([]models.FinalizedTransaction, error) {
	return s.query(ctx, `
		SELECT t.id::text, t.week, t.season, t.moveid, t.player, t.from_team, t.to_team, t.owner_id, t.cancelled, t.frozen
		FROM transactions t
		JOIN league_state l ON l.id = 1 AND l.season = t.season
		WHERE t.week = $1 AND NOT t.frozen AND NOT t.cancelled
		ORDER BY t.created_at, t.moveid
	`, week)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.FinalizedTransaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.FinalizedTransaction
	for rows.Next() {
		var t models.FinalizedTransaction
		if err := rows.Scan(&t.ID, &t.Week, &t.Season, &t.MoveBatchKey, &t.Player, &t.FromTeam, &t.ToTeam, &t.OwnerID, &t.Cancelled, &t.Frozen); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
