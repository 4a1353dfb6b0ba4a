// internal/ledger/postgres.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"commit-tracker/internal/model"
)

// PostgresLedger stores announced commits in PostgreSQL through a shared pool.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// OpenPostgres connects to dbURL, verifies the connection and applies migrations.
func OpenPostgres(ctx context.Context, dbURL string, logger *slog.Logger) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runPostgresMigrations(dbURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Debug("Postgres ledger ready")

	return NewPostgresLedger(pool, logger), nil
}

// NewPostgresLedger wraps an existing pool whose schema is already migrated.
func NewPostgresLedger(pool *pgxpool.Pool, logger *slog.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger, now: time.Now}
}

func (l *PostgresLedger) Exists(ctx context.Context, commitID int64) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sent_commits WHERE commit_id = $1)`, commitID,
	).Scan(&exists)
	if err != nil {
		return false, storageErr("exists", err)
	}
	return exists, nil
}

func (l *PostgresLedger) Record(ctx context.Context, c model.CommitRecord) error {
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO sent_commits (commit_id, author, message, branch, changeset, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (commit_id) DO NOTHING`,
		c.ID, c.Author, c.Message, c.Branch, c.Changeset, l.now().UTC(),
	)
	if err != nil {
		return storageErr("record", err)
	}
	if tag.RowsAffected() == 0 {
		l.logger.Debug("Commit already recorded", "commit_id", c.ID)
		return nil
	}
	l.logger.Debug("Marked commit as sent", "commit_id", c.ID)
	return nil
}

func (l *PostgresLedger) LastAnnounced(ctx context.Context) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := l.pool.QueryRow(ctx,
		`SELECT commit_id, author, message, branch, changeset, sent_at
		 FROM sent_commits ORDER BY commit_id DESC LIMIT 1`,
	).Scan(&e.CommitID, &e.Author, &e.Message, &e.Branch, &e.Changeset, &e.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("last announced", err)
	}
	return &e, nil
}

func (l *PostgresLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sent_commits`).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (l *PostgresLedger) Trim(ctx context.Context, keepLast int64) (int64, error) {
	keepLast = clampKeep(keepLast)
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM sent_commits
		 WHERE commit_id NOT IN (
		     SELECT commit_id FROM sent_commits ORDER BY commit_id DESC LIMIT $1
		 )`, keepLast,
	)
	if err != nil {
		return 0, storageErr("trim", err)
	}
	l.logger.Info("Trimmed ledger", "kept", keepLast, "removed", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}
