// internal/ledger/sqlite.go
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"commit-tracker/internal/model"
)

// SQLiteLedger stores announced commits in a single SQLite file.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path.
// A "sqlite:" or "sqlite://" prefix is accepted and stripped.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteLedger, error) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "sqlite://"), "sqlite:")
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite free of SQLITE_BUSY between cycles.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := runSQLiteMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite ledger: %w", err)
	}
	logger.Debug("SQLite ledger ready", "path", path)

	return &SQLiteLedger{db: db, logger: logger, now: time.Now}, nil
}

func (l *SQLiteLedger) Exists(ctx context.Context, commitID int64) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sent_commits WHERE commit_id = ?)`, commitID,
	).Scan(&exists)
	if err != nil {
		return false, storageErr("exists", err)
	}
	return exists, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, c model.CommitRecord) error {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO sent_commits (commit_id, author, message, branch, changeset, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (commit_id) DO NOTHING`,
		c.ID, c.Author, c.Message, c.Branch, c.Changeset, l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return storageErr("record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		l.logger.Debug("Commit already recorded", "commit_id", c.ID)
		return nil
	}
	l.logger.Debug("Marked commit as sent", "commit_id", c.ID)
	return nil
}

func (l *SQLiteLedger) LastAnnounced(ctx context.Context) (*model.LedgerEntry, error) {
	var (
		e      model.LedgerEntry
		sentAt string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT commit_id, author, message, branch, changeset, sent_at
		 FROM sent_commits ORDER BY commit_id DESC LIMIT 1`,
	).Scan(&e.CommitID, &e.Author, &e.Message, &e.Branch, &e.Changeset, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("last announced", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, sentAt); err == nil {
		e.SentAt = t
	}
	return &e, nil
}

func (l *SQLiteLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent_commits`).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (l *SQLiteLedger) Trim(ctx context.Context, keepLast int64) (int64, error) {
	keepLast = clampKeep(keepLast)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM sent_commits
		 WHERE commit_id NOT IN (
		     SELECT commit_id FROM sent_commits ORDER BY commit_id DESC LIMIT ?
		 )`, keepLast,
	)
	if err != nil {
		return 0, storageErr("trim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("trim", err)
	}
	l.logger.Info("Trimmed ledger", "kept", keepLast, "removed", n)
	return n, nil
}

func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
