// internal/ledger/ledger.go
package ledger

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"commit-tracker/internal/model"

	custom_errors "commit-tracker/internal/errors"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the durable record of every commit already announced.
type Store interface {
	// Exists reports whether commitID has been recorded.
	Exists(ctx context.Context, commitID int64) (bool, error)
	// Record stores c with the current time. Recording an id twice is a no-op.
	Record(ctx context.Context, c model.CommitRecord) error
	// LastAnnounced returns the entry with the highest commit id, or nil when empty.
	LastAnnounced(ctx context.Context) (*model.LedgerEntry, error)
	Count(ctx context.Context) (int64, error)
	// Trim deletes every entry except the keepLast highest commit ids and
	// returns the number of rows removed.
	Trim(ctx context.Context, keepLast int64) (int64, error)
	Close() error
}

var (
	_ Store = (*SQLiteLedger)(nil)
	_ Store = (*PostgresLedger)(nil)
)

// Open connects to the ledger backend named by driver and applies migrations.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (Store, error) {
	switch driver {
	case DriverSQLite:
		l, err := OpenSQLite(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case DriverPostgres:
		l, err := OpenPostgres(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", driver)
	}
}

// clampKeep ensures a trim never removes the most recent entry.
func clampKeep(keepLast int64) int64 {
	if keepLast < 1 {
		return 1
	}
	return keepLast
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &custom_errors.StorageError{Op: op, Err: err}
}
