// internal/tracker/tracker.go
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	custom_errors "commit-tracker/internal/errors"
	"commit-tracker/internal/model"
)

// Fetcher returns the latest commit published at a feed URL.
type Fetcher interface {
	FetchLatest(ctx context.Context, feedURL string) (*model.FetchResult, error)
}

// Notifier announces a commit.
type Notifier interface {
	Notify(ctx context.Context, result *model.FetchResult) error
}

// Ledger is the durable record of announced commits.
type Ledger interface {
	Exists(ctx context.Context, commitID int64) (bool, error)
	Record(ctx context.Context, c model.CommitRecord) error
	LastAnnounced(ctx context.Context) (*model.LedgerEntry, error)
	Count(ctx context.Context) (int64, error)
	Trim(ctx context.Context, keepLast int64) (int64, error)
}

// Outcome is how a single cycle ended.
type Outcome string

const (
	OutcomeAnnounced        Outcome = "announced"
	OutcomeAlreadyAnnounced Outcome = "already_announced"
	OutcomeFetchFailed      Outcome = "fetch_failed"
	OutcomeCheckFailed      Outcome = "check_failed"
	OutcomeNotifyFailed     Outcome = "notify_failed"
	OutcomeRecordFailed     Outcome = "record_failed"
)

// Settings are the loop parameters.
type Settings struct {
	FeedURL  string
	Interval time.Duration
	// KeepLast is how many ledger entries survive a trim.
	KeepLast int64
	// TrimMargin is how far past KeepLast the ledger may grow before a trim.
	TrimMargin int64
}

// Tracker polls the feed and announces each new latest commit exactly once per ledger.
type Tracker struct {
	ledger   Ledger
	fetcher  Fetcher
	notifier Notifier
	logger   *slog.Logger
	metrics  *Metrics
	settings Settings
}

// NewTracker creates a new Tracker instance. metrics may be nil.
func NewTracker(ledger Ledger, fetcher Fetcher, notifier Notifier, logger *slog.Logger, metrics *Metrics, settings Settings) (*Tracker, error) {
	switch {
	case ledger == nil || fetcher == nil || notifier == nil:
		return nil, errors.New("tracker requires a ledger, fetcher and notifier")
	case settings.FeedURL == "":
		return nil, errors.New("tracker requires a feed URL")
	case settings.Interval <= 0:
		return nil, fmt.Errorf("poll interval must be positive, got %s", settings.Interval)
	case settings.KeepLast < 1:
		return nil, fmt.Errorf("keep_last must be at least 1, got %d", settings.KeepLast)
	case settings.TrimMargin < 0:
		return nil, fmt.Errorf("trim margin must not be negative, got %d", settings.TrimMargin)
	}

	return &Tracker{
		ledger:   ledger,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		settings: settings,
	}, nil
}

// Run polls until ctx is cancelled. It only returns an error if the ledger
// cannot be read before the first cycle.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("Starting tracker", "feed_url", t.settings.FeedURL, "interval", t.settings.Interval.String())

	last, err := t.ledger.LastAnnounced(ctx)
	if err != nil {
		return fmt.Errorf("read last announced commit: %w", err)
	}
	if last != nil {
		t.logger.Info("Resuming from last announced commit", "commit_id", last.CommitID, "changeset", last.Changeset)
	} else {
		t.logger.Info("No previously announced commits found, starting fresh")
	}

	ticker := time.NewTicker(t.settings.Interval)
	defer ticker.Stop()

	t.runCycle(ctx) // Initial poll

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			t.runCycle(ctx)
		case <-ctx.Done():
			t.logger.Info("Tracker shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// runCycle runs one cycle and logs its failure; it never stops the loop.
func (t *Tracker) runCycle(ctx context.Context) {
	start := time.Now()
	logger := t.logger.With("cycle_id", uuid.NewString())

	outcome, err := t.RunCycle(ctx, logger)
	t.metrics.observeCycle(outcome, time.Since(start))

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Cycle failed", "outcome", string(outcome), "error", err)
	}
}

// RunCycle performs fetch, check, notify, record and trim once.
// A failure in any phase ends the cycle; the next tick is the retry.
func (t *Tracker) RunCycle(ctx context.Context, logger *slog.Logger) (Outcome, error) {
	if logger == nil {
		logger = t.logger
	}

	result, err := t.fetcher.FetchLatest(ctx, t.settings.FeedURL)
	if err != nil {
		return OutcomeFetchFailed, asFetchError(t.settings.FeedURL, err)
	}
	commit := result.Commit
	logger = logger.With("commit_id", commit.ID)

	sent, err := t.ledger.Exists(ctx, commit.ID)
	if err != nil {
		return OutcomeCheckFailed, asStorageError("exists", err)
	}
	if sent {
		logger.Debug("Commit already announced, skipping")
		return OutcomeAlreadyAnnounced, nil
	}

	logger.Info("New commit", "author", commit.Author, "branch", commit.Branch, "message", commit.Message)

	// Nothing is recorded unless the notification went out, so a failed
	// send is retried on the next cycle.
	if err := t.notifier.Notify(ctx, result); err != nil {
		return OutcomeNotifyFailed, asNotifyError(err)
	}

	if err := t.ledger.Record(ctx, commit); err != nil {
		return OutcomeRecordFailed, asStorageError("record", err)
	}
	logger.Info("Announced commit and marked as sent")

	t.trimIfNeeded(ctx, logger)
	return OutcomeAnnounced, nil
}

// trimIfNeeded bounds the ledger once it has grown past KeepLast+TrimMargin.
// Failures are logged only.
func (t *Tracker) trimIfNeeded(ctx context.Context, logger *slog.Logger) {
	count, err := t.ledger.Count(ctx)
	if err != nil {
		logger.Warn("Failed to count ledger entries", "error", err)
		return
	}
	t.metrics.setEntries(count)

	if count <= t.settings.KeepLast+t.settings.TrimMargin {
		return
	}

	removed, err := t.ledger.Trim(ctx, t.settings.KeepLast)
	if err != nil {
		logger.Warn("Failed to trim ledger", "count", count, "keep_last", t.settings.KeepLast, "error", err)
		return
	}
	t.metrics.observeTrim(removed)
	t.metrics.setEntries(count - removed)
	logger.Info("Trimmed ledger", "removed", removed, "keep_last", t.settings.KeepLast)
}

func asFetchError(url string, err error) error {
	var fe *custom_errors.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &custom_errors.FetchError{URL: url, Err: err}
}

func asNotifyError(err error) error {
	var ne *custom_errors.NotifyError
	if errors.As(err, &ne) {
		return err
	}
	return &custom_errors.NotifyError{Err: err}
}

func asStorageError(op string, err error) error {
	var se *custom_errors.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &custom_errors.StorageError{Op: op, Err: err}
}
