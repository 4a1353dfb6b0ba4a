//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"commit-tracker/internal/feed"
	"commit-tracker/internal/ledger"
	"commit-tracker/internal/model"
	"commit-tracker/internal/notify"
	"commit-tracker/internal/tracker"
)

func setupTestLedger(ctx context.Context, t *testing.T, logger *slog.Logger) *ledger.PostgresLedger {
	// Start a postgres container
	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(context.Background()))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Opening runs the embedded migrations.
	store, err := ledger.OpenPostgres(ctx, connStr, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// fakeFeed serves the JSON feed with a latest commit id that tests can change.
type fakeFeed struct {
	latest atomic.Int64
}

func (f *fakeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := f.latest.Load()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"total": %d, "skip": 0, "take": 1, "results": [{
		"id": %d, "repo": "rust_reboot", "branch": "main", "changeset": "cs-%d",
		"message": "commit %d", "user": {"name": "tester", "avatar": "https://files.example/a.png"}
	}]}`, id, id, id, id)
}

// fakeWebhook records every embed it receives and can be told to fail.
type fakeWebhook struct {
	mu       sync.Mutex
	received []notify.WebhookPayload
	fail     atomic.Bool
}

func (h *fakeWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.fail.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var p notify.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.received = append(h.received, p)
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (h *fakeWebhook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func TestTracker_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := setupTestLedger(ctx, t, logger)

	feedHandler := &fakeFeed{}
	feedHandler.latest.Store(7)
	feedServer := httptest.NewServer(feedHandler)
	defer feedServer.Close()

	webhook := &fakeWebhook{}
	webhookServer := httptest.NewServer(webhook)
	defer webhookServer.Close()

	fetcher := feed.NewClient(feed.FormatJSON, 5*time.Second, logger)
	notifier := notify.NewDiscord(notify.Options{
		WebhookURL: webhookServer.URL,
		FeedURL:    feedServer.URL + "/r/rust_reboot",
		Title:      "New Commit",
		BotName:    "Commit Tracker",
		Timeout:    5 * time.Second,
	}, logger)
	newTracker := func() *tracker.Tracker {
		tr, err := tracker.NewTracker(store, fetcher, notifier, logger, nil, tracker.Settings{
			FeedURL:    feedServer.URL + "/r/rust_reboot",
			Interval:   time.Hour,
			KeepLast:   3,
			TrimMargin: 1,
		})
		require.NoError(t, err)
		return tr
	}

	// --- new commit is announced and recorded ---
	outcome, err := newTracker().RunCycle(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, tracker.OutcomeAnnounced, outcome)
	assert.Equal(t, 1, webhook.count())

	exists, err := store.Exists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, exists)

	// --- a restarted tracker does not announce it again ---
	outcome, err = newTracker().RunCycle(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, tracker.OutcomeAlreadyAnnounced, outcome)
	assert.Equal(t, 1, webhook.count())

	// --- a rejected webhook leaves the commit unrecorded ---
	feedHandler.latest.Store(8)
	webhook.fail.Store(true)
	outcome, err = newTracker().RunCycle(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, tracker.OutcomeNotifyFailed, outcome)
	exists, err = store.Exists(ctx, 8)
	require.NoError(t, err)
	assert.False(t, exists)

	webhook.fail.Store(false)
	outcome, err = newTracker().RunCycle(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, tracker.OutcomeAnnounced, outcome)

	// --- growth past keep_last+margin trims to the newest entries ---
	for id := int64(9); id <= 11; id++ {
		feedHandler.latest.Store(id)
		_, err := newTracker().RunCycle(ctx, nil)
		require.NoError(t, err)
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(4))

	last, err := store.LastAnnounced(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(11), last.CommitID)
	assert.Equal(t, "cs-11", last.Changeset)

	exists, err = store.Exists(ctx, 7)
	require.NoError(t, err)
	assert.False(t, exists, "oldest entry should have been trimmed")

	// Recording an already present id stays a no-op.
	require.NoError(t, store.Record(ctx, model.CommitRecord{ID: 11, Author: "x", Changeset: "cs-11"}))
	n2, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, n2)
}
