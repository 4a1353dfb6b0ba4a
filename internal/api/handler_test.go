// internal/api/handler_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"commit-tracker/internal/model"
)

// MockStatusSource is a mock of the StatusSource interface.
type MockStatusSource struct {
	mock.Mock
}

func (m *MockStatusSource) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStatusSource) LastAnnounced(ctx context.Context) (*model.LedgerEntry, error) {
	args := m.Called(ctx)
	e, _ := args.Get(0).(*model.LedgerEntry)
	return e, args.Error(1)
}

func newTestRouter(src StatusSource) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewRouter(src, reg, slog.New(slog.NewTextHandler(io.Discard, nil))), reg
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(new(MockStatusSource))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_Status(t *testing.T) {
	t.Run("reports the ledger size and last entry", func(t *testing.T) {
		src := new(MockStatusSource)
		sentAt := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
		src.On("Count", mock.Anything).Return(int64(3), nil).Once()
		src.On("LastAnnounced", mock.Anything).Return(&model.LedgerEntry{
			CommitID: 42, Author: "Helk", Message: "m", Branch: "main", Changeset: "cs-42", SentAt: sentAt,
		}, nil).Once()
		router, _ := newTestRouter(src)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, int64(3), body.Entries)
		require.NotNil(t, body.LastAnnounced)
		assert.Equal(t, int64(42), body.LastAnnounced.CommitID)
		assert.True(t, sentAt.Equal(body.LastAnnounced.SentAt))
		src.AssertExpectations(t)
	})

	t.Run("reports an empty ledger", func(t *testing.T) {
		src := new(MockStatusSource)
		src.On("Count", mock.Anything).Return(int64(0), nil).Once()
		src.On("LastAnnounced", mock.Anything).Return(nil, nil).Once()
		router, _ := newTestRouter(src)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"entries":0,"last_announced":null}`, rec.Body.String())
	})

	t.Run("returns 500 when the ledger fails", func(t *testing.T) {
		src := new(MockStatusSource)
		src.On("Count", mock.Anything).Return(int64(0), errors.New("database is closed")).Once()
		router, _ := newTestRouter(src)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
		src.AssertNotCalled(t, "LastAnnounced", mock.Anything)
	})
}

func TestRouter_Metrics(t *testing.T) {
	router, reg := newTestRouter(new(MockStatusSource))
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_probe_total", Help: "probe"})
	reg.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_probe_total 1")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	router, _ := newTestRouter(new(MockStatusSource))
	srv := &http.Server{Addr: addr, Handler: router}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
