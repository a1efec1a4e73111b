package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"groupjobs/internal/config"
	"groupjobs/internal/corruption"
	"groupjobs/internal/database"
	"groupjobs/internal/jobstore"
	"groupjobs/internal/metrics"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server   *Server
	db       *database.Database
	store    *jobstore.Store
	detector *corruption.Detector
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "jobs.db")

	db, err := database.New(cfg.Database.Path, &cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	detector, err := corruption.NewDetector(corruption.StatePathFor(cfg.Database.Path), logger)
	require.NoError(t, err)

	store := jobstore.New(logger, detector, jobstore.WithMetrics(metrics.NewRegistry()))
	return &testServer{
		server:   NewServer(cfg, db, store, detector, logger),
		db:       db,
		store:    store,
		detector: detector,
	}
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_HandleHealth(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","corruption_flagged":false}`, rec.Body.String())
}

func TestServer_HandleHealth_ReportsCorruptionFlag(t *testing.T) {
	ts := setupServer(t)
	require.True(t, ts.detector.FlagReadCorruptionIfNecessary(sqlite3.Error{Code: sqlite3.ErrCorrupt}))

	rec := ts.get(t, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","corruption_flagged":true}`, rec.Body.String())
}

func TestServer_HandleHealth_DatabaseClosed(t *testing.T) {
	ts := setupServer(t)
	require.NoError(t, ts.db.Close())

	rec := ts.get(t, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_HandleQueue(t *testing.T) {
	ts := setupServer(t)
	groupA := []byte{0x01, 0xaa}
	groupB := []byte{0x02, 0xbb}

	err := ts.db.Write(context.Background(), func(tx *database.WriteTx) error {
		ctx := context.Background()
		for _, g := range [][]byte{groupA, groupB, groupA} {
			if err := ts.store.AddJob(ctx, tx, []byte("env"), nil, g, false, 1); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	rec := ts.get(t, "/queue")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp queueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint(3), resp.Total)
	assert.ElementsMatch(t, []queueGroup{
		{GroupID: hex.EncodeToString(groupA), Count: 2},
		{GroupID: hex.EncodeToString(groupB), Count: 1},
	}, resp.Groups)
}

func TestServer_HandleQueue_Empty(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/queue")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":0,"groups":[]}`, rec.Body.String())
}

func TestServer_HandleMetrics(t *testing.T) {
	ts := setupServer(t)
	ts.get(t, "/health")

	rec := ts.get(t, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body)
}

func TestServer_UnknownRoute(t *testing.T) {
	ts := setupServer(t)

	assert.Equal(t, http.StatusNotFound, ts.get(t, "/nope").Code)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	ts := setupServer(t)

	assert.NoError(t, ts.server.Shutdown(context.Background()))
}

func TestApplyLogLevel(t *testing.T) {
	logger := logrus.New()

	applyLogLevel(logger, "warn", false)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	applyLogLevel(logger, "warn", true)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	applyLogLevel(logger, "bogus", false)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
