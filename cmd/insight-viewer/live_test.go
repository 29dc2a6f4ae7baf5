package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/history"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/monitoring"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/testutil"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/viewer"
)

func init() {
	monitoring.SetLogger(nil)
}

// bodyFetcher answers with the given JSON bodies in order, repeating the
// last one.
func bodyFetcher(t *testing.T, bodies ...string) insight.Fetcher {
	t.Helper()
	n := 0
	return insight.FetcherFunc(func(ctx context.Context, contestID, photoID int64) (*insight.InsightResult, error) {
		body := bodies[len(bodies)-1]
		if n < len(bodies) {
			body = bodies[n]
		}
		n++
		var res insight.InsightResult
		if err := json.Unmarshal([]byte(body), &res); err != nil {
			return nil, err
		}
		return &res, nil
	})
}

func finishedSession(t *testing.T, f insight.Fetcher, store *history.Store) viewer.Snapshot {
	t.Helper()
	opts := viewer.Options{}
	if store != nil {
		opts.Recorder = store
	}
	s := viewer.NewSession(f, 3, 42, opts)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s.Snapshot()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveView_PendingPage(t *testing.T) {
	snap := finishedSession(t, bodyFetcher(t, testutil.PendingJSON("EMBEDDING_NOT_READY")), nil)
	require.Equal(t, viewer.Analyzing, snap.Phase)

	l := newLiveView(snap, nil, "", 2)
	rec := get(t, l.routes(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "2", rec.Header().Get("Refresh"))
	assert.Contains(t, body, "phase=analyzing")
	assert.Contains(t, body, "status=EMBEDDING_NOT_READY")
	assert.Contains(t, body, "every 2s")
}

func TestLiveView_ReadyPage(t *testing.T) {
	snap := finishedSession(t, bodyFetcher(t, testutil.SuccessJSON(2,
		testutil.Coord{ID: 42, X: 0.1, Y: 0.2},
		testutil.Coord{ID: 7, X: 1, Y: 1, Title: "Dawn"},
	)), nil)
	require.Equal(t, viewer.Ready, snap.Phase)

	l := newLiveView(snap, nil, "", 2)
	rec := get(t, l.routes(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Your photo")
	assert.Empty(t, rec.Header().Get("Refresh"))
}

func TestLiveView_UnauthorizedPage(t *testing.T) {
	f := insight.FetcherFunc(func(ctx context.Context, contestID, photoID int64) (*insight.InsightResult, error) {
		return nil, &insight.FetchError{Kind: insight.Unauthorized, StatusCode: 401}
	})
	snap := finishedSession(t, f, nil)
	require.Equal(t, viewer.Failed, snap.Phase)

	l := newLiveView(snap, nil, "", 2)
	rec := get(t, l.routes(), "/")
	body := rec.Body.String()
	assert.Contains(t, body, "Sign in again")
	assert.Contains(t, body, "/contests/3/photos/42")
	assert.Empty(t, rec.Header().Get("Refresh"))
}

func TestLiveView_Snapshot(t *testing.T) {
	snap := finishedSession(t, bodyFetcher(t, testutil.SuccessJSON(2,
		testutil.Coord{ID: 42, X: 0.1, Y: 0.2},
		testutil.Coord{ID: 7, X: 1, Y: 1},
	)), nil)

	l := newLiveView(snap, nil, "", 2)
	rec := get(t, l.routes(), "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Phase)
	assert.Equal(t, "SUCCESS", resp.Status)
	assert.Equal(t, int64(42), resp.PhotoID)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 69, resp.Summary.MatchScore)
	require.Len(t, resp.Points, 2)
	assert.True(t, resp.Points[1].User)
	assert.True(t, strings.HasPrefix(resp.Caption, "dim=2"))
}

func TestLiveView_Update(t *testing.T) {
	l := newLiveView(viewer.Snapshot{Phase: viewer.Loading}, nil, "", 0)
	assert.Equal(t, 1, l.refresh)

	l.update(viewer.Snapshot{Phase: viewer.Unavailable, Status: insight.StatusForbidden})
	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(get(t, l.routes(), "/api/snapshot").Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Phase)
	assert.Equal(t, "FORBIDDEN", resp.Status)
}

func TestLiveView_History(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	snap := finishedSession(t, bodyFetcher(t, testutil.PendingJSON("NO_MODEL_EMBEDDINGS")), store)
	l := newLiveView(snap, store, "", 2)

	rec := get(t, l.routes(), "/api/history?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "NO_MODEL_EMBEDDINGS", resp.Events[0].Status)
	assert.Equal(t, map[string]int{"NO_MODEL_EMBEDDINGS": 1}, resp.Counts)

	assert.Equal(t, http.StatusBadRequest, get(t, l.routes(), "/api/history?limit=x").Code)
}

func TestLiveView_HistoryDisabled(t *testing.T) {
	l := newLiveView(viewer.Snapshot{}, nil, "", 2)
	assert.Equal(t, http.StatusNotFound, get(t, l.routes(), "/api/history").Code)
	assert.Equal(t, http.StatusNotFound, get(t, l.routes(), "/nope").Code)
}
