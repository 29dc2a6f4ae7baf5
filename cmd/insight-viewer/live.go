package main

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"sync"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/history"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/httputil"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/projection"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/render"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/viewer"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var statusTemplate = template.Must(template.ParseFS(templateFS, "templates/status.html.tmpl"))

// liveView serves the latest snapshot of one session over HTTP.
type liveView struct {
	assetsHost string
	refresh    int // seconds between reloads while pending
	store      *history.Store

	mu   sync.RWMutex
	snap viewer.Snapshot
}

func newLiveView(initial viewer.Snapshot, store *history.Store, assetsHost string, refresh int) *liveView {
	if refresh < 1 {
		refresh = 1
	}
	return &liveView{snap: initial, store: store, assetsHost: assetsHost, refresh: refresh}
}

func (l *liveView) update(s viewer.Snapshot) {
	l.mu.Lock()
	l.snap = s
	l.mu.Unlock()
}

func (l *liveView) current() viewer.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func (l *liveView) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", l.handlePage)
	mux.HandleFunc("GET /api/snapshot", l.handleSnapshot)
	mux.HandleFunc("GET /api/history", l.handleHistory)
	return mux
}

func (l *liveView) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := l.current()

	if snap.Phase == viewer.Ready && snap.Model != nil {
		var buf bytes.Buffer
		report := render.NewReport(snap.ContestID, snap.PhotoID, snap.Result, snap.Model)
		if err := render.HTML(&buf, report, l.assetsHost); err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to render chart: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
		return
	}

	data := struct {
		ContestID, PhotoID int64
		Phase              string
		Status             string
		Attempt            int
		Message            string
		ReturnPath         string
	}{
		ContestID: snap.ContestID,
		PhotoID:   snap.PhotoID,
		Phase:     snap.Phase.String(),
		Status:    snap.Status.String(),
		Attempt:   snap.Attempt,
		Message:   snap.Message,
	}
	if kind, ok := insight.KindOf(snap.Err); ok && kind == insight.Unauthorized {
		data.ReturnPath = viewer.ReturnPath(snap.ContestID, snap.PhotoID)
	}

	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, data); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to render page: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !snap.Phase.Terminal() {
		w.Header().Set("Refresh", strconv.Itoa(l.refresh))
	}
	_, _ = w.Write(buf.Bytes())
}

// snapshotResponse is the JSON view of a snapshot.
type snapshotResponse struct {
	SessionID string                     `json:"session_id"`
	ContestID int64                      `json:"contest_id"`
	PhotoID   int64                      `json:"photo_id"`
	Phase     string                     `json:"phase"`
	Status    string                     `json:"status"`
	Attempt   int                        `json:"attempt"`
	Fetching  bool                       `json:"fetching"`
	Message   string                     `json:"message,omitempty"`
	Error     string                     `json:"error,omitempty"`
	Summary   *insight.SimilaritySummary `json:"summary,omitempty"`
	Caption   string                     `json:"caption,omitempty"`
	Points    []pointResponse            `json:"points,omitempty"`
}

type pointResponse struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	PhotoID int64   `json:"photo_id"`
	User    bool    `json:"user"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

func toSnapshotResponse(s viewer.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		SessionID: s.SessionID.String(),
		ContestID: s.ContestID,
		PhotoID:   s.PhotoID,
		Phase:     s.Phase.String(),
		Status:    s.Status.String(),
		Attempt:   s.Attempt,
		Fetching:  s.Fetching,
		Message:   s.Message,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	if s.Result != nil {
		resp.Summary = s.Result.Summary
	}
	if s.Model != nil {
		resp.Caption = s.Model.Caption
	}
	resp.Points = toPointResponses(s.Points)
	return resp
}

func toPointResponses(points []projection.PlotPoint) []pointResponse {
	out := make([]pointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, pointResponse{
			Key:     p.Key,
			Label:   p.Label,
			PhotoID: p.PhotoID,
			User:    p.IsUserPoint,
			X:       p.ScreenX,
			Y:       p.ScreenY,
		})
	}
	return out
}

func (l *liveView) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, toSnapshotResponse(l.current()))
}

// historyResponse lists journalled polls of the viewed pair.
type historyResponse struct {
	Counts map[string]int  `json:"counts"`
	Events []eventResponse `json:"events"`
}

type eventResponse struct {
	SessionID  string `json:"session_id"`
	Attempt    int    `json:"attempt"`
	Status     string `json:"status,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	MatchScore *int   `json:"match_score,omitempty"`
	ObservedAt string `json:"observed_at"`
}

func (l *liveView) handleHistory(w http.ResponseWriter, r *http.Request) {
	if l.store == nil {
		httputil.NotFound(w, "history is disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	snap := l.current()
	events, err := l.store.RecentEvents(r.Context(), snap.ContestID, snap.PhotoID, limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := l.store.StatusCounts(r.Context(), snap.ContestID, snap.PhotoID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := historyResponse{Counts: counts, Events: make([]eventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, eventResponse{
			SessionID:  ev.SessionID.String(),
			Attempt:    ev.Attempt,
			Status:     ev.Status,
			ErrorKind:  ev.ErrorKind,
			MatchScore: ev.MatchScore,
			ObservedAt: ev.ObservedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	httputil.WriteJSONOK(w, resp)
}
