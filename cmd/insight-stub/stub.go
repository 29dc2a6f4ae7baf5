package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/httputil"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
)

// insightRoute is the path pattern the viewer polls.
const insightRoute = "GET /api/v1/contests/{contestId}/photos/{photoId}/similarity-insight"

// stubOptions control how the fixture backend answers.
type stubOptions struct {
	// Pending is the number of EMBEDDING_NOT_READY answers before the
	// terminal one.
	Pending int
	// Terminal is the status answered after the pending polls.
	Terminal insight.AnalysisStatus
	Dim      int
	Models   int
	Seed     uint64
	// Deny answers every request with this HTTP status (401 or 403).
	Deny int
}

// stubServer serves deterministic insight responses. Each (contest, photo)
// pair has its own poll counter.
type stubServer struct {
	opts stubOptions

	mu    sync.Mutex
	polls map[[2]int64]int
}

func newStubServer(opts stubOptions) *stubServer {
	if opts.Dim != 3 {
		opts.Dim = 2
	}
	if opts.Terminal == "" {
		opts.Terminal = insight.StatusSuccess
	}
	if opts.Models < 0 {
		opts.Models = 0
	}
	return &stubServer{opts: opts, polls: make(map[[2]int64]int)}
}

func (s *stubServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(insightRoute, s.handleInsight)
	return mux
}

// insightBody mirrors the API's success and status-only responses.
type insightBody struct {
	Status     insight.AnalysisStatus     `json:"status"`
	Comment    *string                    `json:"comment"`
	Summary    *insight.SimilaritySummary `json:"summary"`
	Projection *insight.ProjectionPayload `json:"projectionResponse"`
}

// statusBody is sent with non-2xx domain rejections.
type statusBody struct {
	Status  insight.AnalysisStatus `json:"status"`
	Message string                 `json:"message"`
}

func (s *stubServer) handleInsight(w http.ResponseWriter, r *http.Request) {
	contestID, err1 := strconv.ParseInt(r.PathValue("contestId"), 10, 64)
	photoID, err2 := strconv.ParseInt(r.PathValue("photoId"), 10, 64)
	if err1 != nil || err2 != nil || contestID <= 0 || photoID <= 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, statusBody{Status: insight.StatusInvalidRequest, Message: "invalid identifiers"})
		return
	}

	switch s.opts.Deny {
	case http.StatusUnauthorized:
		httputil.WriteJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	case http.StatusForbidden:
		httputil.WriteJSON(w, http.StatusForbidden, statusBody{Status: insight.StatusForbidden, Message: "you do not own this photo"})
		return
	}

	n := s.poll(contestID, photoID)
	if n <= s.opts.Pending {
		httputil.WriteJSONOK(w, insightBody{Status: insight.StatusEmbeddingNotReady})
		return
	}
	if s.opts.Terminal != insight.StatusSuccess {
		httputil.WriteJSONOK(w, insightBody{Status: s.opts.Terminal})
		return
	}
	httputil.WriteJSONOK(w, s.success(contestID, photoID))
}

// poll counts a request and returns its 1-based number.
func (s *stubServer) poll(contestID, photoID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{contestID, photoID}
	s.polls[key]++
	return s.polls[key]
}

// success builds the projection for a pair. Model photos sit on a noisy
// ring around the origin; the user's photo is placed among them and the
// similarities fall off with distance.
func (s *stubServer) success(contestID, photoID int64) insightBody {
	rng := rand.New(rand.NewPCG(s.opts.Seed, uint64(contestID)<<32|uint64(photoID)))
	coord := func() (float64, float64, *float64) {
		x, y := rng.NormFloat64(), rng.NormFloat64()
		if s.opts.Dim == 3 {
			z := rng.NormFloat64()
			return x, y, &z
		}
		return x, y, nil
	}

	ux, uy, uz := coord()
	user := &insight.ProjectionPoint{
		Point3:  insight.Point3{X: ux * 0.5, Y: uy * 0.5, Z: scale(uz, 0.5)},
		PhotoID: photoID,
		Role:    insight.UserPoint,
	}

	models := make([]insight.ProjectionPoint, 0, s.opts.Models)
	sims := make([]*float64, 0, s.opts.Models)
	for i := 0; i < s.opts.Models; i++ {
		angle := 2 * math.Pi * float64(i) / float64(s.opts.Models)
		nx, ny, nz := coord()
		p := insight.Point3{
			X: math.Cos(angle) + 0.2*nx,
			Y: math.Sin(angle) + 0.2*ny,
			Z: scale(nz, 0.2),
		}
		title := fmt.Sprintf("Model photo %d", i+1)
		url := fmt.Sprintf("https://cdn.example.com/contests/%d/models/%d.jpg", contestID, i+1)
		models = append(models, insight.ProjectionPoint{
			Point3:   p,
			PhotoID:  1000 + int64(i),
			Role:     insight.ModelPoint,
			Title:    &title,
			ImageURL: &url,
		})
		sim := math.Exp(-distance(user.Point3, p))
		sims = append(sims, &sim)
	}

	summary := insight.SummarizeScores(sims)
	comment := commentFor(summary.MatchScore)
	return insightBody{
		Status:  insight.StatusSuccess,
		Comment: &comment,
		Summary: &summary,
		Projection: &insight.ProjectionPayload{
			Dim:          s.opts.Dim,
			Method:       "PCA",
			ModelVersion: "stub-v1",
			ContestID:    contestID,
			UserPoint:    user,
			ModelPoints:  models,
		},
	}
}

func scale(v *float64, k float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * k
	return &out
}

func distance(a, b insight.Point3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.ZOrZero()-b.ZOrZero()
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func commentFor(score int) string {
	switch {
	case score >= 80:
		return "Your photo is very close to the model photos."
	case score >= 50:
		return "Your photo is close to some of the model photos."
	default:
		return "Your photo takes a different direction from the model photos."
	}
}
