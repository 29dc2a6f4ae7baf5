// Package insight models the similarity-insight job of a contest photo and
// fetches its current state from the contest API.
//
// A fetch returns an InsightResult whether or not the backend has finished:
// "not ready yet" is a status value, never an error. Errors are reserved for
// the transport, authentication and payload-contract failures described by
// FetchError.
package insight

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// AnalysisStatus is the state of the similarity job as reported by the API.
// Values outside the known set are kept verbatim and treated as terminal.
type AnalysisStatus string

const (
	StatusSuccess             AnalysisStatus = "SUCCESS"
	StatusEmbeddingNotReady   AnalysisStatus = "EMBEDDING_NOT_READY"
	StatusNoModelEmbeddings   AnalysisStatus = "NO_MODEL_EMBEDDINGS"
	StatusInvalidRequest      AnalysisStatus = "INVALID_REQUEST"
	StatusForbidden           AnalysisStatus = "FORBIDDEN"
	StatusContestNotFound     AnalysisStatus = "CONTEST_NOT_FOUND"
	StatusSourcePhotoNotFound AnalysisStatus = "USER_PHOTO_NOT_FOUND"
)

var knownStatuses = map[AnalysisStatus]bool{
	StatusSuccess:             true,
	StatusEmbeddingNotReady:   true,
	StatusNoModelEmbeddings:   true,
	StatusInvalidRequest:      true,
	StatusForbidden:           true,
	StatusContestNotFound:     true,
	StatusSourcePhotoNotFound: true,
}

// ParseStatus maps a wire string onto an AnalysisStatus. Matching ignores
// surrounding whitespace and case; unknown strings are returned as-is.
func ParseStatus(s string) AnalysisStatus {
	norm := AnalysisStatus(strings.ToUpper(strings.TrimSpace(s)))
	if knownStatuses[norm] {
		return norm
	}
	return AnalysisStatus(s)
}

// Known reports whether s is one of the statuses the API documents.
func (s AnalysisStatus) Known() bool {
	return knownStatuses[s]
}

// String returns the wire form, or "UNKNOWN" for an empty status.
func (s AnalysisStatus) String() string {
	if s == "" {
		return "UNKNOWN"
	}
	return string(s)
}

// StatusSet is a set of statuses, used for the configurable pending set.
type StatusSet map[AnalysisStatus]struct{}

// DefaultPendingStatuses returns the statuses that keep a viewer polling.
func DefaultPendingStatuses() StatusSet {
	return NewStatusSet(StatusEmbeddingNotReady, StatusNoModelEmbeddings)
}

// NewStatusSet builds a StatusSet from the given statuses.
func NewStatusSet(statuses ...AnalysisStatus) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether s is in the set.
func (set StatusSet) Contains(s AnalysisStatus) bool {
	_, ok := set[s]
	return ok
}

// Role distinguishes the viewer's own photo from the reference photos.
type Role int

const (
	ModelPoint Role = iota
	UserPoint
)

func (r Role) String() string {
	if r == UserPoint {
		return "USER"
	}
	return "MODEL"
}

// MarshalJSON encodes the role as the API's photoType string.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes "USER" as UserPoint and anything else as ModelPoint.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("photoType: %w", err)
	}
	if strings.EqualFold(s, "USER") {
		*r = UserPoint
	} else {
		*r = ModelPoint
	}
	return nil
}

// Point3 is a position in the embedding-derived coordinate space.
// Z is nil for two-dimensional projections.
type Point3 struct {
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z *float64 `json:"z,omitempty"`
}

// ZOrZero returns Z, or 0 when it is absent.
func (p Point3) ZOrZero() float64 {
	if p.Z == nil {
		return 0
	}
	return *p.Z
}

// Finite reports whether every present coordinate is a finite number.
func (p Point3) Finite() bool {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return false
	}
	if p.Z != nil && (math.IsNaN(*p.Z) || math.IsInf(*p.Z, 0)) {
		return false
	}
	return true
}

// ProjectionPoint is one photo placed in the projection.
type ProjectionPoint struct {
	Point3
	PhotoID  int64   `json:"photoId"`
	Role     Role    `json:"photoType"`
	ImageURL *string `json:"imageUrl,omitempty"`
	Title    *string `json:"title,omitempty"`
}

// ProjectionPayload is the externally computed projection of the user's
// photo and the contest's model photos.
type ProjectionPayload struct {
	Dim          int               `json:"dim"`
	Method       string            `json:"method"`
	ModelVersion string            `json:"modelVersion"`
	ContestID    int64             `json:"contestId"`
	UserPoint    *ProjectionPoint  `json:"userPoint"`
	ModelPoints  []ProjectionPoint `json:"modelPoints"`
}

// fixRoles forces the role implied by each point's position in the payload.
func (p *ProjectionPayload) fixRoles() {
	if p.UserPoint != nil {
		p.UserPoint.Role = UserPoint
	}
	for i := range p.ModelPoints {
		p.ModelPoints[i].Role = ModelPoint
	}
}

// SimilaritySummary condenses the similarity of the user's photo to the
// model photos.
type SimilaritySummary struct {
	AvgTop3       float64 `json:"avgTop3"`
	MaxSimilarity float64 `json:"maxSimilarity"`
	MatchScore    int     `json:"matchScore"`
}

// InsightResult is one response of the similarity-insight endpoint.
// Summary and Projection are only populated when Status is StatusSuccess.
type InsightResult struct {
	Status     AnalysisStatus     `json:"status"`
	Comment    *string            `json:"comment,omitempty"`
	Summary    *SimilaritySummary `json:"summary,omitempty"`
	Projection *ProjectionPayload `json:"projectionResponse,omitempty"`
}

// UnmarshalJSON accepts "projection" as an alias of "projectionResponse" and
// normalizes status strings and point roles.
func (r *InsightResult) UnmarshalJSON(data []byte) error {
	type plain InsightResult
	var aux struct {
		plain
		Status     string             `json:"status"`
		Projection *ProjectionPayload `json:"projection"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = InsightResult(aux.plain)
	r.Status = ParseStatus(aux.Status)
	if r.Projection == nil {
		r.Projection = aux.Projection
	}
	if r.Projection != nil {
		r.Projection.fixRoles()
	}
	return nil
}

// Validate checks the payload contract of a result. Summary and projection
// are populated iff the status is StatusSuccess: a success must carry both,
// with a user point and finite coordinates, and any other status must carry
// neither. Summary values are checked against their ranges (similarities in
// [0, 1], match score in [0, 100]) and rejected, not clamped, when outside.
func (r *InsightResult) Validate() error {
	if r.Status != StatusSuccess {
		if r.Projection != nil || r.Summary != nil {
			return malformed(fmt.Sprintf("status %s carries a summary or projection", r.Status))
		}
		return nil
	}
	if r.Summary == nil {
		return malformed("status SUCCESS without summary")
	}
	if err := r.Summary.validate(); err != nil {
		return err
	}
	p := r.Projection
	if p == nil {
		return malformed("status SUCCESS without projection")
	}
	if p.UserPoint == nil {
		return malformed("projection has no user point")
	}
	if !p.UserPoint.Finite() {
		return malformed(fmt.Sprintf("user point %d has non-finite coordinates", p.UserPoint.PhotoID))
	}
	for _, mp := range p.ModelPoints {
		if !mp.Finite() {
			return malformed(fmt.Sprintf("model point %d has non-finite coordinates", mp.PhotoID))
		}
	}
	return nil
}

func (s *SimilaritySummary) validate() error {
	unit := func(v float64) bool { return v >= 0 && v <= 1 }
	switch {
	case !unit(s.AvgTop3):
		return malformed(fmt.Sprintf("avgTop3 %v outside [0, 1]", s.AvgTop3))
	case !unit(s.MaxSimilarity):
		return malformed(fmt.Sprintf("maxSimilarity %v outside [0, 1]", s.MaxSimilarity))
	case s.MatchScore < 0 || s.MatchScore > 100:
		return malformed(fmt.Sprintf("matchScore %d outside [0, 100]", s.MatchScore))
	}
	return nil
}

// CommentText returns the comment or "" when there is none.
func (r *InsightResult) CommentText() string {
	if r == nil || r.Comment == nil {
		return ""
	}
	return *r.Comment
}
