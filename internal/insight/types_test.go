package insight

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/testutil"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want AnalysisStatus
		know bool
	}{
		{"SUCCESS", StatusSuccess, true},
		{"embedding_not_ready", StatusEmbeddingNotReady, true},
		{" NO_MODEL_EMBEDDINGS ", StatusNoModelEmbeddings, true},
		{"USER_PHOTO_NOT_FOUND", StatusSourcePhotoNotFound, true},
		{"RATE_LIMITED", AnalysisStatus("RATE_LIMITED"), false},
		{"", AnalysisStatus(""), false},
	}
	for _, tt := range tests {
		got := ParseStatus(tt.in)
		assert.Equal(t, tt.want, got, "ParseStatus(%q)", tt.in)
		assert.Equal(t, tt.know, got.Known(), "Known(%q)", tt.in)
	}
	assert.Equal(t, "UNKNOWN", AnalysisStatus("").String())
}

func TestDefaultPendingStatuses(t *testing.T) {
	set := DefaultPendingStatuses()
	assert.True(t, set.Contains(StatusEmbeddingNotReady))
	assert.True(t, set.Contains(StatusNoModelEmbeddings))
	for _, s := range []AnalysisStatus{StatusSuccess, StatusInvalidRequest, StatusForbidden, StatusContestNotFound, StatusSourcePhotoNotFound, "WHATEVER", ""} {
		assert.False(t, set.Contains(s), "%s must be terminal", s)
	}
}

func TestInsightResult_UnmarshalSuccess(t *testing.T) {
	raw := testutil.SuccessJSON(3,
		testutil.Coord{ID: 10, X: 0.5, Y: -0.25, Z: testutil.Float(1)},
		testutil.Coord{ID: 1, X: 1, Y: 2, Z: testutil.Float(3), Title: "Sunset"},
		testutil.Coord{ID: 2, X: -1, Y: 0},
	)

	var r InsightResult
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.Equal(t, StatusSuccess, r.Status)
	require.NotNil(t, r.Summary)
	assert.Equal(t, 69, r.Summary.MatchScore)
	require.NotNil(t, r.Projection)
	assert.Equal(t, 3, r.Projection.Dim)
	assert.Equal(t, "PCA", r.Projection.Method)
	require.NotNil(t, r.Projection.UserPoint)
	assert.Equal(t, UserPoint, r.Projection.UserPoint.Role)
	assert.Equal(t, 1.0, r.Projection.UserPoint.ZOrZero())
	require.Len(t, r.Projection.ModelPoints, 2)
	assert.Equal(t, "Sunset", *r.Projection.ModelPoints[0].Title)
	assert.Nil(t, r.Projection.ModelPoints[1].Z)
	assert.Equal(t, ModelPoint, r.Projection.ModelPoints[1].Role)
	assert.NoError(t, r.Validate())
}

func TestInsightResult_UnmarshalProjectionAlias(t *testing.T) {
	raw := `{"status":"SUCCESS","projection":{"dim":2,"userPoint":{"photoId":5,"photoType":"MODEL","x":1,"y":1},"modelPoints":[{"photoId":6,"photoType":"USER","x":0,"y":0}]}}`

	var r InsightResult
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	require.NotNil(t, r.Projection)
	// Roles follow position in the payload, not the wire photoType.
	assert.Equal(t, UserPoint, r.Projection.UserPoint.Role)
	assert.Equal(t, ModelPoint, r.Projection.ModelPoints[0].Role)
}

func TestInsightResult_MarshalUsesBackendFieldName(t *testing.T) {
	r := InsightResult{
		Status: StatusSuccess,
		Projection: &ProjectionPayload{
			Dim:       2,
			UserPoint: &ProjectionPoint{PhotoID: 1, Role: UserPoint},
		},
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"projectionResponse"`)
	assert.Contains(t, string(data), `"photoType":"USER"`)

	var back InsightResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Projection.UserPoint.PhotoID, back.Projection.UserPoint.PhotoID)
}

func TestInsightResult_UnknownStatusIsKept(t *testing.T) {
	var r InsightResult
	require.NoError(t, json.Unmarshal([]byte(`{"status":"QUEUED"}`), &r))
	assert.Equal(t, AnalysisStatus("QUEUED"), r.Status)
	assert.False(t, r.Status.Known())
	assert.NoError(t, r.Validate())
}

func TestInsightResult_Validate(t *testing.T) {
	user := &ProjectionPoint{PhotoID: 1, Point3: Point3{X: 1, Y: 1}}
	sum := &SimilaritySummary{AvgTop3: 0.5, MaxSimilarity: 0.8, MatchScore: 71}
	proj := &ProjectionPayload{Dim: 2, UserPoint: user}

	tests := []struct {
		name    string
		result  InsightResult
		wantErr bool
	}{
		{"pending needs nothing", InsightResult{Status: StatusEmbeddingNotReady}, false},
		{"terminal failure needs nothing", InsightResult{Status: StatusForbidden}, false},
		{"success without projection", InsightResult{Status: StatusSuccess, Summary: sum}, true},
		{"success without summary", InsightResult{Status: StatusSuccess, Projection: proj}, true},
		{"success without user point", InsightResult{Status: StatusSuccess, Summary: sum, Projection: &ProjectionPayload{Dim: 2}}, true},
		{"success with NaN model point", InsightResult{Status: StatusSuccess, Summary: sum, Projection: &ProjectionPayload{
			Dim: 2, UserPoint: user, ModelPoints: []ProjectionPoint{{PhotoID: 2, Point3: Point3{X: math.NaN()}}},
		}}, true},
		{"success with infinite z", InsightResult{Status: StatusSuccess, Summary: sum, Projection: &ProjectionPayload{
			Dim: 3, UserPoint: &ProjectionPoint{PhotoID: 1, Point3: Point3{Z: testutil.Float(math.Inf(1))}},
		}}, true},
		{"avgTop3 above one", InsightResult{Status: StatusSuccess, Projection: proj, Summary: &SimilaritySummary{AvgTop3: 1.2, MaxSimilarity: 0.9, MatchScore: 50}}, true},
		{"negative maxSimilarity", InsightResult{Status: StatusSuccess, Projection: proj, Summary: &SimilaritySummary{AvgTop3: 0.1, MaxSimilarity: -0.1, MatchScore: 50}}, true},
		{"NaN avgTop3", InsightResult{Status: StatusSuccess, Projection: proj, Summary: &SimilaritySummary{AvgTop3: math.NaN(), MaxSimilarity: 0.9, MatchScore: 50}}, true},
		{"matchScore above 100", InsightResult{Status: StatusSuccess, Projection: proj, Summary: &SimilaritySummary{AvgTop3: 0.5, MaxSimilarity: 0.9, MatchScore: 101}}, true},
		{"pending with projection", InsightResult{Status: StatusEmbeddingNotReady, Projection: proj}, true},
		{"terminal with summary", InsightResult{Status: StatusContestNotFound, Summary: sum}, true},
		{"summary bounds inclusive", InsightResult{Status: StatusSuccess, Projection: proj, Summary: &SimilaritySummary{AvgTop3: 0, MaxSimilarity: 1, MatchScore: 100}}, false},
		{"success ok", InsightResult{Status: StatusSuccess, Summary: sum, Projection: proj}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCommentText(t *testing.T) {
	var nilResult *InsightResult
	assert.Equal(t, "", nilResult.CommentText())
	assert.Equal(t, "hi", (&InsightResult{Comment: testutil.Str("hi")}).CommentText())
}
