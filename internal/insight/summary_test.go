package insight

import (
	"math"
	"testing"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/testutil"
)

func TestSummarizeScores(t *testing.T) {
	f := testutil.Float

	tests := []struct {
		name      string
		in        []*float64
		wantMax   float64
		wantAvg   float64
		wantScore int
	}{
		{"empty", nil, 0, 0, 0},
		{"only nil", []*float64{nil, nil}, 0, 0, 0},
		{"single", []*float64{f(0.8)}, 0.8, 0.8, 80},
		{"top three of five", []*float64{f(0.2), f(0.9), nil, f(0.6), f(0.3), f(0.7)}, 0.9, (0.9 + 0.7 + 0.6) / 3, 85},
		{"clamped high", []*float64{f(1.5)}, 1.5, 1.5, 100},
		{"clamped low", []*float64{f(-0.4)}, -0.4, -0.4, 0},
		{"NaN ignored", []*float64{f(math.NaN()), f(0.5)}, 0.5, 0.5, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SummarizeScores(tt.in)
			if math.Abs(got.MaxSimilarity-tt.wantMax) > 1e-12 {
				t.Errorf("MaxSimilarity = %v, want %v", got.MaxSimilarity, tt.wantMax)
			}
			if math.Abs(got.AvgTop3-tt.wantAvg) > 1e-12 {
				t.Errorf("AvgTop3 = %v, want %v", got.AvgTop3, tt.wantAvg)
			}
			if got.MatchScore != tt.wantScore {
				t.Errorf("MatchScore = %d, want %d", got.MatchScore, tt.wantScore)
			}
		})
	}
}
