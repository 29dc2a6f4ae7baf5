package insight

import (
	"math"
	"sort"
)

// Weights of the match score: the best single match dominates, the top-3
// average smooths out a lucky outlier.
const (
	matchWeightMax  = 0.7
	matchWeightTop3 = 0.3
)

// SummarizeScores condenses per-model-photo similarities (nominally in
// [0,1], nil for photos without a score) into a SimilaritySummary.
// With no usable score every field is zero.
func SummarizeScores(similarities []*float64) SimilaritySummary {
	scores := make([]float64, 0, len(similarities))
	for _, s := range similarities {
		if s != nil && !math.IsNaN(*s) {
			scores = append(scores, *s)
		}
	}
	if len(scores) == 0 {
		return SimilaritySummary{}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	top := scores
	if len(top) > 3 {
		top = top[:3]
	}
	var sum float64
	for _, s := range top {
		sum += s
	}
	avgTop3 := sum / float64(len(top))
	maxSim := scores[0]

	score := int(math.Round(100 * (matchWeightMax*maxSim + matchWeightTop3*avgTop3)))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return SimilaritySummary{
		AvgTop3:       avgTop3,
		MaxSimilarity: maxSim,
		MatchScore:    score,
	}
}
