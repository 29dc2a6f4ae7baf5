// Package testutil provides shared test utilities and fixtures.
//
// The insight fixtures are plain JSON so that any package, including
// internal/insight itself, can use them without an import cycle.
package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// Coord is a fixture point. Z is ignored for dim 2 payloads.
type Coord struct {
	ID    int64
	X, Y  float64
	Z     *float64
	Title string
}

// PendingJSON returns an insight body carrying only a status.
func PendingJSON(status string) string {
	return fmt.Sprintf(`{"status":%q,"comment":null,"summary":null,"projectionResponse":null}`, status)
}

// SuccessJSON returns a SUCCESS insight body for the given projection.
func SuccessJSON(dim int, user Coord, models ...Coord) string {
	point := func(c Coord, photoType string) map[string]interface{} {
		m := map[string]interface{}{
			"photoId":   c.ID,
			"photoType": photoType,
			"x":         c.X,
			"y":         c.Y,
			"imageUrl":  fmt.Sprintf("https://cdn.example.com/photos/%d.jpg", c.ID),
		}
		if c.Z != nil {
			m["z"] = *c.Z
		}
		if c.Title != "" {
			m["title"] = c.Title
		}
		return m
	}

	modelPoints := make([]map[string]interface{}, 0, len(models))
	for _, mc := range models {
		modelPoints = append(modelPoints, point(mc, "MODEL"))
	}

	body := map[string]interface{}{
		"status":  "SUCCESS",
		"comment": "Your photo is close to the model photos.",
		"summary": map[string]interface{}{
			"avgTop3":       0.61,
			"maxSimilarity": 0.72,
			"matchScore":    69,
		},
		"projectionResponse": map[string]interface{}{
			"dim":          dim,
			"method":       "PCA",
			"modelVersion": "openclip-vitb32-v1",
			"contestId":    1,
			"userPoint":    point(user, "USER"),
			"modelPoints":  modelPoints,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return string(data)
}
