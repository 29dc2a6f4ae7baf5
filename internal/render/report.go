// Package render draws a plot model as a standalone HTML chart (go-echarts)
// or a PNG image (gonum/plot), and writes both next to each other under an
// output directory.
package render

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/plotmodel"
)

// ErrNoPlot is returned when a report has no plot model to draw.
var ErrNoPlot = errors.New("report has no plot")

const (
	legendUser  = "Your photo"
	legendModel = "Model photos"

	overlapNote = "Points overlap. This is expected when there is little data."
	obliqueNote = "dim=3 is drawn with a simplified 2D projection."
)

// Colours of the plot.
var (
	UserColor   = color.RGBA{R: 0xEF, G: 0x44, B: 0x44, A: 0xFF}
	ModelColor  = color.RGBA{R: 0x25, G: 0x63, B: 0xEB, A: 0xFF}
	StrokeColor = color.RGBA{R: 0x11, G: 0x18, B: 0x27, A: 0xFF}
	GridColor   = color.RGBA{R: 0xE5, G: 0xE7, B: 0xEB, A: 0xFF}
	FrameFill   = color.RGBA{R: 0xFA, G: 0xFA, B: 0xFA, A: 0xFF}
)

// Report is one drawable insight: the plot plus the text shown around it.
type Report struct {
	ContestID int64
	PhotoID   int64
	Model     *plotmodel.Model
	Summary   *insight.SimilaritySummary
	Comment   string
}

// NewReport assembles a report from a successful result and its plot model.
func NewReport(contestID, photoID int64, res *insight.InsightResult, m *plotmodel.Model) Report {
	r := Report{ContestID: contestID, PhotoID: photoID, Model: m}
	if res != nil {
		r.Summary = res.Summary
		r.Comment = res.CommentText()
	}
	return r
}

// Title is the page title of the report.
func (r Report) Title() string {
	return fmt.Sprintf("Similarity insight: contest %d, photo %d", r.ContestID, r.PhotoID)
}

// SummaryLine formats the summary cards on one line, or "" without a
// summary.
func (r Report) SummaryLine() string {
	if r.Summary == nil {
		return ""
	}
	return fmt.Sprintf("matchScore=%d / maxSimilarity=%.4f / avgTop3=%.4f",
		r.Summary.MatchScore, r.Summary.MaxSimilarity, r.Summary.AvgTop3)
}

// Notes are the caveats shown below the plot.
func (r Report) Notes() []string {
	if r.Model == nil {
		return nil
	}
	var notes []string
	if r.Model.Overlapping {
		notes = append(notes, overlapNote)
	}
	if r.Model.Oblique {
		notes = append(notes, obliqueNote)
	}
	return notes
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
