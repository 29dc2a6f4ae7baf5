// Package projection maps the 2D/3D coordinates of an insight projection
// onto a padded 2D drawing space.
//
// Normalization is a pure function of the payload and the Params: the same
// input always yields the same PlotPoints, and nothing is cached between
// calls.
package projection

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
)

// Defaults for Params. These were tuned by eye against real contest data and
// other code relies on the resulting layout, so change them only through
// configuration.
const (
	DefaultObliqueX         = 0.6
	DefaultObliqueY         = 0.4
	DefaultPaddingRatio     = 0.15
	DefaultSpanEpsilon      = 1e-6
	DefaultWidth            = 500.0
	DefaultHeight           = 400.0
	DefaultMargin           = 40.0
	DefaultOverlapThreshold = 0.5
)

// Canvas is the target drawing area in screen units. The plotted interior is
// the canvas inset by Margin on every side.
type Canvas struct {
	Width  float64
	Height float64
	Margin float64
}

// DefaultCanvas returns the 500x400 canvas with a 40 unit margin.
func DefaultCanvas() Canvas {
	return Canvas{Width: DefaultWidth, Height: DefaultHeight, Margin: DefaultMargin}
}

// InnerWidth is the width of the plotted interior.
func (c Canvas) InnerWidth() float64 { return c.Width - 2*c.Margin }

// InnerHeight is the height of the plotted interior.
func (c Canvas) InnerHeight() float64 { return c.Height - 2*c.Margin }

// Validate reports whether the interior has a positive area.
func (c Canvas) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("canvas size must be positive, got %gx%g", c.Width, c.Height)
	}
	if c.Margin < 0 {
		return fmt.Errorf("canvas margin must be non-negative, got %g", c.Margin)
	}
	if c.InnerWidth() <= 0 || c.InnerHeight() <= 0 {
		return fmt.Errorf("canvas margin %g leaves no interior in %gx%g", c.Margin, c.Width, c.Height)
	}
	return nil
}

// Params controls the normalization.
type Params struct {
	// ObliqueX and ObliqueY are the z shear applied to 3D points:
	// x' = x - ObliqueX*z, y' = y - ObliqueY*z.
	ObliqueX float64
	ObliqueY float64
	// PaddingRatio expands the bounding box by this fraction of each span
	// on every side.
	PaddingRatio float64
	// SpanEpsilon is the floor applied to each span so coincident points do
	// not divide by zero.
	SpanEpsilon float64
	Canvas      Canvas
}

// DefaultParams returns the standard normalization parameters.
func DefaultParams() Params {
	return Params{
		ObliqueX:     DefaultObliqueX,
		ObliqueY:     DefaultObliqueY,
		PaddingRatio: DefaultPaddingRatio,
		SpanEpsilon:  DefaultSpanEpsilon,
		Canvas:       DefaultCanvas(),
	}
}

// PlotPoint is one photo placed on the canvas.
type PlotPoint struct {
	Key         string
	Label       string
	PhotoID     int64
	IsUserPoint bool
	ScreenX     float64
	ScreenY     float64
	Raw         insight.Point3
	Title       *string
	ImageURL    *string
}

// Normalizer applies a fixed set of Params.
type Normalizer struct {
	params Params
}

// NewNormalizer returns a Normalizer. Non-positive epsilon or canvas
// dimensions fall back to the defaults; a zero shear or padding is honoured.
func NewNormalizer(p Params) *Normalizer {
	def := DefaultParams()
	if p.SpanEpsilon <= 0 {
		p.SpanEpsilon = def.SpanEpsilon
	}
	if p.PaddingRatio < 0 {
		p.PaddingRatio = def.PaddingRatio
	}
	if p.Canvas.Validate() != nil {
		p.Canvas = def.Canvas
	}
	return &Normalizer{params: p}
}

// Params returns the effective parameters.
func (n *Normalizer) Params() Params { return n.params }

// Canvas returns the effective canvas.
func (n *Normalizer) Canvas() Canvas { return n.params.Canvas }

var defaultNormalizer = NewNormalizer(DefaultParams())

// Normalize uses the default parameters.
func Normalize(p *insight.ProjectionPayload) []PlotPoint {
	return defaultNormalizer.Normalize(p)
}

// Project reduces a point to 2D. Only dim 3 uses z; any other dim is
// treated as 2D.
func (n *Normalizer) Project(dim int, pt insight.Point3) (float64, float64) {
	if dim != 3 {
		return pt.X, pt.Y
	}
	z := pt.ZOrZero()
	return finite(pt.X - n.params.ObliqueX*z), finite(pt.Y - n.params.ObliqueY*z)
}

// finite saturates an overflowed projection at the largest float64.
func finite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

// Normalize lays out the payload's points: model points in payload order,
// then the user point. A nil payload yields nil.
func (n *Normalizer) Normalize(p *insight.ProjectionPayload) []PlotPoint {
	if p == nil {
		return nil
	}

	ordered := make([]insight.ProjectionPoint, 0, len(p.ModelPoints)+1)
	ordered = append(ordered, p.ModelPoints...)
	if p.UserPoint != nil {
		ordered = append(ordered, *p.UserPoint)
	}
	if len(ordered) == 0 {
		return nil
	}

	xs := make([]float64, len(ordered))
	ys := make([]float64, len(ordered))
	for i, pt := range ordered {
		xs[i], ys[i] = n.Project(p.Dim, pt.Point3)
	}

	mapX := n.axis(xs)
	mapY := n.axis(ys)
	c := n.params.Canvas

	out := make([]PlotPoint, len(ordered))
	for i, pt := range ordered {
		nx := mapX(xs[i])
		ny := mapY(ys[i])
		isUser := i == len(ordered)-1 && p.UserPoint != nil
		out[i] = PlotPoint{
			Key:         pointKey(pt.PhotoID, isUser),
			Label:       pointLabel(pt, isUser),
			PhotoID:     pt.PhotoID,
			IsUserPoint: isUser,
			ScreenX:     c.Margin + nx*c.InnerWidth(),
			ScreenY:     c.Margin + (1-ny)*c.InnerHeight(),
			Raw:         copyPoint3(pt.Point3),
			Title:       copyString(pt.Title),
			ImageURL:    copyString(pt.ImageURL),
		}
	}
	return out
}

// paddedRange returns the padded [lo, hi] interval covering vs.
func (n *Normalizer) paddedRange(vs []float64) (float64, float64) {
	lo, hi := floats.Min(vs), floats.Max(vs)
	span := math.Max(hi-lo, n.params.SpanEpsilon)
	pad := n.params.PaddingRatio * span
	return lo - pad, hi + pad
}

// axis returns the mapping of one axis onto [0, 1]. When the padded range
// collapses (padding below float64 resolution) or overflows, the values are
// mapped in units of their largest magnitude instead; if that still leaves
// no usable range, every value maps to the centre.
func (n *Normalizer) axis(vs []float64) func(float64) float64 {
	if lo, hi := n.paddedRange(vs); usableSpan(hi - lo) {
		den := hi - lo
		return func(v float64) float64 { return unit((v - lo) / den) }
	}

	scale := math.Max(math.Abs(floats.Min(vs)), math.Abs(floats.Max(vs)))
	if scale > 0 && !math.IsInf(scale, 0) {
		inv := 1 / scale
		scaled := floats.ScaleTo(make([]float64, len(vs)), inv, vs)
		if lo, hi := n.paddedRange(scaled); usableSpan(hi - lo) {
			den := hi - lo
			return func(v float64) float64 { return unit((v*inv - lo) / den) }
		}
	}
	return func(float64) float64 { return 0.5 }
}

func usableSpan(d float64) bool {
	return d > 0 && !math.IsInf(d, 0)
}

// unit clamps v to [0, 1]. NaN maps to the centre.
func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}

// Overlapping reports whether every point lies strictly within threshold
// screen units of the first point on both axes. Fewer than two points count
// as overlapping.
func Overlapping(points []PlotPoint, threshold float64) bool {
	if len(points) <= 1 {
		return true
	}
	x0, y0 := points[0].ScreenX, points[0].ScreenY
	for _, p := range points[1:] {
		if math.Abs(p.ScreenX-x0) >= threshold || math.Abs(p.ScreenY-y0) >= threshold {
			return false
		}
	}
	return true
}

func pointKey(photoID int64, isUser bool) string {
	if isUser {
		return fmt.Sprintf("USER-%d", photoID)
	}
	return fmt.Sprintf("MODEL-%d", photoID)
}

func pointLabel(pt insight.ProjectionPoint, isUser bool) string {
	if isUser {
		return fmt.Sprintf("You (#%d)", pt.PhotoID)
	}
	if pt.Title != nil {
		if t := strings.TrimSpace(*pt.Title); t != "" {
			return "Model: " + t
		}
	}
	return fmt.Sprintf("Model (#%d)", pt.PhotoID)
}

func copyPoint3(p insight.Point3) insight.Point3 {
	p.Z = copyFloat(p.Z)
	return p
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
