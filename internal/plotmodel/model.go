// Package plotmodel assembles normalized plot points into a renderer-agnostic
// drawing model: circles in draw order plus the frame, grid and axis label
// geometry of the canvas.
package plotmodel

import (
	"fmt"
	"sync"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/projection"
)

// Circle radii in screen units.
const (
	UserRadius  = 6.0
	ModelRadius = 5.0
)

// Tag offset from the circle centre.
const tagOffset = 8.0

// GridFractions are the positions of the grid lines across the interior.
var GridFractions = []float64{0, 0.25, 0.5, 0.75, 1}

// Point is a screen position.
type Point struct {
	X, Y float64
}

// Line is a segment in screen space. Fraction is the grid position it was
// derived from.
type Line struct {
	From     Point
	To       Point
	Fraction float64
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Grid holds the lines drawn across the interior. Vertical lines are
// ordered left to right, horizontal lines top to bottom.
type Grid struct {
	Vertical   []Line
	Horizontal []Line
}

// AxisLabel is an axis caption anchored at (X, Y), rotated by Rotate
// degrees around the anchor.
type AxisLabel struct {
	Text   string
	X, Y   float64
	Rotate float64
}

// Circle is one drawable point.
type Circle struct {
	Key     string
	PhotoID int64
	IsUser  bool
	CX, CY  float64
	Radius  float64
	// Label names the photo; Tag is the short marker drawn beside it.
	Label   string
	Tag     string
	TagAt   Point
	Tooltip string
	Raw     insight.Point3

	Title    *string
	ImageURL *string
}

// Meta is the projection metadata shown alongside the plot.
type Meta struct {
	Dim          int
	Method       string
	ModelVersion string
	// OverlapThreshold is the degeneracy threshold in screen units; zero
	// selects projection.DefaultOverlapThreshold.
	OverlapThreshold float64
}

// MetaOf extracts the metadata of a payload.
func MetaOf(p *insight.ProjectionPayload) Meta {
	if p == nil {
		return Meta{}
	}
	return Meta{Dim: p.Dim, Method: p.Method, ModelVersion: p.ModelVersion}
}

// Model is everything a renderer needs to draw one projection.
type Model struct {
	Canvas  projection.Canvas
	Frame   Rect
	Grid    *Grid
	XLabel  AxisLabel
	YLabel  AxisLabel
	Circles []Circle
	Caption string
	// Overlapping is set when all points sit on top of each other, in which
	// case the renderer should say there is not enough spread to compare.
	Overlapping bool
	// Oblique is set for 3D projections, which are drawn with a simplified
	// 2D shear.
	Oblique bool
}

// User returns the user's circle, or nil.
func (m *Model) User() *Circle {
	for i := range m.Circles {
		if m.Circles[i].IsUser {
			return &m.Circles[i]
		}
	}
	return nil
}

// Models returns the model circles in draw order.
func (m *Model) Models() []Circle {
	out := make([]Circle, 0, len(m.Circles))
	for _, c := range m.Circles {
		if !c.IsUser {
			out = append(out, c)
		}
	}
	return out
}

// Build assembles a Model. Points keep their order, so the user circle is
// drawn last.
func Build(canvas projection.Canvas, points []projection.PlotPoint, meta Meta) *Model {
	threshold := meta.OverlapThreshold
	if threshold <= 0 {
		threshold = projection.DefaultOverlapThreshold
	}

	m := &Model{
		Canvas:      canvas,
		Frame:       FrameFor(canvas),
		Grid:        GridFor(canvas),
		XLabel:      AxisLabel{Text: "projected-x", X: canvas.Width / 2, Y: canvas.Height - 8},
		YLabel:      AxisLabel{Text: "projected-y", X: 10, Y: canvas.Height / 2, Rotate: -90},
		Circles:     make([]Circle, 0, len(points)),
		Caption:     Caption(meta),
		Overlapping: projection.Overlapping(points, threshold),
		Oblique:     meta.Dim == 3,
	}
	for _, p := range points {
		m.Circles = append(m.Circles, circleFor(p, meta.Dim))
	}
	return m
}

// Caption formats the projection metadata line.
func Caption(meta Meta) string {
	return fmt.Sprintf("dim=%d / method=%s / modelVersion=%s", meta.Dim, meta.Method, meta.ModelVersion)
}

// Tooltip formats the hover text of a point: its label and raw coordinates,
// with z included for 3D projections.
func Tooltip(p projection.PlotPoint, dim int) string {
	if dim >= 3 {
		return fmt.Sprintf("%s  (x=%.3f, y=%.3f, z=%.3f)", p.Label, p.Raw.X, p.Raw.Y, p.Raw.ZOrZero())
	}
	return fmt.Sprintf("%s  (x=%.3f, y=%.3f)", p.Label, p.Raw.X, p.Raw.Y)
}

func circleFor(p projection.PlotPoint, dim int) Circle {
	c := Circle{
		Key:      p.Key,
		PhotoID:  p.PhotoID,
		IsUser:   p.IsUserPoint,
		CX:       p.ScreenX,
		CY:       p.ScreenY,
		Radius:   ModelRadius,
		Label:    p.Label,
		Tag:      "Model",
		TagAt:    Point{X: p.ScreenX + tagOffset, Y: p.ScreenY - tagOffset},
		Tooltip:  Tooltip(p, dim),
		Raw:      p.Raw,
		Title:    p.Title,
		ImageURL: p.ImageURL,
	}
	if p.IsUserPoint {
		c.Radius = UserRadius
		c.Tag = "You"
	}
	return c
}

// FrameFor returns the interior rectangle of the canvas.
func FrameFor(c projection.Canvas) Rect {
	return Rect{X: c.Margin, Y: c.Margin, Width: c.InnerWidth(), Height: c.InnerHeight()}
}

var gridCache sync.Map // projection.Canvas -> *Grid

// GridFor returns the grid of a canvas. The grid depends only on the canvas
// size and is computed once per size; callers must not modify it.
func GridFor(c projection.Canvas) *Grid {
	if g, ok := gridCache.Load(c); ok {
		return g.(*Grid)
	}
	g, _ := gridCache.LoadOrStore(c, computeGrid(c))
	return g.(*Grid)
}

func computeGrid(c projection.Canvas) *Grid {
	g := &Grid{
		Vertical:   make([]Line, 0, len(GridFractions)),
		Horizontal: make([]Line, 0, len(GridFractions)),
	}
	for _, t := range GridFractions {
		x := c.Margin + c.InnerWidth()*t
		y := c.Margin + c.InnerHeight()*t
		g.Vertical = append(g.Vertical, Line{
			From:     Point{X: x, Y: c.Margin},
			To:       Point{X: x, Y: c.Height - c.Margin},
			Fraction: t,
		})
		g.Horizontal = append(g.Horizontal, Line{
			From:     Point{X: c.Margin, Y: y},
			To:       Point{X: c.Width - c.Margin, Y: y},
			Fraction: t,
		})
	}
	return g
}
