package canvas

import (
	"math"

	"github.com/collabdraw/collabdraw/internal/types"
)

// arrowHeadLen is the length in pixels of the two arrow-head barbs.
const arrowHeadLen = 12.0

// Surface is an immediate-mode drawing target. The engine keeps two: the
// committed surface holding finished strokes and a preview surface that is
// cleared and redrawn on every pointer move while a shape is dragged out.
type Surface interface {
	Clear()
	StrokePath(points []types.Point, color string, width float64)
	StrokeRect(x, y, w, h float64, color string, width float64)
	StrokeCircle(center types.Point, radius float64, color string, width float64)
	FillText(text string, at types.Point, color string)
}

// Render draws one stroke onto a surface. It is a pure function of the
// stroke value: identical geometry, color and width always produce the
// identical op sequence, whether the stroke was committed locally or
// received from the relay.
func Render(s Surface, stroke types.Stroke) {
	switch stroke.Type {
	case types.ToolPencil:
		s.StrokePath(stroke.Points, stroke.Color, stroke.Width)
	case types.ToolRectangle:
		x, y, w, h := boundingBox(stroke.Points[0], stroke.Points[1])
		s.StrokeRect(x, y, w, h, stroke.Color, stroke.Width)
	case types.ToolCircle:
		center, radius := circleFromPoints(stroke.Points[0], stroke.Points[1])
		s.StrokeCircle(center, radius, stroke.Color, stroke.Width)
	case types.ToolArrow:
		from, to := stroke.Points[0], stroke.Points[1]
		s.StrokePath([]types.Point{from, to}, stroke.Color, stroke.Width)
		left, right := arrowHead(from, to)
		s.StrokePath([]types.Point{left, to, right}, stroke.Color, stroke.Width)
	case types.ToolDiamond:
		s.StrokePath(diamondPath(stroke.Points[0], stroke.Points[1]), stroke.Color, stroke.Width)
	case types.ToolText:
		s.FillText(stroke.Text, stroke.Points[0], stroke.Color)
	}
}

// boundingBox normalizes two corner points into an origin and extent.
func boundingBox(a, b types.Point) (x, y, w, h float64) {
	x = math.Min(a.X, b.X)
	y = math.Min(a.Y, b.Y)
	w = math.Abs(b.X - a.X)
	h = math.Abs(b.Y - a.Y)
	return x, y, w, h
}

// circleFromPoints treats the two points as a diameter.
func circleFromPoints(a, b types.Point) (center types.Point, radius float64) {
	center = types.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	radius = dist(a, b) / 2
	return center, radius
}

// diamondPath is the closed polygon through the midpoints of the bounding
// box edges.
func diamondPath(a, b types.Point) []types.Point {
	x, y, w, h := boundingBox(a, b)
	top := types.Point{X: x + w/2, Y: y}
	right := types.Point{X: x + w, Y: y + h/2}
	bottom := types.Point{X: x + w/2, Y: y + h}
	left := types.Point{X: x, Y: y + h/2}
	return []types.Point{top, right, bottom, left, top}
}

func arrowHead(from, to types.Point) (left, right types.Point) {
	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	left = types.Point{
		X: to.X - arrowHeadLen*math.Cos(angle-math.Pi/6),
		Y: to.Y - arrowHeadLen*math.Sin(angle-math.Pi/6),
	}
	right = types.Point{
		X: to.X - arrowHeadLen*math.Cos(angle+math.Pi/6),
		Y: to.Y - arrowHeadLen*math.Sin(angle+math.Pi/6),
	}
	return left, right
}

func dist(a, b types.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Op is one recorded drawing call, used by OpSurface.
type Op struct {
	Kind   string
	Points []types.Point
	X      float64
	Y      float64
	W      float64
	H      float64
	Center types.Point
	Radius float64
	Text   string
	Color  string
	Width  float64
}

// OpSurface records the drawing calls made against it. It backs headless
// rendering and lets tests compare op sequences instead of pixels.
type OpSurface struct {
	Ops []Op
}

func (s *OpSurface) Clear() {
	s.Ops = s.Ops[:0]
}

func (s *OpSurface) StrokePath(points []types.Point, color string, width float64) {
	pts := make([]types.Point, len(points))
	copy(pts, points)
	s.Ops = append(s.Ops, Op{Kind: "path", Points: pts, Color: color, Width: width})
}

func (s *OpSurface) StrokeRect(x, y, w, h float64, color string, width float64) {
	s.Ops = append(s.Ops, Op{Kind: "rect", X: x, Y: y, W: w, H: h, Color: color, Width: width})
}

func (s *OpSurface) StrokeCircle(center types.Point, radius float64, color string, width float64) {
	s.Ops = append(s.Ops, Op{Kind: "circle", Center: center, Radius: radius, Color: color, Width: width})
}

func (s *OpSurface) FillText(text string, at types.Point, color string) {
	s.Ops = append(s.Ops, Op{Kind: "text", Text: text, Points: []types.Point{at}, Color: color})
}
