package canvas

import (
	"math"

	"github.com/collabdraw/collabdraw/internal/types"
)

const (
	// hitTolerance is the pixel slack around a stroke's geometry inside
	// which an eraser click counts as a hit.
	hitTolerance = 10.0

	// textHitWidth and textHitHeight bound the fixed-size box around a
	// text stroke's anchor.
	textHitWidth  = 100.0
	textHitHeight = 24.0
)

// hitTest returns the index of the first stroke whose geometry is within
// tolerance of the click point. Search order is least recently added
// first. The second return is false when nothing was hit.
func hitTest(strokes []types.Stroke, p types.Point) (int, bool) {
	for i, s := range strokes {
		if strokeHit(s, p) {
			return i, true
		}
	}
	return 0, false
}

func strokeHit(s types.Stroke, p types.Point) bool {
	switch s.Type {
	case types.ToolPencil:
		for _, sp := range s.Points {
			if math.Abs(sp.X-p.X) <= hitTolerance && math.Abs(sp.Y-p.Y) <= hitTolerance {
				return true
			}
		}
		return false
	case types.ToolRectangle, types.ToolDiamond:
		if len(s.Points) < 2 {
			return false
		}
		x, y, w, h := boundingBox(s.Points[0], s.Points[1])
		return p.X >= x-hitTolerance && p.X <= x+w+hitTolerance &&
			p.Y >= y-hitTolerance && p.Y <= y+h+hitTolerance
	case types.ToolCircle:
		if len(s.Points) < 2 {
			return false
		}
		center, radius := circleFromPoints(s.Points[0], s.Points[1])
		return math.Abs(dist(p, center)-radius) <= hitTolerance
	case types.ToolArrow:
		if len(s.Points) < 2 {
			return false
		}
		return distToSegment(p, s.Points[0], s.Points[1]) <= hitTolerance
	case types.ToolText:
		if len(s.Points) < 1 {
			return false
		}
		anchor := s.Points[0]
		return p.X >= anchor.X && p.X <= anchor.X+textHitWidth &&
			p.Y >= anchor.Y-textHitHeight && p.Y <= anchor.Y+textHitHeight
	}
	return false
}

// distToSegment is the perpendicular distance from p to the segment ab,
// clamped to the segment's endpoints.
func distToSegment(p, a, b types.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return dist(p, a)
	}

	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	closest := types.Point{X: a.X + t*dx, Y: a.Y + t*dy}
	return dist(p, closest)
}
