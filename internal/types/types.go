package types

import "fmt"

// ToolKind identifies the drawing tool that produced a stroke. The eraser
// is a pseudo-tool: it never produces a persisted stroke of its own.
type ToolKind string

const (
	ToolPencil    ToolKind = "pencil"
	ToolRectangle ToolKind = "rectangle"
	ToolCircle    ToolKind = "circle"
	ToolArrow     ToolKind = "arrow"
	ToolDiamond   ToolKind = "diamond"
	ToolText      ToolKind = "text"
	ToolEraser    ToolKind = "eraser"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one immutable drawing primitive. Pencil strokes carry the full
// sampled path; every other kind is bounded by exactly two points (anchor
// and extent). Erasing removes a stroke from a collection, it never
// mutates one.
type Stroke struct {
	Id     string   `json:"id"`
	Type   ToolKind `json:"type"`
	Points []Point  `json:"points"`
	Color  string   `json:"color"`
	Width  float64  `json:"width"`
	Text   string   `json:"text,omitempty"`
	UserId string   `json:"userId"`
}

// Validate checks the geometric invariants: pencil strokes need at least
// one point, shaped strokes need the two bounding points.
func (s Stroke) Validate() error {
	switch s.Type {
	case ToolPencil:
		if len(s.Points) < 1 {
			return fmt.Errorf("pencil stroke requires at least one point")
		}
	case ToolRectangle, ToolCircle, ToolArrow, ToolDiamond, ToolText:
		if len(s.Points) < 2 {
			return fmt.Errorf("%s stroke requires two bounding points", s.Type)
		}
	case ToolEraser:
		return fmt.Errorf("eraser is not a persistable stroke kind")
	default:
		return fmt.Errorf("unknown stroke kind %q", s.Type)
	}
	return nil
}

// User is the identity attached to a connection. Guests carry a generated
// id prefixed with "guest-" and have no durable account behind them.
type User struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	IsGuest bool   `json:"is_guest"`
}

type Participant struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
}
