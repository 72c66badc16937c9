package store

import "github.com/collabdraw/collabdraw/internal/types"

// BoardRepository is the durable collaborator behind the relay and the
// sync engine: an append-only stroke store plus the project-ownership
// lookup. The schema itself is owned by the dashboard application; this
// package only reads and writes it.
type BoardRepository interface {
	Ping() error
	AppendStroke(roomId string, stroke types.Stroke) error
	ListStrokesByRoom(roomId string) ([]types.Stroke, error)
	DeleteStrokeById(roomId, strokeId string) error
	// GetProjectOwner returns the owning user id for a room backed by a
	// project, or "" when no project backs the room.
	GetProjectOwner(roomId string) (string, error)
}
