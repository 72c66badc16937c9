package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/collabdraw/collabdraw/internal/types"
)

// Strokes are stored as the project owner's dashboard wrote them: one row
// per shape with the stroke serialized as JSON in the message column.

func (db *PgBoardRepository) AppendStroke(roomId string, stroke types.Stroke) error {
	data, err := json.Marshal(stroke)
	if err != nil {
		return fmt.Errorf("marshal stroke: %w", err)
	}

	_, err = db.conn.Exec(
		"INSERT INTO shapes (id, project_id, user_id, message, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING",
		stroke.Id,
		roomId,
		stroke.UserId,
		string(data),
		time.Now().UTC(),
	)

	return err
}

func (db *PgBoardRepository) ListStrokesByRoom(roomId string) ([]types.Stroke, error) {
	rows, err := db.conn.Query(
		"SELECT message FROM shapes WHERE project_id = $1 ORDER BY created_at ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strokes []types.Stroke
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		s, ok := decodeStoredStroke(data)
		if !ok {
			continue
		}
		strokes = append(strokes, s)
	}

	return strokes, rows.Err()
}

// decodeStoredStroke parses one shapes row. The dashboard shares the
// table, so rows that fail to parse or carry unusable geometry are
// skipped rather than surfaced.
func decodeStoredStroke(data string) (types.Stroke, bool) {
	var s types.Stroke
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return s, false
	}
	if err := s.Validate(); err != nil {
		return s, false
	}
	return s, true
}

func (db *PgBoardRepository) DeleteStrokeById(roomId, strokeId string) error {
	_, err := db.conn.Exec(
		"DELETE FROM shapes WHERE project_id = $1 AND id = $2",
		roomId,
		strokeId,
	)

	return err
}

func (db *PgBoardRepository) GetProjectOwner(roomId string) (string, error) {
	row := db.conn.QueryRow(
		"SELECT admin_id FROM projects WHERE id = $1 LIMIT 1",
		roomId,
	)

	var adminId string
	if err := row.Scan(&adminId); err != nil {
		if err == sql.ErrNoRows {
			// no backing project, the room is ad hoc
			return "", nil
		}
		return "", err
	}

	return adminId, nil
}
