package canvas

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/collabdraw/collabdraw/internal/types"
)

// LocalCache is the on-device per-room stroke list. It lets a session
// survive reloads before the durable store has been queried and gives
// guests, who have no durable store at all, a working canvas.
type LocalCache struct {
	dir string
	mu  sync.Mutex
}

func NewLocalCache(dir string) (*LocalCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &LocalCache{dir: dir}, nil
}

func (c *LocalCache) pathFor(roomId string) string {
	return filepath.Join(c.dir, "strokes-"+url.PathEscape(roomId)+".json")
}

// Save appends one stroke to a room's cached list.
func (c *LocalCache) Save(roomId string, stroke types.Stroke) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	strokes := c.loadLocked(roomId)
	strokes = append(strokes, stroke)
	return c.writeLocked(roomId, strokes)
}

// Load returns a room's cached strokes in commit order. A missing cache
// file is an empty list, not an error.
func (c *LocalCache) Load(roomId string) []types.Stroke {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(roomId)
}

// Remove deletes one stroke from a room's cached list by id.
func (c *LocalCache) Remove(roomId, strokeId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	strokes := c.loadLocked(roomId)
	kept := strokes[:0]
	for _, s := range strokes {
		if s.Id != strokeId {
			kept = append(kept, s)
		}
	}
	return c.writeLocked(roomId, kept)
}

// Clear drops a room's cached list entirely. Called once durable strokes
// have been fetched for an authenticated session.
func (c *LocalCache) Clear(roomId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.pathFor(roomId))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *LocalCache) loadLocked(roomId string) []types.Stroke {
	data, err := os.ReadFile(c.pathFor(roomId))
	if err != nil {
		return nil
	}

	var strokes []types.Stroke
	if err := json.Unmarshal(data, &strokes); err != nil {
		return nil
	}
	return strokes
}

func (c *LocalCache) writeLocked(roomId string, strokes []types.Stroke) error {
	data, err := json.Marshal(strokes)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	path := c.pathFor(roomId)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
