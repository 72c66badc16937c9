package canvas

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/collabdraw/collabdraw/internal/relay"
	"github.com/collabdraw/collabdraw/internal/types"
)

const (
	DefaultColor = "#23ab2b"
	DefaultWidth = 2.0

	// defaultWriteDebounce delays durable appends so rapid strokes
	// coalesce into fewer writes.
	defaultWriteDebounce = 500 * time.Millisecond
)

// DurableStore is the subset of the board repository the engine writes
// through for authenticated sessions.
type DurableStore interface {
	AppendStroke(roomId string, stroke types.Stroke) error
	DeleteStrokeById(roomId, strokeId string) error
}

// Config wires an Engine to its room and collaborators.
type Config struct {
	RoomId        string
	User          types.User
	Authenticated bool

	// Committed holds finished strokes; Preview is redrawn while a shape
	// is dragged out so the committed surface stays untouched.
	Committed Surface
	Preview   Surface

	Cache *LocalCache
	// Store may be nil for guest sessions.
	Store DurableStore
	Send  func(env *relay.Envelope) error

	Color    string
	Width    float64
	Debounce time.Duration

	Log *log.Logger
}

// Engine is the client side of the canvas: it turns pointer input into
// strokes, applies them optimistically, relays them, and reconciles the
// in-memory list against the on-device cache and the durable store.
//
// Pointer handling is single-threaded, but the socket receive callback
// and debounced writes may interleave with it; the mutex guards the
// stroke list and both surfaces.
type Engine struct {
	log  *log.Logger
	cfg  Config
	tool types.ToolKind

	drawing bool
	points  []types.Point
	// pendingText is the payload the next text-tool commit carries.
	pendingText string

	mu      sync.Mutex
	strokes []types.Stroke
	timers  map[string]*time.Timer
}

func NewEngine(cfg Config) *Engine {
	if cfg.Color == "" {
		cfg.Color = DefaultColor
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = defaultWriteDebounce
	}

	return &Engine{
		log:    cfg.Log,
		cfg:    cfg,
		tool:   types.ToolPencil,
		timers: make(map[string]*time.Timer),
	}
}

func (e *Engine) SetTool(t types.ToolKind)  { e.tool = t }
func (e *Engine) SetColor(c string)         { e.cfg.Color = c }
func (e *Engine) SetWidth(w float64)        { e.cfg.Width = w }
func (e *Engine) SetPendingText(txt string) { e.pendingText = txt }

// Strokes returns a copy of the applied stroke list in commit order.
func (e *Engine) Strokes() []types.Stroke {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Stroke, len(e.strokes))
	copy(out, e.strokes)
	return out
}

// PointerDown starts a stroke, or erases when the eraser tool is active.
// The text tool commits immediately on down.
func (e *Engine) PointerDown(p types.Point) {
	if e.tool == types.ToolEraser {
		e.eraseAt(p)
		return
	}

	if e.tool == types.ToolText {
		e.commit(types.Stroke{
			Id:     uuid.NewString(),
			Type:   types.ToolText,
			Points: []types.Point{p, {X: p.X + textHitWidth, Y: p.Y + textHitHeight}},
			Color:  e.cfg.Color,
			Width:  e.cfg.Width,
			Text:   e.pendingText,
			UserId: e.cfg.User.Id,
		})
		return
	}

	e.drawing = true
	e.points = []types.Point{p}
}

// PointerMove extends the active stroke. Pencil segments land directly on
// the committed surface; shape tools replace their extent point and redraw
// on the cleared preview surface.
func (e *Engine) PointerMove(p types.Point) {
	if !e.drawing {
		return
	}

	switch e.tool {
	case types.ToolPencil:
		prev := e.points[len(e.points)-1]
		e.points = append(e.points, p)

		e.mu.Lock()
		e.cfg.Committed.StrokePath([]types.Point{prev, p}, e.cfg.Color, e.cfg.Width)
		e.mu.Unlock()
	default:
		if len(e.points) == 1 {
			e.points = append(e.points, p)
		} else {
			e.points[1] = p
		}

		e.mu.Lock()
		e.cfg.Preview.Clear()
		Render(e.cfg.Preview, types.Stroke{
			Type:   e.tool,
			Points: e.points,
			Color:  e.cfg.Color,
			Width:  e.cfg.Width,
		})
		e.mu.Unlock()
	}
}

// PointerUp assembles and commits the final stroke.
func (e *Engine) PointerUp(p types.Point) {
	if !e.drawing {
		return
	}
	e.drawing = false

	var points []types.Point
	switch e.tool {
	case types.ToolPencil:
		points = e.points
	default:
		last := p
		if len(e.points) > 1 {
			last = e.points[1]
		}
		points = []types.Point{e.points[0], last}
	}
	e.points = nil

	e.commit(types.Stroke{
		Id:     uuid.NewString(),
		Type:   e.tool,
		Points: points,
		Color:  e.cfg.Color,
		Width:  e.cfg.Width,
		UserId: e.cfg.User.Id,
	})
}

// commit renders, relays and persists one finished stroke.
func (e *Engine) commit(stroke types.Stroke) {
	if err := stroke.Validate(); err != nil {
		e.log.Println("dropping invalid stroke:", err)
		return
	}

	e.mu.Lock()
	e.cfg.Preview.Clear()
	Render(e.cfg.Committed, stroke)
	e.strokes = append(e.strokes, stroke)
	e.mu.Unlock()

	e.sendStroke(stroke)

	if err := e.cfg.Cache.Save(e.cfg.RoomId, stroke); err != nil {
		e.log.Println("local cache write:", err)
	}

	if e.cfg.Authenticated && e.cfg.Store != nil {
		e.scheduleDurableWrite(stroke)
	}
}

func (e *Engine) sendStroke(stroke types.Stroke) {
	payload, err := json.Marshal(stroke)
	if err != nil {
		e.log.Println("marshal stroke:", err)
		return
	}

	env := &relay.Envelope{
		Type:      relay.KindDraw,
		UserId:    e.cfg.User.Id,
		UserName:  e.cfg.User.Name,
		RoomId:    e.cfg.RoomId,
		Timestamp: relay.Now(),
		Id:        stroke.Id,
		Payload:   payload,
	}

	if err := e.cfg.Send(env); err != nil {
		e.log.Println("send stroke:", err)
	}
}

// scheduleDurableWrite queues an append after the debounce delay. Each
// stroke schedules its own write; appends are idempotent so a duplicate
// fire is harmless.
func (e *Engine) scheduleDurableWrite(stroke types.Stroke) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timers[stroke.Id] = time.AfterFunc(e.cfg.Debounce, func() {
		if err := e.cfg.Store.AppendStroke(e.cfg.RoomId, stroke); err != nil {
			// best effort: the stroke stays valid locally and on every
			// other member's screen
			e.log.Println("durable append:", err)
		}

		e.mu.Lock()
		delete(e.timers, stroke.Id)
		e.mu.Unlock()
	})
}

// eraseAt hit-tests the click point against the stroke list and removes
// the first match everywhere: memory, committed surface, cache and, for
// authenticated sessions, the durable store. A miss is a no-op.
func (e *Engine) eraseAt(p types.Point) {
	e.mu.Lock()
	idx, ok := hitTest(e.strokes, p)
	if !ok {
		e.mu.Unlock()
		return
	}

	stroke := e.strokes[idx]
	e.strokes = append(e.strokes[:idx], e.strokes[idx+1:]...)

	if t, ok := e.timers[stroke.Id]; ok {
		t.Stop()
		delete(e.timers, stroke.Id)
	}

	e.redrawLocked()
	e.mu.Unlock()

	if err := e.cfg.Cache.Remove(e.cfg.RoomId, stroke.Id); err != nil {
		e.log.Println("local cache remove:", err)
	}

	e.sendErase(stroke.Id)

	if e.cfg.Authenticated && e.cfg.Store != nil {
		if err := e.cfg.Store.DeleteStrokeById(e.cfg.RoomId, stroke.Id); err != nil {
			e.log.Println("durable delete:", err)
		}
	}
}

func (e *Engine) sendErase(strokeId string) {
	env := &relay.Envelope{
		Type:      relay.KindEraser,
		UserId:    e.cfg.User.Id,
		UserName:  e.cfg.User.Name,
		RoomId:    e.cfg.RoomId,
		Timestamp: relay.Now(),
		Id:        strokeId,
	}

	if err := e.cfg.Send(env); err != nil {
		e.log.Println("send erase:", err)
	}
}

// FullRedraw replaces the stroke list and replays it in order onto a
// cleared committed surface. Used on resize and initial load.
func (e *Engine) FullRedraw(strokes []types.Stroke) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.strokes = make([]types.Stroke, len(strokes))
	copy(e.strokes, strokes)
	e.redrawLocked()
}

// Redraw replays the current stroke list, e.g. after a canvas resize.
func (e *Engine) Redraw() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.redrawLocked()
}

func (e *Engine) redrawLocked() {
	e.cfg.Committed.Clear()
	for _, s := range e.strokes {
		Render(e.cfg.Committed, s)
	}
}

// LoadLocal seeds the canvas from the on-device cache.
func (e *Engine) LoadLocal() {
	e.FullRedraw(e.cfg.Cache.Load(e.cfg.RoomId))
}

// LoadDurable replaces the canvas with the authoritative stroke list and
// clears the now superseded local cache.
func (e *Engine) LoadDurable(strokes []types.Stroke) {
	e.FullRedraw(strokes)
	if err := e.cfg.Cache.Clear(e.cfg.RoomId); err != nil {
		e.log.Println("local cache clear:", err)
	}
}

// ApplyRemote applies an envelope arriving from the relay. The local
// author's own echoes are ignored; remote strokes render through the same
// routine as local commits but never re-enter persistence.
func (e *Engine) ApplyRemote(env *relay.Envelope) {
	if env.UserId == e.cfg.User.Id {
		return
	}

	switch env.Type {
	case relay.KindDraw:
		stroke, err := relay.DecodeStroke(env)
		if err != nil {
			e.log.Println("dropping malformed remote stroke:", err)
			return
		}

		e.mu.Lock()
		e.strokes = append(e.strokes, stroke)
		Render(e.cfg.Committed, stroke)
		e.mu.Unlock()
	case relay.KindEraser:
		if env.Id == "" {
			return
		}

		e.mu.Lock()
		for i, s := range e.strokes {
			if s.Id == env.Id {
				e.strokes = append(e.strokes[:i], e.strokes[i+1:]...)
				e.redrawLocked()
				break
			}
		}
		e.mu.Unlock()
	}
}
