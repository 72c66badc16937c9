package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collabdraw/collabdraw/internal/stats"
	"github.com/collabdraw/collabdraw/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// closeUnauthorized is sent before closing a socket that may not join the
// requested room. 1008 is the policy-violation close status.
const closeUnauthorized = websocket.ClosePolicyViolation

// Client is one live socket. It owns the read and write pumps; all room
// state mutations happen on the room's goroutine, never here.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *RelayServer
	log    *log.Logger
	stats  stats.StatsProvider

	user            types.User
	isAuthenticated bool
	roomId          string
	// isOwner is set by the room during join and only ever touched on the
	// room goroutine afterwards.
	isOwner bool

	room     *Room
	roomLock sync.RWMutex

	send     chan *Envelope
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(id string, user types.User, isAuthenticated bool, roomId string, conn *websocket.Conn, rs *RelayServer, l *log.Logger, sp stats.StatsProvider) *Client {
	return &Client{
		id:              id,
		conn:            conn,
		server:          rs,
		log:             l,
		stats:           sp,
		user:            user,
		isAuthenticated: isAuthenticated,
		roomId:          roomId,
		send:            make(chan *Envelope, 256),
		stop:            make(chan struct{}),
	}
}

func (c *Client) ConnectionId() string { return c.id }
func (c *Client) User() types.User     { return c.user }

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write pump for %q exiting", c.id)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize envelope:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read pump for %q exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// drop the single offending message, the connection stays up
			c.log.Println("error parsing envelope:", err)
			continue
		}

		// the sender's identity and room are never taken from the wire
		env.UserId = c.user.Id
		env.UserName = c.user.Name
		env.RoomId = c.roomId
		if env.Timestamp == "" {
			env.Timestamp = Now()
		}

		// only undecodable payloads are dropped here; a decoded stroke
		// with no geometry still propagates, the room just won't buffer it
		if env.Type == KindDraw {
			var s types.Stroke
			if err := json.Unmarshal(env.Payload, &s); err != nil {
				c.log.Printf("dropping undecodable drawing event from %q: %v", c.user.Id, err)
				continue
			}
		}

		r := c.getRoom()
		if r == nil {
			c.log.Printf("dropping %s from %q: not in a room yet", env.Type, c.id)
			continue
		}

		select {
		case r.inboundChan <- &inboundMessage{client: c, env: &env}:
		default:
			c.log.Printf("inbound channel full for room %q, dropping %s", r.id, env.Type)
		}
	}
}

// queueMessage hands an envelope to the write pump without blocking. A
// false return means the socket is no longer writable.
func (c *Client) queueMessage(msg *Envelope) bool {
	select {
	case c.send <- msg:
	case <-c.stop:
		return false
	default:
		c.log.Printf("send channel full for %q, dropping connection", c.id)
		return false
	}

	return true
}

// closeWithStatus writes a close frame and tears the socket down. Used to
// refuse joins before the connection is admitted to a room.
func (c *Client) closeWithStatus(code int, reason string) {
	CloseConn(c.conn, code, reason)
}

// CloseConn writes a close frame with the given status and closes the
// socket.
func CloseConn(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopClient is safe to call from the room goroutine, the read pump and
// server shutdown at the same time.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.server.Unregister(c)

	if r := c.getRoom(); r != nil {
		select {
		case r.leaveChan <- c:
		case <-r.done:
			// room already tore itself down
		}
	}

	c.stopClient()
}

func (c *Client) setRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	c.room = r
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}
