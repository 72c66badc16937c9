package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collabdraw/collabdraw/internal/relay"
)

// Status is the connection state machine the surrounding UI may render.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

const writeWait = 10 * time.Second

// SocketClient is one room membership over a websocket. It tracks the
// connection-ready handshake and feeds every subsequent envelope to the
// registered callback.
type SocketClient struct {
	log  *log.Logger
	conn *websocket.Conn

	onMessage func(env *relay.Envelope)

	mu           sync.RWMutex
	status       Status
	connectionId string
	isOwner      bool
	ready        relay.ReadyInfo

	wmu sync.Mutex

	done chan struct{}
}

// Dial connects to a room. The room id and bearer token ride on the
// request query, an absent token joins as a guest.
func Dial(ctx context.Context, baseURL, roomId, token string, onMessage func(env *relay.Envelope), logger *log.Logger) (*SocketClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	q := u.Query()
	q.Set("roomId", roomId)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	c := &SocketClient{
		log:       logger,
		onMessage: onMessage,
		status:    StatusConnecting,
		done:      make(chan struct{}),
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		c.setStatus(StatusError)
		return nil, fmt.Errorf("dial %q: %w", u.String(), err)
	}

	c.conn = conn
	c.setStatus(StatusOpen)
	go c.readLoop()

	return c, nil
}

func (c *SocketClient) readLoop() {
	defer close(c.done)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
				c.setStatus(StatusError)
			} else {
				c.setStatus(StatusClosed)
			}
			return
		}

		var env relay.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Println("failed to parse envelope:", err)
			continue
		}

		if env.Type == relay.KindConnectionReady {
			var info relay.ReadyInfo
			if len(env.Payload) > 0 {
				if err := json.Unmarshal(env.Payload, &info); err != nil {
					c.log.Println("failed to parse ready payload:", err)
				}
			}

			c.mu.Lock()
			c.connectionId = env.ConnectionId
			c.isOwner = env.IsOwner
			c.ready = info
			c.mu.Unlock()
			continue
		}

		if c.onMessage != nil {
			c.onMessage(&env)
		}
	}
}

// Send writes one envelope to the socket. It fails rather than queues when
// the connection is not open.
func (c *SocketClient) Send(env *relay.Envelope) error {
	if c.Status() != StatusOpen {
		return fmt.Errorf("socket not open (status %s)", c.Status())
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("write envelope: %w", err)
	}

	return nil
}

func (c *SocketClient) Close() error {
	c.wmu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.wmu.Unlock()

	err := c.conn.Close()
	c.setStatus(StatusClosed)

	select {
	case <-c.done:
	case <-time.After(writeWait):
	}
	return err
}

func (c *SocketClient) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// closed and error are terminal
	if c.status == StatusClosed || c.status == StatusError {
		return
	}
	c.status = s
}

func (c *SocketClient) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *SocketClient) ConnectionId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectionId
}

func (c *SocketClient) IsOwner() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isOwner
}

func (c *SocketClient) Ready() relay.ReadyInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// WaitReady blocks until the connection-ready envelope arrived or the
// timeout elapsed.
func (c *SocketClient) WaitReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.ConnectionId() != "" {
			return true
		}

		select {
		case <-c.done:
			return c.ConnectionId() != ""
		case <-time.After(10 * time.Millisecond):
		}
	}
	return false
}
