package relay

import (
	"log"

	"github.com/collabdraw/collabdraw/internal/stats"
	"github.com/collabdraw/collabdraw/internal/types"
)

// maxReplayBuffer bounds the per-room drawing replay buffer. When full,
// the oldest buffered drawing event is dropped first.
const maxReplayBuffer = 512

type inboundMessage struct {
	client *Client
	env    *Envelope
}

// Room groups the connections collaborating on one canvas and owns all of
// its ephemeral state: membership, the drawing replay buffer and the
// video-enabled flag. A room exists exactly as long as it has members;
// everything is discarded as one unit when the last member leaves.
//
// All state is confined to the room's goroutine. Clients and the fanout
// bridge talk to it over channels only.
type Room struct {
	id string
	// ownerId is the backing project's admin, or "" for ad-hoc rooms.
	ownerId string
	server  *RelayServer
	log     *log.Logger
	stats   stats.StatsProvider

	joinChan    chan *Client
	leaveChan   chan *Client
	inboundChan chan *inboundMessage
	fanoutChan  chan *Envelope

	clients      map[string]*Client
	buffer       []*Envelope
	videoEnabled bool

	exit chan struct{}
	done chan struct{}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	r.stats.Incr(statActiveRooms)

	defer func() {
		r.stats.Decr(statActiveRooms)
		close(r.done)
	}()

	for {
		select {
		case c := <-r.joinChan:
			if r.handleJoin(c) {
				return
			}
		case c := <-r.leaveChan:
			if r.handleLeave(c) {
				return
			}
		case msg := <-r.inboundChan:
			if r.handleInbound(msg.client, msg.env) {
				return
			}
		case env := <-r.fanoutChan:
			r.stats.Incr(statFanoutReceived)
			r.broadcast(env, "")
			if r.unloadIfEmpty() {
				return
			}
		case <-r.exit:
			r.log.Printf("room %q is exiting", r.id)
			for _, c := range r.clients {
				c.setRoom(nil)
			}
			return
		}
	}
}

// handleJoin admits a connection, or refuses it when the room is backed by
// a project and the connection has no verified identity. Returns true when
// the room is left empty (a refused join on a freshly created room).
func (r *Room) handleJoin(c *Client) bool {
	if _, ok := r.clients[c.id]; ok {
		// a connection holds at most one membership per room
		return false
	}

	if r.ownerId != "" && c.user.IsGuest {
		r.log.Printf("refusing guest %q on project room %q", c.user.Id, r.id)
		c.closeWithStatus(closeUnauthorized, "unauthorized access to project room")
		return r.unloadIfEmpty()
	}

	c.isOwner = r.ownerId != "" && c.user.Id == r.ownerId
	c.setRoom(r)
	r.clients[c.id] = c

	r.log.Printf("%q joined room %q (owner=%t guest=%t)", c.user.Name, r.id, c.isOwner, c.user.IsGuest)

	// connection-ready is always the first message a member sees
	c.queueMessage(NewConnectionReady(r.id, c.id, c.user, c.isOwner, c.isAuthenticated))

	// replay buffered drawing events in commit order before any live ones
	for _, buffered := range r.buffer {
		c.queueMessage(buffered)
	}

	if r.videoEnabled {
		c.queueMessage(NewVideoStarted(r.id, r.ownerId, ""))
	}

	joined := NewUserJoined(r.id, c.user)
	joined.Participants = r.participants()
	r.broadcast(joined, c.id)
	r.publishCrossProcess(joined)
	return r.unloadIfEmpty()
}

// handleLeave removes a member. Returns true when the room emptied and
// tore itself down.
func (r *Room) handleLeave(c *Client) bool {
	if _, ok := r.clients[c.id]; !ok {
		return false
	}

	delete(r.clients, c.id)
	c.setRoom(nil)

	r.log.Printf("%q left room %q", c.user.Name, r.id)

	left := NewUserLeft(r.id, c.user)
	left.Participants = r.participants()
	r.broadcast(left, "")
	r.publishCrossProcess(left)

	return r.unloadIfEmpty()
}

// handleInbound is the signaling relay: it dispatches one member message
// on its kind. Returns true when the room emptied during delivery.
func (r *Room) handleInbound(c *Client, env *Envelope) bool {
	switch env.Type {
	case KindDraw:
		r.recordIfDrawing(env)
	case KindSignal:
		if c.isOwner {
			// the owner opening a call flips the room's video flag; the
			// original signaling payload is intentionally not forwarded
			r.videoEnabled = true
			ann := NewVideoStarted(r.id, c.user.Id, c.user.Name)
			r.broadcast(ann, c.id)
			r.publishCrossProcess(ann)
			return r.unloadIfEmpty()
		}

		if _, err := DecodeSignal(env); err != nil {
			r.log.Printf("dropping malformed signal from %q: %v", c.user.Id, err)
			return r.unloadIfEmpty()
		}
	}

	r.broadcast(env, c.id)
	r.publishCrossProcess(env)
	return r.unloadIfEmpty()
}

// recordIfDrawing appends a drawing event to the replay buffer. Events
// with no renderable geometry still propagate but are not buffered.
func (r *Room) recordIfDrawing(env *Envelope) {
	if env.Type != KindDraw {
		return
	}

	if strokePointCount(env) == 0 {
		r.log.Printf("drawing event %q in room %q has no points, not buffering", env.Id, r.id)
		return
	}

	if len(r.buffer) >= maxReplayBuffer {
		r.buffer = r.buffer[1:]
	}
	r.buffer = append(r.buffer, env)
}

// broadcast delivers an envelope to every member except the excluded
// connection. Sends are independent: a member whose socket is no longer
// writable is dropped from the membership silently and delivery to the
// rest proceeds.
func (r *Room) broadcast(env *Envelope, excludeConnectionId string) {
	for id, c := range r.clients {
		if id == excludeConnectionId {
			continue
		}

		if !c.queueMessage(env) {
			r.log.Printf("dropping unwritable member %q from room %q", id, r.id)
			delete(r.clients, id)
			c.setRoom(nil)
			c.stopClient()
		}
	}

	r.stats.Incr(statMessagesBroadcast)
}

func (r *Room) publishCrossProcess(env *Envelope) {
	r.server.bridge.Publish(r.id, env)
	r.stats.Incr(statFanoutPublished)
}

// unloadIfEmpty asks the server to discard the room once the last member
// is gone. The room goroutine stops immediately; any join raced into its
// channels is re-dispatched by the server.
func (r *Room) unloadIfEmpty() bool {
	if len(r.clients) > 0 {
		return false
	}

	r.log.Printf("room %q is empty, unloading", r.id)
	select {
	case r.server.unloadChan <- r.id:
	case <-r.exit:
		// server is already tearing the room down
	}
	return true
}

func (r *Room) memberCount() int {
	return len(r.clients)
}

// participants snapshots the local membership for presence notices.
func (r *Room) participants() []types.Participant {
	ps := make([]types.Participant, 0, len(r.clients))
	for _, c := range r.clients {
		ps = append(ps, types.Participant{UserId: c.user.Id, UserName: c.user.Name})
	}
	return ps
}
