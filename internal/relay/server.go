package relay

import (
	"context"
	"log"

	"github.com/gorilla/websocket"

	"github.com/collabdraw/collabdraw/internal/stats"
	"github.com/collabdraw/collabdraw/internal/store"
)

const (
	statActiveConnections = "ActiveConnections"
	statActiveRooms       = "ActiveRooms"
	statMessagesBroadcast = "MessagesBroadcast"
	statFanoutPublished   = "FanoutPublished"
	statFanoutReceived    = "FanoutReceived"
)

// FanoutBridge propagates room messages across server processes. Publish
// is best-effort: a failed publish never surfaces to the room's local
// delivery path.
type FanoutBridge interface {
	Publish(roomId string, env *Envelope)
	Subscribe(roomId string)
}

// NoopBridge satisfies FanoutBridge for single-process deployments and
// tests.
type NoopBridge struct{}

func (NoopBridge) Publish(string, *Envelope) {}
func (NoopBridge) Subscribe(string)          {}

type fanoutDelivery struct {
	roomId string
	env    *Envelope
}

type roomStateReq struct {
	roomId string
	resp   chan bool
}

// RelayServer owns the room table and routes joins, unloads and
// cross-process deliveries. Room state is only ever touched from the
// server and room goroutines; connections interact through channels.
type RelayServer struct {
	log      *log.Logger
	store    store.BoardRepository
	bridge   FanoutBridge
	stats    stats.StatsProvider
	registry *Registry

	joinChan   chan *Client
	unloadChan chan string
	fanoutChan chan *fanoutDelivery
	stateChan  chan *roomStateReq

	rooms map[string]*Room

	stop chan struct{}
	done chan struct{}
}

func NewRelayServer(logger *log.Logger, repo store.BoardRepository, bridge FanoutBridge, sp stats.StatsProvider) (*RelayServer, error) {
	rs := &RelayServer{
		log:        logger,
		store:      repo,
		bridge:     bridge,
		stats:      sp,
		registry:   NewRegistry(),
		joinChan:   make(chan *Client, 256),
		unloadChan: make(chan string, 256),
		fanoutChan: make(chan *fanoutDelivery, 1024),
		stateChan:  make(chan *roomStateReq),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	sp.RegisterMetric(statActiveConnections)
	sp.RegisterMetric(statActiveRooms)
	sp.RegisterMetric(statMessagesBroadcast)
	sp.RegisterMetric(statFanoutPublished)
	sp.RegisterMetric(statFanoutReceived)

	return rs, nil
}

func (rs *RelayServer) Run() {
	for {
		select {
		case c := <-rs.joinChan:
			rs.handleJoin(c)
		case id := <-rs.unloadChan:
			rs.handleUnload(id)
		case d := <-rs.fanoutChan:
			rs.handleFanout(d)
		case req := <-rs.stateChan:
			_, ok := rs.rooms[req.roomId]
			req.resp <- ok
		case <-rs.stop:
			rs.log.Println("shutting down rooms")
			for _, r := range rs.rooms {
				close(r.exit)
				<-r.done
			}
			rs.rooms = make(map[string]*Room)
			close(rs.done)
			return
		}
	}
}

// Register adds a freshly authenticated connection to the live set and
// queues its room join.
func (rs *RelayServer) Register(c *Client) {
	rs.registry.Register(c)
	rs.stats.Incr(statActiveConnections)
	rs.joinChan <- c
}

func (rs *RelayServer) Unregister(c *Client) {
	rs.registry.Unregister(c.id)
	rs.stats.Decr(statActiveConnections)
}

// DeliverFanout hands a cross-process message to the room it belongs to.
// Called from the bridge's subscription goroutine; it must never block the
// bridge, so an overfull relay drops the delivery.
func (rs *RelayServer) DeliverFanout(roomId string, env *Envelope) {
	select {
	case rs.fanoutChan <- &fanoutDelivery{roomId: roomId, env: env}:
	default:
		rs.log.Printf("fanout channel full, dropping %s for room %q", env.Type, roomId)
	}
}

// HasRoom reports whether a room currently exists in server memory.
func (rs *RelayServer) HasRoom(roomId string) bool {
	req := &roomStateReq{roomId: roomId, resp: make(chan bool, 1)}
	select {
	case rs.stateChan <- req:
		return <-req.resp
	case <-rs.done:
		return false
	}
}

func (rs *RelayServer) handleJoin(c *Client) {
	if room, ok := rs.rooms[c.roomId]; ok {
		select {
		case room.joinChan <- c:
		default:
			rs.log.Printf("join channel full on room %q", room.id)
			c.closeWithStatus(websocket.CloseTryAgainLater, "room is busy")
		}
		return
	}

	// first member: resolve the backing project's owner before admitting
	ownerId, err := rs.store.GetProjectOwner(c.roomId)
	if err != nil {
		rs.log.Printf("project owner lookup for %q: %v", c.roomId, err)
		c.closeWithStatus(websocket.CloseInternalServerErr, "owner lookup failed")
		return
	}

	room := &Room{
		id:          c.roomId,
		ownerId:     ownerId,
		server:      rs,
		log:         rs.log,
		stats:       rs.stats,
		joinChan:    make(chan *Client, 256),
		leaveChan:   make(chan *Client, 256),
		inboundChan: make(chan *inboundMessage, 256),
		fanoutChan:  make(chan *Envelope, 256),
		clients:     make(map[string]*Client),
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	rs.rooms[room.id] = room
	rs.bridge.Subscribe(room.id)
	room.joinChan <- c

	go room.start()
}

// handleUnload discards an emptied room. The room goroutine has already
// exited; joins that raced into its channels are re-dispatched so they
// land in a fresh room.
func (rs *RelayServer) handleUnload(roomId string) {
	r, ok := rs.rooms[roomId]
	if !ok {
		return
	}

	rs.log.Printf("removing room %q", roomId)
	delete(rs.rooms, roomId)

	for {
		select {
		case c := <-r.joinChan:
			rs.handleJoin(c)
		case c := <-r.leaveChan:
			c.setRoom(nil)
		default:
			return
		}
	}
}

func (rs *RelayServer) handleFanout(d *fanoutDelivery) {
	room, ok := rs.rooms[d.roomId]
	if !ok {
		// no local members, the subscription is inert
		return
	}

	select {
	case room.fanoutChan <- d.env:
	default:
		rs.log.Printf("fanout channel full on room %q", room.id)
	}
}

func (rs *RelayServer) Shutdown(ctx context.Context) error {
	rs.log.Println("received shutdown signal")
	for _, c := range rs.registry.All() {
		c.stopClient()
	}

	close(rs.stop)

	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
