package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/collabdraw/collabdraw/internal/stats"
	"github.com/collabdraw/collabdraw/internal/store"
	"github.com/collabdraw/collabdraw/internal/testutil"
	"github.com/collabdraw/collabdraw/internal/types"
)

// newTestRelayServer creates a RelayServer for testing purposes
func newTestRelayServer(t *testing.T, repo store.BoardRepository, su *stats.MockStatsUpdater) *RelayServer {
	t.Helper()
	su.On("RegisterMetric", mock.Anything).Times(5)

	rs, err := NewRelayServer(testutil.TestLogger(t), repo, NoopBridge{}, su)
	if err != nil {
		t.Fatalf("failed to create test RelayServer: %v", err)
	}
	return rs
}

// newTestConn opens a real websocket pair over an httptest server and
// returns both ends.
func newTestConn(t *testing.T) (serverConn, clientConn *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "expected dial to succeed")
	t.Cleanup(func() { clientConn.Close() })

	serverConn = <-connCh
	t.Cleanup(func() { serverConn.Close() })
	return serverConn, clientConn
}

func recvEnvelope(t *testing.T, c *Client) *Envelope {
	t.Helper()
	select {
	case env := <-c.send:
		return env
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for queued envelope")
		return nil
	}
}

func TestNewRelayServer(t *testing.T) {
	db := &store.MockBoardRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Times(5)

	logger := testutil.TestLogger(t)
	rs, err := NewRelayServer(logger, db, NoopBridge{}, su)
	assert.NoError(t, err, "expected no error creating RelayServer")
	assert.NotNil(t, rs, "expected RelayServer to be non-nil")
	assert.Equal(t, logger, rs.log, "expected logger to be set")
	assert.Equal(t, db, rs.store, "expected board repository to be set")
	assert.NotNil(t, rs.registry, "expected registry to be initialized")
	assert.NotNil(t, rs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, rs.unloadChan, "expected unloadChan to be initialized")
	assert.NotNil(t, rs.fanoutChan, "expected fanoutChan to be initialized")
	assert.NotNil(t, rs.rooms, "expected rooms map to be initialized")
}

func Test_handleJoin_newRoom(t *testing.T) {
	db := &store.MockBoardRepository{}
	defer db.AssertExpectations(t)
	db.On("GetProjectOwner", "room-1").Return("", nil).Once()

	rs := newTestRelayServer(t, db, &stats.MockStatsUpdater{})
	rs.stats = stats.NoopStats{}

	c := NewClient("conn-1", types.User{Id: "user-1", Name: "alice"}, true, "room-1",
		nil, rs, testutil.TestLogger(t), stats.NoopStats{})

	rs.handleJoin(c)

	room, ok := rs.rooms["room-1"]
	require.True(t, ok, "expected room to be created on first join")
	assert.Equal(t, "", room.ownerId, "expected ad-hoc room to have no owner")

	env := recvEnvelope(t, c)
	assert.Equal(t, KindConnectionReady, env.Type, "expected connection-ready as first message")
	assert.Equal(t, "conn-1", env.ConnectionId, "expected connection id in ready message")

	close(room.exit)
	<-room.done
}

func Test_handleJoin_ownerScenario(t *testing.T) {
	db := &store.MockBoardRepository{}
	defer db.AssertExpectations(t)
	db.On("GetProjectOwner", "proj-1").Return("user-1", nil).Once()

	rs := newTestRelayServer(t, db, &stats.MockStatsUpdater{})
	rs.stats = stats.NoopStats{}

	c := NewClient("conn-1", types.User{Id: "user-1", Name: "alice"}, true, "proj-1",
		nil, rs, testutil.TestLogger(t), stats.NoopStats{})

	rs.handleJoin(c)

	env := recvEnvelope(t, c)
	assert.Equal(t, KindConnectionReady, env.Type, "expected connection-ready as first message")
	assert.True(t, env.IsOwner, "expected project admin to be flagged as owner")

	room := rs.rooms["proj-1"]
	close(room.exit)
	<-room.done
}

func Test_handleJoin_ownerLookupFails(t *testing.T) {
	db := &store.MockBoardRepository{}
	defer db.AssertExpectations(t)
	db.On("GetProjectOwner", "room-1").Return("", errors.New("db down")).Once()

	rs := newTestRelayServer(t, db, &stats.MockStatsUpdater{})
	rs.stats = stats.NoopStats{}

	serverConn, clientConn := newTestConn(t)
	c := NewClient("conn-1", types.User{Id: "user-1", Name: "alice"}, true, "room-1",
		serverConn, rs, testutil.TestLogger(t), stats.NoopStats{})

	rs.handleJoin(c)

	assert.NotContains(t, rs.rooms, "room-1", "expected no room after failed owner lookup")

	_, _, err := clientConn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr),
		"expected close with internal server error status, got %v", err)
}

func Test_handleUnload_redispatchesRacedJoin(t *testing.T) {
	db := &store.MockBoardRepository{}
	defer db.AssertExpectations(t)
	db.On("GetProjectOwner", "room-1").Return("", nil).Once()

	rs := newTestRelayServer(t, db, &stats.MockStatsUpdater{})
	rs.stats = stats.NoopStats{}

	// a room whose goroutine already exited, with a join raced into its
	// channel
	stale := &Room{
		id:       "room-1",
		server:   rs,
		log:      testutil.TestLogger(t),
		stats:    stats.NoopStats{},
		joinChan: make(chan *Client, 1),
		clients:  make(map[string]*Client),
		exit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	rs.rooms["room-1"] = stale

	c := NewClient("conn-1", types.User{Id: "user-1", Name: "alice"}, true, "room-1",
		nil, rs, testutil.TestLogger(t), stats.NoopStats{})
	stale.joinChan <- c

	rs.handleUnload("room-1")

	fresh, ok := rs.rooms["room-1"]
	require.True(t, ok, "expected a fresh room for the raced join")
	assert.NotSame(t, stale, fresh, "expected the raced join to land in a new room")

	env := recvEnvelope(t, c)
	assert.Equal(t, KindConnectionReady, env.Type, "expected raced join to be admitted to the fresh room")

	close(fresh.exit)
	<-fresh.done
}

func Test_DeliverFanout(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		rs := newTestRelayServer(t, &store.MockBoardRepository{}, &stats.MockStatsUpdater{})

		rs.DeliverFanout("room-1", &Envelope{Type: KindDraw})
		select {
		case d := <-rs.fanoutChan:
			assert.Equal(t, "room-1", d.roomId, "expected room id to match")
		default:
			t.Error("expected delivery to be queued")
		}
	})

	t.Run("channel full drops without blocking", func(t *testing.T) {
		rs := newTestRelayServer(t, &store.MockBoardRepository{}, &stats.MockStatsUpdater{})
		rs.fanoutChan = make(chan *fanoutDelivery, 1)
		rs.fanoutChan <- &fanoutDelivery{roomId: "other"}

		done := make(chan struct{})
		go func() {
			rs.DeliverFanout("room-1", &Envelope{Type: KindDraw})
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("timeout: DeliverFanout blocked on a full channel")
		}
	})
}

func TestHasRoom(t *testing.T) {
	db := &store.MockBoardRepository{}
	defer db.AssertExpectations(t)
	db.On("GetProjectOwner", "room-1").Return("", nil).Once()

	rs := newTestRelayServer(t, db, &stats.MockStatsUpdater{})
	rs.stats = stats.NoopStats{}
	go rs.Run()

	assert.False(t, rs.HasRoom("room-1"), "expected no room before any join")

	serverConn, clientConn := newTestConn(t)
	c := NewClient("conn-1", types.User{Id: "user-1", Name: "alice"}, true, "room-1",
		serverConn, rs, testutil.TestLogger(t), stats.NoopStats{})
	rs.Register(c)

	env := recvEnvelope(t, c)
	assert.Equal(t, KindConnectionReady, env.Type, "expected join to be admitted")
	assert.True(t, rs.HasRoom("room-1"), "expected the room to exist while it has a member")

	// last member leaving discards the room entirely
	clientConn.Close()
	serverConn.Close()
	c.cleanup()

	assert.Eventually(t, func() bool {
		return !rs.HasRoom("room-1")
	}, time.Second, 10*time.Millisecond, "expected the room to be discarded after the last leave")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, rs.Shutdown(ctx), "expected clean shutdown")
}

// a drawing event arriving over the bridge must reach local members
// exactly as published
func Test_fanoutDelivery(t *testing.T) {
	db := &store.MockBoardRepository{}
	defer db.AssertExpectations(t)
	db.On("GetProjectOwner", "room-1").Return("", nil).Once()

	rs := newTestRelayServer(t, db, &stats.MockStatsUpdater{})
	rs.stats = stats.NoopStats{}
	go rs.Run()

	c := NewClient("conn-1", types.User{Id: "user-1", Name: "alice"}, true, "room-1",
		nil, rs, testutil.TestLogger(t), stats.NoopStats{})
	rs.Register(c)

	env := recvEnvelope(t, c)
	require.Equal(t, KindConnectionReady, env.Type, "expected the local member to be admitted")

	foreign := drawEnvelope("stroke-1", types.Point{X: 4, Y: 2})
	foreign.UserId = "user-9"
	rs.DeliverFanout("room-1", foreign)

	got := recvEnvelope(t, c)
	assert.Equal(t, KindDraw, got.Type, "expected the bridged drawing event")
	assert.Equal(t, "user-9", got.UserId, "expected the original author to be preserved")
	assert.JSONEq(t, string(foreign.Payload), string(got.Payload), "expected the stroke unchanged end to end")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, rs.Shutdown(ctx), "expected clean shutdown")
}

func TestRelayServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		rs := newTestRelayServer(t, &store.MockBoardRepository{}, &stats.MockStatsUpdater{})
		go rs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := rs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		rs := newTestRelayServer(t, &store.MockBoardRepository{}, &stats.MockStatsUpdater{})
		// Run is never started, so the done channel never closes

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := rs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected deadline exceeded when the loop is not draining")
	})
}
