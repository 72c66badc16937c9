package relay

import (
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/collabdraw/collabdraw/internal/testutil"
)

func Test_channelForRoom(t *testing.T) {
	assert.Equal(t, "room:room-1", channelForRoom("room-1"), "expected room channel to carry the prefix")
	assert.Equal(t, "room-1", roomForChannel("room:room-1"), "expected room id to round-trip through the channel name")
}

func Test_bridgeFrameWireFormat(t *testing.T) {
	frame := bridgeFrame{
		Origin:   "process-1",
		Envelope: &Envelope{Type: KindDraw, RoomId: "room-1"},
	}

	data, err := json.Marshal(frame)
	assert.NoError(t, err, "expected frame to marshal")

	var decoded bridgeFrame
	assert.NoError(t, json.Unmarshal(data, &decoded), "expected frame to unmarshal")
	assert.Equal(t, frame.Origin, decoded.Origin, "expected origin to round-trip")
	assert.Equal(t, KindDraw, decoded.Envelope.Type, "expected envelope to round-trip")
}

func TestNewRedisBridge(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	t.Cleanup(func() { rdb.Close() })

	a := NewRedisBridge(testutil.TestLogger(t), rdb)
	b := NewRedisBridge(testutil.TestLogger(t), rdb)
	t.Cleanup(func() { a.Close(); b.Close() })

	assert.NotEmpty(t, a.processId, "expected a process id to be assigned")
	assert.NotEqual(t, a.processId, b.processId, "expected distinct process ids per bridge")
}

func TestRedisBridge_degradesWhenUnreachable(t *testing.T) {
	// nothing listens on this address; every redis command fails fast
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:1", MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	bridge := NewRedisBridge(testutil.TestLogger(t), rdb)
	t.Cleanup(func() { bridge.Close() })

	// publish must swallow the failure, never surface it
	bridge.Publish("room-1", &Envelope{Type: KindDraw})

	// a failed subscribe stays unmarked so the next join retries it
	bridge.Subscribe("room-1")
	bridge.mu.Lock()
	_, marked := bridge.subscribed["room-1"]
	bridge.mu.Unlock()
	assert.False(t, marked, "expected failed subscription not to be recorded")
}
