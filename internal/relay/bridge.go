package relay

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "room:"

// bridgeFrame wraps an envelope on the pub/sub channel. Origin tags the
// publishing process so a process skips its own frames; without it redis
// would loop every publish straight back and double-deliver to local
// members.
type bridgeFrame struct {
	Origin   string    `json:"origin"`
	Envelope *Envelope `json:"envelope"`
}

// RedisBridge fans room messages out across server processes over redis
// pub/sub, one channel per room. Publishing and subscribing are
// best-effort: when redis is unreachable the relay degrades to
// single-process fanout and local delivery still succeeds.
type RedisBridge struct {
	log       *log.Logger
	rdb       *redis.Client
	pubsub    *redis.PubSub
	processId string

	mu         sync.Mutex
	subscribed map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedisBridge(logger *log.Logger, rdb *redis.Client) *RedisBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBridge{
		log:        logger,
		rdb:        rdb,
		pubsub:     rdb.Subscribe(ctx),
		processId:  uuid.NewString(),
		subscribed: make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func channelForRoom(roomId string) string {
	return roomChannelPrefix + roomId
}

func roomForChannel(channel string) string {
	return strings.TrimPrefix(channel, roomChannelPrefix)
}

// Publish sends an envelope to the room's shared channel. Failures are
// logged and swallowed; they must never raise to the local delivery path.
func (b *RedisBridge) Publish(roomId string, env *Envelope) {
	data, err := json.Marshal(bridgeFrame{Origin: b.processId, Envelope: env})
	if err != nil {
		b.log.Println("bridge: marshal frame:", err)
		return
	}

	if err := b.rdb.Publish(b.ctx, channelForRoom(roomId), data).Err(); err != nil {
		b.log.Printf("bridge: publish to %q: %v", roomId, err)
	}
}

// Subscribe lazily subscribes this process to a room's channel, once, on
// first local membership. Subscriptions are never torn down; one to an
// empty room's channel is inert.
func (b *RedisBridge) Subscribe(roomId string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribed[roomId]; ok {
		return
	}

	if err := b.pubsub.Subscribe(b.ctx, channelForRoom(roomId)); err != nil {
		// leave it unmarked so the next local join retries
		b.log.Printf("bridge: subscribe to %q: %v", roomId, err)
		return
	}

	b.subscribed[roomId] = struct{}{}
}

// Run consumes the subscription stream and hands each foreign frame to
// deliver. It returns when the bridge is closed.
func (b *RedisBridge) Run(deliver func(roomId string, env *Envelope)) {
	for msg := range b.pubsub.Channel() {
		var frame bridgeFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			b.log.Println("bridge: parse frame:", err)
			continue
		}

		if frame.Origin == b.processId || frame.Envelope == nil {
			continue
		}

		deliver(roomForChannel(msg.Channel), frame.Envelope)
	}
}

func (b *RedisBridge) Close() error {
	b.cancel()
	return b.pubsub.Close()
}
