package feed

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "ictrepair:changes"

// bridgeEnvelope wraps an Event with the publishing instance's id so an
// instance can ignore its own messages when they come back around.
type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bridge mirrors bus events across service instances through a Redis
// pub/sub channel, so a client connected to one instance sees mutations
// committed on another. Best-effort: if addr is empty the bridge is a
// no-op, and publish failures are logged, not surfaced, because every
// instance's own clients are already covered by the local bus.
type Bridge struct {
	client *redis.Client
	bus    *Bus
	origin string
	cancel context.CancelFunc
}

// NewBridge connects the bus to Redis at addr. Empty addr returns an
// inert bridge.
func NewBridge(bus *Bus, addr string) *Bridge {
	b := &Bridge{bus: bus, origin: uuid.NewString()}
	if addr == "" {
		return b
	}
	b.client = redis.NewClient(&redis.Options{Addr: addr})
	return b
}

// Run starts relaying in both directions until ctx is cancelled. Local
// events are forwarded by the returned publish hook (see Publish); remote
// events are re-published on the local bus.
func (b *Bridge) Run(ctx context.Context) {
	if b.client == nil {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)
	sub := b.client.Subscribe(ctx, bridgeChannel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env bridgeEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("feed: bridge decode: %v", err)
					continue
				}
				if env.Origin == b.origin {
					continue
				}
				b.bus.Publish(env.Event)
			}
		}
	}()
	log.Printf("feed: redis bridge up on %q", bridgeChannel)
}

// Publish forwards a locally committed event to the other instances.
// Call it alongside Bus.Publish for every store mutation.
func (b *Bridge) Publish(ctx context.Context, ev Event) {
	if b.client == nil {
		return
	}
	body, err := json.Marshal(bridgeEnvelope{Origin: b.origin, Event: ev})
	if err != nil {
		log.Printf("feed: bridge encode: %v", err)
		return
	}
	if err := b.client.Publish(ctx, bridgeChannel, body).Err(); err != nil {
		log.Printf("feed: bridge publish: %v", err)
	}
}

// Close stops the relay and releases the Redis connection.
func (b *Bridge) Close() error {
	if b.client == nil {
		return nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	return b.client.Close()
}
