package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus wraps the in-memory Bus and mirrors every event onto a Redis
// channel so sibling gateway instances can feed their own SSE subscribers.
//
// Fan-out strategy:
//   - in-memory: immediate push to this instance's SSE streams
//   - Redis pub/sub: best-effort delivery to the other instances
type RedisBus struct {
	*Bus

	rdb     *redis.Client
	channel string
	logger  *log.Logger
	cancel  context.CancelFunc
	seen    *recentIDs
}

// NewRedisBus starts the subscriber loop and returns the combined bus.
func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		Bus:     NewBus(),
		rdb:     rdb,
		channel: channel,
		logger:  log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
		cancel:  cancel,
		seen:    newRecentIDs(512),
	}
	go b.receive(ctx)
	return b
}

// Emit publishes locally and mirrors to Redis. A Redis failure only costs
// cross-instance delivery; local SSE subscribers still get the event.
func (b *RedisBus) Emit(eventType, source, subject string, data map[string]interface{}) {
	event := NewCloudEvent(eventType, source, subject, data)
	b.seen.mark(event.ID) // our own publication will echo back on the channel
	b.Publish(event)

	buf, err := event.JSON()
	if err != nil {
		b.logger.Printf("encode %s: %v", event.Type, err)
		return
	}
	if err := b.rdb.Publish(context.Background(), b.channel, buf).Err(); err != nil {
		b.logger.Printf("redis publish %s: %v", event.Type, err)
	}
}

// receive feeds remote events into the local bus.
func (b *RedisBus) receive(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Printf("redis receive: %v", err)
			continue
		}

		var event CloudEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.Printf("decode remote event: %v", err)
			continue
		}
		if b.seen.mark(event.ID) {
			continue
		}
		b.Publish(&event)
	}
}

// Close stops the subscriber loop. The Redis client is owned by the caller.
func (b *RedisBus) Close() {
	b.cancel()
}

// recentIDs is a small ring of recently seen event ids, used to keep this
// instance's own publications from double-delivering when they echo back.
type recentIDs struct {
	mu    sync.Mutex
	order []string
	set   map[string]bool
	next  int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{order: make([]string, n), set: make(map[string]bool, n)}
}

// mark records id, reporting whether it was already present.
func (r *recentIDs) mark(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set[id] {
		return true
	}
	if old := r.order[r.next]; old != "" {
		delete(r.set, old)
	}
	r.order[r.next] = id
	r.set[id] = true
	r.next = (r.next + 1) % len(r.order)
	return false
}
