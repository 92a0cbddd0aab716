// Package eventbus fans out job lifecycle and progress events to in-process
// observers (WebSocket handlers, CLI watchers). Delivery is best-effort: a
// slow subscriber loses events rather than blocking a publisher, and is told
// so via a synthetic overflow notice instead of silent data loss.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a published Event.
type Type string

const (
	TypeProgress            Type = "progress"
	TypeStageChanged        Type = "stage_changed"
	TypeStatusChanged       Type = "status_changed"
	TypeCompleted           Type = "completed"
	TypeFailed              Type = "failed"
	TypeCancelled           Type = "cancelled"
	TypeModelDownload       Type = "model_download_progress"
	TypePriorityChanged     Type = "priority_changed"
	TypeQueueBatchReordered Type = "queue_batch_reordered"
	TypeOverflow            Type = "overflow"
)

// GlobalTopic is the reserved topic that receives every published event,
// regardless of the job/model id a given event concerns. Dashboards and the
// operator CLI subscribe here; per-job observers subscribe on the job's id.
const GlobalTopic = ""

// Event is one fanned-out notice.
type Event struct {
	Topic     string    `json:"topic"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Dropped   int       `json:"dropped,omitempty"` // set only on TypeOverflow
	CreatedAt time.Time `json:"created_at"`
}

// subscriber is one bounded FIFO channel plus the bookkeeping needed to
// coalesce drops into a single overflow notice.
type subscriber struct {
	id    string
	topic string
	ch    chan Event

	mu              sync.Mutex
	pendingOverflow int
}

// Subscription is returned from Subscribe; Events is read-only and closed on Unsubscribe.
type Subscription struct {
	ID     string
	Events <-chan Event

	bus *Bus
	sub *subscriber
}

// Bus is an in-memory, topic-keyed pub/sub fanout.
type Bus struct {
	bufferSize int

	mu   sync.RWMutex
	subs map[string]map[string]*subscriber // topic -> id -> subscriber
}

// New creates a Bus whose subscriber channels buffer up to bufferSize events
// before dropping. bufferSize <= 0 is treated as 1.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Bus{
		bufferSize: bufferSize,
		subs:       make(map[string]map[string]*subscriber),
	}
}

// Subscribe registers a new observer on topic. Pass GlobalTopic to receive
// every event published on the bus.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &subscriber{
		id:    uuid.NewString(),
		topic: topic,
		ch:    make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]*subscriber)
	}
	b.subs[topic][sub.id] = sub
	b.mu.Unlock()

	return &Subscription{ID: sub.id, Events: sub.ch, bus: b, sub: sub}
}

// Unsubscribe removes the subscription and closes its channel. Idempotent —
// calling it twice, or on an already-removed subscription, is a no-op.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	topicSubs, ok := s.bus.subs[s.sub.topic]
	if ok {
		if _, present := topicSubs[s.sub.id]; present {
			delete(topicSubs, s.sub.id)
			if len(topicSubs) == 0 {
				delete(s.bus.subs, s.sub.topic)
			}
			close(s.sub.ch)
		}
	}
	s.bus.mu.Unlock()
}

// Publish fans ev out to every subscriber of topic plus every subscriber of
// GlobalTopic. Never blocks: a subscriber whose buffer is full has the event
// dropped and an overflow count accumulated, flushed as a TypeOverflow event
// the next time that subscriber's channel has room.
func (b *Bus) Publish(topic string, evType Type, payload any) {
	ev := Event{Topic: topic, Type: evType, Payload: payload, CreatedAt: time.Now()}

	b.mu.RLock()
	targets := make([]*subscriber, 0, 4)
	if topic != GlobalTopic {
		for _, s := range b.subs[topic] {
			targets = append(targets, s)
		}
	}
	for _, s := range b.subs[GlobalTopic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		deliverTo(s, ev)
	}
}

func deliverTo(s *subscriber, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingOverflow > 0 {
		notice := Event{Topic: s.topic, Type: TypeOverflow, Dropped: s.pendingOverflow, CreatedAt: time.Now()}
		select {
		case s.ch <- notice:
			s.pendingOverflow = 0
		default:
			// still full; fall through and let this publish count as another drop too
		}
	}

	select {
	case s.ch <- ev:
	default:
		s.pendingOverflow++
	}
}

// SubscriberCount reports how many observers are currently on topic, not
// counting global subscribers.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
