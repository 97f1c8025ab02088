package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Event kinds pushed to SSE clients.
const (
	KindTabIdle = "tabIdle"
	KindStatus  = "status"
	KindImport  = "import"
)

// Event is one SSE message: Kind becomes the SSE event name and Payload the
// data line. TabID scopes the event to a tab; empty means broadcast.
type Event struct {
	Kind    string
	TabID   string
	Payload string
}

// Broker fans out controller events to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. The channel is buffered; slow consumers
// have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// PublishJSON marshals v as the payload of a kind event for tabID.
func (b *Broker) PublishJSON(kind, tabID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("relay marshal event failed", "kind", kind, "error", err)
		return
	}
	b.Publish(Event{Kind: kind, TabID: tabID, Payload: string(data)})
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
