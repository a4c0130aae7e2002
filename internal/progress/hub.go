// internal/progress/hub.go
package progress

import (
	"log/slog"
	"sync"

	"github.com/antolu/haochen.lu-sub001/pkg/schema"
)

// subscriberBuffer bounds how far a slow consumer may lag before it is
// dropped. Encode matrices emit at most a few dozen events per upload.
const subscriberBuffer = 32

// Subscriber receives progress events for one upload id. Events stops
// delivering once the subscriber has been removed from the hub.
type Subscriber struct {
	events chan schema.ProgressEvent
}

// Events returns the subscriber's delivery channel. The channel is
// closed when the subscriber is unsubscribed or dropped.
func (s *Subscriber) Events() <-chan schema.ProgressEvent {
	return s.events
}

// Hub fans progress events out to live subscribers keyed by upload id.
// Delivery is best-effort: a subscriber that cannot keep up is removed
// without affecting the others, and an upload's registry entry is
// garbage-collected as soon as its subscriber set becomes empty.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscriber]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber for the upload id. Multiple
// subscribers per id are supported.
func (h *Hub) Subscribe(uploadID string) *Subscriber {
	sub := &Subscriber{events: make(chan schema.ProgressEvent, subscriberBuffer)}

	h.mu.Lock()
	set, ok := h.subs[uploadID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[uploadID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Removing a
// subscriber twice is a no-op.
func (h *Hub) Unsubscribe(uploadID string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(uploadID, sub)
}

// Publish delivers a progress event to every live subscriber of the
// upload id. A subscriber with a full buffer is dropped; publishing to
// an id with no subscribers is a no-op.
func (h *Hub) Publish(uploadID, stage string, pct int) {
	event := schema.ProgressEvent{Type: "progress", Stage: stage, Progress: pct}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[uploadID] {
		select {
		case sub.events <- event:
		default:
			h.logger.Warn("dropping slow progress subscriber", "upload_id", uploadID)
			h.remove(uploadID, sub)
		}
	}
}

// SubscriberCount reports how many subscribers are live for an upload.
func (h *Hub) SubscriberCount(uploadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[uploadID])
}

// remove must be called with h.mu held.
func (h *Hub) remove(uploadID string, sub *Subscriber) {
	set, ok := h.subs[uploadID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.events)
	if len(set) == 0 {
		delete(h.subs, uploadID)
	}
}
