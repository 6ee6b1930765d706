package refresher

import (
	"sync"

	"github.com/mailfleet/tokenstack/dto"
	"github.com/mailfleet/tokenstack/internal/utils"
)

const subscriberBuffer = 64

// ProgressHub fans run progress out to zero or more live observers. Publish
// never blocks: a full or absent subscriber channel simply drops the event,
// so a slow consumer can never stall the engine. Subscribers that attach
// mid-run receive events from that point forward only.
type ProgressHub struct {
	mu          sync.RWMutex
	subscribers map[string]chan dto.ProgressEvent
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[string]chan dto.ProgressEvent),
	}
}

// Subscribe registers a new observer and returns its id and receive channel.
func (h *ProgressHub) Subscribe() (string, <-chan dto.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := utils.GenerateNanoIDWithPrefix("sub", 12)
	ch := make(chan dto.ProgressEvent, subscriberBuffer)
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe detaches an observer. Safe to call more than once; detaching
// has no effect on a run in progress.
func (h *ProgressHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Publish delivers the event to every attached subscriber, best effort.
func (h *ProgressHub) Publish(event dto.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber is not keeping up, drop
		}
	}
}

// SubscriberCount is used by status reporting and tests.
func (h *ProgressHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
