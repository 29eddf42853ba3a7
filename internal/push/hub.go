package push

import (
	"context"
	"sync"

	"coverscope/internal/scanjob"
)

const subscriberBuffer = 32

// Hub fans scan status updates out to per-project subscribers. Publishes for
// one project arrive in order; a slow subscriber is dropped rather than
// allowed to stall the publisher.
type Hub struct {
	mu      sync.RWMutex
	nextSub int
	subs    map[string]map[int]chan scanjob.StatusUpdate
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan scanjob.StatusUpdate)}
}

// Publish delivers the update to every subscriber of its project.
func (h *Hub) Publish(u scanjob.StatusUpdate) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[u.ProjectID] {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe registers for a project's status updates until ctx is done or
// the returned cancel func is called.
func (h *Hub) Subscribe(ctx context.Context, projectID string) (<-chan scanjob.StatusUpdate, func()) {
	ch := make(chan scanjob.StatusUpdate, subscriberBuffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[int]chan scanjob.StatusUpdate)
	}
	h.subs[projectID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if m := h.subs[projectID]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(h.subs, projectID)
				}
			}
			h.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel
}
