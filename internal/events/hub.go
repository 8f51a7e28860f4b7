// Package events multicasts job state-change events inside the daemon.
// The hub fans published events out to in-process subscribers in order and
// wakes long-poll waiters so the IPC gateway can stream the persisted event
// log to clients without busy-waiting.
package events

import (
	"context"
	"log/slog"
	"sync"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
)

// Subscription receives events in the order they were published. A
// subscriber that falls behind its buffer has its oldest pending events
// dropped rather than blocking publishers.
type Subscription struct {
	ch     chan queue.Event
	cancel func()
	once   sync.Once
}

// C returns the event channel.
func (s *Subscription) C() <-chan queue.Event {
	return s.ch
}

// Close tears down the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Hub multicasts events and tracks the latest persisted sequence number.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]*Subscription
	nextID  int
	lastSeq int64
	wake    chan struct{}
	logger  *slog.Logger
}

// NewHub creates a hub. The initial sequence seeds long-poll waiters after
// a daemon restart so clients never wait on events that already exist.
func NewHub(initialSeq int64, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		subs:    make(map[int]*Subscription),
		lastSeq: initialSeq,
		wake:    make(chan struct{}),
		logger:  logging.NewComponentLogger(logger, "events"),
	}
}

// Subscribe registers a subscriber with the given channel buffer.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &Subscription{ch: make(chan queue.Event, buffer)}
	sub.cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	h.subs[id] = sub
	return sub
}

// Publish delivers an event to every subscriber and wakes long-poll
// waiters.
func (h *Hub) Publish(event queue.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if event.Seq > h.lastSeq {
		h.lastSeq = event.Seq
	}
	for _, sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			// Drop the oldest pending event to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
				h.logger.Warn("subscriber dropped event",
					logging.Int64("seq", event.Seq),
					logging.String(logging.FieldJobID, event.JobID))
			}
		}
	}

	close(h.wake)
	h.wake = make(chan struct{})
}

// LastSeq returns the most recent published sequence number.
func (h *Hub) LastSeq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeq
}

// Wait blocks until an event with a sequence greater than after has been
// published or the context ends. It returns immediately when such an event
// already exists.
func (h *Hub) Wait(ctx context.Context, after int64) error {
	for {
		h.mu.Lock()
		if h.lastSeq > after {
			h.mu.Unlock()
			return nil
		}
		wake := h.wake
		h.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
