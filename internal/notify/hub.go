package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrHubClosed indicates a publish or subscribe after shutdown.
	ErrHubClosed = errors.New("notification hub closed")
	// ErrHubNotRunning indicates the hub was used before Start.
	ErrHubNotRunning = errors.New("notification hub not running")
)

// subscriberBuffer bounds the per-subscriber queue; a subscriber that falls
// this far behind starts losing events, which is acceptable because the
// reconciliation poller re-establishes ground truth.
const subscriberBuffer = 16

// Subscription is one consumer's view onto the fabric. Events arrive on C
// until Cancel is called or the hub shuts down, at which point C is closed.
type Subscription struct {
	// C delivers validated events, best-effort.
	C <-chan Event

	id        string
	requestID string
	ch        chan Event
	cancel    func()
	once      sync.Once
}

// Cancel detaches the subscription from the hub.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Hub is the shared, long-lived publish/subscribe channel of the matching
// engine. One logical pool channel is reused across all requests; per-request
// subscriptions exist for students awaiting acceptance of a specific id.
// The hub is constructed and injected explicitly and runs a single
// coordinating goroutine between Start and Shutdown.
type Hub struct {
	logger *slog.Logger

	publishCh     chan Event
	subscribeCh   chan *Subscription
	unsubscribeCh chan string

	mu      sync.RWMutex
	running bool
	done    chan struct{}
}

// NewHub constructs an idle hub; call Start before publishing.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:        logger,
		publishCh:     make(chan Event, 256),
		subscribeCh:   make(chan *Subscription, 32),
		unsubscribeCh: make(chan string, 32),
		done:          make(chan struct{}),
	}
}

// Start launches the coordinating goroutine. The hub stops when ctx is
// cancelled or Shutdown is called.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return errors.New("notification hub already running")
	}
	h.running = true
	go h.run(ctx)
	return nil
}

// Shutdown stops the hub and closes every subscription channel.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.done)
}

// Publish fans an event out to the pool and to the matching per-request
// subscribers. Invalid events are rejected; a full hub queue drops the event
// rather than blocking the caller.
func (h *Hub) Publish(event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.publishCh <- event:
		return nil
	case <-h.done:
		return ErrHubClosed
	default:
		h.logger.Warn("notification hub queue full, dropping event",
			"kind", event.Kind, "requestId", event.RequestID)
		return nil
	}
}

// SubscribePool attaches a consumer to the shared pending-pool channel,
// which carries every event kind so tutor views can both surface new
// requests and drop claimed or withdrawn ones.
func (h *Hub) SubscribePool() (*Subscription, error) {
	return h.subscribe("")
}

// SubscribeRequest attaches a consumer to events for a single request id.
func (h *Hub) SubscribeRequest(requestID string) (*Subscription, error) {
	if requestID == "" {
		return nil, errors.New("request id must be provided")
	}
	return h.subscribe(requestID)
}

func (h *Hub) subscribe(requestID string) (*Subscription, error) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return nil, ErrHubNotRunning
	}

	sub := &Subscription{
		id:        uuid.NewString(),
		requestID: requestID,
		ch:        make(chan Event, subscriberBuffer),
	}
	sub.C = sub.ch
	sub.cancel = func() {
		select {
		case h.unsubscribeCh <- sub.id:
		case <-h.done:
		}
	}

	select {
	case h.subscribeCh <- sub:
		return sub, nil
	case <-h.done:
		return nil, ErrHubClosed
	}
}

func (h *Hub) run(ctx context.Context) {
	subscribers := make(map[string]*Subscription)

	defer func() {
		for _, sub := range subscribers {
			close(sub.ch)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-h.done:
			return
		case sub := <-h.subscribeCh:
			subscribers[sub.id] = sub
		case id := <-h.unsubscribeCh:
			if sub, ok := subscribers[id]; ok {
				delete(subscribers, id)
				close(sub.ch)
			}
		case event := <-h.publishCh:
			for _, sub := range subscribers {
				if sub.requestID != "" && sub.requestID != event.RequestID {
					continue
				}
				select {
				case sub.ch <- event:
				default:
					// Slow consumer: drop, the poller is the backstop.
					h.logger.Warn("subscriber queue full, dropping event",
						"kind", event.Kind, "requestId", event.RequestID)
				}
			}
		}
	}
}
