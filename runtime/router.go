package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/types"
)

// EnvelopeKind tags the delivery envelopes exchanged over the router. All of
// these kinds are "sequential": per subscriber they are handled in strict
// publish order.
type EnvelopeKind string

const (
	// EnvelopeStart seeds a run with the task message.
	EnvelopeStart EnvelopeKind = "start"
	// EnvelopeRequest asks one participant to produce a turn.
	EnvelopeRequest EnvelopeKind = "request"
	// EnvelopeResponse carries a participant's turn back to the group.
	EnvelopeResponse EnvelopeKind = "response"
	// EnvelopeReset clears per-participant state between runs.
	EnvelopeReset EnvelopeKind = "reset"
	// EnvelopeTermination announces that the run has ended.
	EnvelopeTermination EnvelopeKind = "termination"
)

// Envelope is one delivery unit on the fabric.
type Envelope struct {
	Topic   string
	Kind    EnvelopeKind
	Sender  string
	Message types.Message
	// Err carries a participant failure back to the manager so the run
	// terminates observably instead of hanging.
	Err string
}

// Handler consumes envelopes delivered to a subscriber. A subscriber's
// handler is invoked from a single goroutine, one envelope at a time, in
// publish order.
type Handler func(ctx context.Context, env Envelope)

// subscriber is one addressable unit with a single mailbox. Routing a
// subscriber's topics through one mailbox preserves publish order across
// topics, which per-topic queues would not.
type subscriber struct {
	id      string
	handler Handler
	mailbox chan Envelope
	fifo    *FIFOLock
	done    chan struct{}
}

// Router is the addressable publish/subscribe fabric. Delivery is
// at-least-once and, per subscriber, in publish order: concurrent publishers
// are serialized through the subscriber's FIFO lock, so enqueue order equals
// the lock's acquire order.
type Router struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	topics      map[string][]string // topic -> subscriber ids, subscribe order
	buffer      int
	closed      bool
	wg          sync.WaitGroup
	logger      *zap.Logger
}

// NewRouter creates a new router. Each subscriber gets a mailbox buffered to
// the given size; zero means a sensible default.
func NewRouter(buffer int, logger *zap.Logger) *Router {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		subscribers: make(map[string]*subscriber),
		topics:      make(map[string][]string),
		buffer:      buffer,
		logger:      logger.With(zap.String("component", "topic_router")),
	}
}

// Register creates the addressable unit id and starts its delivery loop.
// The handler runs on a dedicated goroutine until Close.
func (r *Router) Register(ctx context.Context, id string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return types.NewError(types.ErrDispatch, "router is closed")
	}
	if _, ok := r.subscribers[id]; ok {
		return types.NewErrorf(types.ErrDispatch, "subscriber already registered: %s", id)
	}

	sub := &subscriber{
		id:      id,
		handler: handler,
		mailbox: make(chan Envelope, r.buffer),
		fifo:    NewFIFOLock(),
		done:    make(chan struct{}),
	}
	r.subscribers[id] = sub

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case env := <-sub.mailbox:
				sub.handler(ctx, env)
			case <-sub.done:
				// Drain what was already enqueued before shutdown.
				for {
					select {
					case env := <-sub.mailbox:
						sub.handler(ctx, env)
					default:
						return
					}
				}
			}
		}
	}()
	return nil
}

// Subscribe routes envelopes published on topic to the registered
// subscriber id.
func (r *Router) Subscribe(topic, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[id]; !ok {
		return types.NewErrorf(types.ErrDispatch, "unknown subscriber: %s", id)
	}
	for _, existing := range r.topics[topic] {
		if existing == id {
			return nil
		}
	}
	r.topics[topic] = append(r.topics[topic], id)
	return nil
}

// Publish delivers the envelope to every subscriber of its topic. Delivery
// to a full mailbox blocks (preserving order) until space frees or ctx is
// done. Publishing to a topic without subscribers is a dispatch error.
func (r *Router) Publish(ctx context.Context, env Envelope) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return types.NewError(types.ErrDispatch, "router is closed")
	}
	ids := r.topics[env.Topic]
	subs := make([]*subscriber, 0, len(ids))
	for _, id := range ids {
		if sub, ok := r.subscribers[id]; ok {
			subs = append(subs, sub)
		}
	}
	r.mu.RUnlock()

	if len(subs) == 0 {
		return types.NewErrorf(types.ErrDispatch, "no subscribers for topic %s", env.Topic)
	}

	for _, sub := range subs {
		if err := sub.fifo.Acquire(ctx); err != nil {
			return types.WrapError(types.ErrDispatch, "publish cancelled", err)
		}
		select {
		case sub.mailbox <- env:
			sub.fifo.Release()
		case <-ctx.Done():
			sub.fifo.Release()
			return types.WrapError(types.ErrDispatch, "publish cancelled", ctx.Err())
		}
	}
	return nil
}

// Close stops all delivery loops after draining already-enqueued envelopes.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, sub := range r.subscribers {
		close(sub.done)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
