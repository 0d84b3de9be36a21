// Package notify fans registry events out to subscribers on named channels.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/health"
	"github.com/c360/schemaregistry/metric"
	"github.com/c360/schemaregistry/pkg/worker"
)

// Defaults.
const (
	DefaultQueueSize      = 1024
	DefaultDeliverTimeout = 5 * time.Second
)

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithDeliverTimeout bounds each Deliver call.
func WithDeliverTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.deliverTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records publish, drop and subscriber counts. The registry also
// receives the dispatch pool metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(h *Hub) {
		if registry != nil {
			h.registry = registry
			h.metrics = registry.CoreMetrics()
		}
	}
}

// Hub routes events to the subscribers of their channel. Publish hands the
// event to a single dispatch worker, so subscribers see events in publish
// order and publishers never wait on subscribers. An event reaches only the
// subscribers attached when it was published.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[string]attachment
	published uint64

	pool           *worker.Pool[queued]
	queueSize      int
	deliverTimeout time.Duration
	logger         *slog.Logger
	registry       *metric.MetricsRegistry
	metrics        *metric.Metrics

	runMu   sync.Mutex
	running bool
}

// NewHub creates a Hub. Call Start before publishing.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:           make(map[string]map[string]attachment),
		queueSize:      DefaultQueueSize,
		deliverTimeout: DefaultDeliverTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "notify")

	for _, ch := range Channels() {
		h.subs[ch] = make(map[string]attachment)
	}

	poolOpts := []worker.Option[queued]{
		worker.WithName[queued]("notify"),
		worker.WithLogger[queued](h.logger),
	}
	if h.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[queued](h.registry))
	}
	h.pool = worker.NewPool(1, h.queueSize, h.dispatch, poolOpts...)
	return h
}

// Start starts the dispatcher. It stops when ctx is canceled or Stop is called.
func (h *Hub) Start(ctx context.Context) error {
	h.runMu.Lock()
	defer h.runMu.Unlock()

	if err := h.pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, "Hub", "Start", "start dispatcher")
	}
	h.running = true
	return nil
}

// Stop drains queued events for up to timeout, then closes every subscriber
// that implements io.Closer.
func (h *Hub) Stop(timeout time.Duration) error {
	h.runMu.Lock()
	h.running = false
	h.runMu.Unlock()

	err := h.pool.Stop(timeout)

	h.mu.Lock()
	var closers []io.Closer
	for ch, subs := range h.subs {
		for _, a := range subs {
			if c, ok := a.sub.(io.Closer); ok {
				closers = append(closers, c)
			}
		}
		h.subs[ch] = make(map[string]attachment)
	}
	h.mu.Unlock()

	for _, c := range closers {
		_ = c.Close()
	}

	if err != nil {
		return errors.WrapTransient(err, "Hub", "Stop", "drain dispatch queue")
	}
	return nil
}

// Subscribe returns a channel-backed subscription with a buffer of size
// buffer, or DefaultBufferSize when buffer <= 0.
func (h *Hub) Subscribe(channel string, buffer int) (*Subscription, error) {
	sub := newSubscription(h, channel, buffer)
	if err := h.Attach(channel, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Attach registers sub on channel.
func (h *Hub) Attach(channel string, sub Subscriber) error {
	if !ValidChannel(channel) {
		return errors.WrapInvalid(fmt.Errorf("unknown channel %q: %w", channel, errors.ErrInvalidData),
			"Hub", "Attach", "channel lookup")
	}

	h.mu.Lock()
	h.subs[channel][sub.ID()] = attachment{sub: sub, after: h.published}
	n := len(h.subs[channel])
	h.mu.Unlock()

	h.metrics.RecordSubscribers(channel, n)
	h.logger.Debug("subscriber attached", "channel", channel, "subscriber", sub.ID(), "subscribers", n)
	return nil
}

// Detach removes the subscriber with id from channel. Unknown ids are ignored.
func (h *Hub) Detach(channel, id string) {
	h.mu.Lock()
	subs, ok := h.subs[channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	_, existed := subs[id]
	delete(subs, id)
	n := len(subs)
	h.mu.Unlock()

	if existed {
		h.metrics.RecordSubscribers(channel, n)
		h.logger.Debug("subscriber detached", "channel", channel, "subscriber", id, "subscribers", n)
	}
}

// Publish queues ev for its channel and reports whether it was accepted.
// It never blocks; when the queue is full the event is dropped and logged.
func (h *Hub) Publish(ev Event) bool {
	if !ValidChannel(ev.Channel) {
		h.logger.Warn("event for unknown channel dropped", "channel", ev.Channel, "type", ev.Type)
		return false
	}

	h.mu.Lock()
	h.published++
	seq := h.published
	h.mu.Unlock()

	if err := h.pool.Submit(queued{ev: ev, seq: seq}); err != nil {
		reason := "queue_full"
		if !stderrors.Is(err, worker.ErrQueueFull) {
			reason = "not_running"
		}
		h.metrics.RecordDropped(ev.Channel, reason)
		h.logger.Warn("event dropped", "channel", ev.Channel, "type", ev.Type, "id", ev.ID, "reason", reason)
		return false
	}

	h.metrics.RecordPublished(ev.Channel)
	return true
}

// attachment is a subscriber and the publish sequence current when it
// attached. It receives only events with a higher sequence.
type attachment struct {
	sub   Subscriber
	after uint64
}

// queued is an event waiting for dispatch.
type queued struct {
	ev  Event
	seq uint64
}

// dispatch delivers one event to the channel's subscribers that were
// attached when it was published.
func (h *Hub) dispatch(ctx context.Context, q queued) error {
	ev := q.ev
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs[ev.Channel]))
	for _, a := range h.subs[ev.Channel] {
		if a.after < q.seq {
			subs = append(subs, a.sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		deliverCtx, cancel := context.WithTimeout(ctx, h.deliverTimeout)
		err := sub.Deliver(deliverCtx, ev)
		cancel()
		if err != nil {
			h.evict(ev.Channel, sub, err)
		}
	}
	return nil
}

func (h *Hub) evict(channel string, sub Subscriber, cause error) {
	h.logger.Warn("removing failed subscriber", "channel", channel, "subscriber", sub.ID(), "error", cause)
	h.metrics.RecordDropped(channel, "subscriber_failed")

	h.Detach(channel, sub.ID())
	if c, ok := sub.(io.Closer); ok {
		if err := c.Close(); err != nil {
			h.logger.Debug("close of failed subscriber", "subscriber", sub.ID(), "error", err)
		}
	}
}

// SubscriberCounts returns the number of subscribers per channel.
func (h *Hub) SubscriberCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int, len(h.subs))
	for ch, subs := range h.subs {
		counts[ch] = len(subs)
	}
	return counts
}

// SubscriberIDs returns the ids attached to channel, sorted.
func (h *Hub) SubscriberIDs(channel string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.subs[channel]))
	for id := range h.subs[channel] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HealthCheck reports dispatcher state and queue usage.
func (h *Hub) HealthCheck() health.Status {
	h.runMu.Lock()
	running := h.running
	h.runMu.Unlock()

	stats := h.pool.Stats()
	var status health.Status
	switch {
	case !running:
		status = health.NewDegraded("notify", "dispatcher not running")
	case stats.QueueDepth >= stats.QueueSize:
		status = health.NewDegraded("notify", "dispatch queue full")
	default:
		status = health.NewHealthy("notify", "dispatcher running")
	}

	return status.
		WithDetail("subscribers", h.SubscriberCounts()).
		WithDetail("queue_depth", stats.QueueDepth).
		WithDetail("dropped", stats.Dropped)
}
