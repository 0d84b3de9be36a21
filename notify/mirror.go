package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// SubjectPrefix prefixes mirrored event subjects.
const SubjectPrefix = "schemaregistry.events."

// Subject returns the NATS subject events of channel are mirrored on.
func Subject(channel string) string {
	return SubjectPrefix + channel
}

// Publisher is the slice of natsclient.Client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Mirror re-publishes hub events as JSON on NATS. Publish failures are
// logged and counted but never returned, so the mirror is not evicted while
// NATS is reconnecting.
type Mirror struct {
	id        string
	publisher Publisher
	logger    *slog.Logger
	failures  atomic.Int64
	published atomic.Int64
}

// NewMirror creates a Mirror over publisher.
func NewMirror(publisher Publisher, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		id:        "nats-mirror-" + uuid.NewString(),
		publisher: publisher,
		logger:    logger.With("component", "notify_mirror"),
	}
}

// AttachAll attaches the mirror to every channel of hub.
func (m *Mirror) AttachAll(hub *Hub) error {
	for _, ch := range Channels() {
		if err := hub.Attach(ch, m); err != nil {
			return err
		}
	}
	return nil
}

// ID implements Subscriber.
func (m *Mirror) ID() string { return m.id }

// Deliver implements Subscriber.
func (m *Mirror) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		m.failures.Add(1)
		m.logger.Error("event not encodable", "id", ev.ID, "error", err)
		return nil
	}

	if err := m.publisher.Publish(ctx, Subject(ev.Channel), data); err != nil {
		m.failures.Add(1)
		m.logger.Warn("event mirror publish failed", "subject", Subject(ev.Channel), "id", ev.ID, "error", err)
		return nil
	}
	m.published.Add(1)
	return nil
}

// Failures returns the number of events that could not be mirrored.
func (m *Mirror) Failures() int64 { return m.failures.Load() }

// Published returns the number of events mirrored.
func (m *Mirror) Published() int64 { return m.published.Load() }
