package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/schemaregistry/schema"
)

// Channels.
const (
	ChannelSchemaUpdates       = "schema_updates"
	ChannelCompatibilityAlerts = "compatibility_alerts"
	ChannelSystemEvents        = "system_events"
)

// Event types.
const (
	TypeSchemaUpdate       = "schema_update"
	TypeCompatibilityAlert = "compatibility_alert"
	TypeSystemEvent        = "system_event"
)

// Schema update actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Alert severities.
const (
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Channels returns every channel name.
func Channels() []string {
	return []string{ChannelSchemaUpdates, ChannelCompatibilityAlerts, ChannelSystemEvents}
}

// ValidChannel reports whether name is a known channel.
func ValidChannel(name string) bool {
	switch name {
	case ChannelSchemaUpdates, ChannelCompatibilityAlerts, ChannelSystemEvents:
		return true
	}
	return false
}

// Event is one notification. On the wire the payload fields sit beside the
// envelope fields in a single JSON object.
type Event struct {
	ID        string
	Type      string
	Channel   string
	Timestamp time.Time
	Payload   any
}

// SchemaUpdate is the payload of a schema_update event. Schema is an empty
// object for deletes.
type SchemaUpdate struct {
	SchemaID string `json:"schema_id"`
	Version  string `json:"version"`
	Action   string `json:"action"`
	Schema   any    `json:"schema"`
}

// CompatibilityAlert is the payload of a compatibility_alert event.
type CompatibilityAlert struct {
	SchemaID        string   `json:"schema_id"`
	OldVersion      string   `json:"old_version"`
	NewVersion      string   `json:"new_version"`
	BreakingChanges []string `json:"breaking_changes"`
	Severity        string   `json:"severity"`
}

// SystemEvent is the payload of a system_event event.
type SystemEvent struct {
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details"`
}

func newEvent(eventType, channel string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewSchemaUpdate builds a schema_update event. doc may be nil.
func NewSchemaUpdate(schemaID, version, action string, doc *schema.Document) Event {
	var body any = struct{}{}
	if doc != nil {
		body = doc
	}
	return newEvent(TypeSchemaUpdate, ChannelSchemaUpdates, SchemaUpdate{
		SchemaID: schemaID,
		Version:  version,
		Action:   action,
		Schema:   body,
	})
}

// NewCompatibilityAlert builds a compatibility_alert event. Severity is
// warning when there are breaking changes, info otherwise.
func NewCompatibilityAlert(schemaID, oldVersion, newVersion string, breaking []string) Event {
	severity := SeverityInfo
	if len(breaking) > 0 {
		severity = SeverityWarning
	}
	if breaking == nil {
		breaking = []string{}
	}
	return newEvent(TypeCompatibilityAlert, ChannelCompatibilityAlerts, CompatibilityAlert{
		SchemaID:        schemaID,
		OldVersion:      oldVersion,
		NewVersion:      newVersion,
		BreakingChanges: breaking,
		Severity:        severity,
	})
}

// NewSystemEvent builds a system_event event.
func NewSystemEvent(eventType string, details map[string]any) Event {
	if details == nil {
		details = map[string]any{}
	}
	return newEvent(TypeSystemEvent, ChannelSystemEvents, SystemEvent{
		EventType: eventType,
		Details:   details,
	})
}

// MarshalJSON flattens the payload into the envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("event payload must encode as an object: %w", err)
		}
	}

	fields["id"] = e.ID
	fields["type"] = e.Type
	fields["channel"] = e.Channel
	fields["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(fields)
}

// UnmarshalJSON reads the envelope fields. Remaining fields become a
// map[string]any Payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	str := func(key string) string {
		s, _ := fields[key].(string)
		delete(fields, key)
		return s
	}

	e.ID = str("id")
	e.Type = str("type")
	e.Channel = str("channel")
	if ts := str("timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("event timestamp: %w", err)
		}
		e.Timestamp = t
	}
	e.Payload = fields
	return nil
}
