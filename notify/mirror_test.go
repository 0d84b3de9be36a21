package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/testutil"
)

func TestMirrorPublishesEveryChannel(t *testing.T) {
	h := startHub(t)
	pub := testutil.NewRecordingPublisher()
	m := NewMirror(pub, nil)
	require.NoError(t, m.AttachAll(h))

	h.Publish(NewSchemaUpdate("orders", "1.0.0", ActionCreated, nil))
	h.Publish(NewCompatibilityAlert("orders", "1.0.0", "1.1.0", nil))
	h.Publish(NewSystemEvent("store_unhealthy", map[string]any{"backend": "nats"}))

	assert.Eventually(t, func() bool { return m.Published() == 3 }, time.Second, 10*time.Millisecond)

	msgs := pub.Messages("schemaregistry.events.system_events")
	require.Len(t, msgs, 1)

	var ev Event
	require.NoError(t, json.Unmarshal(msgs[0], &ev))
	assert.Equal(t, TypeSystemEvent, ev.Type)
	assert.Equal(t, "store_unhealthy", ev.Payload.(map[string]any)["event_type"])

	assert.Len(t, pub.Messages(Subject(ChannelSchemaUpdates)), 1)
	assert.Len(t, pub.Messages(Subject(ChannelCompatibilityAlerts)), 1)
}

func TestMirrorSurvivesPublishFailure(t *testing.T) {
	h := startHub(t)
	pub := testutil.NewRecordingPublisher()
	pub.FailWith(stderrors.New("nats: connection closed"))
	m := NewMirror(pub, nil)
	require.NoError(t, h.Attach(ChannelSystemEvents, m))

	h.Publish(NewSystemEvent("a", nil))
	assert.Eventually(t, func() bool { return m.Failures() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{m.ID()}, h.SubscriberIDs(ChannelSystemEvents))

	pub.FailWith(nil)
	require.NoError(t, m.Deliver(context.Background(), NewSystemEvent("b", nil)))
	assert.Equal(t, int64(1), m.Published())
}
