package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/notify"
	"github.com/c360/schemaregistry/testutil"
)

func dial(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages until one of type msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readJSON(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message", msgType)
	return nil
}

func waitSubscribers(t *testing.T, env *testEnv, channel string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.hub.SubscriberCounts()[channel] == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketWelcomeAndPing(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env, "")

	welcome := readJSON(t, conn)
	assert.Equal(t, msgConnectionEstablished, welcome["type"])
	assert.Equal(t, notify.ChannelSchemaUpdates, welcome["channel"])
	assert.Equal(t, "Connected to schema_updates channel", welcome["message"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	pong := readJSON(t, conn)
	assert.Equal(t, msgPong, pong["type"])
	assert.NotEmpty(t, pong["timestamp"])
}

func TestWebSocketReceivesSchemaEvents(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env, "?channels=schema_updates,compatibility_alerts")
	readJSON(t, conn)
	readJSON(t, conn)
	waitSubscribers(t, env, notify.ChannelSchemaUpdates, 1)
	waitSubscribers(t, env, notify.ChannelCompatibilityAlerts, 1)

	env.do(t, http.MethodPost, "/schema/orders", testutil.OrdersV1())
	created := readUntil(t, conn, notify.TypeSchemaUpdate)
	assert.Equal(t, "orders", created["schema_id"])
	assert.Equal(t, notify.ActionCreated, created["action"])

	env.do(t, http.MethodPost, "/schema/orders", testutil.OrdersV1_1())
	updated := readUntil(t, conn, notify.TypeSchemaUpdate)
	assert.Equal(t, notify.ActionUpdated, updated["action"])
	alert := readUntil(t, conn, notify.TypeCompatibilityAlert)
	assert.Equal(t, "1.0.0", alert["old_version"])
	assert.Equal(t, "1.1.0", alert["new_version"])
	assert.Equal(t, notify.SeverityInfo, alert["severity"])
}

func TestWebSocketSubscribeChangesChannels(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env, "")
	readJSON(t, conn)
	waitSubscribers(t, env, notify.ChannelSchemaUpdates, 1)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":     "subscribe",
		"channels": []string{notify.ChannelSystemEvents},
	}))
	confirmed := readUntil(t, conn, msgSubscriptionConfirmed)
	assert.Equal(t, []any{notify.ChannelSystemEvents}, confirmed["channels"])
	assert.Equal(t, 0, env.hub.SubscriberCounts()[notify.ChannelSchemaUpdates])
	assert.Equal(t, 1, env.hub.SubscriberCounts()[notify.ChannelSystemEvents])

	require.True(t, env.hub.Publish(notify.NewSystemEvent("maintenance", map[string]any{"window": "02:00"})))
	ev := readUntil(t, conn, notify.TypeSystemEvent)
	assert.Equal(t, "maintenance", ev["event_type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "channels": []string{"bogus"}}))
	errMsg := readUntil(t, conn, msgError)
	assert.Contains(t, errMsg["message"], "bogus")
	assert.Equal(t, 1, env.hub.SubscriberCounts()[notify.ChannelSystemEvents])
}

func TestWebSocketInvalidChannelClosed(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env, "?channels=nope")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, CloseInvalidChannel), "got %v", err)
}

func TestWebSocketDisconnectDetaches(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env, "")
	readJSON(t, conn)
	waitSubscribers(t, env, notify.ChannelSchemaUpdates, 1)
	assert.Equal(t, 1, env.server.ClientCount())

	require.NoError(t, conn.Close())
	waitSubscribers(t, env, notify.ChannelSchemaUpdates, 0)
	require.Eventually(t, func() bool { return env.server.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopClosesWebSocketClients(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env, "")
	readJSON(t, conn)
	waitSubscribers(t, env, notify.ChannelSchemaUpdates, 1)

	require.NoError(t, env.server.Stop(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	waitSubscribers(t, env, notify.ChannelSchemaUpdates, 0)
}
