package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/schemaregistry/notify"
)

// Websocket timings and close codes.
const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second

	// CloseInvalidChannel rejects a connection that names an unknown channel.
	CloseInvalidChannel = 4004
)

// Client message types.
const (
	msgPing      = "ping"
	msgPong      = "pong"
	msgSubscribe = "subscribe"

	msgConnectionEstablished = "connection_established"
	msgSubscriptionConfirmed = "subscription_confirmed"
	msgError                 = "error"
)

// clientMessage is a control message sent by a websocket client.
type clientMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

// wsClient is a websocket connection subscribed to one or more hub channels.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	server *Server

	writeMutex sync.Mutex
	closeOnce  sync.Once
	closed     atomic.Bool
	done       chan struct{}

	chMu     sync.Mutex
	channels map[string]struct{}
}

var _ notify.Subscriber = (*wsClient)(nil)

func (c *wsClient) ID() string { return c.id }

// Deliver writes ev to the connection. It runs on the hub's dispatch goroutine.
func (c *wsClient) Deliver(ctx context.Context, ev notify.Event) error {
	if c.closed.Load() {
		return fmt.Errorf("websocket client %s closed", c.id)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return c.write(websocket.TextMessage, data, deadline)
}

// Close closes the connection. The read loop then detaches the client.
func (c *wsClient) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.Close()
	})
	return nil
}

// shutdown sends a going-away close frame and closes the connection.
func (c *wsClient) shutdown() {
	if c.closed.Load() {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.write(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.Close()
}

func (c *wsClient) write(messageType int, data []byte, deadline time.Time) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsClient) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data, time.Now().Add(wsWriteTimeout))
}

// subscribe replaces the client's channel set.
func (c *wsClient) subscribe(channels []string) error {
	hub := c.server.hub

	c.chMu.Lock()
	defer c.chMu.Unlock()

	want := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		want[ch] = struct{}{}
	}
	for ch := range want {
		if _, ok := c.channels[ch]; ok {
			continue
		}
		if err := hub.Attach(ch, c); err != nil {
			return err
		}
		c.channels[ch] = struct{}{}
	}
	for ch := range c.channels {
		if _, ok := want[ch]; !ok {
			hub.Detach(ch, c.id)
			delete(c.channels, ch)
		}
	}
	return nil
}

func (c *wsClient) subscribed() []string {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	out := make([]string, 0, len(c.channels))
	for _, ch := range notify.Channels() {
		if _, ok := c.channels[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (c *wsClient) detachAll() {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	for ch := range c.channels {
		c.server.hub.Detach(ch, c.id)
		delete(c.channels, ch)
	}
}

// parseChannels reads ?channels=a,b, defaulting to schema updates.
func parseChannels(r *http.Request) ([]string, error) {
	raw := r.URL.Query().Get("channels")
	if raw == "" {
		return []string{notify.ChannelSchemaUpdates}, nil
	}
	var channels []string
	for _, ch := range strings.Split(raw, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if err := validChannels([]string{ch}); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return []string{notify.ChannelSchemaUpdates}, nil
	}
	return channels, nil
}

func validChannels(channels []string) error {
	for _, ch := range channels {
		if !notify.ValidChannel(ch) {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	channels, chErr := parseChannels(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	if chErr != nil {
		msg := websocket.FormatCloseMessage(CloseInvalidChannel, "Invalid channel")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	client := &wsClient{
		id:       uuid.NewString(),
		conn:     conn,
		server:   s,
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	if !s.addClient(client) {
		client.shutdown()
		return
	}
	defer s.removeWebSocketClient(client)

	// Welcome frames go out before the client starts receiving events.
	for _, ch := range channels {
		if err := client.sendJSON(map[string]any{
			"type":    msgConnectionEstablished,
			"channel": ch,
			"message": fmt.Sprintf("Connected to %s channel", ch),
		}); err != nil {
			return
		}
	}
	if err := client.subscribe(channels); err != nil {
		s.logger.Warn("websocket subscribe failed", "client", client.id, "error", err)
		return
	}
	s.logger.Debug("websocket client connected", "client", client.id, "channels", channels)

	go client.keepAlive()
	s.readLoop(client)
}

func (s *Server) removeWebSocketClient(c *wsClient) {
	c.detachAll()
	_ = c.Close()
	s.removeClient(c)
	s.logger.Debug("websocket client disconnected", "client", c.id)
}

// readLoop handles client control messages until the connection fails.
func (s *Server) readLoop(c *wsClient) {
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Invalid message, ignore
			continue
		}

		switch msg.Type {
		case msgPing:
			err = c.sendJSON(map[string]any{
				"type":      msgPong,
				"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			})
		case msgSubscribe:
			err = s.handleSubscribe(c, msg.Channels)
		default:
			// Unknown message type, ignore
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) handleSubscribe(c *wsClient, channels []string) error {
	if err := validChannels(channels); err != nil || len(channels) == 0 {
		message := "subscribe requires at least one channel"
		if err != nil {
			message = err.Error()
		}
		return c.sendJSON(map[string]any{"type": msgError, "message": message})
	}
	if err := c.subscribe(channels); err != nil {
		return c.sendJSON(map[string]any{"type": msgError, "message": err.Error()})
	}
	return c.sendJSON(map[string]any{
		"type":     msgSubscriptionConfirmed,
		"channels": c.subscribed(),
	})
}

// keepAlive pings the client until the connection closes.
func (c *wsClient) keepAlive() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
