// Package gateway holds the long-lived websocket connections that push
// render lifecycle events to clients as they happen. Each connection
// subscribes to its user's broker channel and forwards messages as-is;
// delivery is at-most-once and a reconnecting client recovers state from
// the status API, not from replay.
package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"renderspace/internal/broker"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	sendBuffer     = 16
)

// handshake is sent immediately after the upgrade so the client knows
// the subscription is live.
var handshake = []byte(`{"event":"connected","message":"subscribed to render events"}`)

// Gateway upgrades status-stream requests and bridges them to the
// event broker.
type Gateway struct {
	broker   *broker.Broker
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New creates a gateway over the given broker.
func New(b *broker.Broker, logger zerolog.Logger) *Gateway {
	return &Gateway{
		broker: b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Auth happens in middleware before the upgrade; the
				// token, not the origin, gates access.
				return true
			},
		},
	}
}

// ServeUser upgrades the request and streams the user's events until the
// client disconnects.
func (g *Gateway) ServeUser(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error().Err(err).Int64("user_id", userID).Msg("gateway: upgrade failed")
		return
	}

	sub := g.broker.Subscribe(r.Context(), userID)
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: g.logger.With().Int64("user_id", userID).Logger(),
	}

	g.logger.Info().Int64("user_id", userID).Msg("gateway: client connected")

	c.send <- handshake

	go c.writePump()
	go c.forward(sub)
	go c.readPump(sub)
}

// client is one connected websocket. All writes go through the send
// channel so a single goroutine owns the connection's write side.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger
}

// forward moves broker messages onto the send channel. A client that
// cannot keep up loses messages rather than blocking the subscription.
// It owns the send channel and closes it once the subscription drains,
// which in turn shuts down the write pump.
func (c *client) forward(sub *broker.Subscription) {
	defer close(c.send)
	for msg := range sub.Messages() {
		select {
		case c.send <- []byte(msg.Payload):
		default:
			c.logger.Warn().Msg("gateway: send buffer full, dropping event")
		}
	}
}

// readPump drains and discards client frames, keeping the pong handler
// fed. The connection and subscription are torn down when it exits.
func (c *client) readPump(sub *broker.Subscription) {
	defer func() {
		if err := sub.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("gateway: close subscription failed")
		}
		c.conn.Close()
		c.logger.Info().Msg("gateway: client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("gateway: read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn().Err(err).Msg("gateway: write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
