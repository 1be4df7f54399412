package signaling

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Gustiele12/plataform/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	logger    zerolog.Logger
	conn      *websocket.Conn
	serverURL string
	incoming  chan model.Signal
	outgoing  chan model.Signal
	done      chan struct{}
	stopped   chan struct{}
	closed    bool
}

func NewClient(serverURL string, logger *zerolog.Logger) *Client {
	return &Client{
		logger:    logger.With().Str("component", "signaling-client").Logger(),
		serverURL: serverURL,
		incoming:  make(chan model.Signal, 1),
		outgoing:  make(chan model.Signal, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the relay.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads signals from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var sig model.Signal
		if err := c.conn.ReadJSON(&sig); err != nil {
			c.logger.Debug().Err(err).Msg("read loop ended")
			return
		}

		select {
		case c.incoming <- sig:
		case <-c.done:
			return
		}
	}
}

// writePump writes signals to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.stopped)
	}()

	for {
		select {
		case sig := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(&sig); err != nil {
				c.logger.Error().Err(err).Msg("failed to write signal")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a signal for delivery to the relay. Once the connection
// is down the signal is dropped; delivery is fire-and-forget either way.
func (c *Client) Send(sig model.Signal) {
	select {
	case c.outgoing <- sig:
	case <-c.done:
		c.logger.Debug().Str("event", sig.Event).Msg("signal dropped, client closed")
	case <-c.stopped:
		c.logger.Debug().Str("event", sig.Event).Msg("signal dropped, connection down")
	}
}

// Incoming returns the channel of signals received from the relay.
func (c *Client) Incoming() <-chan model.Signal {
	return c.incoming
}

// Close shuts down the WebSocket connection.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true

	close(c.done)
}
