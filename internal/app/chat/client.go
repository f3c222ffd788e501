/*
Package chat contains the core logic for ticket chat channels, participant connections and message relay.

This file defines the Client struct, representing an active WebSocket connection. It manages the
connection's lifecycle, its read and write loops (ReadPump and WritePump) and hands inbound text
frames to the participant's Session.
*/
package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ticketchat/internal/pkg/logx"
	"ticketchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client. Text longer than
	// the service limit but under this one is answered with an error event.
	maxFrameSize = 64 << 10

	// capacity of the outbound queue.
	sendBuffer = 256
)

// Client is a gorilla websocket connection acting as a channel Peer.
type Client struct {
	// id uniquely identifies this connection.
	id string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// done is closed when the connection is shut down.
	done chan struct{}

	closeOnce sync.Once
	alive     atomic.Bool

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient wraps an upgraded connection for participantID.
func NewClient(wsConn *websocket.Conn, participantID int64) *Client {
	id := randx.ConnectionID()

	c := &Client{
		id:   id,
		conn: wsConn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		logger: logx.Logger().With().
			Str("connection_id", id).
			Int64("participant_id", participantID).
			Logger(),
	}
	c.alive.Store(true)

	return c
}

// ID implements Peer.
func (c *Client) ID() string {
	return c.id
}

// Alive implements Peer.
func (c *Client) Alive() bool {
	return c.alive.Load()
}

// Deliver implements Peer. It never blocks: a full queue drops the frame.
func (c *Client) Deliver(payload []byte) bool {
	if !c.Alive() {
		return false
	}

	select {
	case <-c.done:
		return false
	case c.send <- payload:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return false
	}
}

// Close implements Peer. It sends a close frame with code and reason and tears the
// connection down. Only the first call has an effect.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.alive.Store(false)

		c.logger.Info().
			Int("close_code", code).
			Str("reason", reason).
			Msg("Closing connection.")

		closeMessage := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to send close frame.")
		}

		close(c.done)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	})
}

// Run drives the connection for session until it disconnects: it starts WritePump,
// runs ReadPump on the calling goroutine and detaches the session afterwards.
func (c *Client) Run(ctx context.Context, session *Session) {
	go c.WritePump()

	c.ReadPump(ctx, session)
}

// ReadPump reads text frames and relays them through session. It returns when the
// connection fails or is closed.
func (c *Client) ReadPump(ctx context.Context, session *Session) {
	defer func() {
		session.Detach()
		c.Close(CloseNormal, "")
	}()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn().Int("message_type", messageType).Msg("Client sent non-text frame, ignored")
			continue
		}

		if _, err := session.Relay(ctx, string(message)); err != nil {
			if IsTerminal(err) {
				c.Close(CloseStatus(err))
				return
			}
			c.SendError(err)
		}
	}
}

// WritePump writes queued frames and periodic pings until the connection is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			if !c.write(websocket.TextMessage, message) {
				c.Close(CloseInternalError, "Write failed")
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				c.Close(CloseGoingAway, "Ping failed")
				return
			}
		}
	}
}

// write sends one frame. WritePump is the only caller so writes never overlap.
func (c *Client) write(messageType int, payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// SendError queues an ErrorEvent describing err.
func (c *Client) SendError(err error) {
	if !c.Deliver(encodeError(err)) {
		c.logger.Error().Err(err).Msg("Failed to queue error message")
	}
}
