package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Ciphertext plus one wrapped key per recipient adds up.
	sendBuffer     = 256
)

// Client is the middleman between one websocket connection and the rest of
// the system. It owns the two pumps; its Session (if any) lives in the
// registry for the connection's lifetime.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	registry *Registry
	engine   *Engine
	log      *slog.Logger

	// session is nil for anonymous connections. The principal inside is
	// bound once at connect and never replaced (first-wins).
	session *Session
}

func NewClient(conn *websocket.Conn, registry *Registry, engine *Engine, session *Session, log *slog.Logger) *Client {
	c := &Client{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		registry: registry,
		engine:   engine,
		session:  session,
		log:      log,
	}
	if session != nil {
		session.Sink = c
	}
	return c
}

// Push implements Sink. Never blocks: a slow consumer loses the frame
// instead of stalling the fan-out, and recovers via history.
func (c *Client) Push(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// ReadPump pumps inbound frames from the websocket into the engine.
func (c *Client) ReadPump() {
	defer func() {
		// Cleanup: the registry unregister is idempotent, so racing with
		// a forced close is fine.
		if c.session != nil {
			c.registry.Unregister(c.session.Handle)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// Heartbeat logic (Keep-Alive)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket closed unexpectedly", "err", err)
			}
			break
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var frame SendFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.pushError(apperr.New(apperr.KindInvalidArgument, "malformed frame"))
		return
	}
	if frame.Type != FrameSend {
		c.pushError(apperr.Newf(apperr.KindInvalidArgument, "unknown frame type %q", frame.Type))
		return
	}

	// Identity comes from the session binding, never from the frame: an
	// anonymous connection cannot send at all.
	if c.session == nil {
		c.pushError(apperr.New(apperr.KindAccessDenied, "authentication required"))
		return
	}

	msg, err := c.engine.SendMessage(context.Background(), c.session.Principal.UserID, SendRequest{
		ConversationID: frame.ConversationID,
		Ciphertext:     frame.Ciphertext,
		WrappedKeys:    frame.WrappedKeys,
	})
	if err != nil {
		c.pushError(err)
		return
	}

	ack, _ := json.Marshal(AckFrame{
		Type:           FrameAck,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
	c.Push(ack)
}

// pushError reports a failure back to the session that caused it.
func (c *Client) pushError(err error) {
	payload, _ := json.Marshal(ErrorFrame{
		Type:      FrameError,
		Kind:      string(apperr.KindOf(err)),
		Message:   apperr.ClientMessage(err),
		Timestamp: time.Now(),
	})
	c.Push(payload)
}

// WritePump pumps frames from the send channel to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Drain queued frames into the same write to save syscalls
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

var _ Sink = (*Client)(nil)
