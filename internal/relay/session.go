package relay

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamlink/beamcast/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Large enough for SDP plus a
	// relayed frame chunk.
	maxMessageSize = 256 * 1024
)

// Session wraps a single websocket connection on the relay side. The relay
// server exclusively owns all session and room state; clients learn about
// each other only through relayed envelopes.
type Session struct {
	// ID is the relay-assigned client id, valid for the connection lifetime.
	ID string

	// RoomID is the broadcast room the client is in, empty until it joins.
	RoomID string

	// IsOwner marks the session that created its room.
	IsOwner bool

	hub  *Hub
	conn *websocket.Conn

	// Send is a buffered channel of outbound envelopes drained by WritePump.
	Send chan *protocol.Envelope
}

// NewSession creates a session for an upgraded connection and assigns its
// client id.
func NewSession(hub *Hub, conn *websocket.Conn) *Session {
	return &Session{
		ID:   uuid.New().String(),
		hub:  hub,
		conn: conn,
		Send: make(chan *protocol.Envelope, 64),
	}
}

// deliver queues an envelope for the session without blocking the hub loop.
// A full buffer means the client is too slow; the envelope is dropped.
func (s *Session) deliver(env *protocol.Envelope) {
	select {
	case s.Send <- env:
	default:
		slog.Warn("dropping envelope, client buffer full", "client", s.ID, "type", env.ID)
	}
}

// ReadPump pumps envelopes from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine, ensuring at
// most one reader per connection.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "client", s.ID, "err", err)
			}
			break
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			// A malformed envelope is logged and dropped; the connection
			// stays up.
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				slog.Warn("dropping malformed envelope", "client", s.ID, "err", err)
				continue
			}
			slog.Warn("envelope decode failed", "client", s.ID, "err", err)
			continue
		}

		s.hub.Inbound <- inbound{sess: s, env: env}
	}
}

// WritePump pumps envelopes from the hub to the websocket connection and
// sends periodic pings.
//
// A goroutine running WritePump is started for each connection, ensuring at
// most one writer per connection.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case env, ok := <-s.Send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteJSON(env); err != nil {
				slog.Warn("websocket write error", "client", s.ID, "err", err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
