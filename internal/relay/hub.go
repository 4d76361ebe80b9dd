package relay

import (
	"context"
	"log/slog"

	"github.com/beamlink/beamcast/internal/protocol"
)

type inbound struct {
	sess *Session
	env  *protocol.Envelope
}

// Hub is the central brain of the relay server. A single goroutine running
// Run owns all registry and router state; connection pumps talk to it over
// channels, which serializes every mutation of a room's member list.
type Hub struct {
	registry *Registry
	router   *Router

	// Register is the channel for newly connected sessions.
	Register chan *Session

	// Unregister is the channel for disconnecting sessions.
	Unregister chan *Session

	// Inbound carries decoded envelopes from connection read pumps.
	Inbound chan inbound
}

func NewHub() *Hub {
	registry := NewRegistry()
	return &Hub{
		registry:   registry,
		router:     NewRouter(registry),
		Register:   make(chan *Session),
		Unregister: make(chan *Session),
		Inbound:    make(chan inbound, 64),
	}
}

// Run starts the hub's processing loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case sess := <-h.Register:
			h.registry.AddSession(sess)
			slog.Info("client connected", "client", sess.ID)

			// The client learns its relay-assigned id first thing.
			env, _ := protocol.NewEnvelope(protocol.MsgReceivePlayerID, protocol.ReceivePlayerID{ID: sess.ID})
			sess.deliver(env)

		case sess := <-h.Unregister:
			slog.Info("client disconnected", "client", sess.ID)
			h.registry.RemoveSession(sess)
			close(sess.Send)

		case in := <-h.Inbound:
			h.handle(in.sess, in.env)
		}
	}
}

func (h *Hub) handle(sess *Session, env *protocol.Envelope) {
	switch env.ID {
	case protocol.MsgJoinBroadcast:
		var join protocol.JoinBroadcast
		if err := env.DecodePayload(&join); err != nil {
			slog.Warn("dropping malformed join request", "client", sess.ID, "err", err)
			return
		}
		if err := h.registry.Join(sess, join.RoomName); err != nil {
			slog.Warn("join rejected", "client", sess.ID, "err", err)
		}

	case protocol.MsgStream:
		h.router.RelayStream(sess, env)

	default:
		h.router.Route(sess, env)
	}
}
