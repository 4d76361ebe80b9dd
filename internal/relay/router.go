package relay

import (
	"log/slog"

	"github.com/beamlink/beamcast/internal/protocol"
)

// Router forwards signaling envelopes between members of a room. Like the
// registry it runs only on the hub goroutine.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// serverReserved are envelope types only the relay itself may originate.
// A client sending one is forging relay control traffic: a fake
// BroadcastDisconnect would tear every member's session down, a fake
// StreamResult would bypass the host-only streaming gate.
var serverReserved = map[string]struct{}{
	protocol.MsgReceivePlayerID:     {},
	protocol.MsgJoinBroadcastResult: {},
	protocol.MsgBroadcastFatalError: {},
	protocol.MsgBroadcastDisconnect: {},
	protocol.MsgStreamResult:        {},
	protocol.MsgRequestOffer:        {},
}

// Route forwards an envelope from a client. A set targetId means unicast to
// that one client if it is connected and shares the sender's room; otherwise
// the envelope is copied to every other room member. fromId is stamped
// server-side on every forwarded copy so receivers can address replies.
// Server-reserved types are never relayed on a client's behalf.
func (rt *Router) Route(from *Session, env *protocol.Envelope) {
	if _, reserved := serverReserved[env.ID]; reserved {
		slog.Warn("dropping client envelope of server-reserved type", "client", from.ID, "type", env.ID)
		return
	}

	if from.RoomID == "" {
		slog.Warn("dropping envelope from client outside any room", "client", from.ID, "type", env.ID)
		return
	}

	env.FromID = from.ID

	if env.TargetID != "" {
		target := rt.registry.Session(env.TargetID)
		if target == nil || target.RoomID != from.RoomID {
			slog.Warn("dropping envelope for unknown or out-of-room target",
				"client", from.ID, "target", env.TargetID, "type", env.ID)
			return
		}
		target.deliver(env)
		return
	}

	room := rt.registry.Room(from.RoomID)
	if room == nil {
		return
	}
	for _, m := range room.Members {
		if m != from {
			m.deliver(env)
		}
	}
}

// RelayStream fans one streamed frame out to every other member of the
// sender's room as a StreamResult. Only the room's host may originate
// streaming data; frames from other senders are dropped.
func (rt *Router) RelayStream(from *Session, env *protocol.Envelope) {
	room := rt.registry.Room(from.RoomID)
	if room == nil || !from.IsOwner {
		slog.Warn("dropping stream frame from non-host sender", "client", from.ID)
		return
	}

	for _, m := range room.Members {
		if m == from {
			continue
		}
		m.deliver(&protocol.Envelope{
			ID:     protocol.MsgStreamResult,
			Data:   env.Data,
			FromID: from.ID,
		})
	}
}
