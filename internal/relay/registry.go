package relay

import (
	"errors"
	"log/slog"

	"github.com/beamlink/beamcast/internal/protocol"
)

var ErrEmptyRoomID = errors.New("room id must not be empty")

// Room is one broadcast room. The first client to request a room id becomes
// its owner; the owner is always a member and every room has exactly one.
type Room struct {
	ID      string
	OwnerID string

	// Members in join order; the owner is always Members[0].
	Members []*Session
}

// Registry tracks connected sessions, broadcast rooms, and membership. It is
// not safe for concurrent use: all calls happen on the hub goroutine.
type Registry struct {
	rooms    map[string]*Room
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		sessions: make(map[string]*Session),
	}
}

// AddSession records a newly connected client.
func (r *Registry) AddSession(sess *Session) {
	r.sessions[sess.ID] = sess
}

// Session returns the live session for a client id, or nil.
func (r *Registry) Session(id string) *Session {
	return r.sessions[id]
}

// Room returns the room for an id, or nil.
func (r *Registry) Room(id string) *Room {
	return r.rooms[id]
}

// Join places a session in the named room, creating it if needed. The first
// joiner becomes the room's owner (Host); later joiners become Viewers and
// the owner is told to open negotiation with them. The result is reported to
// the joiner as a JoinBroadcastResult or BroadcastFatalError envelope.
func (r *Registry) Join(sess *Session, roomID string) error {
	if roomID == "" {
		env, _ := protocol.NewEnvelope(protocol.MsgBroadcastFatalError, protocol.FatalError{
			Message: "Broadcast name can't be empty",
		})
		sess.deliver(env)
		return ErrEmptyRoomID
	}

	room, exists := r.rooms[roomID]
	isHost := !exists
	if exists {
		slog.Info("joining broadcast", "room", roomID, "client", sess.ID)
	} else {
		slog.Info("hosting broadcast", "room", roomID, "client", sess.ID)
		room = &Room{ID: roomID, OwnerID: sess.ID}
		r.rooms[roomID] = room
	}

	sess.RoomID = roomID
	sess.IsOwner = isHost
	room.Members = append(room.Members, sess)

	result, _ := protocol.NewEnvelope(protocol.MsgJoinBroadcastResult, protocol.JoinBroadcastResult{
		BroadcastID: roomID,
		IsHost:      isHost,
		Message:     "Broadcast joined successfully",
	})
	sess.deliver(result)

	// A new viewer is ready for negotiation: ask the owner for an offer.
	if !isHost {
		if owner := r.sessions[room.OwnerID]; owner != nil {
			req, _ := protocol.NewEnvelope(protocol.MsgRequestOffer, protocol.RequestOffer{
				PeerID:      sess.ID,
				BroadcastID: roomID,
			})
			owner.deliver(req)
		}
	}
	return nil
}

// Leave removes the session from its room. A departing owner tears the room
// down: every remaining member receives one BroadcastDisconnect notice, then
// the room record is deleted.
func (r *Registry) Leave(sess *Session) {
	room := r.rooms[sess.RoomID]
	if room == nil {
		return
	}

	for i, m := range room.Members {
		if m == sess {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			break
		}
	}
	slog.Info("client left broadcast", "room", room.ID, "client", sess.ID)

	if sess.IsOwner {
		for _, m := range room.Members {
			notice, _ := protocol.NewEnvelope(protocol.MsgBroadcastDisconnect, protocol.Disconnect{
				Message: "The host has disconnected. You will be disconnected.",
			})
			m.deliver(notice)
			m.RoomID = ""
			m.IsOwner = false
		}
		delete(r.rooms, room.ID)
		slog.Info("broadcast cleaned up", "room", room.ID)
	}

	sess.RoomID = ""
	sess.IsOwner = false
}

// RemoveSession drops a disconnected client, leaving its room first.
func (r *Registry) RemoveSession(sess *Session) {
	r.Leave(sess)
	delete(r.sessions, sess.ID)
}
