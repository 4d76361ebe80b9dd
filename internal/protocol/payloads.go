package protocol

import "fmt"

// Message type keys. These are the dispatch discriminators carried in
// Envelope.ID.
const (
	MsgReceivePlayerID     = "ReceivePlayerId"
	MsgJoinBroadcast       = "JoinBroadcast"
	MsgJoinBroadcastResult = "JoinBroadcastResult"
	MsgBroadcastFatalError = "BroadcastFatalError"
	MsgBroadcastDisconnect = "BroadcastDisconnect"
	MsgStream              = "Stream"
	MsgStreamResult        = "StreamResult"
	MsgRequestOffer        = "RequestOffer"
	MsgOffer               = "OFFER"
	MsgAnswer              = "ANSWER"
	MsgCandidate           = "CANDIDATE"
)

// ReceivePlayerID assigns the client its relay-side id on connect.
type ReceivePlayerID struct {
	ID string `json:"id"`
}

// JoinBroadcast asks the relay to host-or-join a named room.
type JoinBroadcast struct {
	RoomName string `json:"roomName"`
}

// JoinBroadcastResult reports the assigned role for a join request.
type JoinBroadcastResult struct {
	BroadcastID string `json:"broadcastId"`
	IsHost      bool   `json:"isHost"`
	Message     string `json:"message"`
}

// FatalError signals an unrecoverable request error, e.g. an empty room id.
type FatalError struct {
	Message string `json:"message"`
}

// Disconnect notifies members that their room has been torn down.
type Disconnect struct {
	Message string `json:"message"`
}

// StreamFrame carries one relayed frame/chunk, base64-encoded by
// encoding/json on the byte slice.
type StreamFrame struct {
	Data []byte `json:"data"`
}

// RequestOffer tells a peer that a new viewer is ready for negotiation.
type RequestOffer struct {
	PeerID      string `json:"peerId"`
	BroadcastID string `json:"broadcastId"`
}

// SessionDescription is one half of the SDP exchange.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is a single ICE candidate proposed by a peer.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// PayloadOf decodes the envelope data into the payload type selected by the
// envelope id. Unknown ids yield a DecodeError.
func PayloadOf(env *Envelope) (any, error) {
	var payload any
	switch env.ID {
	case MsgReceivePlayerID:
		payload = &ReceivePlayerID{}
	case MsgJoinBroadcast:
		payload = &JoinBroadcast{}
	case MsgJoinBroadcastResult:
		payload = &JoinBroadcastResult{}
	case MsgBroadcastFatalError:
		payload = &FatalError{}
	case MsgBroadcastDisconnect:
		payload = &Disconnect{}
	case MsgStream, MsgStreamResult:
		payload = &StreamFrame{}
	case MsgRequestOffer:
		payload = &RequestOffer{}
	case MsgOffer, MsgAnswer:
		payload = &SessionDescription{}
	case MsgCandidate:
		payload = &Candidate{}
	default:
		return nil, &DecodeError{Err: fmt.Errorf("unknown message type %q", env.ID)}
	}
	if err := env.DecodePayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}
