// Package rtc implements the peer transport on pion/webrtc.
package rtc

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/beamlink/beamcast/internal/config"
	"github.com/beamlink/beamcast/internal/protocol"
)

// Peer wraps one pion PeerConnection behind the broadcast transport
// interface. It holds no negotiation state of its own; sequencing is the
// caller's job.
type Peer struct {
	conn *webrtc.PeerConnection
}

// NewPeer creates a peer connection with the configured ICE servers.
func NewPeer(cfg *config.Config) (*Peer, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Peer{conn: pc}, nil
}

// newPeerConnection centralizes ICE server configuration
func newPeerConnection(cfg *config.Config) (*webrtc.PeerConnection, error) {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}

// CreateOffer builds and applies a local offer. With iceRestart set the
// offer carries fresh ICE credentials so connectivity renegotiates without
// touching attached media.
func (p *Peer) CreateOffer(iceRestart bool) (protocol.SessionDescription, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}

	offer, err := p.conn.CreateOffer(opts)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.conn.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}

	// Return the applied description rather than the raw offer; candidates
	// trickle separately via OnCandidate.
	local := p.conn.LocalDescription()
	return protocol.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

// CreateAnswer applies the remote offer and produces the local answer.
func (p *Peer) CreateAnswer(offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	remote := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(offer.Type),
		SDP:  offer.SDP,
	}
	if err := p.conn.SetRemoteDescription(remote); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.conn.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}

	local := p.conn.LocalDescription()
	return protocol.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

// SetAnswer applies the remote answer to a connection that offered.
func (p *Peer) SetAnswer(answer protocol.SessionDescription) error {
	remote := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(answer.Type),
		SDP:  answer.SDP,
	}
	if err := p.conn.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// Rollback discards a pending local offer so a remote one can be applied.
func (p *Peer) Rollback() error {
	rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
	if err := p.conn.SetLocalDescription(rollback); err != nil {
		return fmt.Errorf("rollback local description: %w", err)
	}
	return nil
}

// AddCandidate feeds one remote ICE candidate to the agent.
func (p *Peer) AddCandidate(c protocol.Candidate) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	if err := p.conn.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// AttachTrack adds a local media track for sending.
func (p *Peer) AttachTrack(track webrtc.TrackLocal) error {
	if _, err := p.conn.AddTrack(track); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	return nil
}

// OnCandidate registers the trickle handler for locally gathered candidates.
func (p *Peer) OnCandidate(fn func(protocol.Candidate)) {
	p.conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// End of gathering.
			return
		}
		init := c.ToJSON()
		fn(protocol.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

// OnConnectionState registers the handler for connection state changes.
func (p *Peer) OnConnectionState(fn func(webrtc.PeerConnectionState)) {
	p.conn.OnConnectionStateChange(fn)
}

// OnTrack registers the handler for inbound media.
func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

// DiagnoseFailure summarizes candidate-pair stats so connection failures
// can be attributed (no pair succeeded vs. selected pair lost).
func (p *Peer) DiagnoseFailure() string {
	report := p.conn.GetStats()

	var pairs []string
	for _, stat := range report {
		pair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s->%s state=%s nominated=%t",
			pair.LocalCandidateID, pair.RemoteCandidateID, pair.State, pair.Nominated))
	}

	if len(pairs) == 0 {
		return "no candidate pairs formed"
	}
	return strings.Join(pairs, "; ")
}

// Close releases the underlying connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
