package broadcast

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/beamlink/beamcast/internal/protocol"
)

// LinkState is the negotiation state of one PeerLink.
type LinkState int

const (
	StateIdle LinkState = iota
	StateOffering
	StateAnswering
	StateConnected
	StateRestarting
	StateFailed
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerLink drives offer/answer/ICE exchange with one remote peer. Every
// method runs on the owning session's action loop, so no locking is needed;
// transport callbacks re-enter through that loop.
type PeerLink struct {
	peerID  string
	localID string

	state     LinkState
	transport PeerTransport

	// Remote candidates that arrived before the remote description; flushed
	// in arrival order once it is applied.
	pendingRemote []protocol.Candidate
	remoteDescSet bool
	wasConnected  bool

	send        func(*protocol.Envelope)
	status      StatusSink
	onConnected func(link *PeerLink, first bool)
	onFailed    func(link *PeerLink)
}

func newPeerLink(localID, peerID string, transport PeerTransport) *PeerLink {
	return &PeerLink{
		peerID:    peerID,
		localID:   localID,
		state:     StateIdle,
		transport: transport,
	}
}

// PeerID returns the remote peer id this link negotiates with.
func (l *PeerLink) PeerID() string { return l.peerID }

// State returns the current negotiation state.
func (l *PeerLink) State() LinkState { return l.state }

// StartOffer initiates negotiation from this side.
func (l *PeerLink) StartOffer() error {
	if l.state != StateIdle {
		slog.Warn("ignoring offer request in non-idle state", "peer", l.peerID, "state", l.state)
		return nil
	}
	l.state = StateOffering
	return l.sendOffer(false)
}

func (l *PeerLink) sendOffer(iceRestart bool) error {
	offer, err := l.transport.CreateOffer(iceRestart)
	if err != nil {
		return fmt.Errorf("create offer for %s: %w", l.peerID, err)
	}
	env, err := protocol.NewEnvelope(protocol.MsgOffer, offer)
	if err != nil {
		return err
	}
	env.TargetID = l.peerID
	l.send(env)
	return nil
}

// HandleOffer reacts to a remote OFFER. Outside of glare this answers it; a
// remote offer on a connected link is a remote-initiated ICE restart and is
// answered in place.
func (l *PeerLink) HandleOffer(offer protocol.SessionDescription) error {
	switch l.state {
	case StateIdle:
		l.state = StateAnswering
		return l.answer(offer)

	case StateOffering, StateRestarting:
		// Glare: both sides offered. The lower peer id keeps the offerer
		// role; the other side rolls its offer back and answers.
		if l.localID < l.peerID {
			slog.Warn("rejecting simultaneous offer, local side stays offerer",
				"peer", l.peerID, "state", l.state)
			return nil
		}
		if err := l.transport.Rollback(); err != nil {
			return fmt.Errorf("roll back local offer for %s: %w", l.peerID, err)
		}
		if l.state != StateRestarting {
			l.state = StateAnswering
		}
		return l.answer(offer)

	case StateConnected:
		slog.Info("answering renegotiation offer", "peer", l.peerID)
		return l.answer(offer)

	default:
		slog.Warn("ignoring offer", "peer", l.peerID, "state", l.state)
		return nil
	}
}

func (l *PeerLink) answer(offer protocol.SessionDescription) error {
	answer, err := l.transport.CreateAnswer(offer)
	if err != nil {
		return fmt.Errorf("create answer for %s: %w", l.peerID, err)
	}
	l.remoteDescSet = true
	l.flushPending()

	env, err := protocol.NewEnvelope(protocol.MsgAnswer, answer)
	if err != nil {
		return err
	}
	env.TargetID = l.peerID
	l.send(env)
	return nil
}

// HandleAnswer applies the remote ANSWER to a pending local offer.
func (l *PeerLink) HandleAnswer(answer protocol.SessionDescription) error {
	if l.state != StateOffering && l.state != StateRestarting {
		slog.Warn("ignoring unexpected answer", "peer", l.peerID, "state", l.state)
		return nil
	}
	if err := l.transport.SetAnswer(answer); err != nil {
		return fmt.Errorf("apply answer from %s: %w", l.peerID, err)
	}
	l.remoteDescSet = true
	l.flushPending()
	return nil
}

// HandleCandidate feeds a remote ICE candidate to the transport, buffering
// it if the remote description has not been applied yet.
func (l *PeerLink) HandleCandidate(c protocol.Candidate) error {
	if l.state == StateClosed || l.state == StateFailed {
		return nil
	}
	if !l.remoteDescSet {
		l.pendingRemote = append(l.pendingRemote, c)
		return nil
	}
	if err := l.transport.AddCandidate(c); err != nil {
		return fmt.Errorf("add candidate from %s: %w", l.peerID, err)
	}
	return nil
}

func (l *PeerLink) flushPending() {
	for _, c := range l.pendingRemote {
		if err := l.transport.AddCandidate(c); err != nil {
			slog.Warn("failed to add buffered candidate", "peer", l.peerID, "err", err)
		}
	}
	l.pendingRemote = nil
}

// HandleConnectionState reacts to transport state reports. Failure while
// connected or negotiating requests one ICE restart; failure while already
// restarting marks the link Failed.
func (l *PeerLink) HandleConnectionState(state webrtc.PeerConnectionState) {
	if l.state == StateClosed || l.state == StateFailed {
		return
	}

	switch state {
	case webrtc.PeerConnectionStateConnected:
		restarted := l.state == StateRestarting
		l.state = StateConnected
		l.pendingRemote = nil

		first := !l.wasConnected
		l.wasConnected = true
		if restarted {
			l.reportStatus("Status: Connection recovered")
		} else {
			l.reportStatus("Status: Connected")
		}
		if l.onConnected != nil {
			l.onConnected(l, first)
		}

	case webrtc.PeerConnectionStateFailed:
		if l.state == StateRestarting {
			l.fail()
			return
		}
		l.restart()

	case webrtc.PeerConnectionStateDisconnected:
		// Often transient; the ICE agent either recovers or reports failed.
		slog.Info("transport disconnected", "peer", l.peerID)

	default:
	}
}

// restart requests an ICE restart without tearing down media. Exactly one
// restart attempt is in flight at a time.
func (l *PeerLink) restart() {
	l.state = StateRestarting
	l.remoteDescSet = false
	l.pendingRemote = nil
	l.reportStatus("Status: Connection lost, restarting ICE")

	if err := l.sendOffer(true); err != nil {
		slog.Warn("ice restart offer failed", "peer", l.peerID, "err", err)
		l.fail()
	}
}

func (l *PeerLink) fail() {
	l.state = StateFailed
	if summary := l.transport.DiagnoseFailure(); summary != "" {
		slog.Warn("connection failed", "peer", l.peerID, "candidatePairs", summary)
	}
	l.reportStatus(fmt.Sprintf("Status: Connection to %s failed", l.peerID))
	if l.onFailed != nil {
		l.onFailed(l)
	}
}

// Close releases the transport. Closed is terminal.
func (l *PeerLink) Close() {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	if err := l.transport.Close(); err != nil {
		slog.Warn("error closing transport", "peer", l.peerID, "err", err)
	}
}

func (l *PeerLink) reportStatus(msg string) {
	if l.status != nil {
		l.status.OnStatus(msg)
	}
}
