package broadcast

import (
	"github.com/pion/webrtc/v4"

	"github.com/beamlink/beamcast/internal/protocol"
)

// MediaSource yields the local media track a host attaches to its peer
// connections. Capture and encoding live behind this interface; the hint
// resolution is advisory.
type MediaSource interface {
	CaptureTrack(width, height int) (webrtc.TrackLocal, error)
}

// MediaSink receives the inbound track handle once a viewer's connection
// starts receiving media.
type MediaSink interface {
	OnTrack(peerID string, track *webrtc.TrackRemote)
}

// FrameSink receives frames streamed through the relay rather than over the
// peer connection.
type FrameSink interface {
	OnFrame(data []byte)
}

// StatusSink receives human-readable state strings for display.
type StatusSink interface {
	OnStatus(status string)
}

// StatusFunc adapts a plain function to a StatusSink.
type StatusFunc func(string)

func (f StatusFunc) OnStatus(status string) { f(status) }

// PeerTransport is the connection-level collaborator driven by a PeerLink.
// Implementations wrap one peer connection; NAT traversal and codec
// negotiation internals stay behind it.
type PeerTransport interface {
	// CreateOffer builds a local offer, applies it as the local description
	// and returns it. With iceRestart set the offer renegotiates
	// connectivity without tearing down attached media.
	CreateOffer(iceRestart bool) (protocol.SessionDescription, error)

	// CreateAnswer applies the remote offer, builds an answer and applies it
	// as the local description.
	CreateAnswer(offer protocol.SessionDescription) (protocol.SessionDescription, error)

	// SetAnswer applies the remote answer to a connection that offered.
	SetAnswer(answer protocol.SessionDescription) error

	// Rollback discards a pending local offer (glare recovery).
	Rollback() error

	// AddCandidate feeds one remote ICE candidate to the transport.
	AddCandidate(c protocol.Candidate) error

	// AttachTrack adds a local media track to the connection (host path).
	AttachTrack(track webrtc.TrackLocal) error

	// OnCandidate registers the callback for locally discovered candidates.
	OnCandidate(fn func(protocol.Candidate))

	// OnConnectionState registers the callback for transport state changes.
	OnConnectionState(fn func(webrtc.PeerConnectionState))

	// OnTrack registers the callback for inbound media (viewer path).
	OnTrack(fn func(*webrtc.TrackRemote))

	// DiagnoseFailure summarizes candidate-pair state for failure logging.
	DiagnoseFailure() string

	// Close releases the underlying connection.
	Close() error
}
