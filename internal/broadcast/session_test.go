package broadcast

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/beamlink/beamcast/internal/dispatch"
)

type fakeLocalTrack struct{}

func (fakeLocalTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (fakeLocalTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (fakeLocalTrack) ID() string                            { return "fake" }
func (fakeLocalTrack) RID() string                           { return "" }
func (fakeLocalTrack) StreamID() string                      { return "fake-stream" }
func (fakeLocalTrack) Kind() webrtc.RTPCodecType             { return webrtc.RTPCodecTypeVideo }

func newTestSession() (*Session, *[]*fakeTransport) {
	var created []*fakeTransport
	s := NewSession(Options{
		Dispatcher: dispatch.New(),
		NewTransport: func() (PeerTransport, error) {
			transport := &fakeTransport{}
			created = append(created, transport)
			return transport, nil
		},
	})
	return s, &created
}

func TestAddPeer(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		s, created := newTestSession()

		first, err := s.addPeer("viewer-1")
		if err != nil {
			t.Fatalf("Failed to add peer: %v", err)
		}
		second, err := s.addPeer("viewer-1")
		if err != nil {
			t.Fatalf("Failed on repeat add: %v", err)
		}

		if first != second {
			t.Error("Expected repeat add to return the existing link")
		}
		if len(*created) != 1 {
			t.Errorf("Expected one transport, got %d", len(*created))
		}
		if s.PeersSeen() != 1 {
			t.Errorf("Expected one peer seen, got %d", s.PeersSeen())
		}
	})

	t.Run("Distinct Peers Get Distinct Links", func(t *testing.T) {
		s, created := newTestSession()

		a, err := s.addPeer("viewer-a")
		if err != nil {
			t.Fatalf("Failed to add peer: %v", err)
		}
		b, err := s.addPeer("viewer-b")
		if err != nil {
			t.Fatalf("Failed to add peer: %v", err)
		}

		if a == b {
			t.Error("Expected distinct links for distinct peers")
		}
		if len(*created) != 2 {
			t.Errorf("Expected two transports, got %d", len(*created))
		}
	})

	t.Run("Readded Peer Counted Once", func(t *testing.T) {
		s, created := newTestSession()

		if _, err := s.addPeer("viewer-1"); err != nil {
			t.Fatalf("Failed to add peer: %v", err)
		}
		s.removePeer("viewer-1")
		if _, err := s.addPeer("viewer-1"); err != nil {
			t.Fatalf("Failed to re-add peer: %v", err)
		}

		if len(*created) != 2 {
			t.Errorf("Expected a fresh transport per link, got %d", len(*created))
		}
		if s.PeersSeen() != 1 {
			t.Errorf("Expected one distinct peer seen, got %d", s.PeersSeen())
		}
	})

	t.Run("Host Attaches Track", func(t *testing.T) {
		s, created := newTestSession()
		s.role = RoleHost
		s.track = fakeLocalTrack{}

		if _, err := s.addPeer("viewer-1"); err != nil {
			t.Fatalf("Failed to add peer: %v", err)
		}
		if len((*created)[0].tracks) != 1 {
			t.Errorf("Expected host track attached to new transport, got %d", len((*created)[0].tracks))
		}
	})
}

func TestRemovePeer(t *testing.T) {
	s, created := newTestSession()

	if _, err := s.addPeer("viewer-a"); err != nil {
		t.Fatalf("Failed to add peer: %v", err)
	}
	if _, err := s.addPeer("viewer-b"); err != nil {
		t.Fatalf("Failed to add peer: %v", err)
	}

	s.removePeer("viewer-a")

	if (*created)[0].closed != 1 {
		t.Error("Expected removed peer's transport to be closed")
	}
	if (*created)[1].closed != 0 {
		t.Error("Sibling transport must stay open")
	}
	if _, ok := s.peers["viewer-a"]; ok {
		t.Error("Expected removed peer to leave the map")
	}
	if _, ok := s.peers["viewer-b"]; !ok {
		t.Error("Expected sibling peer to survive")
	}

	// Removing an unknown peer is a no-op.
	s.removePeer("viewer-a")
	if (*created)[0].closed != 1 {
		t.Error("Repeat removal must not close the transport twice")
	}
}

func TestTeardownAll(t *testing.T) {
	s, created := newTestSession()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.addPeer(id); err != nil {
			t.Fatalf("Failed to add peer: %v", err)
		}
	}

	s.teardownAll()

	for i, transport := range *created {
		if transport.closed != 1 {
			t.Errorf("Expected transport %d closed once, got %d", i, transport.closed)
		}
	}
	if len(s.peers) != 0 {
		t.Errorf("Expected empty peer map, got %d entries", len(s.peers))
	}

	select {
	case <-s.Done():
	default:
		t.Error("Expected Done to be closed after teardown")
	}

	// Late completions are discarded; enqueue must not block.
	s.enqueue(func() { t.Error("Action ran after teardown") })

	if s.Peers() != 0 {
		t.Errorf("Expected zero live peers after teardown, got %d", s.Peers())
	}
	if s.PeersSeen() != 3 {
		t.Errorf("Expected three peers seen over the lifetime, got %d", s.PeersSeen())
	}
}
