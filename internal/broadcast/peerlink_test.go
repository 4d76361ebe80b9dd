package broadcast

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/beamlink/beamcast/internal/protocol"
)

// fakeTransport records every call a PeerLink makes so tests can assert on
// negotiation sequencing without a real peer connection.
type fakeTransport struct {
	offers     []bool // iceRestart flag per CreateOffer call
	answers    int
	setAnswers int
	rollbacks  int
	candidates []protocol.Candidate
	tracks     []webrtc.TrackLocal
	closed     int

	offerErr  error
	answerErr error

	onCandidate func(protocol.Candidate)
	onState     func(webrtc.PeerConnectionState)
	onTrack     func(*webrtc.TrackRemote)
}

func (f *fakeTransport) CreateOffer(iceRestart bool) (protocol.SessionDescription, error) {
	if f.offerErr != nil {
		return protocol.SessionDescription{}, f.offerErr
	}
	f.offers = append(f.offers, iceRestart)
	return protocol.SessionDescription{Type: "offer", SDP: "v=0"}, nil
}

func (f *fakeTransport) CreateAnswer(offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	if f.answerErr != nil {
		return protocol.SessionDescription{}, f.answerErr
	}
	f.answers++
	return protocol.SessionDescription{Type: "answer", SDP: "v=0"}, nil
}

func (f *fakeTransport) SetAnswer(answer protocol.SessionDescription) error {
	f.setAnswers++
	return nil
}

func (f *fakeTransport) Rollback() error {
	f.rollbacks++
	return nil
}

func (f *fakeTransport) AddCandidate(c protocol.Candidate) error {
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeTransport) AttachTrack(track webrtc.TrackLocal) error {
	f.tracks = append(f.tracks, track)
	return nil
}

func (f *fakeTransport) OnCandidate(fn func(protocol.Candidate))               { f.onCandidate = fn }
func (f *fakeTransport) OnConnectionState(fn func(webrtc.PeerConnectionState)) { f.onState = fn }
func (f *fakeTransport) OnTrack(fn func(*webrtc.TrackRemote))                  { f.onTrack = fn }

func (f *fakeTransport) DiagnoseFailure() string { return "no candidate pairs formed" }

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func newTestLink(localID, peerID string) (*PeerLink, *fakeTransport, *[]*protocol.Envelope) {
	transport := &fakeTransport{}
	var sent []*protocol.Envelope
	link := newPeerLink(localID, peerID, transport)
	link.send = func(env *protocol.Envelope) { sent = append(sent, env) }
	return link, transport, &sent
}

func remoteOffer() protocol.SessionDescription {
	return protocol.SessionDescription{Type: "offer", SDP: "v=0"}
}

func remoteAnswer() protocol.SessionDescription {
	return protocol.SessionDescription{Type: "answer", SDP: "v=0"}
}

func TestStartOffer(t *testing.T) {
	t.Run("Sends Targeted Offer", func(t *testing.T) {
		link, transport, sent := newTestLink("a", "b")

		if err := link.StartOffer(); err != nil {
			t.Fatalf("Failed to start offer: %v", err)
		}
		if link.State() != StateOffering {
			t.Errorf("Expected offering state, got %s", link.State())
		}
		if len(transport.offers) != 1 || transport.offers[0] {
			t.Errorf("Expected one plain offer, got %v", transport.offers)
		}
		if len(*sent) != 1 || (*sent)[0].ID != protocol.MsgOffer || (*sent)[0].TargetID != "b" {
			t.Fatalf("Expected one OFFER targeted at b, got %v", *sent)
		}
	})

	t.Run("Ignored When Not Idle", func(t *testing.T) {
		link, transport, _ := newTestLink("a", "b")

		if err := link.StartOffer(); err != nil {
			t.Fatalf("Failed to start offer: %v", err)
		}
		if err := link.StartOffer(); err != nil {
			t.Fatalf("Repeat StartOffer should be a no-op, got %v", err)
		}
		if len(transport.offers) != 1 {
			t.Errorf("Expected a single offer, got %d", len(transport.offers))
		}
	})
}

func TestCandidateBuffering(t *testing.T) {
	t.Run("Buffered Until Remote Description", func(t *testing.T) {
		link, transport, _ := newTestLink("a", "b")
		if err := link.StartOffer(); err != nil {
			t.Fatalf("Failed to start offer: %v", err)
		}

		for _, c := range []string{"candidate:1", "candidate:2", "candidate:3"} {
			if err := link.HandleCandidate(protocol.Candidate{Candidate: c}); err != nil {
				t.Fatalf("Failed to handle candidate: %v", err)
			}
		}
		if len(transport.candidates) != 0 {
			t.Fatalf("Expected candidates to be buffered, %d reached transport", len(transport.candidates))
		}

		if err := link.HandleAnswer(remoteAnswer()); err != nil {
			t.Fatalf("Failed to handle answer: %v", err)
		}

		if len(transport.candidates) != 3 {
			t.Fatalf("Expected 3 flushed candidates, got %d", len(transport.candidates))
		}
		for i, want := range []string{"candidate:1", "candidate:2", "candidate:3"} {
			if transport.candidates[i].Candidate != want {
				t.Errorf("Candidate %d out of order: got %s, want %s", i, transport.candidates[i].Candidate, want)
			}
		}
	})

	t.Run("Direct Delivery After Remote Description", func(t *testing.T) {
		link, transport, _ := newTestLink("a", "b")
		if err := link.HandleOffer(remoteOffer()); err != nil {
			t.Fatalf("Failed to handle offer: %v", err)
		}

		if err := link.HandleCandidate(protocol.Candidate{Candidate: "candidate:late"}); err != nil {
			t.Fatalf("Failed to handle candidate: %v", err)
		}
		if len(transport.candidates) != 1 {
			t.Errorf("Expected candidate to reach transport directly, got %d", len(transport.candidates))
		}
	})
}

func TestHandleOffer(t *testing.T) {
	t.Run("Idle Answers", func(t *testing.T) {
		link, transport, sent := newTestLink("a", "b")

		if err := link.HandleOffer(remoteOffer()); err != nil {
			t.Fatalf("Failed to handle offer: %v", err)
		}
		if link.State() != StateAnswering {
			t.Errorf("Expected answering state, got %s", link.State())
		}
		if transport.answers != 1 {
			t.Errorf("Expected one answer, got %d", transport.answers)
		}
		if len(*sent) != 1 || (*sent)[0].ID != protocol.MsgAnswer || (*sent)[0].TargetID != "b" {
			t.Fatalf("Expected one ANSWER targeted at b, got %v", *sent)
		}
	})

	t.Run("Glare Lower ID Keeps Offering", func(t *testing.T) {
		link, transport, sent := newTestLink("a", "b")
		if err := link.StartOffer(); err != nil {
			t.Fatalf("Failed to start offer: %v", err)
		}

		if err := link.HandleOffer(remoteOffer()); err != nil {
			t.Fatalf("Failed to handle glare offer: %v", err)
		}
		if link.State() != StateOffering {
			t.Errorf("Expected lower id to stay offering, got %s", link.State())
		}
		if transport.rollbacks != 0 || transport.answers != 0 {
			t.Errorf("Expected remote offer to be rejected, rollbacks=%d answers=%d", transport.rollbacks, transport.answers)
		}
		if len(*sent) != 1 {
			t.Errorf("Expected only the original offer on the wire, got %d envelopes", len(*sent))
		}
	})

	t.Run("Glare Higher ID Rolls Back And Answers", func(t *testing.T) {
		link, transport, sent := newTestLink("z", "b")
		if err := link.StartOffer(); err != nil {
			t.Fatalf("Failed to start offer: %v", err)
		}

		if err := link.HandleOffer(remoteOffer()); err != nil {
			t.Fatalf("Failed to handle glare offer: %v", err)
		}
		if link.State() != StateAnswering {
			t.Errorf("Expected higher id to switch to answering, got %s", link.State())
		}
		if transport.rollbacks != 1 {
			t.Errorf("Expected one rollback, got %d", transport.rollbacks)
		}
		if transport.answers != 1 {
			t.Errorf("Expected one answer, got %d", transport.answers)
		}
		if last := (*sent)[len(*sent)-1]; last.ID != protocol.MsgAnswer {
			t.Errorf("Expected final envelope to be ANSWER, got %s", last.ID)
		}
	})

	t.Run("Connected Answers Renegotiation", func(t *testing.T) {
		link, transport, _ := newTestLink("a", "b")
		if err := link.StartOffer(); err != nil {
			t.Fatalf("Failed to start offer: %v", err)
		}
		if err := link.HandleAnswer(remoteAnswer()); err != nil {
			t.Fatalf("Failed to handle answer: %v", err)
		}
		link.HandleConnectionState(webrtc.PeerConnectionStateConnected)

		if err := link.HandleOffer(remoteOffer()); err != nil {
			t.Fatalf("Failed to handle renegotiation offer: %v", err)
		}
		if transport.answers != 1 {
			t.Errorf("Expected renegotiation offer to be answered, answers=%d", transport.answers)
		}
	})
}

func TestHandleAnswer(t *testing.T) {
	t.Run("Unexpected Answer Ignored", func(t *testing.T) {
		link, transport, _ := newTestLink("a", "b")

		if err := link.HandleAnswer(remoteAnswer()); err != nil {
			t.Fatalf("Unexpected answer should be ignored, got %v", err)
		}
		if transport.setAnswers != 0 {
			t.Errorf("Expected no answer to be applied, got %d", transport.setAnswers)
		}
	})
}

func TestICERestart(t *testing.T) {
	connect := func(t *testing.T) (*PeerLink, *fakeTransport, *[]*protocol.Envelope) {
		t.Helper()
		link, transport, sent := newTestLink("a", "b")
		if err := link.StartOffer(); err != nil {
			t.Fatalf("Failed to start offer: %v", err)
		}
		if err := link.HandleAnswer(remoteAnswer()); err != nil {
			t.Fatalf("Failed to handle answer: %v", err)
		}
		link.HandleConnectionState(webrtc.PeerConnectionStateConnected)
		if link.State() != StateConnected {
			t.Fatalf("Expected connected state, got %s", link.State())
		}
		return link, transport, sent
	}

	t.Run("Failure Triggers Restart Offer", func(t *testing.T) {
		link, transport, _ := connect(t)

		link.HandleConnectionState(webrtc.PeerConnectionStateFailed)
		if link.State() != StateRestarting {
			t.Errorf("Expected restarting state, got %s", link.State())
		}
		if len(transport.offers) != 2 || !transport.offers[1] {
			t.Fatalf("Expected second offer with ice restart, got %v", transport.offers)
		}
		if transport.closed != 0 {
			t.Error("Restart must not tear the transport down")
		}
	})

	t.Run("Recovery On Same Link", func(t *testing.T) {
		link, transport, _ := connect(t)
		var statuses []string
		link.status = StatusFunc(func(s string) { statuses = append(statuses, s) })

		link.HandleConnectionState(webrtc.PeerConnectionStateFailed)

		// Candidates during restart buffer again until the fresh answer.
		if err := link.HandleCandidate(protocol.Candidate{Candidate: "candidate:new"}); err != nil {
			t.Fatalf("Failed to handle candidate: %v", err)
		}
		if got := len(transport.candidates); got != 0 {
			t.Fatalf("Expected restart candidates to buffer, %d reached transport", got)
		}

		if err := link.HandleAnswer(remoteAnswer()); err != nil {
			t.Fatalf("Failed to handle restart answer: %v", err)
		}
		link.HandleConnectionState(webrtc.PeerConnectionStateConnected)

		if link.State() != StateConnected {
			t.Errorf("Expected connected state after recovery, got %s", link.State())
		}
		recovered := false
		for _, s := range statuses {
			if s == "Status: Connection recovered" {
				recovered = true
			}
		}
		if !recovered {
			t.Errorf("Expected recovery status, got %v", statuses)
		}
	})

	t.Run("Failure While Restarting Is Terminal", func(t *testing.T) {
		link, _, _ := connect(t)
		failed := 0
		link.onFailed = func(*PeerLink) { failed++ }

		link.HandleConnectionState(webrtc.PeerConnectionStateFailed)
		link.HandleConnectionState(webrtc.PeerConnectionStateFailed)

		if link.State() != StateFailed {
			t.Errorf("Expected failed state, got %s", link.State())
		}
		if failed != 1 {
			t.Errorf("Expected one failure callback, got %d", failed)
		}
	})

	t.Run("Restart Offer Error Fails Link", func(t *testing.T) {
		link, transport, _ := connect(t)
		transport.offerErr = errors.New("boom")
		failed := 0
		link.onFailed = func(*PeerLink) { failed++ }

		link.HandleConnectionState(webrtc.PeerConnectionStateFailed)

		if link.State() != StateFailed {
			t.Errorf("Expected failed state, got %s", link.State())
		}
		if failed != 1 {
			t.Errorf("Expected one failure callback, got %d", failed)
		}
	})

	t.Run("Disconnected Is Transient", func(t *testing.T) {
		link, transport, _ := connect(t)

		link.HandleConnectionState(webrtc.PeerConnectionStateDisconnected)
		if link.State() != StateConnected {
			t.Errorf("Expected state to stay connected, got %s", link.State())
		}
		if len(transport.offers) != 1 {
			t.Errorf("Expected no restart on disconnected, offers=%v", transport.offers)
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("Terminal", func(t *testing.T) {
		link, transport, _ := newTestLink("a", "b")

		link.Close()
		link.Close()
		if transport.closed != 1 {
			t.Errorf("Expected one transport close, got %d", transport.closed)
		}
		if link.State() != StateClosed {
			t.Errorf("Expected closed state, got %s", link.State())
		}

		link.HandleConnectionState(webrtc.PeerConnectionStateConnected)
		if link.State() != StateClosed {
			t.Errorf("Closed link must ignore state reports, got %s", link.State())
		}
	})
}
