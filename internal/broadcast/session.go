package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/beamlink/beamcast/internal/dispatch"
	"github.com/beamlink/beamcast/internal/protocol"
	"github.com/beamlink/beamcast/internal/signaling"
)

// Role of this client within its broadcast room.
type Role int

const (
	RoleViewer Role = iota
	RoleHost
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "viewer"
}

var (
	ErrJoinTimeout  = errors.New("timed out waiting for join result")
	ErrNotHost      = errors.New("only the host may stream frames")
	ErrNoConnection = errors.New("signaling connection not established")
)

const joinTimeout = 15 * time.Second

// Options configures a broadcast session.
type Options struct {
	Client     *signaling.Client
	Dispatcher *dispatch.Dispatcher

	Source MediaSource
	Sink   MediaSink
	Frames FrameSink
	Status StatusSink

	// NewTransport creates one peer transport per remote peer.
	NewTransport func() (PeerTransport, error)

	// Hint resolution handed to the media source.
	HintWidth  int
	HintHeight int
}

// Session owns every PeerLink of one broadcast. A host session fans out to
// one link per viewer; a viewer session holds exactly one. All link and map
// mutation happens on the session's action loop: network callbacks enqueue
// closures on a single-consumer channel that the loop drains, so negotiation
// of one peer never blocks another and nothing races on session state.
type Session struct {
	opts Options

	roomID  string
	role    Role
	localID string
	track   webrtc.TrackLocal

	peers     map[string]*PeerLink
	seen      map[string]struct{}
	peersSeen atomic.Int64
	actions   chan func()

	idAssigned chan string
	joinResult chan protocol.JoinBroadcastResult
	fatal      chan string

	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(opts Options) *Session {
	return &Session{
		opts:       opts,
		peers:      make(map[string]*PeerLink),
		seen:       make(map[string]struct{}),
		actions:    make(chan func(), 128),
		idAssigned: make(chan string, 1),
		joinResult: make(chan protocol.JoinBroadcastResult, 1),
		fatal:      make(chan string, 1),
		done:       make(chan struct{}),
	}
}

// Start subscribes the session to signaling traffic, requests to host or
// join the named room, and blocks until the relay assigns a role. The
// action loop keeps running until ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context, roomName string) error {
	if s.opts.Client == nil {
		return ErrNoConnection
	}

	s.subscribe()
	go s.pump()
	go s.run(ctx)

	// The relay assigns our client id first thing after connect.
	select {
	case id := <-s.idAssigned:
		s.enqueue(func() { s.localID = id })
	case msg := <-s.fatal:
		return fmt.Errorf("relay error: %s", msg)
	case <-time.After(joinTimeout):
		return ErrJoinTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	env, err := protocol.NewEnvelope(protocol.MsgJoinBroadcast, protocol.JoinBroadcast{RoomName: roomName})
	if err != nil {
		return err
	}
	s.opts.Client.Send(env)
	s.reportStatus("Status: Joining...")

	var result protocol.JoinBroadcastResult
	select {
	case result = <-s.joinResult:
	case msg := <-s.fatal:
		return fmt.Errorf("relay error: %s", msg)
	case <-time.After(joinTimeout):
		return ErrJoinTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	ready := make(chan error, 1)
	s.enqueue(func() {
		s.roomID = result.BroadcastID
		if result.IsHost {
			s.role = RoleHost
		} else {
			s.role = RoleViewer
		}
		if s.role == RoleHost && s.opts.Source != nil {
			track, err := s.opts.Source.CaptureTrack(s.opts.HintWidth, s.opts.HintHeight)
			if err != nil {
				ready <- fmt.Errorf("capture local track: %w", err)
				return
			}
			s.track = track
		}
		ready <- nil
	})
	if err := <-ready; err != nil {
		return err
	}

	s.reportStatus(fmt.Sprintf("Status: Joined %q as %s", result.BroadcastID, s.role))
	return nil
}

// Done is closed once the session has torn down, either explicitly or after
// a room-level disconnect notice.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close tears the whole broadcast down and cancels in-flight negotiation.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		select {
		case s.actions <- func() { s.teardownAll() }:
		default:
			// Action loop already gone; nothing left to tear down.
			close(s.done)
		}
	})
}

// StreamFrame relays one frame through the server instead of the peer
// connection. Only the host side may call it.
func (s *Session) StreamFrame(data []byte) error {
	if s.role != RoleHost {
		return ErrNotHost
	}
	env, err := protocol.NewEnvelope(protocol.MsgStream, protocol.StreamFrame{Data: data})
	if err != nil {
		return err
	}
	s.opts.Client.Send(env)
	return nil
}

// pump feeds inbound envelopes to the dispatcher from its own goroutine;
// subscriber callbacks enqueue any state mutation onto the action loop.
func (s *Session) pump() {
	for env := range s.opts.Client.Incoming() {
		s.opts.Dispatcher.Dispatch(env)
	}
}

// run drains the action queue. Effects apply in FIFO order within the loop.
func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.teardownAll()
			return
		case <-s.done:
			return
		case fn := <-s.actions:
			fn()
		}
	}
}

func (s *Session) enqueue(fn func()) {
	select {
	case s.actions <- fn:
	case <-s.done:
		// Tearing down; late completions are discarded.
	}
}

func (s *Session) subscribe() {
	d := s.opts.Dispatcher

	d.Subscribe(protocol.MsgReceivePlayerID, func(env *protocol.Envelope) {
		var p protocol.ReceivePlayerID
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("bad id assignment", "err", err)
			return
		}
		select {
		case s.idAssigned <- p.ID:
		default:
		}
	})

	d.Subscribe(protocol.MsgJoinBroadcastResult, func(env *protocol.Envelope) {
		var p protocol.JoinBroadcastResult
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("bad join result", "err", err)
			return
		}
		select {
		case s.joinResult <- p:
		default:
		}
	})

	d.Subscribe(protocol.MsgBroadcastFatalError, func(env *protocol.Envelope) {
		var p protocol.FatalError
		if err := env.DecodePayload(&p); err != nil {
			return
		}
		select {
		case s.fatal <- p.Message:
		default:
		}
		s.reportStatus("Status: " + p.Message)
	})

	d.Subscribe(protocol.MsgBroadcastDisconnect, func(env *protocol.Envelope) {
		s.reportStatus("Status: The host has disconnected")
		s.enqueue(func() { s.teardownAll() })
	})

	d.Subscribe(protocol.MsgRequestOffer, func(env *protocol.Envelope) {
		var p protocol.RequestOffer
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("bad offer request", "err", err)
			return
		}
		s.enqueue(func() {
			link, err := s.addPeer(p.PeerID)
			if err != nil {
				slog.Warn("cannot add peer", "peer", p.PeerID, "err", err)
				return
			}
			if err := link.StartOffer(); err != nil {
				slog.Warn("offer failed", "peer", p.PeerID, "err", err)
				s.removePeer(p.PeerID)
			}
		})
	})

	d.Subscribe(protocol.MsgOffer, func(env *protocol.Envelope) {
		var sd protocol.SessionDescription
		if err := env.DecodePayload(&sd); err != nil {
			slog.Warn("bad offer payload", "err", err)
			return
		}
		from := env.FromID
		s.enqueue(func() {
			link, err := s.addPeer(from)
			if err != nil {
				slog.Warn("cannot add peer", "peer", from, "err", err)
				return
			}
			if err := link.HandleOffer(sd); err != nil {
				slog.Warn("answer failed", "peer", from, "err", err)
			}
		})
	})

	d.Subscribe(protocol.MsgAnswer, func(env *protocol.Envelope) {
		var sd protocol.SessionDescription
		if err := env.DecodePayload(&sd); err != nil {
			slog.Warn("bad answer payload", "err", err)
			return
		}
		from := env.FromID
		s.enqueue(func() {
			link, ok := s.peers[from]
			if !ok {
				slog.Warn("answer from unknown peer", "peer", from)
				return
			}
			if err := link.HandleAnswer(sd); err != nil {
				slog.Warn("apply answer failed", "peer", from, "err", err)
			}
		})
	})

	d.Subscribe(protocol.MsgCandidate, func(env *protocol.Envelope) {
		var c protocol.Candidate
		if err := env.DecodePayload(&c); err != nil {
			slog.Warn("bad candidate payload", "err", err)
			return
		}
		from := env.FromID
		s.enqueue(func() {
			// Candidates may arrive before the offer; the link buffers them
			// until its remote description is applied.
			link, err := s.addPeer(from)
			if err != nil {
				slog.Warn("cannot add peer", "peer", from, "err", err)
				return
			}
			if err := link.HandleCandidate(c); err != nil {
				slog.Warn("add candidate failed", "peer", from, "err", err)
			}
		})
	})

	d.Subscribe(protocol.MsgStreamResult, func(env *protocol.Envelope) {
		if s.opts.Frames == nil {
			return
		}
		var frame protocol.StreamFrame
		if err := env.DecodePayload(&frame); err != nil {
			slog.Warn("bad stream frame", "err", err)
			return
		}
		s.opts.Frames.OnFrame(frame.Data)
	})
}

// addPeer returns the PeerLink for a remote peer id, creating it on first
// use. Repeat calls with the same id are a no-op.
func (s *Session) addPeer(peerID string) (*PeerLink, error) {
	if link, ok := s.peers[peerID]; ok {
		return link, nil
	}

	transport, err := s.opts.NewTransport()
	if err != nil {
		return nil, fmt.Errorf("create transport for %s: %w", peerID, err)
	}

	link := newPeerLink(s.localID, peerID, transport)
	link.send = s.opts.Client.Send
	link.status = s.opts.Status
	link.onConnected = s.peerConnected
	link.onFailed = func(l *PeerLink) { s.removePeer(l.peerID) }

	// Local candidates are emitted immediately, whatever the negotiation
	// phase, tagged with the target peer id.
	transport.OnCandidate(func(c protocol.Candidate) {
		env, err := protocol.NewEnvelope(protocol.MsgCandidate, c)
		if err != nil {
			return
		}
		env.TargetID = peerID
		s.opts.Client.Send(env)
	})

	// State reports come from the transport's goroutines; they are funneled
	// through the action queue and re-validated against the peer map.
	transport.OnConnectionState(func(state webrtc.PeerConnectionState) {
		s.enqueue(func() {
			if current, ok := s.peers[peerID]; ok && current == link {
				link.HandleConnectionState(state)
			}
		})
	})

	transport.OnTrack(func(track *webrtc.TrackRemote) {
		s.enqueue(func() {
			if _, ok := s.peers[peerID]; !ok {
				return
			}
			if s.opts.Sink != nil {
				s.opts.Sink.OnTrack(peerID, track)
			}
		})
	})

	if s.role == RoleHost && s.track != nil {
		if err := transport.AttachTrack(s.track); err != nil {
			transport.Close()
			return nil, fmt.Errorf("attach track for %s: %w", peerID, err)
		}
	}

	s.peers[peerID] = link
	if _, dup := s.seen[peerID]; !dup {
		s.seen[peerID] = struct{}{}
		s.peersSeen.Add(1)
	}
	slog.Info("peer added", "peer", peerID, "peers", len(s.peers))
	return link, nil
}

func (s *Session) peerConnected(link *PeerLink, first bool) {
	if !first {
		return
	}
	s.reportStatus(fmt.Sprintf("Status: Peer %s connected", link.peerID))
}

// removePeer closes and discards one PeerLink. Sibling links are untouched.
func (s *Session) removePeer(peerID string) {
	link, ok := s.peers[peerID]
	if !ok {
		return
	}
	link.Close()
	delete(s.peers, peerID)
	slog.Info("peer removed", "peer", peerID, "peers", len(s.peers))
}

// teardownAll closes every PeerLink and ends the session. No envelope
// dispatched afterwards reaches a closed link.
func (s *Session) teardownAll() {
	for id, link := range s.peers {
		link.Close()
		delete(s.peers, id)
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Peers reports the number of live PeerLinks. It is answered on the action
// loop so callers see a consistent value.
func (s *Session) Peers() int {
	select {
	case <-s.done:
		return 0
	default:
	}

	out := make(chan int, 1)
	select {
	case s.actions <- func() { out <- len(s.peers) }:
		select {
		case n := <-out:
			return n
		case <-s.done:
			return 0
		}
	case <-s.done:
		return 0
	}
}

// PeersSeen reports how many distinct peers the session negotiated with
// over its lifetime. Unlike Peers it stays readable after teardown.
func (s *Session) PeersSeen() int {
	return int(s.peersSeen.Load())
}

func (s *Session) reportStatus(msg string) {
	if s.opts.Status != nil {
		s.opts.Status.OnStatus(msg)
	}
}
