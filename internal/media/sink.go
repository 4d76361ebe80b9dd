package media

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// TrackReader drains inbound media tracks and reports throughput. It is the
// default viewer-side sink; rendering pipelines implement their own.
type TrackReader struct {
	bytes atomic.Int64
}

func NewTrackReader() *TrackReader {
	return &TrackReader{}
}

// OnTrack starts draining the track in its own goroutine. Reading keeps the
// RTP session alive; packets are counted and discarded.
func (r *TrackReader) OnTrack(peerID string, track *webrtc.TrackRemote) {
	slog.Info("receiving media", "peer", peerID, "codec", track.Codec().MimeType, "kind", track.Kind().String())

	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Warn("track read ended", "peer", peerID, "err", err)
				}
				return
			}
			r.bytes.Add(int64(len(pkt.Payload)))
		}
	}()
}

// Bytes reports the payload bytes received so far across all tracks.
func (r *TrackReader) Bytes() int64 {
	return r.bytes.Load()
}

// FrameCounter is the default sink for frames relayed through the server.
type FrameCounter struct {
	frames atomic.Int64
	bytes  atomic.Int64
}

func NewFrameCounter() *FrameCounter {
	return &FrameCounter{}
}

func (c *FrameCounter) OnFrame(data []byte) {
	c.frames.Add(1)
	c.bytes.Add(int64(len(data)))
}

func (c *FrameCounter) Frames() int64 { return c.frames.Load() }
func (c *FrameCounter) Bytes() int64  { return c.bytes.Load() }
