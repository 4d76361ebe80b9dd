// Package media provides default media collaborators for the host and view
// commands. Real capture pipelines can replace these behind the broadcast
// interfaces.
package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const defaultFrameRate = 30

// SampleSource produces a VP8 video track fed by a frame generator. The
// generator is polled at the frame rate until Stop is called; a nil
// generator yields an idle track that peers can still negotiate against.
type SampleSource struct {
	// Generate returns the next encoded VP8 frame, or nil to skip a tick.
	Generate func(width, height int) []byte

	FrameRate int

	stopOnce sync.Once
	stop     chan struct{}
}

func NewSampleSource(generate func(width, height int) []byte) *SampleSource {
	return &SampleSource{
		Generate:  generate,
		FrameRate: defaultFrameRate,
		stop:      make(chan struct{}),
	}
}

// CaptureTrack builds the local track and starts the feed loop.
func (s *SampleSource) CaptureTrack(width, height int) (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"beamcast-"+uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("create local track: %w", err)
	}

	if s.Generate != nil {
		go s.feed(track, width, height)
	}
	return track, nil
}

func (s *SampleSource) feed(track *webrtc.TrackLocalStaticSample, width, height int) {
	rate := s.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}
	interval := time.Second / time.Duration(rate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			frame := s.Generate(width, height)
			if frame == nil {
				continue
			}
			if err := track.WriteSample(media.Sample{Data: frame, Duration: interval}); err != nil {
				return
			}
		}
	}
}

// Stop ends the feed loop. The track itself stays valid until its peer
// connections close.
func (s *SampleSource) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
