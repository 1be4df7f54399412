package media

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

// Source produces encoded video frames for the local track.
type Source interface {
	NextFrame() (data []byte, duration time.Duration)
}

// Stream is the local media stream: a single video track fed from a
// Source. It is shared by reference with every peer link; only Stop
// mutates it, at which point all links holding the track go dark
// together.
type Stream struct {
	logger zerolog.Logger
	track  *webrtc.TrackLocalStaticSample
	src    Source
	cancel context.CancelFunc
}

func Open(src Source, logger *zerolog.Logger) (*Stream, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "camera")
	if err != nil {
		return nil, err
	}
	return &Stream{
		logger: logger.With().Str("component", "media").Logger(),
		track:  track,
		src:    src,
	}, nil
}

// Track returns the local video track to attach to a peer connection.
func (s *Stream) Track() webrtc.TrackLocal {
	return s.track
}

// Play pumps frames from the source into the track until the context is
// canceled or Stop is called. Writing to a track with no bound senders
// is a no-op, so Play can start before any link is negotiated.
func (s *Stream) Play(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		for {
			data, dur := s.src.NextFrame()
			if err := s.track.WriteSample(media.Sample{Data: data, Duration: dur}); err != nil {
				s.logger.Error().Err(err).Msg("failed to write sample")
			}
			select {
			case <-ctx.Done():
				s.logger.Debug().Msg("playback stopped")
				return
			case <-time.After(dur):
			}
		}
	}()
}

// Stop ends playback. The track stays attached to any live links but
// receives no further samples.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
