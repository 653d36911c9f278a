// Package media abstracts the local capture device. The negotiation
// layer only needs local tracks to attach; where they come from (a real
// capture pipeline, a file, a test pattern) is the caller's business.
package media

import (
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Status is the local media-readiness flag, owned by the client side.
type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
)

// Source provides the local tracks attached to a peer connection.
type Source interface {
	Tracks() []webrtc.TrackLocal
	Close() error
}

// Disabled returns a Source with no tracks, used when capture was
// denied or is unavailable. Sessions over a disabled source carry text
// chat only.
func Disabled() Source {
	return disabledSource{}
}

type disabledSource struct{}

func (disabledSource) Tracks() []webrtc.TrackLocal { return nil }
func (disabledSource) Close() error                { return nil }

// SampleSource feeds pre-encoded samples into static local tracks. It
// stands in for a capture device in tests and headless deployments.
type SampleSource struct {
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample
}

// NewSampleSource creates a VP8 video track and an Opus audio track.
func NewSampleSource() (*SampleSource, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "vibe")
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "vibe")
	if err != nil {
		return nil, err
	}
	return &SampleSource{video: video, audio: audio}, nil
}

func (s *SampleSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.video, s.audio}
}

// WriteVideo pushes one encoded video sample onto the video track.
func (s *SampleSource) WriteVideo(sample media.Sample) error {
	return s.video.WriteSample(sample)
}

// WriteAudio pushes one encoded audio sample onto the audio track.
func (s *SampleSource) WriteAudio(sample media.Sample) error {
	return s.audio.WriteSample(sample)
}

func (s *SampleSource) Close() error { return nil }
