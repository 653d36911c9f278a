package media

import (
	"testing"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

func TestDisabledSourceHasNoTracks(t *testing.T) {
	s := Disabled()
	if got := s.Tracks(); len(got) != 0 {
		t.Fatalf("Tracks() = %d entries, want 0", len(got))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSampleSourceProvidesAudioAndVideo(t *testing.T) {
	s, err := NewSampleSource()
	if err != nil {
		t.Fatalf("NewSampleSource: %v", err)
	}
	defer s.Close()

	tracks := s.Tracks()
	if len(tracks) != 2 {
		t.Fatalf("Tracks() = %d entries, want 2", len(tracks))
	}

	// Writing with no attached peer must not fail; samples are dropped.
	sample := pionmedia.Sample{Data: []byte{0x00}, Duration: 20 * time.Millisecond}
	if err := s.WriteVideo(sample); err != nil {
		t.Errorf("WriteVideo: %v", err)
	}
	if err := s.WriteAudio(sample); err != nil {
		t.Errorf("WriteAudio: %v", err)
	}
}
