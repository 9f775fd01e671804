package peer

import (
	"github.com/pion/webrtc/v4"
)

// MediaSource supplies the local capture tracks attached to outgoing
// peer connections. Screen and audio capture are platform capabilities
// outside this package; anything that can hand over webrtc tracks fits.
type MediaSource interface {
	// Tracks returns the local tracks to broadcast.
	Tracks() []webrtc.TrackLocal

	// Close releases the underlying capture resources.
	Close() error
}

// StaticSource wraps an already-created set of tracks as a MediaSource.
type StaticSource struct {
	tracks []webrtc.TrackLocal
	closed bool
}

// NewStaticSource builds a source over existing tracks.
func NewStaticSource(tracks ...webrtc.TrackLocal) *StaticSource {
	return &StaticSource{tracks: tracks}
}

func (s *StaticSource) Tracks() []webrtc.TrackLocal {
	if s.closed {
		return nil
	}
	return s.tracks
}

func (s *StaticSource) Close() error {
	s.closed = true
	s.tracks = nil
	return nil
}
