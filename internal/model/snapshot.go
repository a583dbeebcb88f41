package model

import (
	"slices"
	"strings"
	"time"
)

type PlaybackState string

const (
	PlaybackPlaying          PlaybackState = "playing"
	PlaybackPaused           PlaybackState = "paused"
	PlaybackNoSession        PlaybackState = "no_session"
	PlaybackProviderError    PlaybackState = "provider_error"
	PlaybackUnsupportedMedia PlaybackState = "unsupported_media"
)

// PlaybackSnapshot is the last observed provider playback state for a tenant.
type PlaybackSnapshot struct {
	ID           string        `json:"id"`
	State        PlaybackState `json:"state"`
	IsPlaying    bool          `json:"isPlaying"`
	TrackTitle   string        `json:"trackTitle,omitempty"`
	ArtistNames  []string      `json:"artistNames,omitempty"`
	ProgressMs   int           `json:"progressMs"`
	DurationMs   int           `json:"durationMs"`
	CapturedAt   time.Time     `json:"capturedAt"`
	ErrorCode    string        `json:"errorCode,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// NoSessionSnapshot never carries track data.
func NoSessionSnapshot(id, errorCode string, capturedAt time.Time) *PlaybackSnapshot {
	return &PlaybackSnapshot{
		ID:         id,
		State:      PlaybackNoSession,
		CapturedAt: capturedAt,
		ErrorCode:  errorCode,
	}
}

// Artist joins the artist names for display.
func (s *PlaybackSnapshot) Artist() string {
	return strings.Join(s.ArtistNames, ", ")
}

// HasTrack reports whether track metadata is present.
func (s *PlaybackSnapshot) HasTrack() bool {
	return s.TrackTitle != ""
}

// Age returns how long ago the snapshot was captured.
func (s *PlaybackSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// Equivalent compares everything a client would render, ignoring progress and
// capture time.
func (s *PlaybackSnapshot) Equivalent(other *PlaybackSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.State == other.State &&
		s.IsPlaying == other.IsPlaying &&
		s.TrackTitle == other.TrackTitle &&
		slices.Equal(s.ArtistNames, other.ArtistNames) &&
		s.DurationMs == other.DurationMs &&
		s.ErrorCode == other.ErrorCode
}
