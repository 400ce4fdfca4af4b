// Package summarizer provides summary generation for playback sessions.
package summarizer

import "time"

// Summary contains all data collected during a playback session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	// Source container and its tracks
	Source SourceInfo

	// Selected video track
	Track TrackInfo

	// Playback settings
	Settings Settings

	// Session counters
	Playback PlaybackInfo
}

// SourceInfo describes the input container.
type SourceInfo struct {
	Path   string
	Tracks []TrackInfo
}

// TrackInfo describes one track.
type TrackInfo struct {
	Index      int
	MIME       string
	Width      int
	Height     int
	DurationUs int64

	// Colour metadata as "standard/range/transfer"
	Color string
}

// Settings contains the playback configuration.
type Settings struct {
	Backend    string
	EOSPolicy  string
	RenderMode string
	Loops      int // 0 = forever
	Output     string
}

// PlaybackInfo contains the session counters.
type PlaybackInfo struct {
	State          string
	ElapsedMs      int64
	LoopsCompleted int
	SamplesQueued  int
	FramesRendered int
	FramesDropped  int
	FramesWritten  int
	FormatChanges  int
	Errors         int
	LastError      string
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSource sets the input path and its tracks.
func (b *Builder) WithSource(path string, tracks []TrackInfo) *Builder {
	b.summary.Source = SourceInfo{
		Path:   path,
		Tracks: tracks,
	}
	return b
}

// WithTrack sets the selected video track.
func (b *Builder) WithTrack(track TrackInfo) *Builder {
	b.summary.Track = track
	return b
}

// WithSettings sets playback settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithPlayback sets the session counters.
func (b *Builder) WithPlayback(playback PlaybackInfo) *Builder {
	b.summary.Playback = playback
	return b
}

// WithElapsed sets the wall-clock duration of the session.
func (b *Builder) WithElapsed(d time.Duration) *Builder {
	b.summary.Playback.ElapsedMs = d.Milliseconds()
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
