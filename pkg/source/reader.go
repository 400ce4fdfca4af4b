// Package source provides the Source Reader: sequential, seekable access to
// the compressed samples of one track of a container.
package source

import (
	"fmt"
	"io"

	"github.com/user/pixelvideo/pkg/ports"
)

// SeekMode selects which sync sample SeekTo lands on.
type SeekMode int

const (
	// SeekPreviousSync lands on the last sync sample at or before the time.
	SeekPreviousSync SeekMode = iota
	// SeekNextSync lands on the first sync sample at or after the time.
	SeekNextSync
	// SeekClosestSync lands on the sync sample nearest to the time.
	SeekClosestSync
)

func (m SeekMode) String() string {
	switch m {
	case SeekPreviousSync:
		return "previous-sync"
	case SeekNextSync:
		return "next-sync"
	case SeekClosestSync:
		return "closest-sync"
	default:
		return fmt.Sprintf("SeekMode(%d)", int(m))
	}
}

// Reader walks the samples of a selected track in container order.
//
// A Reader has a single owner: it is not safe for concurrent use. During
// playback only the decode pump touches it, from codec callbacks.
type Reader struct {
	demuxer ports.Demuxer
	tracks  []ports.Track
	logger  ports.Logger

	selected int
	samples  []ports.SampleInfo
	syncs    []int
	pos      int
	maxSize  int
	closed   bool
}

// Open enumerates the tracks of d. The reader takes ownership of d and
// closes it on Close.
func Open(d ports.Demuxer, logger ports.Logger) (*Reader, error) {
	if d == nil {
		return nil, &OpenError{Reason: "no demuxer"}
	}

	tracks := d.Tracks()
	if len(tracks) == 0 {
		d.Close()
		return nil, &OpenError{Reason: "container has no tracks"}
	}

	r := &Reader{
		demuxer:  d,
		tracks:   tracks,
		logger:   logger.WithComponent("source"),
		selected: -1,
	}
	r.logger.Debug("Opened source with %d tracks", len(tracks))
	return r, nil
}

// Tracks returns all tracks in index order.
func (r *Reader) Tracks() []ports.Track {
	out := make([]ports.Track, len(r.tracks))
	copy(out, r.tracks)
	return out
}

// SelectVideoTrack selects the lowest-indexed track whose MIME type starts
// with "video/". Once a track is selected later calls return it unchanged.
func (r *Reader) SelectVideoTrack() (ports.Track, error) {
	if r.selected >= 0 {
		return r.tracks[r.selected], nil
	}
	for _, t := range r.tracks {
		if ports.IsVideoMIME(t.MIME) {
			if err := r.SelectTrack(t.Index); err != nil {
				return ports.Track{}, err
			}
			return t, nil
		}
	}
	return ports.Track{}, ErrNoVideoTrack
}

// SelectTrack selects the track with the given index and positions the
// reader on its first sample. Selecting a second, different track fails.
func (r *Reader) SelectTrack(index int) error {
	if r.closed {
		return fmt.Errorf("%w: reader closed", ErrIllegalState)
	}
	pos := -1
	for i, t := range r.tracks {
		if t.Index == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: no track with index %d", ErrIllegalState, index)
	}
	if r.selected >= 0 {
		if r.selected == pos {
			return nil
		}
		return fmt.Errorf("%w: track %d already selected", ErrIllegalState, r.tracks[r.selected].Index)
	}

	count, err := r.demuxer.SampleCount(index)
	if err != nil {
		return fmt.Errorf("sample count: %w", err)
	}

	samples := make([]ports.SampleInfo, count)
	var syncs []int
	maxSize := 0
	for i := 0; i < count; i++ {
		info, err := r.demuxer.SampleInfo(index, i)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		samples[i] = info
		if info.Flags.Has(ports.FlagSync) {
			syncs = append(syncs, i)
		}
		if info.Size > maxSize {
			maxSize = info.Size
		}
	}

	// A table without sync flags is treated as all-intra.
	if len(syncs) == 0 {
		syncs = make([]int, count)
		for i := range syncs {
			syncs[i] = i
		}
	}

	r.selected = pos
	r.samples = samples
	r.syncs = syncs
	r.maxSize = maxSize
	r.pos = 0

	r.logger.Debug("Selected track %d (%s), %d samples", index, r.tracks[pos].MIME, count)
	return nil
}

// SelectedTrack returns the selected track, if any.
func (r *Reader) SelectedTrack() (ports.Track, bool) {
	if r.selected < 0 {
		return ports.Track{}, false
	}
	return r.tracks[r.selected], true
}

// SampleCount returns the number of samples of the selected track.
func (r *Reader) SampleCount() int {
	return len(r.samples)
}

// MaxSampleSize returns the size of the largest sample of the selected track.
func (r *Reader) MaxSampleSize() int {
	return r.maxSize
}

func (r *Reader) atEnd() bool {
	return r.selected < 0 || r.pos >= len(r.samples)
}

// ReadSampleData copies the current sample into buf without advancing.
func (r *Reader) ReadSampleData(buf []byte) (int, error) {
	if r.closed || r.selected < 0 {
		return 0, fmt.Errorf("%w: no track selected", ErrIllegalState)
	}
	if r.atEnd() {
		return 0, ErrEndOfStream
	}
	if len(buf) < r.samples[r.pos].Size {
		return 0, io.ErrShortBuffer
	}

	n, err := r.demuxer.ReadSample(r.tracks[r.selected].Index, r.pos, buf)
	if err != nil {
		return 0, fmt.Errorf("read sample %d: %w", r.pos, err)
	}
	return n, nil
}

// SampleTime returns the presentation time of the current sample in
// microseconds, or -1 at end of stream.
func (r *Reader) SampleTime() int64 {
	if r.atEnd() {
		return -1
	}
	return r.samples[r.pos].PresentationTimeUs
}

// SampleFlags returns the flags of the current sample, or FlagEndOfStream
// at end of stream.
func (r *Reader) SampleFlags() ports.SampleFlags {
	if r.atEnd() {
		return ports.FlagEndOfStream
	}
	return r.samples[r.pos].Flags
}

// SampleSize returns the size of the current sample, or -1 at end of stream.
func (r *Reader) SampleSize() int {
	if r.atEnd() {
		return -1
	}
	return r.samples[r.pos].Size
}

// Advance moves to the next sample. It returns false when no sample remains.
func (r *Reader) Advance() bool {
	if r.atEnd() {
		return false
	}
	r.pos++
	return !r.atEnd()
}

// ReadNextSample reads the current sample into buf and advances.
// For a track of N samples exactly N calls succeed; the next returns
// ErrEndOfStream.
func (r *Reader) ReadNextSample(buf []byte) (int, int64, error) {
	n, err := r.ReadSampleData(buf)
	if err != nil {
		return 0, -1, err
	}
	pts := r.SampleTime()
	r.pos++
	return n, pts, nil
}

// SeekTo positions the reader on a sync sample chosen by mode.
// A SeekNextSync past the last sync sample leaves the reader at end of stream.
func (r *Reader) SeekTo(timeUs int64, mode SeekMode) error {
	if r.closed || r.selected < 0 {
		return fmt.Errorf("%w: no track selected", ErrIllegalState)
	}
	if len(r.samples) == 0 {
		r.pos = 0
		return nil
	}

	prev, next := -1, -1
	for _, i := range r.syncs {
		pts := r.samples[i].PresentationTimeUs
		if pts <= timeUs {
			prev = i
		}
		if pts >= timeUs && next < 0 {
			next = i
		}
	}

	target := len(r.samples)
	switch mode {
	case SeekPreviousSync:
		target = prev
		if target < 0 {
			target = r.syncs[0]
		}
	case SeekNextSync:
		if next >= 0 {
			target = next
		}
	case SeekClosestSync:
		switch {
		case prev < 0:
			target = next
		case next < 0:
			target = prev
		case timeUs-r.samples[prev].PresentationTimeUs <= r.samples[next].PresentationTimeUs-timeUs:
			target = prev
		default:
			target = next
		}
	default:
		return fmt.Errorf("%w: unknown seek mode %v", ErrIllegalState, mode)
	}

	r.pos = target
	return nil
}

// SeekToStart rewinds to the sync point at or before time zero, falling back
// to the first sync sample.
func (r *Reader) SeekToStart() error {
	return r.SeekTo(0, SeekPreviousSync)
}

// Close releases the demuxer. Further reads fail with ErrIllegalState.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.logger.Debug("Closed source")
	return r.demuxer.Close()
}
