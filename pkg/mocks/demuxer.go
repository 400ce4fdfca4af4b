package mocks

import (
	"errors"
	"io"
	"sync"

	"github.com/user/pixelvideo/pkg/ports"
)

// ErrMockRange is returned by Demuxer for unknown tracks or samples.
var ErrMockRange = errors.New("mocks: index out of range")

// Demuxer is an in-memory mock implementation of ports.Demuxer.
type Demuxer struct {
	mu      sync.Mutex
	tracks  []ports.Track
	samples map[int][]MockSample
	closed  int

	ReadSampleFunc func(track, i int, dst []byte) (int, error)
}

// MockSample is one sample of a mock track.
type MockSample struct {
	Data  []byte
	PTS   int64
	Flags ports.SampleFlags
}

// NewDemuxer creates a demuxer with the given tracks. Track indexes are
// assigned in order.
func NewDemuxer(mimes ...string) *Demuxer {
	d := &Demuxer{samples: make(map[int][]MockSample)}
	for i, mime := range mimes {
		d.tracks = append(d.tracks, ports.Track{
			Index:  i,
			MIME:   mime,
			Format: ports.MediaFormat{MIME: mime, Width: 320, Height: 240, Timescale: 90000, NALLengthSize: 4},
		})
	}
	return d
}

// AddSamples appends samples to a track.
func (m *Demuxer) AddSamples(track int, samples ...MockSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[track] = append(m.samples[track], samples...)
}

// AddTimestamps appends one sync sample per timestamp. Each payload is a
// single byte holding the sample's ordinal.
func (m *Demuxer) AddTimestamps(track int, pts ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pts {
		n := len(m.samples[track])
		m.samples[track] = append(m.samples[track], MockSample{
			Data:  []byte{byte(n)},
			PTS:   p,
			Flags: ports.FlagSync,
		})
	}
}

func (m *Demuxer) Tracks() []ports.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Track, len(m.tracks))
	copy(out, m.tracks)
	return out
}

func (m *Demuxer) SampleCount(track int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if track < 0 || track >= len(m.tracks) {
		return 0, ErrMockRange
	}
	return len(m.samples[track]), nil
}

func (m *Demuxer) SampleInfo(track, i int) (ports.SampleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sample(track, i)
	if !ok {
		return ports.SampleInfo{}, ErrMockRange
	}
	return ports.SampleInfo{
		PresentationTimeUs: s.PTS,
		DecodeTimeUs:       s.PTS,
		Size:               len(s.Data),
		Flags:              s.Flags,
	}, nil
}

func (m *Demuxer) ReadSample(track, i int, dst []byte) (int, error) {
	if m.ReadSampleFunc != nil {
		return m.ReadSampleFunc(track, i, dst)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sample(track, i)
	if !ok {
		return 0, ErrMockRange
	}
	if len(dst) < len(s.Data) {
		return 0, io.ErrShortBuffer
	}
	return copy(dst, s.Data), nil
}

func (m *Demuxer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// CloseCount returns how many times Close was called.
func (m *Demuxer) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Demuxer) sample(track, i int) (MockSample, bool) {
	samples := m.samples[track]
	if i < 0 || i >= len(samples) {
		return MockSample{}, false
	}
	return samples[i], true
}

var _ ports.Demuxer = (*Demuxer)(nil)
