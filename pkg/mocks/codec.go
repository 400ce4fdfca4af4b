package mocks

import (
	"errors"
	"sync"

	"github.com/user/pixelvideo/pkg/ports"
)

var (
	// ErrMockStopped is returned by Codec buffer calls after Stop.
	ErrMockStopped = errors.New("mocks: codec stopped")

	// ErrMockNotOwned is returned when releasing an output buffer that is not outstanding.
	ErrMockNotOwned = errors.New("mocks: output buffer not outstanding")
)

// QueuedInput records one QueueInputBuffer call.
type QueuedInput struct {
	ID    int
	Size  int
	PTS   int64
	Flags ports.SampleFlags
	Data  []byte
}

// ReleasedOutput records one output buffer release.
type ReleasedOutput struct {
	ID     int
	Render bool
	Timed  bool
	PTS    int64
}

// Codec is a mock implementation of ports.Codec. Tests drive the callback
// by calling the receiver directly or through EmitOutput.
type Codec struct {
	mu sync.Mutex

	BufferSize   int
	StartErr     error
	ConfigureErr error
	QueueErr     error

	callback ports.CodecCallback
	format   ports.MediaFormat
	surface  ports.Surface
	running  bool

	inputs      map[int][]byte
	outstanding map[int]bool

	queued          []QueuedInput
	released        []ReleasedOutput
	invalidReleases int

	configureCount int
	startCount     int
	stopCount      int
	flushCount     int
	releaseCount   int
}

// NewCodec creates a mock codec with 64-byte input buffers.
func NewCodec() *Codec {
	return &Codec{
		BufferSize:  64,
		inputs:      make(map[int][]byte),
		outstanding: make(map[int]bool),
	}
}

func (m *Codec) SetCallback(cb ports.CodecCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

func (m *Codec) Configure(format ports.MediaFormat, surface ports.Surface) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configureCount++
	if m.ConfigureErr != nil {
		return m.ConfigureErr
	}
	m.format = format
	m.surface = surface
	return nil
}

func (m *Codec) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCount++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.running = true
	return nil
}

func (m *Codec) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCount++
	m.running = false
	m.outstanding = make(map[int]bool)
	return nil
}

func (m *Codec) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCount++
	m.outstanding = make(map[int]bool)
	return nil
}

func (m *Codec) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCount++
	m.running = false
}

func (m *Codec) GetInputBuffer(id int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, ErrMockStopped
	}
	buf, ok := m.inputs[id]
	if !ok {
		buf = make([]byte, m.BufferSize)
		m.inputs[id] = buf
	}
	return buf, nil
}

func (m *Codec) QueueInputBuffer(id, offset, size int, presentationTimeUs int64, flags ports.SampleFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrMockStopped
	}
	if m.QueueErr != nil {
		return m.QueueErr
	}
	data := append([]byte(nil), m.inputs[id][offset:offset+size]...)
	m.queued = append(m.queued, QueuedInput{ID: id, Size: size, PTS: presentationTimeUs, Flags: flags, Data: data})
	return nil
}

func (m *Codec) ReleaseOutputBuffer(id int, render bool) error {
	return m.release(ReleasedOutput{ID: id, Render: render})
}

func (m *Codec) ReleaseOutputBufferAtTime(id int, presentationTimeUs int64) error {
	return m.release(ReleasedOutput{ID: id, Render: true, Timed: true, PTS: presentationTimeUs})
}

func (m *Codec) release(r ReleasedOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrMockStopped
	}
	if !m.outstanding[r.ID] {
		m.invalidReleases++
		return ErrMockNotOwned
	}
	delete(m.outstanding, r.ID)
	m.released = append(m.released, r)
	return nil
}

func (m *Codec) OutputFormat() ports.MediaFormat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format
}

// EmitOutput marks output buffer id outstanding and delivers it to the callback.
func (m *Codec) EmitOutput(id int, info ports.BufferInfo) {
	m.mu.Lock()
	m.outstanding[id] = true
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb.OnOutputBufferAvailable(id, info)
	}
}

// Callback returns the registered callback receiver.
func (m *Codec) Callback() ports.CodecCallback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callback
}

// Queued returns the recorded QueueInputBuffer calls.
func (m *Codec) Queued() []QueuedInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueuedInput, len(m.queued))
	copy(out, m.queued)
	return out
}

// Released returns the recorded output releases.
func (m *Codec) Released() []ReleasedOutput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReleasedOutput, len(m.released))
	copy(out, m.released)
	return out
}

// InvalidReleases counts releases of buffers that were not outstanding.
func (m *Codec) InvalidReleases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidReleases
}

// Running reports whether Start succeeded and Stop was not called since.
func (m *Codec) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Counts returns how often each lifecycle method was called.
func (m *Codec) Counts() (configure, start, stop, flush, release int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configureCount, m.startCount, m.stopCount, m.flushCount, m.releaseCount
}

var _ ports.Codec = (*Codec)(nil)

// CodecFactory is a mock implementation of ports.CodecFactory.
type CodecFactory struct {
	mu sync.Mutex

	Err     error
	NewFunc func(mime string) *Codec
	created []*Codec
	mimes   []string
}

func (f *CodecFactory) CreateDecoderByType(mime string) (ports.Codec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mimes = append(f.mimes, mime)
	if f.Err != nil {
		return nil, f.Err
	}
	var c *Codec
	if f.NewFunc != nil {
		c = f.NewFunc(mime)
	} else {
		c = NewCodec()
	}
	f.created = append(f.created, c)
	return c, nil
}

// Created returns the codecs created so far.
func (f *CodecFactory) Created() []*Codec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Codec, len(f.created))
	copy(out, f.created)
	return out
}

// MIMEs returns the requested MIME types.
func (f *CodecFactory) MIMEs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.mimes))
	copy(out, f.mimes)
	return out
}

var _ ports.CodecFactory = (*CodecFactory)(nil)
