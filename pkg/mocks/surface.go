package mocks

import (
	"sync"

	"github.com/user/pixelvideo/pkg/ports"
)

// Surface is a mock implementation of ports.Surface that records calls.
type Surface struct {
	mu sync.Mutex

	QueueFrameFunc func(frame ports.Frame) error
	DrawFrameFunc  func() error

	frames  []ports.Frame
	formats []ports.MediaFormat
	width   int
	height  int
	draws   int
	notify  chan struct{}
}

// NewSurface creates a mock surface.
func NewSurface() *Surface {
	return &Surface{notify: make(chan struct{}, 1024)}
}

func (m *Surface) QueueFrame(frame ports.Frame) error {
	if m.QueueFrameFunc != nil {
		if err := m.QueueFrameFunc(frame); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.frames = append(m.frames, frame)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *Surface) SetFormat(format ports.MediaFormat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formats = append(m.formats, format)
}

func (m *Surface) Resize(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.width, m.height = width, height
}

func (m *Surface) DrawFrame() error {
	if m.DrawFrameFunc != nil {
		if err := m.DrawFrameFunc(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draws++
	return nil
}

// Frames returns the queued frames.
func (m *Surface) Frames() []ports.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// Formats returns the formats received through SetFormat.
func (m *Surface) Formats() []ports.MediaFormat {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.MediaFormat, len(m.formats))
	copy(out, m.formats)
	return out
}

// Size returns the last size passed to Resize.
func (m *Surface) Size() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

// Draws returns the number of DrawFrame calls.
func (m *Surface) Draws() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draws
}

// Notify receives a value after each queued frame.
func (m *Surface) Notify() <-chan struct{} {
	return m.notify
}

var _ ports.Surface = (*Surface)(nil)
