package mocks

import (
	"image"
	"sync"

	"github.com/user/pixelvideo/pkg/ports"
)

// FrameDecoder is a mock implementation of ports.FrameDecoder. By default it
// returns a 16x16 picture for every unit.
type FrameDecoder struct {
	mu sync.Mutex

	InitErr         error
	DecodeFrameFunc func(annexB []byte) (image.Image, error)

	units  [][]byte
	resets int
	closed bool
}

func (m *FrameDecoder) Init() error {
	return m.InitErr
}

func (m *FrameDecoder) DecodeFrame(annexB []byte) (image.Image, error) {
	m.mu.Lock()
	m.units = append(m.units, append([]byte(nil), annexB...))
	fn := m.DecodeFrameFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(annexB)
	}
	return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
}

func (m *FrameDecoder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *FrameDecoder) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Units returns the access units passed to DecodeFrame.
func (m *FrameDecoder) Units() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.units))
	copy(out, m.units)
	return out
}

// Resets returns the number of Reset calls.
func (m *FrameDecoder) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Closed reports whether Close was called.
func (m *FrameDecoder) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ ports.FrameDecoder = (*FrameDecoder)(nil)
