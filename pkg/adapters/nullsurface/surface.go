// Package nullsurface provides a surface that discards frames.
package nullsurface

import (
	"sync/atomic"

	"github.com/user/pixelvideo/pkg/ports"
)

// Surface is a no-op implementation of ports.Surface.
// It only counts what it receives.
type Surface struct {
	frames atomic.Int64
	draws  atomic.Int64
}

// New creates a new null surface.
func New() *Surface {
	return &Surface{}
}

// QueueFrame discards the frame.
func (s *Surface) QueueFrame(frame ports.Frame) error {
	s.frames.Add(1)
	return nil
}

// SetFormat does nothing.
func (s *Surface) SetFormat(format ports.MediaFormat) {}

// Resize does nothing.
func (s *Surface) Resize(width, height int) {}

// DrawFrame does nothing.
func (s *Surface) DrawFrame() error {
	s.draws.Add(1)
	return nil
}

// Frames returns the number of frames discarded.
func (s *Surface) Frames() int64 {
	return s.frames.Load()
}

// Draws returns the number of draw ticks.
func (s *Surface) Draws() int64 {
	return s.draws.Load()
}

// Ensure Surface implements ports.Surface
var _ ports.Surface = (*Surface)(nil)
