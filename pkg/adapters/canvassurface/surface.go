// Package canvassurface provides a software display surface that composes
// the latest decoded frame onto a canvas and writes it as numbered image files.
package canvassurface

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"sync"

	"github.com/user/pixelvideo/pkg/ports"
)

// ErrNoViewport is returned by DrawFrame when neither Resize nor the decoder
// format provided a size.
var ErrNoViewport = errors.New("canvassurface: viewport size unknown")

// Options configures the surface.
type Options struct {
	// Dir is the output directory for composed frames.
	Dir string

	Format  ports.ImageFormat
	Quality int

	// Background fills the letterbox bars.
	Background color.Color

	// Overlay draws the presentation time at the bottom of each frame.
	Overlay  bool
	FontPath string
	FontSize float64
}

// Stats counts surface activity.
type Stats struct {
	FramesQueued   int
	FramesReplaced int // queued frames overwritten before a draw tick
	FramesWritten  int
	Draws          int
}

// Surface implements ports.Surface.
type Surface struct {
	renderer ports.Renderer
	fs       ports.FileSystem
	opts     Options
	logger   ports.Logger

	mu       sync.Mutex
	latest   ports.Frame
	pending  bool
	format   ports.MediaFormat
	width    int
	height   int
	dirReady bool
	stats    Stats
}

// New creates a canvas surface.
func New(renderer ports.Renderer, fs ports.FileSystem, opts Options, logger ports.Logger) *Surface {
	if opts.Background == nil {
		opts.Background = color.Black
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 16
	}
	return &Surface{
		renderer: renderer,
		fs:       fs,
		opts:     opts,
		logger:   logger.WithComponent("canvas"),
	}
}

// QueueFrame keeps frame as the latest one. It never blocks on drawing.
func (s *Surface) QueueFrame(frame ports.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		s.stats.FramesReplaced++
	}
	s.latest = frame
	s.pending = true
	s.stats.FramesQueued++
	return nil
}

// SetFormat records the decoder output format.
func (s *Surface) SetFormat(format ports.MediaFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.logger.Debug("Surface format %dx%d (%s, %s range)", format.Width, format.Height, format.Color.Standard(), format.Color.Range())
}

// Resize sets the viewport. Zero sizes fall back to the frame size.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

// DrawFrame composes the latest frame if a new one arrived since the last
// tick, and writes it to the output directory.
func (s *Surface) DrawFrame() error {
	s.mu.Lock()
	s.stats.Draws++
	if !s.pending {
		s.mu.Unlock()
		return nil
	}
	frame := s.latest
	s.pending = false
	width, height := s.viewportLocked(frame)
	index := s.stats.FramesWritten
	needDir := !s.dirReady
	s.mu.Unlock()

	if width <= 0 || height <= 0 {
		return ErrNoViewport
	}

	canvas := s.renderer.CreateCanvas(width, height, s.opts.Background)
	if frame.Image != nil {
		b := frame.Image.Bounds()
		x, y, w, h := Letterbox(b.Dx(), b.Dy(), width, height)
		canvas.DrawImageScaled(frame.Image, x, y, w, h)
	}
	if s.opts.Overlay {
		s.drawOverlay(canvas, frame, width, height)
	}

	data, err := s.renderer.EncodeImage(canvas.ToImage(), s.opts.Format, s.opts.Quality)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", index, err)
	}

	if needDir {
		if err := s.fs.MkdirAll(s.opts.Dir); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	path := filepath.Join(s.opts.Dir, fmt.Sprintf("frame-%05d.%s", index, s.opts.Format.Extension()))
	if err := s.fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("write frame %d: %w", index, err)
	}

	s.mu.Lock()
	s.dirReady = true
	s.stats.FramesWritten++
	s.mu.Unlock()

	s.logger.Debug("Wrote %s (%d us)", path, frame.PresentationTimeUs)
	return nil
}

func (s *Surface) viewportLocked(frame ports.Frame) (int, int) {
	if s.width > 0 && s.height > 0 {
		return s.width, s.height
	}
	if frame.Image != nil {
		b := frame.Image.Bounds()
		return b.Dx(), b.Dy()
	}
	return s.format.Width, s.format.Height
}

func (s *Surface) drawOverlay(canvas ports.Canvas, frame ports.Frame, width, height int) {
	label := FormatTimestamp(frame.PresentationTimeUs)
	if frame.Image == nil {
		label += fmt.Sprintf("  %d bytes", len(frame.Data))
	}

	style := ports.TextStyle{
		FontSize: s.opts.FontSize,
		FontPath: s.opts.FontPath,
		Color:    color.White,
		Align:    ports.AlignLeft,
	}
	_, textHeight := canvas.MeasureText(label, style)
	bar := int(textHeight) + 8
	if bar > height {
		bar = height
	}

	canvas.DrawRect(0, height-bar, width, bar, color.RGBA{0, 0, 0, 160})
	canvas.DrawText(label, 8, height-bar/2, style)
}

// Stats returns surface counters.
func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Letterbox fits a srcW x srcH picture into a dstW x dstH viewport keeping
// its aspect ratio, centred.
func Letterbox(srcW, srcH, dstW, dstH int) (x, y, w, h int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, dstW, dstH
	}
	if srcW*dstH > srcH*dstW {
		w = dstW
		h = (srcH*dstW + srcW/2) / srcW
	} else {
		h = dstH
		w = (srcW*dstH + srcH/2) / srcH
	}
	return (dstW - w) / 2, (dstH - h) / 2, w, h
}

// FormatTimestamp renders microseconds as mm:ss.mmm.
func FormatTimestamp(us int64) string {
	if us < 0 {
		us = 0
	}
	ms := us / 1000
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

var _ ports.Surface = (*Surface)(nil)
