// Package playback wires a Source Reader, a codec and a Decode Pump into one
// looping playback session.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/pixelvideo/pkg/ports"
	"github.com/user/pixelvideo/pkg/pump"
	"github.com/user/pixelvideo/pkg/source"
)

// ErrIllegalState is returned for Start on a running controller and for
// calls on a stopped one.
var ErrIllegalState = pump.ErrIllegalState

// ErrNotStarted is returned by Wait before Start.
var ErrNotStarted = errors.New("playback: not started")

// Controller owns one playback session.
type Controller struct {
	factory ports.CodecFactory
	opts    pump.Options
	logger  ports.Logger

	mu      sync.Mutex
	reader  *source.Reader
	pump    *pump.Pump
	track   ports.Track
	stopped bool
}

// NewController creates a controller that obtains decoders from factory.
func NewController(factory ports.CodecFactory, opts pump.Options, logger ports.Logger) *Controller {
	return &Controller{
		factory: factory,
		opts:    opts,
		logger:  logger.WithComponent("playback"),
	}
}

// Start opens demuxer, selects its video track and starts decoding to surface.
// The controller takes ownership of demuxer. Setup errors are returned here;
// errors during playback are delivered on Errors.
func (c *Controller) Start(ctx context.Context, demuxer ports.Demuxer, surface ports.Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("%w: controller stopped", ErrIllegalState)
	}
	if c.pump != nil {
		return fmt.Errorf("%w: already playing", ErrIllegalState)
	}
	if err := ctx.Err(); err != nil {
		if demuxer != nil {
			demuxer.Close()
		}
		return err
	}

	reader, err := source.Open(demuxer, c.logger)
	if err != nil {
		return err
	}

	track, err := reader.SelectVideoTrack()
	if err != nil {
		reader.Close()
		return err
	}
	c.logger.Info("Selected video track %d: %s", track.Index, track.Format)

	codec, err := c.factory.CreateDecoderByType(track.MIME)
	if err != nil {
		reader.Close()
		return fmt.Errorf("create decoder for %s: %w", track.MIME, err)
	}

	p := pump.New(codec, reader, track.Format, c.opts, c.logger)
	if err := p.Start(surface); err != nil {
		p.Stop()
		reader.Close()
		return err
	}

	c.reader = reader
	c.pump = p
	c.track = track
	return nil
}

// Stop stops the pump, then closes the source. It is safe to call more
// than once and before Start. Stop must not be called from a codec callback.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	var errs []error
	if c.pump != nil {
		if err := c.pump.Stop(); err != nil {
			errs = append(errs, err)
		}
		stats := c.pump.Stats()
		c.logger.Info("Played %d frames in %d loops", stats.FramesRendered, stats.LoopsCompleted)
	}
	if c.reader != nil {
		if err := c.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until the session finishes its loops, a decoder error breaks
// it, or ctx ends. It does not stop the session.
func (c *Controller) Wait(ctx context.Context) error {
	p := c.current()
	if p == nil {
		return ErrNotStarted
	}
	select {
	case <-p.Done():
		return nil
	case err := <-p.Errors():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the session ends. It is nil before Start.
func (c *Controller) Done() <-chan struct{} {
	if p := c.current(); p != nil {
		return p.Done()
	}
	return nil
}

// Errors delivers steady-state decoder errors. It is nil before Start.
func (c *Controller) Errors() <-chan error {
	if p := c.current(); p != nil {
		return p.Errors()
	}
	return nil
}

// Stats returns pump counters; zero before Start.
func (c *Controller) Stats() pump.Stats {
	if p := c.current(); p != nil {
		return p.Stats()
	}
	return pump.Stats{}
}

// Session returns the session snapshot and reports whether a session exists.
func (c *Controller) Session() (pump.Session, bool) {
	if p := c.current(); p != nil {
		return p.Session(), true
	}
	return pump.Session{}, false
}

// Track returns the selected video track.
func (c *Controller) Track() (ports.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track, c.pump != nil
}

func (c *Controller) current() *pump.Pump {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pump
}
