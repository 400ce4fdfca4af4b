// Package pump feeds compressed samples from a Source Reader into an
// asynchronous codec and releases decoded frames to a surface, looping
// playback at end of stream.
package pump

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/user/pixelvideo/pkg/ports"
	"github.com/user/pixelvideo/pkg/source"
)

var (
	// ErrIllegalState is returned for calls that do not fit the session state.
	ErrIllegalState = errors.New("pump: illegal state")

	// ErrEmptyTrack is reported when the track has no samples to loop over.
	ErrEmptyTrack = errors.New("pump: track has no samples")
)

// SampleSource is the part of the Source Reader the pump consumes.
type SampleSource interface {
	ReadSampleData(buf []byte) (int, error)
	SampleTime() int64
	SampleFlags() ports.SampleFlags
	Advance() bool
	SeekToStart() error
}

var _ SampleSource = (*source.Reader)(nil)

// Session is a snapshot of the running session.
type Session struct {
	Format                 ports.MediaFormat
	State                  State
	LoopsCompleted         int
	LastPresentationTimeUs int64
}

// Pump implements ports.CodecCallback.
//
// Callbacks are serialised by cbMu. Stop takes cbMu once to wait for the
// callback in flight, then stops the codec without holding it.
type Pump struct {
	codec  ports.Codec
	src    SampleSource
	format ports.MediaFormat
	opts   Options
	logger ports.Logger

	cbMu     sync.Mutex
	stopping atomic.Bool

	// Owned by the callback goroutine, guarded by cbMu.
	sendEOS       bool
	awaitingFlush bool
	finalPass     bool
	finished      bool
	passStart     bool
	lastPts       int64

	mu      sync.Mutex
	state   State
	surface ports.Surface
	stats   Stats

	errs     chan error
	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
	stopErr  error
}

// New creates a pump for one track. The pump owns codec: Stop releases it.
func New(codec ports.Codec, src SampleSource, format ports.MediaFormat, opts Options, logger ports.Logger) *Pump {
	return &Pump{
		codec:  codec,
		src:    src,
		format: format,
		opts:   opts,
		logger: logger.WithComponent("pump"),
		errs:   make(chan error, 8),
		done:   make(chan struct{}),
	}
}

// Configure binds the codec to the track format and the surface.
func (p *Pump) Configure(surface ports.Surface) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configureLocked(surface)
}

func (p *Pump) configureLocked(surface ports.Surface) error {
	if p.state != StateUnconfigured {
		return fmt.Errorf("%w: configure in state %s", ErrIllegalState, p.state)
	}
	p.codec.SetCallback(p)
	if err := p.codec.Configure(p.format, surface); err != nil {
		return fmt.Errorf("configure codec: %w", err)
	}
	p.surface = surface
	p.state = StateConfigured
	return nil
}

// Start configures the codec if needed and starts it. Calling Start on a
// running session returns ErrIllegalState and leaves the codec untouched.
func (p *Pump) Start(surface ports.Surface) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateUnconfigured:
		if err := p.configureLocked(surface); err != nil {
			return err
		}
	case StateConfigured:
	default:
		return fmt.Errorf("%w: start in state %s", ErrIllegalState, p.state)
	}

	if err := p.codec.Start(); err != nil {
		return fmt.Errorf("start codec: %w", err)
	}
	p.state = StateRunning
	p.logger.Info("Decoding %s (%dx%d), end-of-stream policy %s", p.format.MIME, p.format.Width, p.format.Height, p.opts.EOSPolicy)
	return nil
}

// Stop waits for the callback in flight, marks the session stopped, then
// stops and releases the codec. Later callbacks are ignored. Stop is
// idempotent and must not be called from a callback.
func (p *Pump) Stop() error {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)

		p.cbMu.Lock()
		//nolint:staticcheck // empty critical section waits for the callback in flight
		p.cbMu.Unlock()

		p.mu.Lock()
		wasActive := p.state != StateUnconfigured
		p.state = StateStopped
		p.mu.Unlock()

		if wasActive {
			if err := p.codec.Stop(); err != nil {
				p.stopErr = fmt.Errorf("stop codec: %w", err)
			}
			p.codec.Release()
		}

		p.finish()
		p.logger.Info("Stopped after %d loops", p.Stats().LoopsCompleted)
	})
	return p.stopErr
}

// State returns the session state.
func (p *Pump) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns activity counters.
func (p *Pump) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Session returns a snapshot of the session.
func (p *Pump) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Session{
		Format:                 p.format,
		State:                  p.state,
		LoopsCompleted:         p.stats.LoopsCompleted,
		LastPresentationTimeUs: p.stats.LastPresentationTimeUs,
	}
}

// Done is closed when the configured number of loops has been played or
// the pump is stopped.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Errors delivers codec errors. Sends never block; errors beyond the
// buffer are only logged.
func (p *Pump) Errors() <-chan error {
	return p.errs
}

func (p *Pump) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

// active reports whether callbacks should still act. Call with cbMu held.
func (p *Pump) active() bool {
	if p.stopping.Load() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning
}

// OnInputBufferAvailable fills input buffer id with the next sample.
func (p *Pump) OnInputBufferAvailable(id int) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()

	// Input offered after end of stream is held until the codec is flushed.
	if !p.active() || p.finished || p.awaitingFlush {
		return
	}

	buf, err := p.codec.GetInputBuffer(id)
	if err != nil {
		p.fail(fmt.Errorf("get input buffer %d: %w", id, err))
		return
	}

	if p.sendEOS {
		p.sendEOS = false
		p.queue(id, 0, p.lastPts, ports.FlagEndOfStream)
		if p.finalPass {
			p.finished = true
			p.logger.Debug("Queued final end of stream")
			return
		}
		p.awaitingFlush = true
		p.rewind()
		return
	}

	size, err := p.src.ReadSampleData(buf)
	if errors.Is(err, source.ErrEndOfStream) {
		// The reader was already exhausted: rewind and let the slot cycle.
		if !p.rewind() {
			return
		}
		if p.src.SampleTime() < 0 {
			p.fail(ErrEmptyTrack)
			return
		}
		p.passStart = true
		p.queue(id, 0, 0, 0)
		return
	}
	if err != nil {
		p.fail(fmt.Errorf("read sample: %w", err))
		return
	}

	pts := p.src.SampleTime()
	flags := p.src.SampleFlags() & ports.FlagSync
	lastOfPass := !p.src.Advance()

	if lastOfPass {
		loops := p.completePass()
		switch {
		case p.opts.MaxLoops > 0 && loops >= p.opts.MaxLoops:
			p.finalPass = true
			p.sendEOS = true
		case p.opts.EOSPolicy == EOSDrain:
			p.sendEOS = true
		default:
			p.rewind()
		}
	}

	p.queue(id, size, pts, flags)
	if lastOfPass {
		p.passStart = true
	}
}

// queue submits input buffer id, failing the session on error. The first
// sample of every pass after the first carries FlagDiscontinuity.
func (p *Pump) queue(id, size int, pts int64, flags ports.SampleFlags) {
	if size > 0 && p.passStart {
		flags |= ports.FlagDiscontinuity
		p.passStart = false
	}
	if err := p.codec.QueueInputBuffer(id, 0, size, pts, flags); err != nil {
		p.fail(fmt.Errorf("queue input buffer %d: %w", id, err))
		return
	}
	if size > 0 {
		p.lastPts = pts
		p.mu.Lock()
		p.stats.SamplesQueued++
		p.mu.Unlock()
	}
	p.logger.Debug("Queued input %d: %d bytes at %d us (flags %d)", id, size, pts, flags)
}

func (p *Pump) completePass() int {
	p.mu.Lock()
	p.stats.LoopsCompleted++
	loops := p.stats.LoopsCompleted
	p.mu.Unlock()
	p.logger.Info("Completed pass %d", loops)
	return loops
}

func (p *Pump) rewind() bool {
	if err := p.src.SeekToStart(); err != nil {
		p.fail(fmt.Errorf("rewind: %w", err))
		return false
	}
	return true
}

// OnOutputBufferAvailable releases output buffer id to the surface.
func (p *Pump) OnOutputBufferAvailable(id int, info ports.BufferInfo) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()

	if !p.active() {
		if !p.stopping.Load() && p.State() == StateBroken {
			if err := p.codec.ReleaseOutputBuffer(id, false); err != nil {
				p.logger.Debug("Release of output buffer %d failed: %v", id, err)
			}
		}
		return
	}

	if info.Size > 0 {
		var err error
		if p.opts.RenderMode == RenderAtTimestamp {
			err = p.codec.ReleaseOutputBufferAtTime(id, info.PresentationTimeUs)
		} else {
			err = p.codec.ReleaseOutputBuffer(id, true)
		}

		p.mu.Lock()
		if err != nil {
			p.stats.FramesDropped++
		} else {
			p.stats.FramesRendered++
			p.stats.LastPresentationTimeUs = info.PresentationTimeUs
		}
		p.mu.Unlock()

		if err != nil {
			p.logger.Warn("Dropped frame at %d us: %v", info.PresentationTimeUs, err)
		}
	} else if err := p.codec.ReleaseOutputBuffer(id, false); err != nil {
		p.logger.Warn("Release of output buffer %d failed: %v", id, err)
	}

	if info.Flags.Has(ports.FlagEndOfStream) {
		p.onEndOfStream()
	}
}

func (p *Pump) onEndOfStream() {
	if p.finished {
		p.logger.Info("Playback finished")
		p.finish()
		return
	}

	if err := p.codec.Flush(); err != nil {
		p.fail(fmt.Errorf("flush: %w", err))
		return
	}
	p.awaitingFlush = false
	p.logger.Debug("Decoder drained, starting next pass")
}

// OnError marks the session broken and publishes the error. Outputs that
// arrive on a broken session are returned to the codec without rendering,
// and no further input is queued until Stop.
func (p *Pump) OnError(err error) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()

	if p.stopping.Load() {
		return
	}
	p.fail(err)
}

// fail records err and breaks the session. Call with cbMu held.
func (p *Pump) fail(err error) {
	p.logger.Error("Decoder error: %v", err)

	p.mu.Lock()
	p.stats.Errors++
	if p.state == StateRunning {
		p.state = StateBroken
	}
	p.mu.Unlock()

	select {
	case p.errs <- err:
	default:
	}
}

// OnOutputFormatChanged logs the colour metadata and forwards the format to the surface.
func (p *Pump) OnOutputFormatChanged(format ports.MediaFormat) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()

	if !p.active() {
		return
	}

	p.logger.Info("Output format changed: %dx%d", format.Width, format.Height)
	p.logger.Info("color-standard: %s", format.Color.Standard())
	p.logger.Info("color-range: %s", format.Color.Range())
	p.logger.Info("color-transfer: %s", format.Color.TransferName())
	p.logger.Info("color-format: %s", format.ColorFormat)

	p.mu.Lock()
	p.stats.FormatChanges++
	surface := p.surface
	p.mu.Unlock()

	if surface != nil {
		surface.SetFormat(format)
	}
}

var _ ports.CodecCallback = (*Pump)(nil)
