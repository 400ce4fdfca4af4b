// Package softcodec implements ports.Codec in software: a pool of input and
// output buffers, one callback goroutine and a presenter goroutine for
// timed release. Pictures come from a ports.FrameDecoder; without one the
// codec forwards Annex B access units untouched.
package softcodec

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/user/pixelvideo/pkg/bitstream"
	"github.com/user/pixelvideo/pkg/ports"
)

var (
	// ErrStopped is returned for buffer operations on a codec that is not running.
	ErrStopped = errors.New("softcodec: codec stopped")

	// ErrReleased is returned for any call after Release.
	ErrReleased = errors.New("softcodec: codec released")

	// ErrIllegalState is returned for calls that do not fit the codec state.
	ErrIllegalState = errors.New("softcodec: illegal state")

	// ErrInvalidBuffer is returned for an unknown buffer id.
	ErrInvalidBuffer = errors.New("softcodec: invalid buffer id")

	// ErrBufferNotOwned is returned when the caller does not hold the buffer,
	// for example on a second release of the same output buffer.
	ErrBufferNotOwned = errors.New("softcodec: buffer not owned by caller")
)

// Defaults for Options.
const (
	DefaultInputBuffers    = 4
	DefaultOutputBuffers   = 4
	DefaultInputBufferSize = 2 << 20
)

// Options configures a Codec.
type Options struct {
	InputBuffers    int
	OutputBuffers   int
	InputBufferSize int

	// Now overrides the wall clock used for timed release.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.InputBuffers <= 0 {
		o.InputBuffers = DefaultInputBuffers
	}
	if o.OutputBuffers <= 0 {
		o.OutputBuffers = DefaultOutputBuffers
	}
	if o.InputBufferSize <= 0 {
		o.InputBufferSize = DefaultInputBufferSize
	}
	return o
}

// Stats counts codec activity.
type Stats struct {
	InputsQueued   int
	FramesDecoded  int
	FramesSkipped  int
	FramesRendered int
	DecodeErrors   int
}

type codecState int

const (
	stateUninitialized codecState = iota
	stateConfigured
	stateRunning
	stateStopping
	stateReleased
)

type eventKind int

const (
	eventInput eventKind = iota
	eventOutput
	eventFormat
	eventError
)

type event struct {
	kind   eventKind
	id     int
	info   ports.BufferInfo
	format ports.MediaFormat
	err    error
}

type inputBuffer struct {
	data  []byte
	owned bool
}

type outputBuffer struct {
	frame ports.Frame
	info  ports.BufferInfo
	owned bool
}

type queuedInput struct {
	id     int
	offset int
	size   int
	ptsUs  int64
	flags  ports.SampleFlags
}

type pendingFrame struct {
	generation uint64
	id         int
	frame      ports.Frame
	ptsUs      int64
}

// Codec implements ports.Codec.
type Codec struct {
	mime    string
	opts    Options
	decoder ports.FrameDecoder
	logger  ports.Logger

	mu   sync.Mutex
	cond *sync.Cond
	wg   sync.WaitGroup

	state       codecState
	callback    ports.CodecCallback
	surface     ports.Surface
	format      ports.MediaFormat
	outFormat   ports.MediaFormat
	formatSent  bool
	broken      bool
	decoderInit bool
	generation  uint64
	cancel      context.CancelFunc

	inputs      []inputBuffer
	outputs     []outputBuffer
	queued      []queuedInput
	freeOutputs []int
	events      []event
	pending     []pendingFrame
	presenting  int
	heldEOS     *event
	carryFlags  ports.SampleFlags
	clock       *presentationClock
	stats       Stats
}

// New creates a codec for mime. A nil decoder selects passthrough mode.
func New(mime string, decoder ports.FrameDecoder, opts Options, logger ports.Logger) *Codec {
	opts = opts.withDefaults()
	c := &Codec{
		mime:    mime,
		opts:    opts,
		decoder: decoder,
		logger:  logger.WithComponent("softcodec"),
		clock:   newPresentationClock(opts.Now),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SetCallback registers the callback receiver. Call before Start.
func (c *Codec) SetCallback(cb ports.CodecCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

// Configure binds the codec to the input format and output surface.
func (c *Codec) Configure(format ports.MediaFormat, surface ports.Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateReleased:
		return ErrReleased
	case stateUninitialized:
	default:
		return fmt.Errorf("%w: configure in state %d", ErrIllegalState, c.state)
	}

	if c.decoder != nil && !c.decoderInit {
		if err := c.decoder.Init(); err != nil {
			return &ports.CodecError{MIME: c.mime, Op: "configure", Err: err}
		}
		c.decoderInit = true
	}

	c.format = format
	c.outFormat = format
	c.surface = surface
	c.formatSent = false
	c.broken = false

	c.inputs = make([]inputBuffer, c.opts.InputBuffers)
	for i := range c.inputs {
		c.inputs[i].data = make([]byte, c.opts.InputBufferSize)
	}
	c.outputs = make([]outputBuffer, c.opts.OutputBuffers)

	c.state = stateConfigured
	c.logger.Debug("Configured %s decoder: %s", c.mime, format)
	return nil
}

// Start begins delivering callbacks.
func (c *Codec) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateReleased:
		return ErrReleased
	case stateConfigured:
	default:
		return fmt.Errorf("%w: start in state %d", ErrIllegalState, c.state)
	}
	if c.callback == nil {
		return fmt.Errorf("%w: no callback registered", ErrIllegalState)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = stateRunning
	c.pending = nil
	c.resetBuffersLocked()

	c.wg.Add(2)
	go c.loop()
	go c.present(ctx)

	c.logger.Debug("Started %s decoder", c.mime)
	return nil
}

// Stop halts the callback and presenter goroutines and reclaims all buffers.
// It must not be called from a callback.
func (c *Codec) Stop() error {
	c.mu.Lock()
	switch c.state {
	case stateReleased:
		c.mu.Unlock()
		return ErrReleased
	case stateUninitialized, stateStopping:
		c.mu.Unlock()
		return nil
	case stateConfigured:
		c.state = stateUninitialized
		c.mu.Unlock()
		return nil
	}

	c.state = stateStopping
	c.cancel()
	c.cond.Broadcast()
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	c.generation++
	c.queued = nil
	c.events = nil
	c.pending = nil
	c.presenting = 0
	c.heldEOS = nil
	c.carryFlags = 0
	c.freeOutputs = nil
	for i := range c.inputs {
		c.inputs[i].owned = false
	}
	for i := range c.outputs {
		c.outputs[i] = outputBuffer{}
	}
	c.clock.reset()
	c.state = stateUninitialized
	c.mu.Unlock()

	c.logger.Debug("Stopped %s decoder", c.mime)
	return nil
}

// Flush drops queued input and output buffers the caller has not released,
// then offers every input buffer again. Frames already released for timed
// render belong to the surface and are still presented. It may be called
// from a callback.
func (c *Codec) Flush() error {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return fmt.Errorf("%w: flush while not running", ErrIllegalState)
	}
	c.resetBuffersLocked()
	c.cond.Broadcast()
	c.mu.Unlock()

	if c.decoder != nil {
		c.decoder.Reset()
	}
	c.logger.Debug("Flushed %s decoder", c.mime)
	return nil
}

// resetBuffersLocked returns every buffer to the codec and queues input
// announcements for all of them.
func (c *Codec) resetBuffersLocked() {
	c.generation++
	c.queued = nil
	c.events = nil
	c.heldEOS = nil
	c.carryFlags = 0

	c.freeOutputs = c.freeOutputs[:0]
	for i := range c.outputs {
		c.outputs[i] = outputBuffer{}
		c.freeOutputs = append(c.freeOutputs, i)
	}
	for i := range c.inputs {
		c.inputs[i].owned = false
		c.announceInputLocked(i)
	}
}

// Release stops the codec and frees the decoder.
func (c *Codec) Release() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateReleased {
		return
	}
	c.state = stateReleased
	c.inputs = nil
	c.outputs = nil
	if c.decoder != nil && c.decoderInit {
		c.decoder.Close()
		c.decoderInit = false
	}
}

// GetInputBuffer returns the writable memory of an input buffer the caller holds.
func (c *Codec) GetInputBuffer(id int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.runningLocked(); err != nil {
		return nil, err
	}
	if id < 0 || id >= len(c.inputs) {
		return nil, ErrInvalidBuffer
	}
	if !c.inputs[id].owned {
		return nil, ErrBufferNotOwned
	}
	return c.inputs[id].data, nil
}

// QueueInputBuffer hands an input buffer back to the codec for decoding.
func (c *Codec) QueueInputBuffer(id, offset, size int, presentationTimeUs int64, flags ports.SampleFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.runningLocked(); err != nil {
		return err
	}
	if id < 0 || id >= len(c.inputs) {
		return ErrInvalidBuffer
	}
	if !c.inputs[id].owned {
		return ErrBufferNotOwned
	}
	if offset < 0 || size < 0 || offset+size > len(c.inputs[id].data) {
		return fmt.Errorf("softcodec: input range [%d, %d) outside buffer", offset, offset+size)
	}

	c.inputs[id].owned = false
	c.queued = append(c.queued, queuedInput{
		id:     id,
		offset: offset,
		size:   size,
		ptsUs:  presentationTimeUs,
		flags:  flags,
	})
	c.stats.InputsQueued++
	c.cond.Broadcast()
	return nil
}

// ReleaseOutputBuffer returns an output buffer, queuing its frame on the
// surface first when render is set.
func (c *Codec) ReleaseOutputBuffer(id int, render bool) error {
	c.mu.Lock()
	buf, err := c.takeOutputLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.generation
	surface := c.surface
	c.mu.Unlock()

	if render && buf.info.Size > 0 {
		c.render(surface, buf.frame)
	}
	c.recycleOutput(gen, id)
	return nil
}

// ReleaseOutputBufferAtTime returns an output buffer after its frame has
// been queued on the surface at the presentation time.
func (c *Codec) ReleaseOutputBufferAtTime(id int, presentationTimeUs int64) error {
	c.mu.Lock()
	buf, err := c.takeOutputLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.generation

	if buf.info.Size == 0 {
		c.mu.Unlock()
		c.recycleOutput(gen, id)
		return nil
	}

	c.pending = append(c.pending, pendingFrame{
		generation: gen,
		id:         id,
		frame:      buf.frame,
		ptsUs:      presentationTimeUs,
	})
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

// OutputFormat returns the current output format.
func (c *Codec) OutputFormat() ports.MediaFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outFormat
}

// Stats returns activity counters.
func (c *Codec) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Codec) runningLocked() error {
	switch c.state {
	case stateRunning:
		return nil
	case stateReleased:
		return ErrReleased
	default:
		return ErrStopped
	}
}

func (c *Codec) takeOutputLocked(id int) (outputBuffer, error) {
	if err := c.runningLocked(); err != nil {
		return outputBuffer{}, err
	}
	if id < 0 || id >= len(c.outputs) {
		return outputBuffer{}, ErrInvalidBuffer
	}
	if !c.outputs[id].owned {
		return outputBuffer{}, ErrBufferNotOwned
	}
	buf := c.outputs[id]
	c.outputs[id] = outputBuffer{}
	return buf, nil
}

// recycleOutput makes an output buffer available for decoding unless a
// flush or stop already reclaimed it.
func (c *Codec) recycleOutput(gen uint64, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.state != stateRunning {
		return
	}
	c.freeOutputs = append(c.freeOutputs, id)
	c.cond.Broadcast()
}

func (c *Codec) render(surface ports.Surface, frame ports.Frame) {
	if surface == nil {
		return
	}
	if err := surface.QueueFrame(frame); err != nil {
		c.logger.Warn("Surface rejected frame at %d us: %v", frame.PresentationTimeUs, err)
		return
	}
	c.mu.Lock()
	c.stats.FramesRendered++
	c.mu.Unlock()
}

func (c *Codec) announceInputLocked(id int) {
	c.inputs[id].owned = true
	c.events = append(c.events, event{kind: eventInput, id: id})
}

func (c *Codec) canDecodeLocked() bool {
	return !c.broken && len(c.queued) > 0 && len(c.freeOutputs) > 0
}

// loop is the callback goroutine. It delivers queued events in order and
// decodes one input whenever an output buffer is free.
func (c *Codec) loop() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		for c.state == stateRunning && len(c.events) == 0 && !c.canDecodeLocked() {
			c.cond.Wait()
		}
		if c.state != stateRunning {
			c.mu.Unlock()
			return
		}

		if len(c.events) > 0 {
			ev := c.events[0]
			c.events = c.events[1:]
			cb := c.callback
			c.mu.Unlock()
			c.deliver(cb, ev)
			continue
		}

		in := c.queued[0]
		c.queued = c.queued[1:]
		out := c.freeOutputs[0]
		c.freeOutputs = c.freeOutputs[1:]
		payload := append([]byte(nil), c.inputs[in.id].data[in.offset:in.offset+in.size]...)
		c.announceInputLocked(in.id)
		gen := c.generation
		c.mu.Unlock()

		c.process(gen, out, payload, in.ptsUs, in.flags)
	}
}

func (c *Codec) deliver(cb ports.CodecCallback, ev event) {
	switch ev.kind {
	case eventInput:
		cb.OnInputBufferAvailable(ev.id)
	case eventOutput:
		cb.OnOutputBufferAvailable(ev.id, ev.info)
	case eventFormat:
		cb.OnOutputFormatChanged(ev.format)
	case eventError:
		cb.OnError(ev.err)
	}
}

// process decodes one input into output buffer out.
func (c *Codec) process(gen uint64, out int, payload []byte, ptsUs int64, flags ports.SampleFlags) {
	if flags.Has(ports.FlagEndOfStream) && len(payload) == 0 {
		c.finishOutput(gen, out, nil, ports.Frame{BufferID: out, PresentationTimeUs: ptsUs},
			ports.BufferInfo{PresentationTimeUs: ptsUs, Flags: ports.FlagEndOfStream})
		return
	}
	if len(payload) == 0 {
		c.dropOutput(gen, out, flags)
		return
	}

	annexB := c.toAnnexB(payload, flags)

	var img image.Image
	if c.decoder != nil {
		var err error
		img, err = c.decoder.DecodeFrame(annexB)
		if err != nil {
			c.fail(gen, out, &ports.CodecError{MIME: c.mime, Op: "decode", Err: err})
			return
		}
		if img == nil {
			if flags.Has(ports.FlagEndOfStream) {
				c.finishOutput(gen, out, nil, ports.Frame{BufferID: out, PresentationTimeUs: ptsUs},
					ports.BufferInfo{PresentationTimeUs: ptsUs, Flags: ports.FlagEndOfStream})
				return
			}
			c.dropOutput(gen, out, flags)
			return
		}
	}

	info := ports.BufferInfo{
		Size:               len(annexB),
		PresentationTimeUs: ptsUs,
		Flags:              flags & (ports.FlagSync | ports.FlagEndOfStream | ports.FlagDiscontinuity),
	}
	frame := ports.Frame{
		BufferID:           out,
		PresentationTimeUs: ptsUs,
		Image:              img,
		Data:               annexB,
	}
	c.finishOutput(gen, out, img, frame, info)
}

// toAnnexB converts length-prefixed AVC samples to Annex B and prepends the
// parameter sets to sync samples. Input already in Annex B passes through.
func (c *Codec) toAnnexB(payload []byte, flags ports.SampleFlags) []byte {
	if c.format.MIME != ports.MIMEVideoAVC {
		return payload
	}

	data := payload
	lengthSize := c.format.NALLengthSize
	if lengthSize == 0 {
		lengthSize = 4
	}
	if converted, err := bitstream.AVCCToAnnexB(payload, lengthSize); err == nil {
		data = converted
	}
	if flags.Has(ports.FlagSync) {
		data = bitstream.PrependParameterSets(data, c.format.CodecConfig)
	}
	return data
}

func (c *Codec) finishOutput(gen uint64, out int, img image.Image, frame ports.Frame, info ports.BufferInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != stateRunning {
		return
	}

	if info.Size > 0 {
		// A pass boundary on a skipped picture moves to the next shown one.
		info.Flags |= c.carryFlags
		c.carryFlags = 0

		width, height := c.format.Width, c.format.Height
		if img != nil {
			width, height = img.Bounds().Dx(), img.Bounds().Dy()
		}
		colorFormat := ports.ColorFormatOf(img)
		if !c.formatSent || width != c.outFormat.Width || height != c.outFormat.Height || colorFormat != c.outFormat.ColorFormat {
			c.outFormat = c.format
			c.outFormat.Width = width
			c.outFormat.Height = height
			c.outFormat.ColorFormat = colorFormat
			c.formatSent = true
			c.events = append(c.events, event{kind: eventFormat, format: c.outFormat})
		}
		c.stats.FramesDecoded++
	}
	frame.Flags = info.Flags & (ports.FlagSync | ports.FlagDiscontinuity)

	c.outputs[out] = outputBuffer{frame: frame, info: info, owned: true}
	ev := event{kind: eventOutput, id: out, info: info}

	// End of stream is reported once every frame released before it has
	// been presented.
	if info.Flags.Has(ports.FlagEndOfStream) && (len(c.pending) > 0 || c.presenting > 0) {
		c.heldEOS = &ev
		return
	}
	c.events = append(c.events, ev)
}

func (c *Codec) dropOutput(gen uint64, out int, flags ports.SampleFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != stateRunning {
		return
	}
	c.carryFlags |= flags & ports.FlagDiscontinuity
	c.stats.FramesSkipped++
	c.freeOutputs = append(c.freeOutputs, out)
}

func (c *Codec) fail(gen uint64, out int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != stateRunning {
		return
	}
	c.stats.DecodeErrors++
	c.broken = true
	c.freeOutputs = append(c.freeOutputs, out)
	c.events = append(c.events, event{kind: eventError, err: err})
}

// present is the presenter goroutine for timed release.
func (c *Codec) present(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		for c.state == stateRunning && len(c.pending) == 0 {
			c.cond.Wait()
		}
		if c.state != stateRunning {
			c.mu.Unlock()
			return
		}
		p := c.pending[0]
		c.pending = c.pending[1:]
		c.presenting++
		due := c.clock.due(p.ptsUs, p.frame.Flags.Has(ports.FlagDiscontinuity))
		now := c.clock.now()
		surface := c.surface
		c.mu.Unlock()

		if wait := due.Sub(now); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		c.mu.Lock()
		stopped := c.state != stateRunning
		c.mu.Unlock()
		if stopped {
			return
		}

		c.render(surface, p.frame)
		c.recycleOutput(p.generation, p.id)
		c.presented()
	}
}

// presented retires one frame from the presenter and reports a held end of
// stream once nothing is left to show.
func (c *Codec) presented() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.presenting--
	if c.heldEOS != nil && len(c.pending) == 0 && c.presenting == 0 && c.state == stateRunning {
		c.events = append(c.events, *c.heldEOS)
		c.heldEOS = nil
		c.cond.Broadcast()
	}
}

var _ ports.Codec = (*Codec)(nil)
