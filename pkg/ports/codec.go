package ports

import (
	"errors"
	"fmt"
	"image"
)

// ErrDecoder is the sentinel wrapped by every CodecError.
var ErrDecoder = errors.New("decoder error")

// CodecError is a codec-level failure delivered through CodecCallback.OnError.
type CodecError struct {
	MIME string
	Op   string
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.MIME, e.Op, e.Err)
}

// Unwrap returns the cause.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecoder) true for any CodecError.
func (e *CodecError) Is(target error) bool {
	return target == ErrDecoder
}

// CodecCallback receives the asynchronous notifications of a Codec.
// A Codec delivers callbacks from one goroutine that is not the goroutine
// calling Start or Stop; consecutive callbacks never overlap.
type CodecCallback interface {
	// OnInputBufferAvailable signals that input buffer id may be filled and queued.
	OnInputBufferAvailable(id int)

	// OnOutputBufferAvailable signals that output buffer id holds a frame.
	// The receiver must release it exactly once.
	OnOutputBufferAvailable(id int, info BufferInfo)

	// OnError reports a codec failure. The session is broken afterwards.
	OnError(err error)

	// OnOutputFormatChanged reports the format of subsequent output buffers.
	// It may be called more than once.
	OnOutputFormatChanged(format MediaFormat)
}

// Codec is an asynchronous decoder backend.
type Codec interface {
	// SetCallback registers the receiver of buffer notifications. Call before Start.
	SetCallback(cb CodecCallback)

	// Configure binds the codec to an input format and an output surface.
	Configure(format MediaFormat, surface Surface) error

	// Start activates the codec; input buffer notifications begin.
	Start() error

	// Stop deactivates the codec and reclaims all buffers.
	// No callback is delivered after Stop returns.
	Stop() error

	// Flush discards queued input and pending output, then offers all
	// input buffers again.
	Flush() error

	// Release frees codec resources. The codec cannot be used afterwards.
	Release()

	// GetInputBuffer returns the writable memory of input buffer id.
	GetInputBuffer(id int) ([]byte, error)

	// QueueInputBuffer submits size bytes of input buffer id starting at offset.
	QueueInputBuffer(id, offset, size int, presentationTimeUs int64, flags SampleFlags) error

	// ReleaseOutputBuffer returns output buffer id, rendering it to the surface when render is true.
	ReleaseOutputBuffer(id int, render bool) error

	// ReleaseOutputBufferAtTime renders output buffer id when the playback
	// clock reaches presentationTimeUs, then returns it.
	ReleaseOutputBufferAtTime(id int, presentationTimeUs int64) error

	// OutputFormat returns the current output format.
	OutputFormat() MediaFormat
}

// CodecFactory creates decoders by MIME type.
type CodecFactory interface {
	CreateDecoderByType(mime string) (Codec, error)
}

// FrameDecoder turns Annex B access units into pictures.
// It backs a software Codec; a decoder may need several units before it
// produces a picture, in which case DecodeFrame returns a nil image and nil error.
type FrameDecoder interface {
	Init() error
	DecodeFrame(annexB []byte) (image.Image, error)

	// Reset drops reference state, e.g. after a flush.
	Reset()
	Close()
}
