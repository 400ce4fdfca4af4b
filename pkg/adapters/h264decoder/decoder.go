// Package h264decoder decodes H.264 access units to images with an external
// ffmpeg process.
//
// ffmpeg is stateless between invocations, so the decoder keeps every unit
// since the last IDR picture and decodes the whole group each time. The last
// picture ffmpeg writes is the one for the newest unit.
package h264decoder

import (
	"errors"
	"image"
	"sync"

	"github.com/user/pixelvideo/pkg/bitstream"
	"github.com/user/pixelvideo/pkg/ports"
)

var (
	// ErrNotInitialized is returned when decoder methods are called before initialization.
	ErrNotInitialized = errors.New("h264decoder: decoder not initialized")

	// ErrDecodeFailed is returned when decoding a frame fails.
	ErrDecodeFailed = errors.New("h264decoder: decode failed")

	// ErrFFmpegNotFound is returned when ffmpeg is not found.
	ErrFFmpegNotFound = errors.New("h264decoder: ffmpeg not found in PATH")

	// ErrGroupTooLarge is returned when the units since the last IDR exceed MaxGroupBytes.
	ErrGroupTooLarge = errors.New("h264decoder: group of pictures too large")
)

// DefaultMaxGroupBytes bounds the buffered group of pictures.
const DefaultMaxGroupBytes = 64 << 20

// Options configures a Decoder.
type Options struct {
	// FFmpegPath overrides the ffmpeg lookup.
	FFmpegPath string

	// MaxGroupBytes bounds the units kept since the last IDR. Zero uses DefaultMaxGroupBytes.
	MaxGroupBytes int
}

// Decoder implements ports.FrameDecoder.
type Decoder struct {
	opts Options

	mu          sync.Mutex
	run         func(group []byte) (image.Image, error)
	group       []byte
	initialized bool
}

// New creates a new H.264 decoder.
func New(opts Options) *Decoder {
	if opts.MaxGroupBytes <= 0 {
		opts.MaxGroupBytes = DefaultMaxGroupBytes
	}
	return &Decoder{opts: opts}
}

// Init locates ffmpeg.
func (d *Decoder) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.run == nil {
		path, err := findFFmpeg(d.opts.FFmpegPath)
		if err != nil {
			return err
		}
		runner := &ffmpegRunner{path: path}
		d.run = runner.decodeLast
	}
	d.initialized = true
	return nil
}

// DecodeFrame decodes one Annex B access unit. Units that arrive before the
// first IDR produce no picture.
func (d *Decoder) DecodeFrame(annexB []byte) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, ErrNotInitialized
	}
	if len(annexB) == 0 {
		return nil, ErrDecodeFailed
	}

	if bitstream.ContainsIDR(annexB) {
		d.group = append(d.group[:0], annexB...)
	} else {
		if len(d.group) == 0 {
			return nil, nil
		}
		if len(d.group)+len(annexB) > d.opts.MaxGroupBytes {
			d.group = d.group[:0]
			return nil, ErrGroupTooLarge
		}
		d.group = append(d.group, annexB...)
	}

	return d.run(d.group)
}

// Reset drops the buffered group; decoding resumes at the next IDR.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.group = d.group[:0]
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	d.group = nil
}

// IsAvailable reports whether ffmpeg can be found, honouring an override path.
func IsAvailable(ffmpegPath string) bool {
	_, err := findFFmpeg(ffmpegPath)
	return err == nil
}

var _ ports.FrameDecoder = (*Decoder)(nil)
