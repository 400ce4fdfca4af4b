// Package smartdecoder creates decoders by MIME type, picking the best
// available backend.
package smartdecoder

import (
	"errors"
	"fmt"

	"github.com/user/pixelvideo/pkg/adapters/h264decoder"
	"github.com/user/pixelvideo/pkg/adapters/softcodec"
	"github.com/user/pixelvideo/pkg/ports"
)

// Backend represents the decoding backend used.
type Backend string

const (
	// BackendAuto uses ffmpeg for H.264 when present, passthrough otherwise.
	BackendAuto Backend = "auto"
	// BackendFFmpeg decodes pictures with an external ffmpeg process.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendPassthrough forwards Annex B access units without decoding.
	BackendPassthrough Backend = "passthrough"
)

var (
	// ErrUnsupportedCodec is returned when no backend handles the MIME type.
	ErrUnsupportedCodec = errors.New("smartdecoder: unsupported codec")
	// ErrNoDecoderAvailable is returned when the requested backend is missing.
	ErrNoDecoderAvailable = errors.New("smartdecoder: no decoder available")
	// ErrUnknownBackend is returned by ParseBackend.
	ErrUnknownBackend = errors.New("smartdecoder: unknown backend")
)

// ParseBackend parses a backend name. The empty string means auto.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendFFmpeg, BackendPassthrough:
		return Backend(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Info describes the decoder chosen for a MIME type.
type Info struct {
	MIME    string
	Backend Backend
}

// Options configures the factory.
type Options struct {
	Backend Backend

	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string

	// Codec sizes the buffer pools of created codecs.
	Codec softcodec.Options
}

// Factory implements ports.CodecFactory.
type Factory struct {
	opts   Options
	logger ports.Logger
}

// NewFactory creates a factory.
func NewFactory(opts Options, logger ports.Logger) *Factory {
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	return &Factory{opts: opts, logger: logger}
}

// Resolve picks the backend for mime without creating a codec.
//
// The selection flow:
//   - non-video MIME types are rejected
//   - ffmpeg requires H.264 and an ffmpeg binary
//   - auto uses ffmpeg for H.264 when available, passthrough otherwise
func (f *Factory) Resolve(mime string) (Info, error) {
	if !ports.IsVideoMIME(mime) || mime == ports.MIMEVideoUnknown {
		return Info{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
	}

	switch f.opts.Backend {
	case BackendPassthrough:
		return Info{MIME: mime, Backend: BackendPassthrough}, nil

	case BackendFFmpeg:
		if mime != ports.MIMEVideoAVC {
			return Info{}, fmt.Errorf("%w: ffmpeg backend decodes %s only, got %s", ErrUnsupportedCodec, ports.MIMEVideoAVC, mime)
		}
		if !h264decoder.IsAvailable(f.opts.FFmpegPath) {
			return Info{}, ErrNoDecoderAvailable
		}
		return Info{MIME: mime, Backend: BackendFFmpeg}, nil

	default:
		if mime == ports.MIMEVideoAVC && h264decoder.IsAvailable(f.opts.FFmpegPath) {
			return Info{MIME: mime, Backend: BackendFFmpeg}, nil
		}
		return Info{MIME: mime, Backend: BackendPassthrough}, nil
	}
}

// CreateDecoderByType creates a codec for mime.
func (f *Factory) CreateDecoderByType(mime string) (ports.Codec, error) {
	info, err := f.Resolve(mime)
	if err != nil {
		return nil, err
	}

	var frameDecoder ports.FrameDecoder
	if info.Backend == BackendFFmpeg {
		frameDecoder = h264decoder.New(h264decoder.Options{FFmpegPath: f.opts.FFmpegPath})
	}

	f.logger.Debug("Using %s backend for %s", info.Backend, mime)
	return softcodec.New(mime, frameDecoder, f.opts.Codec, f.logger), nil
}

var _ ports.CodecFactory = (*Factory)(nil)
