// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/pixelvideo/pkg/adapters/canvassurface"
	"github.com/user/pixelvideo/pkg/adapters/rtpsurface"
	"github.com/user/pixelvideo/pkg/adapters/smartdecoder"
	"github.com/user/pixelvideo/pkg/adapters/softcodec"
	"github.com/user/pixelvideo/pkg/ports"
	"github.com/user/pixelvideo/pkg/pump"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Config represents the full configuration for pixelvideo.
type Config struct {
	// Input
	Source string `yaml:"source"`

	// Playback
	Loops      int    `yaml:"loops"`
	EOSPolicy  string `yaml:"eos_policy"`
	RenderMode string `yaml:"render_mode"`

	Decoder DecoderConfig `yaml:"decoder"`
	Output  OutputConfig  `yaml:"output"`
	RTP     RTPConfig     `yaml:"rtp"`

	// Summary is the path of the Markdown playback report; empty disables it.
	Summary string `yaml:"summary"`

	LogLevel string `yaml:"log_level"`
}

// DecoderConfig selects and sizes the decoder.
type DecoderConfig struct {
	Backend         string `yaml:"backend"`
	FFmpegPath      string `yaml:"ffmpeg_path"`
	InputBuffers    int    `yaml:"input_buffers"`
	OutputBuffers   int    `yaml:"output_buffers"`
	InputBufferSize int    `yaml:"input_buffer_size"`
}

// OutputConfig configures the canvas surface. An empty Dir disables it.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Format     string `yaml:"format"`
	Quality    int    `yaml:"quality"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	DrawFPS    int    `yaml:"draw_fps"`
	Overlay    bool   `yaml:"overlay"`
	Background string `yaml:"background"`
	FontPath   string `yaml:"font_path"`
}

// RTPConfig configures the RTP surface. An empty Addr disables it.
type RTPConfig struct {
	Addr        string `yaml:"addr"`
	PayloadType int    `yaml:"payload_type"`
	MTU         int    `yaml:"mtu"`
	SSRC        uint32 `yaml:"ssrc"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		// Playback
		Loops:      0,
		EOSPolicy:  pump.EOSRewind.String(),
		RenderMode: pump.RenderAtTimestamp.String(),

		Decoder: DecoderConfig{
			Backend:         string(smartdecoder.BackendAuto),
			InputBuffers:    softcodec.DefaultInputBuffers,
			OutputBuffers:   softcodec.DefaultOutputBuffers,
			InputBufferSize: softcodec.DefaultInputBufferSize,
		},

		Output: OutputConfig{
			Format:     "jpg",
			Quality:    85,
			DrawFPS:    30,
			Overlay:    true,
			Background: "#000000",
		},

		RTP: RTPConfig{
			PayloadType: rtpsurface.DefaultPayloadType,
			MTU:         rtpsurface.DefaultMTU,
		},

		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	var errs []error

	if _, err := pump.ParseEOSPolicy(c.EOSPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := pump.ParseRenderMode(c.RenderMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := smartdecoder.ParseBackend(c.Decoder.Backend); err != nil {
		errs = append(errs, err)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error", "quiet":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.Loops < 0 {
		errs = append(errs, fmt.Errorf("loops must not be negative, got %d", c.Loops))
	}
	if c.Decoder.InputBuffers < 0 || c.Decoder.OutputBuffers < 0 || c.Decoder.InputBufferSize < 0 {
		errs = append(errs, errors.New("decoder buffer counts and sizes must not be negative"))
	}
	switch c.Output.Format {
	case "", "jpg", "jpeg", "png":
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Output.Format))
	}
	if c.Output.Quality < 0 || c.Output.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be within 0-100, got %d", c.Output.Quality))
	}
	if (c.Output.Width == 0) != (c.Output.Height == 0) || c.Output.Width < 0 || c.Output.Height < 0 {
		errs = append(errs, fmt.Errorf("output size %dx%d: set both width and height or neither", c.Output.Width, c.Output.Height))
	}
	if c.Output.DrawFPS < 0 {
		errs = append(errs, fmt.Errorf("draw_fps must not be negative, got %d", c.Output.DrawFPS))
	}
	if _, err := ParseColor(c.Output.Background); err != nil {
		errs = append(errs, err)
	}
	if c.RTP.PayloadType < 0 || c.RTP.PayloadType > 127 {
		errs = append(errs, fmt.Errorf("rtp payload type must be within 0-127, got %d", c.RTP.PayloadType))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// PumpOptions converts the playback settings. Call Validate first.
func (c Config) PumpOptions() pump.Options {
	policy, _ := pump.ParseEOSPolicy(c.EOSPolicy)
	mode, _ := pump.ParseRenderMode(c.RenderMode)
	return pump.Options{
		EOSPolicy:  policy,
		RenderMode: mode,
		MaxLoops:   c.Loops,
	}
}

// DecoderOptions converts the decoder settings. Call Validate first.
func (c Config) DecoderOptions() smartdecoder.Options {
	backend, _ := smartdecoder.ParseBackend(c.Decoder.Backend)
	return smartdecoder.Options{
		Backend:    backend,
		FFmpegPath: c.Decoder.FFmpegPath,
		Codec:      c.CodecOptions(),
	}
}

// CodecOptions converts the buffer pool settings.
func (c Config) CodecOptions() softcodec.Options {
	return softcodec.Options{
		InputBuffers:    c.Decoder.InputBuffers,
		OutputBuffers:   c.Decoder.OutputBuffers,
		InputBufferSize: c.Decoder.InputBufferSize,
	}
}

// CanvasOptions converts the output settings. Call Validate first.
func (c Config) CanvasOptions() canvassurface.Options {
	bg, _ := ParseColor(c.Output.Background)
	return canvassurface.Options{
		Dir:        c.Output.Dir,
		Format:     ports.ParseImageFormat(c.Output.Format),
		Quality:    c.Output.Quality,
		Background: bg,
		Overlay:    c.Output.Overlay,
		FontPath:   c.Output.FontPath,
	}
}

// RTPOptions converts the RTP settings.
func (c Config) RTPOptions() rtpsurface.Options {
	return rtpsurface.Options{
		PayloadType: uint8(c.RTP.PayloadType),
		MTU:         c.RTP.MTU,
		SSRC:        c.RTP.SSRC,
	}
}

// ParseColor parses a "#rrggbb" hex color. The empty string is black.
func ParseColor(hex string) (color.Color, error) {
	if len(hex) == 0 {
		return color.Black, nil
	}

	s := hex
	if s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.Black, fmt.Errorf("color %q: want #rrggbb", hex)
	}

	var rgb [3]uint8
	for i := range rgb {
		hi, ok1 := hexValue(s[2*i])
		lo, ok2 := hexValue(s[2*i+1])
		if !ok1 || !ok2 {
			return color.Black, fmt.Errorf("color %q: invalid hex digit", hex)
		}
		rgb[i] = hi<<4 | lo
	}

	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}

func hexValue(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
