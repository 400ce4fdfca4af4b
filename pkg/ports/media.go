package ports

import (
	"fmt"
	"image"
	"strings"
)

// MIME types reported for tracks.
const (
	MIMEVideoAVC     = "video/avc"
	MIMEVideoHEVC    = "video/hevc"
	MIMEVideoAV1     = "video/av01"
	MIMEVideoVP9     = "video/x-vnd.on2.vp9"
	MIMEVideoUnknown = "video/x-unknown"
	MIMEAudioAAC     = "audio/mp4a-latm"
	MIMEAudioOpus    = "audio/opus"
	MIMEAudioUnknown = "audio/x-unknown"
	MIMEUnknown      = "application/octet-stream"
)

// IsVideoMIME reports whether mime names a video codec family.
// The match is case-sensitive.
func IsVideoMIME(mime string) bool {
	return strings.HasPrefix(mime, "video/")
}

// ColorInfo describes how decoded pixels map to display colour.
// Values follow ITU-T H.273 code points; zero means unspecified.
type ColorInfo struct {
	Primaries uint // colour_primaries (1 = BT.709)
	Transfer  uint // transfer_characteristics (1 = BT.709, 16 = PQ, 18 = HLG)
	Matrix    uint // matrix_coefficients
	FullRange bool // video_full_range_flag
}

// Standard returns a short name for the colour standard.
func (c ColorInfo) Standard() string {
	switch c.Primaries {
	case 1:
		return "bt709"
	case 5, 6:
		return "bt601"
	case 9:
		return "bt2020"
	default:
		return "unspecified"
	}
}

// Range returns "full" or "limited".
func (c ColorInfo) Range() string {
	if c.FullRange {
		return "full"
	}
	return "limited"
}

// TransferName returns a short name for the transfer function.
func (c ColorInfo) TransferName() string {
	switch c.Transfer {
	case 1, 6, 14, 15:
		return "sdr"
	case 16:
		return "st2084"
	case 18:
		return "hlg"
	case 8:
		return "linear"
	default:
		return "unspecified"
	}
}

// ColorFormat is the pixel layout of decoded frames.
type ColorFormat int

const (
	ColorFormatUnknown ColorFormat = iota
	// ColorFormatYUV420 is planar 4:2:0 YCbCr.
	ColorFormatYUV420
	// ColorFormatRGBA is packed 8-bit RGBA.
	ColorFormatRGBA
	// ColorFormatOpaque means frames carry the bitstream and no pixels.
	ColorFormatOpaque
)

func (f ColorFormat) String() string {
	switch f {
	case ColorFormatYUV420:
		return "yuv420"
	case ColorFormatRGBA:
		return "rgba"
	case ColorFormatOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// ColorFormatOf reports the layout of img; a nil image is opaque.
func ColorFormatOf(img image.Image) ColorFormat {
	switch m := img.(type) {
	case nil:
		return ColorFormatOpaque
	case *image.YCbCr:
		if m.SubsampleRatio == image.YCbCrSubsampleRatio420 {
			return ColorFormatYUV420
		}
		return ColorFormatUnknown
	case *image.RGBA, *image.NRGBA:
		return ColorFormatRGBA
	default:
		return ColorFormatUnknown
	}
}

// MediaFormat is the codec configuration of a track or of decoder output.
type MediaFormat struct {
	MIME       string
	Width      int
	Height     int
	Timescale  uint32
	DurationUs int64
	Language   string

	// CodecConfig holds codec-specific configuration records.
	// For AVC these are the SPS NAL units followed by the PPS NAL units.
	CodecConfig [][]byte

	// NALLengthSize is the size of the length prefix of each NAL unit in samples.
	NALLengthSize int

	Color ColorInfo

	// ColorFormat is the pixel layout of decoder output; unknown for tracks.
	ColorFormat ColorFormat
}

// String returns a one-line description used in logs.
func (f MediaFormat) String() string {
	return fmt.Sprintf("mime=%s size=%dx%d timescale=%d duration=%dus color=%s/%s/%s",
		f.MIME, f.Width, f.Height, f.Timescale, f.DurationUs,
		f.Color.Standard(), f.Color.Range(), f.Color.TransferName())
}

// Track is one media stream within a container.
type Track struct {
	Index  int // ordinal within the container, stable for its lifetime
	MIME   string
	Format MediaFormat
}

// SampleFlags describe a sample or a codec buffer.
type SampleFlags uint32

const (
	// FlagSync marks a sample decodable without prior samples (keyframe).
	FlagSync SampleFlags = 1 << iota
	// FlagEndOfStream marks the last buffer of a stream.
	FlagEndOfStream
	// FlagCodecConfig marks a buffer holding codec configuration only.
	FlagCodecConfig
	// FlagDiscontinuity marks the first buffer of a new pass over the track.
	// Timestamps restart after it.
	FlagDiscontinuity
)

// Has reports whether all bits of flag are set.
func (f SampleFlags) Has(flag SampleFlags) bool {
	return f&flag == flag
}

// SampleInfo is the sample-table entry of one compressed sample.
type SampleInfo struct {
	PresentationTimeUs int64
	DecodeTimeUs       int64
	DurationUs         int64
	Size               int
	Flags              SampleFlags
}

// Sample is one compressed access unit pulled from a Source Reader.
type Sample struct {
	Payload            []byte
	PresentationTimeUs int64
	Flags              SampleFlags
}

// IsEndOfStream reports whether the sample terminates the stream.
func (s Sample) IsEndOfStream() bool {
	return s.Flags.Has(FlagEndOfStream)
}

// BufferInfo is the metadata of a codec output buffer.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              SampleFlags
}

// Frame is a decoded frame handed to a Surface.
type Frame struct {
	// BufferID identifies the codec output buffer the frame came from.
	BufferID           int
	PresentationTimeUs int64

	// Image holds decoded pixels; nil when the codec only forwards the bitstream.
	Image image.Image

	// Data holds the Annex B access unit the frame was decoded from.
	Data []byte

	// Flags carries FlagSync and FlagDiscontinuity from the input buffer.
	Flags SampleFlags
}
