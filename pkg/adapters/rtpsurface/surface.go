// Package rtpsurface streams decoded access units as RTP/H.264 (RFC 6184)
// over a datagram connection.
package rtpsurface

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/user/pixelvideo/pkg/ports"
)

const (
	// DefaultMTU bounds the size of each RTP packet.
	DefaultMTU = 1200
	// DefaultPayloadType is the dynamic payload type used for H.264.
	DefaultPayloadType = 96
	// ClockRate is the RTP clock of H.264 video.
	ClockRate = 90000

	rtpHeaderSize     = 12
	defaultIntervalUs = 33333
)

// ErrNoBitstream is returned when a frame carries no access unit.
var ErrNoBitstream = errors.New("rtpsurface: frame has no bitstream")

// Options configures the surface.
type Options struct {
	PayloadType uint8
	MTU         int
	SSRC        uint32
}

// Stats counts surface activity.
type Stats struct {
	Frames          int
	Packets         int
	Bytes           int
	WriteErrors     int
	Discontinuities int // passes restarted on FlagDiscontinuity
}

// Surface implements ports.Surface by packetising each queued frame.
type Surface struct {
	conn   io.Writer
	opts   Options
	logger ports.Logger

	mu        sync.Mutex
	payloader *codecs.H264Payloader
	sequencer rtp.Sequencer
	baseTs    uint32
	offsetUs  int64
	lastPts   int64
	maxUs     int64
	interval  int64 // smallest positive step between frames, 0 if unknown
	started   bool
	format    ports.MediaFormat
	stats     Stats
}

// Dial opens a UDP connection to addr and wraps it in a Surface.
func Dial(addr string, opts Options, logger ports.Logger) (*Surface, net.Conn, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts, logger), conn, nil
}

// New creates a surface writing one datagram per RTP packet to conn.
func New(conn io.Writer, opts Options, logger ports.Logger) *Surface {
	if opts.MTU <= rtpHeaderSize {
		opts.MTU = DefaultMTU
	}
	if opts.PayloadType == 0 {
		opts.PayloadType = DefaultPayloadType
	}
	return &Surface{
		conn:      conn,
		opts:      opts,
		logger:    logger.WithComponent("rtp"),
		payloader: &codecs.H264Payloader{},
		sequencer: rtp.NewRandomSequencer(),
		baseTs:    opts.SSRC ^ 0x5a5a5a5a,
	}
}

// QueueFrame sends the frame's Annex B access unit. A frame flagged
// FlagDiscontinuity starts one frame interval after the latest timestamp
// sent so far, so the stream clock keeps increasing across loops. Other
// frames keep their own timestamps, reordered or not.
func (s *Surface) QueueFrame(frame ports.Frame) error {
	if len(frame.Data) == 0 {
		return ErrNoBitstream
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pts := frame.PresentationTimeUs
	switch {
	case !s.started:
	case frame.Flags.Has(ports.FlagDiscontinuity):
		interval := s.interval
		if interval == 0 {
			interval = defaultIntervalUs
		}
		s.offsetUs = s.maxUs + interval - pts
		s.stats.Discontinuities++
	case pts > s.lastPts:
		if d := pts - s.lastPts; s.interval == 0 || d < s.interval {
			s.interval = d
		}
	}
	s.lastPts = pts
	streamUs := pts + s.offsetUs
	if !s.started || streamUs > s.maxUs {
		s.maxUs = streamUs
	}
	s.started = true
	ts := s.baseTs + uint32(streamUs*ClockRate/1_000_000)

	payloads := s.payloader.Payload(uint16(s.opts.MTU-rtpHeaderSize), frame.Data)
	for i, payload := range payloads {
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    s.opts.PayloadType,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				SSRC:           s.opts.SSRC,
			},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("marshal rtp packet: %w", err)
		}
		if _, err := s.conn.Write(raw); err != nil {
			s.stats.WriteErrors++
			return fmt.Errorf("write rtp packet: %w", err)
		}
		s.stats.Packets++
		s.stats.Bytes += len(raw)
	}
	s.stats.Frames++
	return nil
}

// SetFormat records the stream format.
func (s *Surface) SetFormat(format ports.MediaFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.logger.Info("Streaming %dx%d %s as payload type %d", format.Width, format.Height, format.MIME, s.opts.PayloadType)
}

// Resize is a no-op: the stream keeps its coded size.
func (s *Surface) Resize(width, height int) {}

// DrawFrame is a no-op: frames are sent as they are queued.
func (s *Surface) DrawFrame() error { return nil }

// Stats returns surface counters.
func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

var _ ports.Surface = (*Surface)(nil)
