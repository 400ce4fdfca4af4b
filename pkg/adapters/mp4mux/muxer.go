// Package mp4mux writes H.264 access units into a fragmented MP4 file.
package mp4mux

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/pixelvideo/pkg/bitstream"
)

var (
	// ErrNoSamples is returned when encoding an empty muxer.
	ErrNoSamples = errors.New("mp4mux: no samples to write")

	// ErrNoParameterSets is returned when no SPS/PPS was seen.
	ErrNoParameterSets = errors.New("mp4mux: SPS or PPS not found")
)

// DefaultTimescale is the media timescale used when none is given.
const DefaultTimescale = 90000

type sample struct {
	data       []byte
	ptsUs      int64
	durationUs int64
	sync       bool
}

// Muxer collects Annex B access units and encodes them as an ftyp+moov+moof+mdat file.
type Muxer struct {
	timescale uint32
	width     int
	height    int
	sps       []byte
	pps       []byte
	samples   []sample
}

// New creates a muxer for a video track of the given size.
func New(width, height int, timescale uint32) *Muxer {
	if timescale == 0 {
		timescale = DefaultTimescale
	}
	return &Muxer{timescale: timescale, width: width, height: height}
}

// SetParameterSets sets the SPS and PPS written to the avcC box.
func (m *Muxer) SetParameterSets(sps, pps []byte) {
	m.sps = append([]byte(nil), sps...)
	m.pps = append([]byte(nil), pps...)
}

// AddAccessUnit appends one Annex B access unit. Parameter sets found in the
// unit are captured for the avcC box and stripped from the sample.
// A durationUs of 0 is derived from the next unit's timestamp.
func (m *Muxer) AddAccessUnit(annexB []byte, ptsUs, durationUs int64, sync bool) {
	for _, nalu := range bitstream.SplitAnnexB(annexB) {
		switch bitstream.NALType(nalu) {
		case bitstream.NALTypeSPS:
			if m.sps == nil {
				m.sps = append([]byte(nil), nalu...)
			}
		case bitstream.NALTypePPS:
			if m.pps == nil {
				m.pps = append([]byte(nil), nalu...)
			}
		}
	}
	m.samples = append(m.samples, sample{
		data:       bitstream.AnnexBToAVCC(annexB, true),
		ptsUs:      ptsUs,
		durationUs: durationUs,
		sync:       sync,
	})
}

// Len returns the number of samples added so far.
func (m *Muxer) Len() int {
	return len(m.samples)
}

// Encode writes the file to w.
func (m *Muxer) Encode(w io.Writer) error {
	if len(m.samples) == 0 {
		return ErrNoSamples
	}
	if m.sps == nil || m.pps == nil {
		return ErrNoParameterSets
	}

	trackID := uint32(1)

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(m.timescale, "video", "und")
	trak := init.Moov.Trak

	avcC, err := mp4.CreateAvcC([][]byte{m.sps}, [][]byte{m.pps}, true)
	if err != nil {
		return fmt.Errorf("create avcC: %w", err)
	}

	avc1 := mp4.CreateVisualSampleEntryBox("avc1", uint16(m.width), uint16(m.height), avcC)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)
	trak.Tkhd.Width = mp4.Fixed32(m.width << 16)
	trak.Tkhd.Height = mp4.Fixed32(m.height << 16)

	frag, err := mp4.CreateFragment(1, trackID)
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}

	for i, s := range m.samples {
		durUs := s.durationUs
		if durUs <= 0 && i+1 < len(m.samples) {
			durUs = m.samples[i+1].ptsUs - s.ptsUs
		}
		if durUs <= 0 && i > 0 {
			durUs = s.ptsUs - m.samples[i-1].ptsUs
		}
		if durUs <= 0 {
			durUs = 33333
		}

		flags := mp4.NonSyncSampleFlags
		if s.sync {
			flags = mp4.SyncSampleFlags
		}

		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: flags,
				Size:  uint32(len(s.data)),
				Dur:   uint32(durUs * int64(m.timescale) / 1000000),
			},
			DecodeTime: uint64(s.ptsUs) * uint64(m.timescale) / 1000000,
			Data:       s.data,
		})
	}

	var buf bytes.Buffer

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}
	if err := frag.Encode(&buf); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}

	_, err = w.Write(buf.Bytes())
	return err
}

// Bytes encodes the file into memory.
func (m *Muxer) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
