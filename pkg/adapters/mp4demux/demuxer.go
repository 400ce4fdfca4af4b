// Package mp4demux reads track and sample tables from progressive and
// fragmented MP4 files.
package mp4demux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/pixelvideo/pkg/ports"
)

var (
	// ErrOpen is returned when the container cannot be parsed.
	ErrOpen = errors.New("mp4demux: cannot open container")

	// ErrNoTracks is returned when the container has no tracks.
	ErrNoTracks = errors.New("mp4demux: container has no tracks")

	// ErrTrackOutOfRange is returned for an unknown track index.
	ErrTrackOutOfRange = errors.New("mp4demux: track index out of range")

	// ErrSampleOutOfRange is returned for an unknown sample index.
	ErrSampleOutOfRange = errors.New("mp4demux: sample index out of range")
)

// sample_is_non_sync_sample bit of ISO/IEC 14496-12 sample flags.
const nonSyncSampleFlag = 0x00010000

// Demuxer implements ports.Demuxer on top of mp4ff.
type Demuxer struct {
	reader io.ReadSeeker
	closer io.Closer

	tracks []ports.Track
	tables []*sampleTable
}

// sampleTable holds the per-sample data of one track.
// Progressive files keep byte offsets and read lazily; fragmented files keep
// the payloads mp4ff already loaded.
type sampleTable struct {
	infos   []ports.SampleInfo
	offsets []uint64
	data    [][]byte
}

// OpenFile opens an MP4 file by path.
func OpenFile(path string) (*Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	d, err := Open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// Open parses the container read from r. If r is also an io.Closer it is
// closed by Close.
func Open(r io.ReadSeeker) (*Demuxer, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrOpen)
	}

	mp4File, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode mp4: %v", ErrOpen, err)
	}

	moov := mp4File.Moov
	if moov == nil && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	}
	if moov == nil || len(moov.Traks) == 0 {
		return nil, ErrNoTracks
	}

	d := &Demuxer{reader: r}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}

	for i, trak := range moov.Traks {
		track := trackFromTrak(i, trak)

		var table *sampleTable
		if mp4File.IsFragmented() {
			table, err = fragmentedTable(mp4File, moov, trak)
		} else {
			table, err = progressiveTable(trak)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrOpen, i, err)
		}

		if n := len(table.infos); n > 0 {
			last := table.infos[n-1]
			if end := last.PresentationTimeUs + last.DurationUs; end > track.Format.DurationUs {
				track.Format.DurationUs = end
			}
		}

		d.tracks = append(d.tracks, track)
		d.tables = append(d.tables, table)
	}

	return d, nil
}

// Tracks returns all tracks in index order.
func (d *Demuxer) Tracks() []ports.Track {
	out := make([]ports.Track, len(d.tracks))
	copy(out, d.tracks)
	return out
}

// SampleCount returns the number of samples in a track.
func (d *Demuxer) SampleCount(track int) (int, error) {
	table, err := d.table(track)
	if err != nil {
		return 0, err
	}
	return len(table.infos), nil
}

// SampleInfo returns the sample-table entry of sample i.
func (d *Demuxer) SampleInfo(track, i int) (ports.SampleInfo, error) {
	table, err := d.table(track)
	if err != nil {
		return ports.SampleInfo{}, err
	}
	if i < 0 || i >= len(table.infos) {
		return ports.SampleInfo{}, ErrSampleOutOfRange
	}
	return table.infos[i], nil
}

// ReadSample copies the payload of sample i into dst.
// The payload is returned as stored in the container (length-prefixed NAL units for AVC).
func (d *Demuxer) ReadSample(track, i int, dst []byte) (int, error) {
	table, err := d.table(track)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(table.infos) {
		return 0, ErrSampleOutOfRange
	}

	size := table.infos[i].Size
	if len(dst) < size {
		return 0, io.ErrShortBuffer
	}

	if table.data != nil {
		return copy(dst, table.data[i]), nil
	}

	if _, err := d.reader.Seek(int64(table.offsets[i]), io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to sample: %w", err)
	}
	if _, err := io.ReadFull(d.reader, dst[:size]); err != nil {
		return 0, fmt.Errorf("read sample: %w", err)
	}
	return size, nil
}

// Close releases the underlying reader.
func (d *Demuxer) Close() error {
	if d.closer != nil {
		err := d.closer.Close()
		d.closer = nil
		return err
	}
	return nil
}

func (d *Demuxer) table(track int) (*sampleTable, error) {
	if track < 0 || track >= len(d.tables) {
		return nil, ErrTrackOutOfRange
	}
	return d.tables[track], nil
}

func trackFromTrak(index int, trak *mp4.TrakBox) ports.Track {
	format := ports.MediaFormat{
		MIME:          ports.MIMEUnknown,
		Timescale:     1000,
		NALLengthSize: 4,
	}

	handler := ""
	if trak.Mdia != nil {
		if trak.Mdia.Hdlr != nil {
			handler = trak.Mdia.Hdlr.HandlerType
		}
		if trak.Mdia.Mdhd != nil {
			if trak.Mdia.Mdhd.Timescale != 0 {
				format.Timescale = trak.Mdia.Mdhd.Timescale
			}
			format.DurationUs = toMicros(trak.Mdia.Mdhd.Duration, format.Timescale)
			format.Language = trak.Mdia.Mdhd.GetLanguage()
		}
	}

	switch handler {
	case "vide":
		format.MIME = ports.MIMEVideoUnknown
	case "soun":
		format.MIME = ports.MIMEAudioUnknown
	}

	if trak.Mdia != nil && trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stsd != nil {
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			if mime := mimeForSampleEntry(child.Type()); mime != "" {
				format.MIME = mime
			}
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				format.Width = int(vse.Width)
				format.Height = int(vse.Height)
				if vse.AvcC != nil {
					applyAvcC(&format, vse.AvcC)
				}
			}
			break
		}
	}

	return ports.Track{Index: index, MIME: format.MIME, Format: format}
}

// mimeForSampleEntry maps a sample-entry four-cc to a MIME type.
func mimeForSampleEntry(fourCC string) string {
	switch fourCC {
	case "avc1", "avc3":
		return ports.MIMEVideoAVC
	case "hvc1", "hev1":
		return ports.MIMEVideoHEVC
	case "av01":
		return ports.MIMEVideoAV1
	case "vp09":
		return ports.MIMEVideoVP9
	case "mp4a":
		return ports.MIMEAudioAAC
	case "Opus":
		return ports.MIMEAudioOpus
	}
	return ""
}

// applyAvcC copies parameter sets into the format and reads size and colour
// from the first SPS.
func applyAvcC(format *ports.MediaFormat, avcC *mp4.AvcCBox) {
	for _, sps := range avcC.SPSnalus {
		format.CodecConfig = append(format.CodecConfig, sps)
	}
	for _, pps := range avcC.PPSnalus {
		format.CodecConfig = append(format.CodecConfig, pps)
	}
	if len(avcC.SPSnalus) == 0 {
		return
	}

	sps, err := avc.ParseSPSNALUnit(avcC.SPSnalus[0], true)
	if err != nil {
		return
	}
	if sps.Width > 0 && sps.Height > 0 {
		format.Width = int(sps.Width)
		format.Height = int(sps.Height)
	}
	if vui := sps.VUI; vui != nil {
		format.Color = ports.ColorInfo{
			Primaries: vui.ColourPrimaries,
			Transfer:  vui.TransferCharacteristics,
			Matrix:    vui.MatrixCoefficients,
			FullRange: vui.VideoFullRangeFlag,
		}
	}
}

func progressiveTable(trak *mp4.TrakBox) (*sampleTable, error) {
	table := &sampleTable{}
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return table, nil
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsz.SampleNumber == 0 {
		return table, nil
	}
	if stbl.Stsc == nil {
		return nil, fmt.Errorf("no stsc box found")
	}

	timescale := uint32(1000)
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
		timescale = trak.Mdia.Mdhd.Timescale
	}

	// Build sync sample set (keyframes)
	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, sampleNr := range stbl.Stss.SampleNumber {
			syncSamples[sampleNr] = true
		}
	}

	sampleCount := stbl.Stsz.SampleNumber
	table.infos = make([]ports.SampleInfo, 0, sampleCount)
	table.offsets = make([]uint64, 0, sampleCount)

	for sampleNr := uint32(1); sampleNr <= sampleCount; sampleNr++ {
		offset, err := sampleOffset(stbl, sampleNr)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", sampleNr, err)
		}

		var decodeTime uint64
		var dur uint32
		if stbl.Stts != nil {
			decodeTime, dur = stbl.Stts.GetDecodeTime(sampleNr)
		}
		presentationTime := int64(decodeTime)
		if stbl.Ctts != nil {
			presentationTime += int64(stbl.Ctts.GetCompositionTimeOffset(sampleNr))
		}

		var flags ports.SampleFlags
		if stbl.Stss == nil || syncSamples[sampleNr] {
			flags |= ports.FlagSync
		}

		table.infos = append(table.infos, ports.SampleInfo{
			PresentationTimeUs: toMicrosSigned(presentationTime, timescale),
			DecodeTimeUs:       toMicros(decodeTime, timescale),
			DurationUs:         toMicros(uint64(dur), timescale),
			Size:               int(stbl.Stsz.GetSampleSize(int(sampleNr))),
			Flags:              flags,
		})
		table.offsets = append(table.offsets, offset)
	}

	return table, nil
}

// sampleOffset returns the byte offset of a sample in a progressive file.
func sampleOffset(stbl *mp4.StblBox, sampleNr uint32) (uint64, error) {
	chunkNr, firstSampleInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(sampleNr))
	if err != nil {
		return 0, fmt.Errorf("get chunk nr: %w", err)
	}

	var chunkOffset uint64
	switch {
	case stbl.Stco != nil:
		chunkOffset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, fmt.Errorf("get chunk offset: %w", err)
		}
	case stbl.Co64 != nil:
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, fmt.Errorf("chunk nr out of range")
		}
		chunkOffset = stbl.Co64.ChunkOffset[chunkNr-1]
	default:
		return 0, fmt.Errorf("no stco or co64 box")
	}

	offset := chunkOffset
	for s := uint32(firstSampleInChunk); s < sampleNr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}
	return offset, nil
}

func fragmentedTable(mp4File *mp4.File, moov *mp4.MoovBox, trak *mp4.TrakBox) (*sampleTable, error) {
	table := &sampleTable{data: [][]byte{}}
	if trak.Tkhd == nil {
		return table, nil
	}
	trackID := trak.Tkhd.TrackID

	timescale := uint32(1000)
	if trak.Mdia != nil && trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale != 0 {
		timescale = trak.Mdia.Mdhd.Timescale
	}

	var trex *mp4.TrexBox
	if moov.Mvex != nil {
		for _, t := range moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}

				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return nil, fmt.Errorf("get samples: %w", err)
				}

				for _, s := range samples {
					presentationTime := int64(s.DecodeTime) + int64(s.CompositionTimeOffset)

					var flags ports.SampleFlags
					if s.Flags&nonSyncSampleFlag == 0 {
						flags |= ports.FlagSync
					}

					table.infos = append(table.infos, ports.SampleInfo{
						PresentationTimeUs: toMicrosSigned(presentationTime, timescale),
						DecodeTimeUs:       toMicros(s.DecodeTime, timescale),
						DurationUs:         toMicros(uint64(s.Dur), timescale),
						Size:               len(s.Data),
						Flags:              flags,
					})
					table.data = append(table.data, s.Data)
				}
			}
		}
	}

	// Fragments may arrive out of decode order; keep the table in decode order.
	if !sort.SliceIsSorted(table.infos, func(i, j int) bool {
		return table.infos[i].DecodeTimeUs < table.infos[j].DecodeTimeUs
	}) {
		idx := make([]int, len(table.infos))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool {
			return table.infos[idx[i]].DecodeTimeUs < table.infos[idx[j]].DecodeTimeUs
		})
		infos := make([]ports.SampleInfo, len(idx))
		data := make([][]byte, len(idx))
		for n, i := range idx {
			infos[n] = table.infos[i]
			data[n] = table.data[i]
		}
		table.infos, table.data = infos, data
	}

	return table, nil
}

func toMicros(t uint64, timescale uint32) int64 {
	return int64(t * 1000000 / uint64(timescale))
}

func toMicrosSigned(t int64, timescale uint32) int64 {
	return t * 1000000 / int64(timescale)
}
