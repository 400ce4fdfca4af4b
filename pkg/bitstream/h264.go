// Package bitstream converts H.264 access units between the length-prefixed
// (AVCC) layout stored in MP4 samples and the start-code (Annex B) layout
// decoders and RTP payloaders consume.
package bitstream

import (
	"errors"
	"fmt"
)

// H.264 NAL unit types.
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSEI   = 6
	NALTypeSPS   = 7
	NALTypePPS   = 8
	NALTypeAUD   = 9
)

// ErrTruncated is returned when a length prefix runs past the sample.
var ErrTruncated = errors.New("bitstream: truncated NAL unit")

var startCode = []byte{0, 0, 0, 1}

// NALType returns the type of a NAL unit without start code, or -1 when empty.
func NALType(nalu []byte) int {
	if len(nalu) == 0 {
		return -1
	}
	return int(nalu[0] & 0x1F)
}

// SplitAnnexB splits an Annex B byte stream into NAL units without start codes.
func SplitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := 0
	i := 0

	for i < len(data) {
		// Look for start code (0x00 0x00 0x01 or 0x00 0x00 0x00 0x01)
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 {
			startCodeLen := 0
			if data[i+2] == 1 {
				startCodeLen = 3
			} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				startCodeLen = 4
			}

			if startCodeLen > 0 {
				if i > start {
					nalus = append(nalus, data[start:i])
				}
				i += startCodeLen
				start = i
				continue
			}
		}
		i++
	}

	if start < len(data) {
		nalus = append(nalus, data[start:])
	}

	return nalus
}

// SplitAVCC splits a length-prefixed sample into NAL units.
func SplitAVCC(data []byte, lengthSize int) ([][]byte, error) {
	if lengthSize < 1 || lengthSize > 4 {
		return nil, fmt.Errorf("bitstream: invalid NAL length size %d", lengthSize)
	}

	var nalus [][]byte
	offset := 0
	for offset < len(data) {
		if offset+lengthSize > len(data) {
			return nalus, ErrTruncated
		}
		naluLen := 0
		for i := 0; i < lengthSize; i++ {
			naluLen = naluLen<<8 | int(data[offset+i])
		}
		offset += lengthSize

		if offset+naluLen > len(data) {
			return nalus, ErrTruncated
		}
		nalus = append(nalus, data[offset:offset+naluLen])
		offset += naluLen
	}
	return nalus, nil
}

// AVCCToAnnexB converts a length-prefixed sample to Annex B.
func AVCCToAnnexB(data []byte, lengthSize int) ([]byte, error) {
	nalus, err := SplitAVCC(data, lengthSize)
	if err != nil {
		return nil, err
	}
	return JoinAnnexB(nalus), nil
}

// JoinAnnexB joins NAL units with 4-byte start codes.
func JoinAnnexB(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += len(startCode) + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = append(out, startCode...)
		out = append(out, n...)
	}
	return out
}

// AnnexBToAVCC converts Annex B to 4-byte length-prefixed NAL units.
// When stripParameterSets is set, SPS and PPS units are dropped since the
// container carries them in the sample entry.
func AnnexBToAVCC(data []byte, stripParameterSets bool) []byte {
	nalus := SplitAnnexB(data)
	if len(nalus) == 0 {
		return data
	}

	out := make([]byte, 0, len(data)+4)
	for _, nalu := range nalus {
		if stripParameterSets {
			if t := NALType(nalu); t == NALTypeSPS || t == NALTypePPS {
				continue
			}
		}
		n := len(nalu)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, nalu...)
	}
	return out
}

// PrependParameterSets returns config (SPS/PPS records) followed by the
// access unit, all in Annex B.
func PrependParameterSets(annexB []byte, config [][]byte) []byte {
	if len(config) == 0 {
		return annexB
	}
	prefix := JoinAnnexB(config)
	out := make([]byte, 0, len(prefix)+len(annexB))
	out = append(out, prefix...)
	return append(out, annexB...)
}

// ContainsIDR reports whether an Annex B access unit carries an IDR slice.
func ContainsIDR(annexB []byte) bool {
	for _, nalu := range SplitAnnexB(annexB) {
		if NALType(nalu) == NALTypeIDR {
			return true
		}
	}
	return false
}
