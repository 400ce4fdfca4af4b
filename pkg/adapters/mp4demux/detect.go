package mp4demux

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/pixelvideo/pkg/ports"
)

// Detect returns the MIME type of the first video track without building
// sample tables. The reader is rewound afterwards.
func Detect(reader io.ReadSeeker) (string, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return ports.MIMEUnknown, fmt.Errorf("%w: decode mp4: %v", ErrOpen, err)
	}

	// Reset reader position for subsequent reads
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return ports.MIMEUnknown, fmt.Errorf("seek: %w", err)
	}

	moov := mp4File.Moov
	if moov == nil && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	}
	if moov == nil {
		return ports.MIMEUnknown, ErrNoTracks
	}

	for i, trak := range moov.Traks {
		track := trackFromTrak(i, trak)
		if ports.IsVideoMIME(track.MIME) {
			return track.MIME, nil
		}
	}
	return ports.MIMEUnknown, fmt.Errorf("no video track found")
}

// DetectBytes is Detect over an in-memory file.
func DetectBytes(data []byte) (string, error) {
	return Detect(bytes.NewReader(data))
}
