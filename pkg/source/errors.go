package source

import (
	"errors"
	"fmt"
)

var (
	// ErrOpen is matched by every OpenError.
	ErrOpen = errors.New("source: cannot open media source")

	// ErrNoVideoTrack is returned when the container has no video track.
	ErrNoVideoTrack = errors.New("source: no video track")

	// ErrEndOfStream is returned once the selected track is exhausted.
	// It is a normal transition, not a failure.
	ErrEndOfStream = errors.New("source: end of stream")

	// ErrIllegalState is returned for calls that do not fit the reader state,
	// such as reading before a track is selected.
	ErrIllegalState = errors.New("source: illegal state")
)

// OpenError describes why a media source could not be opened.
type OpenError struct {
	Reason string
	Err    error
}

func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source: cannot open media source: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("source: cannot open media source: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrOpen) true for any OpenError.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}
