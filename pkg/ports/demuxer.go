package ports

// Demuxer exposes the tracks and sample tables of a container.
// Implementations never mutate the underlying media source.
type Demuxer interface {
	// Tracks returns all tracks in index order.
	Tracks() []Track

	// SampleCount returns the number of samples in a track.
	SampleCount(track int) (int, error)

	// SampleInfo returns the sample-table entry of sample i (0-based).
	SampleInfo(track, i int) (SampleInfo, error)

	// ReadSample copies the payload of sample i into dst and returns its size.
	ReadSample(track, i int, dst []byte) (int, error)

	// Close releases the underlying source.
	Close() error
}
