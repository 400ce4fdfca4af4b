package ports

// Surface is the display sink decoded frames are released to.
// It is created and destroyed by the embedding application and outlives the
// playback session bound to it.
type Surface interface {
	// QueueFrame accepts a decoded frame. It must not block for long:
	// the codec calls it while holding an output buffer.
	QueueFrame(frame Frame) error

	// SetFormat receives the decoder output format, including colour metadata.
	SetFormat(format MediaFormat)

	// Resize sets the drawable size in pixels.
	Resize(width, height int)

	// DrawFrame is the per-frame draw tick.
	DrawFrame() error
}
