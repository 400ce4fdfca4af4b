package pump

import "fmt"

// State is the lifecycle state of a pump session.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateRunning
	StateStopped
	// StateBroken follows a codec error. No more input is fed.
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateBroken:
		return "broken"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EOSPolicy decides what happens when the track runs out of samples.
type EOSPolicy int

const (
	// EOSRewind rewinds the reader as soon as the last sample is read and
	// keeps feeding the decoder without signalling end of stream.
	EOSRewind EOSPolicy = iota
	// EOSDrain signals end of stream after the last sample, flushes the
	// decoder once it has drained, then starts the next pass.
	EOSDrain
)

func (p EOSPolicy) String() string {
	if p == EOSDrain {
		return "drain"
	}
	return "rewind"
}

// ParseEOSPolicy parses "rewind" or "drain". The empty string means rewind.
func ParseEOSPolicy(s string) (EOSPolicy, error) {
	switch s {
	case "", "rewind":
		return EOSRewind, nil
	case "drain":
		return EOSDrain, nil
	}
	return EOSRewind, fmt.Errorf("pump: unknown end-of-stream policy %q", s)
}

// RenderMode decides how decoded frames are released to the surface.
type RenderMode int

const (
	// RenderImmediate renders each frame as soon as it is decoded.
	RenderImmediate RenderMode = iota
	// RenderAtTimestamp renders each frame at its presentation time.
	RenderAtTimestamp
)

func (m RenderMode) String() string {
	if m == RenderAtTimestamp {
		return "timestamp"
	}
	return "immediate"
}

// ParseRenderMode parses "immediate" or "timestamp". The empty string means immediate.
func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "", "immediate":
		return RenderImmediate, nil
	case "timestamp":
		return RenderAtTimestamp, nil
	}
	return RenderImmediate, fmt.Errorf("pump: unknown render mode %q", s)
}

// Options configures a Pump.
type Options struct {
	EOSPolicy  EOSPolicy
	RenderMode RenderMode

	// MaxLoops stops playback after this many passes. Zero loops forever.
	MaxLoops int
}

// Stats counts pump activity.
type Stats struct {
	SamplesQueued  int
	FramesRendered int
	FramesDropped  int
	LoopsCompleted int
	FormatChanges  int
	Errors         int

	LastPresentationTimeUs int64
}
