package pump

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/pixelvideo/pkg/mocks"
	"github.com/user/pixelvideo/pkg/ports"
	"github.com/user/pixelvideo/pkg/source"
)

type fixture struct {
	pump    *Pump
	codec   *mocks.Codec
	surface *mocks.Surface
	logger  *mocks.Logger
	reader  *source.Reader
}

func newFixture(t *testing.T, opts Options, pts ...int64) *fixture {
	t.Helper()

	d := mocks.NewDemuxer(ports.MIMEVideoAVC)
	d.AddTimestamps(0, pts...)

	logger := mocks.NewLogger()
	reader, err := source.Open(d, logger)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	track, err := reader.SelectVideoTrack()
	if err != nil {
		t.Fatalf("select track: %v", err)
	}
	t.Cleanup(func() { reader.Close() })

	codec := mocks.NewCodec()
	return &fixture{
		pump:    New(codec, reader, track.Format, opts, logger),
		codec:   codec,
		surface: mocks.NewSurface(),
		logger:  logger,
		reader:  reader,
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.pump.Start(f.surface); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func queuedPTS(q []mocks.QueuedInput) []int64 {
	out := make([]int64, len(q))
	for i, in := range q {
		out[i] = in.PTS
	}
	return out
}

func equalPTS(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRewindLoopsWithoutEndOfStream(t *testing.T) {
	f := newFixture(t, Options{}, 0, 33000, 66000)
	f.start(t)

	for id := 0; id < 4; id++ {
		f.pump.OnInputBufferAvailable(id)
	}

	queued := f.codec.Queued()
	if got, want := queuedPTS(queued), []int64{0, 33000, 66000, 0}; !equalPTS(got, want) {
		t.Fatalf("queued pts = %v, want %v", got, want)
	}
	for i, in := range queued {
		if in.Flags.Has(ports.FlagEndOfStream) {
			t.Errorf("input %d carries end of stream", i)
		}
		if got, want := in.Flags.Has(ports.FlagDiscontinuity), i == 3; got != want {
			t.Errorf("input %d discontinuity = %v, want %v", i, got, want)
		}
		if in.Size != 1 || in.Data[0] != byte(i%3) {
			t.Errorf("input %d payload = %v, want [%d]", i, in.Data, i%3)
		}
	}

	stats := f.pump.Stats()
	if stats.LoopsCompleted != 1 {
		t.Errorf("LoopsCompleted = %d, want 1", stats.LoopsCompleted)
	}
	if stats.SamplesQueued != 4 {
		t.Errorf("SamplesQueued = %d, want 4", stats.SamplesQueued)
	}
	if _, _, _, flush, _ := f.codec.Counts(); flush != 0 {
		t.Errorf("flush called %d times, want 0", flush)
	}
}

func TestDrainPolicyFlushesBeforeNextPass(t *testing.T) {
	f := newFixture(t, Options{EOSPolicy: EOSDrain}, 0, 33000, 66000)
	f.start(t)

	for id := 0; id < 5; id++ {
		f.pump.OnInputBufferAvailable(id)
	}

	queued := f.codec.Queued()
	if len(queued) != 4 {
		t.Fatalf("queued %d inputs, want 4 (input after EOS must be held)", len(queued))
	}
	eos := queued[3]
	if !eos.Flags.Has(ports.FlagEndOfStream) || eos.Size != 0 {
		t.Fatalf("fourth input = %+v, want empty end-of-stream buffer", eos)
	}
	if eos.PTS != 66000 {
		t.Errorf("end-of-stream pts = %d, want 66000", eos.PTS)
	}

	f.codec.EmitOutput(0, ports.BufferInfo{PresentationTimeUs: 66000, Flags: ports.FlagEndOfStream})
	if _, _, _, flush, _ := f.codec.Counts(); flush != 1 {
		t.Fatalf("flush called %d times, want 1", flush)
	}

	f.pump.OnInputBufferAvailable(0)
	queued = f.codec.Queued()
	if last := queued[len(queued)-1]; last.PTS != 0 || last.Size != 1 || !last.Flags.Has(ports.FlagDiscontinuity) {
		t.Errorf("first input after flush = %+v, want discontinuous sample at 0", last)
	}

	released := f.codec.Released()
	if len(released) != 1 || released[0].Render {
		t.Errorf("empty EOS output should be released without rendering, got %+v", released)
	}
}

func TestMaxLoopsClosesDone(t *testing.T) {
	f := newFixture(t, Options{MaxLoops: 1}, 0, 33000, 66000)
	f.start(t)

	for id := 0; id < 5; id++ {
		f.pump.OnInputBufferAvailable(id)
	}
	queued := f.codec.Queued()
	if len(queued) != 4 || !queued[3].Flags.Has(ports.FlagEndOfStream) {
		t.Fatalf("queued = %+v, want three samples and a final end of stream", queued)
	}

	select {
	case <-f.pump.Done():
		t.Fatal("Done closed before the final output")
	default:
	}

	f.codec.EmitOutput(0, ports.BufferInfo{Size: 1, PresentationTimeUs: 66000})
	f.codec.EmitOutput(1, ports.BufferInfo{PresentationTimeUs: 66000, Flags: ports.FlagEndOfStream})

	select {
	case <-f.pump.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after final end of stream")
	}
	if _, _, _, flush, _ := f.codec.Counts(); flush != 0 {
		t.Errorf("final end of stream should not flush, got %d flushes", flush)
	}
	if f.pump.Stats().FramesRendered != 1 {
		t.Errorf("FramesRendered = %d, want 1", f.pump.Stats().FramesRendered)
	}
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t, Options{}, 0)
	f.start(t)

	err := f.pump.Start(f.surface)
	if !errors.Is(err, ErrIllegalState) {
		t.Fatalf("second Start = %v, want ErrIllegalState", err)
	}
	configure, start, _, _, _ := f.codec.Counts()
	if configure != 1 || start != 1 {
		t.Errorf("codec configured %d and started %d times, want 1 and 1", configure, start)
	}
	if f.pump.State() != StateRunning {
		t.Errorf("state = %s, want running", f.pump.State())
	}
}

func TestStartErrors(t *testing.T) {
	f := newFixture(t, Options{}, 0)
	f.codec.ConfigureErr = errors.New("no surface")
	if err := f.pump.Start(f.surface); err == nil {
		t.Fatal("expected configure error")
	}
	if f.pump.State() != StateUnconfigured {
		t.Errorf("state = %s, want unconfigured", f.pump.State())
	}

	f = newFixture(t, Options{}, 0)
	f.codec.StartErr = errors.New("busy")
	if err := f.pump.Start(f.surface); err == nil {
		t.Fatal("expected start error")
	}
	if f.pump.State() != StateConfigured {
		t.Errorf("state = %s, want configured", f.pump.State())
	}
}

func TestRenderModes(t *testing.T) {
	tests := []struct {
		name      string
		mode      RenderMode
		wantTimed bool
	}{
		{name: "immediate", mode: RenderImmediate},
		{name: "timestamp", mode: RenderAtTimestamp, wantTimed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{RenderMode: tt.mode}, 0, 33000)
			f.start(t)

			f.codec.EmitOutput(2, ports.BufferInfo{Size: 10, PresentationTimeUs: 33000})

			released := f.codec.Released()
			if len(released) != 1 {
				t.Fatalf("released %d buffers, want 1", len(released))
			}
			r := released[0]
			if r.ID != 2 || !r.Render || r.Timed != tt.wantTimed {
				t.Errorf("release = %+v", r)
			}
			if tt.wantTimed && r.PTS != 33000 {
				t.Errorf("release pts = %d, want 33000", r.PTS)
			}
			if got := f.pump.Stats().LastPresentationTimeUs; got != 33000 {
				t.Errorf("LastPresentationTimeUs = %d, want 33000", got)
			}
		})
	}
}

func TestReleaseFailureCountsDrop(t *testing.T) {
	f := newFixture(t, Options{}, 0)
	f.start(t)

	// Not marked outstanding, so the codec rejects the release.
	f.pump.OnOutputBufferAvailable(7, ports.BufferInfo{Size: 4})

	stats := f.pump.Stats()
	if stats.FramesDropped != 1 || stats.FramesRendered != 0 {
		t.Errorf("stats = %+v, want one dropped frame", stats)
	}
	if !f.logger.Contains(ports.LevelWarn, "Dropped frame") {
		t.Error("expected a warning for the dropped frame")
	}
	if f.pump.State() != StateRunning {
		t.Errorf("state = %s, want running", f.pump.State())
	}
}

func TestFormatChangeReachesSurface(t *testing.T) {
	f := newFixture(t, Options{}, 0)
	f.start(t)

	format := ports.MediaFormat{
		MIME:   ports.MIMEVideoAVC,
		Width:  1280,
		Height: 720,
		Color:  ports.ColorInfo{Primaries: 1, Transfer: 16, FullRange: true},

		ColorFormat: ports.ColorFormatYUV420,
	}
	f.pump.OnOutputFormatChanged(format)

	formats := f.surface.Formats()
	if len(formats) != 1 || formats[0].Width != 1280 || formats[0].Height != 720 {
		t.Fatalf("surface formats = %+v", formats)
	}
	for _, want := range []string{"color-standard: bt709", "color-range: full", "color-transfer: st2084", "color-format: yuv420"} {
		if !f.logger.Contains(ports.LevelInfo, want) {
			t.Errorf("missing log line %q", want)
		}
	}
	if f.pump.Stats().FormatChanges != 1 {
		t.Errorf("FormatChanges = %d, want 1", f.pump.Stats().FormatChanges)
	}
}

func TestErrorBreaksSession(t *testing.T) {
	f := newFixture(t, Options{}, 0, 33000)
	f.start(t)

	cause := &ports.CodecError{MIME: ports.MIMEVideoAVC, Op: "decode", Err: errors.New("corrupt slice")}
	f.pump.OnError(cause)

	if f.pump.State() != StateBroken {
		t.Fatalf("state = %s, want broken", f.pump.State())
	}
	select {
	case err := <-f.pump.Errors():
		if !errors.Is(err, ports.ErrDecoder) {
			t.Errorf("error = %v, want ErrDecoder", err)
		}
	default:
		t.Fatal("no error delivered")
	}

	f.pump.OnInputBufferAvailable(0)
	if n := len(f.codec.Queued()); n != 0 {
		t.Errorf("broken pump queued %d inputs", n)
	}

	// Outputs still arriving go back to the codec unrendered.
	f.codec.EmitOutput(3, ports.BufferInfo{Size: 1, PresentationTimeUs: 33000})
	released := f.codec.Released()
	if len(released) != 1 || released[0].ID != 3 || released[0].Render {
		t.Errorf("released = %+v, want buffer 3 returned without rendering", released)
	}
	if f.pump.Stats().FramesRendered != 0 {
		t.Errorf("FramesRendered = %d, want 0", f.pump.Stats().FramesRendered)
	}
}

func TestExhaustedReaderMarksNextPass(t *testing.T) {
	f := newFixture(t, Options{}, 0, 33000)
	f.start(t)

	// Leave the reader past its last sample.
	for f.reader.Advance() {
	}
	f.pump.OnInputBufferAvailable(0)
	f.pump.OnInputBufferAvailable(1)

	queued := f.codec.Queued()
	if len(queued) != 2 {
		t.Fatalf("queued %d inputs, want 2", len(queued))
	}
	if queued[0].Size != 0 || queued[0].Flags.Has(ports.FlagDiscontinuity) {
		t.Errorf("empty input = %+v, want no flags", queued[0])
	}
	if queued[1].PTS != 0 || !queued[1].Flags.Has(ports.FlagDiscontinuity) {
		t.Errorf("first sample = %+v, want discontinuous sample at 0", queued[1])
	}
}

func TestErrorsDoNotBlock(t *testing.T) {
	f := newFixture(t, Options{}, 0)
	f.start(t)

	for i := 0; i < 20; i++ {
		f.pump.OnError(errors.New("boom"))
	}
	if got := f.pump.Stats().Errors; got != 20 {
		t.Errorf("Errors = %d, want 20", got)
	}
}

func TestEmptyTrackFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.start(t)

	f.pump.OnInputBufferAvailable(0)

	select {
	case err := <-f.pump.Errors():
		if !errors.Is(err, ErrEmptyTrack) {
			t.Errorf("error = %v, want ErrEmptyTrack", err)
		}
	default:
		t.Fatal("expected ErrEmptyTrack")
	}
	if f.pump.State() != StateBroken {
		t.Errorf("state = %s, want broken", f.pump.State())
	}
}

func TestStopIgnoresLaterCallbacks(t *testing.T) {
	f := newFixture(t, Options{}, 0, 33000, 66000)
	f.start(t)

	if err := f.pump.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := f.pump.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	_, _, stop, _, release := f.codec.Counts()
	if stop != 1 || release != 1 {
		t.Errorf("codec stopped %d and released %d times, want 1 and 1", stop, release)
	}

	f.pump.OnInputBufferAvailable(0)
	f.codec.EmitOutput(0, ports.BufferInfo{Size: 1})
	f.pump.OnOutputFormatChanged(ports.MediaFormat{Width: 10, Height: 10})
	f.pump.OnError(errors.New("late"))

	if n := len(f.codec.Queued()); n != 0 {
		t.Errorf("queued %d inputs after Stop", n)
	}
	if n := len(f.surface.Formats()); n != 0 {
		t.Errorf("surface got %d formats after Stop", n)
	}
	if f.pump.State() != StateStopped {
		t.Errorf("state = %s, want stopped", f.pump.State())
	}
	select {
	case <-f.pump.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}

func TestStopBeforeStart(t *testing.T) {
	f := newFixture(t, Options{}, 0)
	if err := f.pump.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	configure, _, stop, _, release := f.codec.Counts()
	if configure != 0 || stop != 0 || release != 0 {
		t.Errorf("unconfigured stop touched the codec: configure=%d stop=%d release=%d", configure, stop, release)
	}
	if err := f.pump.Start(f.surface); !errors.Is(err, ErrIllegalState) {
		t.Errorf("Start after Stop = %v, want ErrIllegalState", err)
	}
}

func TestStopRacesCallbacks(t *testing.T) {
	f := newFixture(t, Options{}, 0, 33000, 66000)
	f.start(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			f.codec.EmitOutput(i%4, ports.BufferInfo{Size: 1, PresentationTimeUs: int64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			f.pump.OnInputBufferAvailable(i % 4)
		}
	}()

	time.Sleep(time.Millisecond)
	if err := f.pump.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	wg.Wait()

	if n := f.codec.InvalidReleases(); n != 0 {
		t.Errorf("%d releases of buffers the pump did not own", n)
	}
	if f.pump.State() != StateStopped {
		t.Errorf("state = %s, want stopped", f.pump.State())
	}
}

func TestParseOptions(t *testing.T) {
	if p, err := ParseEOSPolicy("drain"); err != nil || p != EOSDrain {
		t.Errorf("ParseEOSPolicy(drain) = %v, %v", p, err)
	}
	if p, err := ParseEOSPolicy(""); err != nil || p != EOSRewind {
		t.Errorf("ParseEOSPolicy(\"\") = %v, %v", p, err)
	}
	if _, err := ParseEOSPolicy("stop"); err == nil {
		t.Error("expected error for unknown policy")
	}
	if m, err := ParseRenderMode("timestamp"); err != nil || m != RenderAtTimestamp {
		t.Errorf("ParseRenderMode(timestamp) = %v, %v", m, err)
	}
	if _, err := ParseRenderMode("vsync"); err == nil {
		t.Error("expected error for unknown render mode")
	}
	if StateBroken.String() != "broken" || State(42).String() != "State(42)" {
		t.Error("unexpected State strings")
	}
}
