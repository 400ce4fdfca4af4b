package playback

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/pixelvideo/pkg/adapters/mp4demux"
	"github.com/user/pixelvideo/pkg/adapters/mp4mux"
	"github.com/user/pixelvideo/pkg/adapters/smartdecoder"
	"github.com/user/pixelvideo/pkg/mocks"
	"github.com/user/pixelvideo/pkg/ports"
	"github.com/user/pixelvideo/pkg/pump"
	"github.com/user/pixelvideo/pkg/source"
)

func videoDemuxer(pts ...int64) *mocks.Demuxer {
	d := mocks.NewDemuxer(ports.MIMEAudioAAC, ports.MIMEVideoAVC)
	d.AddTimestamps(1, pts...)
	return d
}

func TestStartSelectsVideoTrack(t *testing.T) {
	factory := &mocks.CodecFactory{}
	c := NewController(factory, pump.Options{}, mocks.NewLogger())
	defer c.Stop()

	if err := c.Start(context.Background(), videoDemuxer(0, 33000, 66000), mocks.NewSurface()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if mimes := factory.MIMEs(); len(mimes) != 1 || mimes[0] != ports.MIMEVideoAVC {
		t.Errorf("factory asked for %v, want [%s]", mimes, ports.MIMEVideoAVC)
	}
	track, ok := c.Track()
	if !ok || track.Index != 1 {
		t.Errorf("Track() = %+v, %v; want index 1", track, ok)
	}
	codec := factory.Created()[0]
	if !codec.Running() {
		t.Error("codec not started")
	}
	if codec.Callback() == nil {
		t.Error("codec has no callback")
	}
}

func TestStartTwice(t *testing.T) {
	factory := &mocks.CodecFactory{}
	c := NewController(factory, pump.Options{}, mocks.NewLogger())
	defer c.Stop()

	if err := c.Start(context.Background(), videoDemuxer(0), mocks.NewSurface()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := videoDemuxer(0)
	err := c.Start(context.Background(), second, mocks.NewSurface())
	if !errors.Is(err, ErrIllegalState) {
		t.Fatalf("second Start = %v, want ErrIllegalState", err)
	}

	if n := len(factory.Created()); n != 1 {
		t.Errorf("created %d codecs, want 1", n)
	}
	configure, start, stop, _, release := factory.Created()[0].Counts()
	if configure != 1 || start != 1 || stop != 0 || release != 0 {
		t.Errorf("first codec touched: configure=%d start=%d stop=%d release=%d", configure, start, stop, release)
	}
}

func TestStartSetupErrors(t *testing.T) {
	factoryErr := errors.New("no decoder")

	tests := []struct {
		name    string
		demuxer func() ports.Demuxer
		factory *mocks.CodecFactory
		wantErr error
	}{
		{
			name:    "no tracks",
			demuxer: func() ports.Demuxer { return mocks.NewDemuxer() },
			factory: &mocks.CodecFactory{},
			wantErr: source.ErrOpen,
		},
		{
			name:    "audio only",
			demuxer: func() ports.Demuxer { return mocks.NewDemuxer(ports.MIMEAudioAAC) },
			factory: &mocks.CodecFactory{},
			wantErr: source.ErrNoVideoTrack,
		},
		{
			name:    "codec creation",
			demuxer: func() ports.Demuxer { return videoDemuxer(0) },
			factory: &mocks.CodecFactory{Err: factoryErr},
			wantErr: factoryErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.demuxer()
			c := NewController(tt.factory, pump.Options{}, mocks.NewLogger())
			err := c.Start(context.Background(), d, mocks.NewSurface())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start = %v, want %v", err, tt.wantErr)
			}
			if n := d.(*mocks.Demuxer).CloseCount(); n != 1 {
				t.Errorf("demuxer closed %d times, want 1", n)
			}
			if err := c.Wait(context.Background()); !errors.Is(err, ErrNotStarted) {
				t.Errorf("Wait = %v, want ErrNotStarted", err)
			}
		})
	}
}

func TestStartCodecFailureReleasesCodec(t *testing.T) {
	factory := &mocks.CodecFactory{NewFunc: func(string) *mocks.Codec {
		c := mocks.NewCodec()
		c.StartErr = errors.New("busy")
		return c
	}}
	c := NewController(factory, pump.Options{}, mocks.NewLogger())

	d := videoDemuxer(0)
	if err := c.Start(context.Background(), d, mocks.NewSurface()); err == nil {
		t.Fatal("expected start error")
	}
	_, _, _, _, release := factory.Created()[0].Counts()
	if release != 1 {
		t.Errorf("codec released %d times, want 1", release)
	}
	if d.CloseCount() != 1 {
		t.Errorf("demuxer closed %d times, want 1", d.CloseCount())
	}
}

func TestStopOrder(t *testing.T) {
	factory := &mocks.CodecFactory{}
	c := NewController(factory, pump.Options{}, mocks.NewLogger())

	d := videoDemuxer(0, 33000)
	if err := c.Start(context.Background(), d, mocks.NewSurface()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	codec := factory.Created()[0]

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	_, _, stop, _, release := codec.Counts()
	if stop != 1 || release != 1 {
		t.Errorf("codec stopped %d and released %d times, want 1 and 1", stop, release)
	}
	if d.CloseCount() != 1 {
		t.Errorf("demuxer closed %d times, want 1", d.CloseCount())
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done not closed after Stop")
	}

	err := c.Start(context.Background(), videoDemuxer(0), mocks.NewSurface())
	if !errors.Is(err, ErrIllegalState) {
		t.Errorf("Start after Stop = %v, want ErrIllegalState", err)
	}
}

func TestWaitReturnsDecoderError(t *testing.T) {
	factory := &mocks.CodecFactory{}
	c := NewController(factory, pump.Options{}, mocks.NewLogger())
	defer c.Stop()

	if err := c.Start(context.Background(), videoDemuxer(0), mocks.NewSurface()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cause := &ports.CodecError{MIME: ports.MIMEVideoAVC, Op: "decode", Err: errors.New("bad slice")}
	factory.Created()[0].Callback().OnError(cause)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, ports.ErrDecoder) {
		t.Errorf("Wait = %v, want ErrDecoder", err)
	}
	if s, ok := c.Session(); !ok || s.State != pump.StateBroken {
		t.Errorf("session = %+v, want broken", s)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	c := NewController(&mocks.CodecFactory{}, pump.Options{}, mocks.NewLogger())
	defer c.Stop()

	if err := c.Start(context.Background(), videoDemuxer(0), mocks.NewSurface()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}

var (
	testSPS = []byte{
		0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
		0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
		0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
		0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
		0x3a, 0x8e, 0x18, 0xc9,
	}
	testPPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

func threeFrameMP4(t *testing.T) ports.Demuxer {
	t.Helper()
	m := mp4mux.New(256, 192, mp4mux.DefaultTimescale)
	m.SetParameterSets(testSPS, testPPS)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x65, 0x88, 0x00}, 0, 33000, true)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x41, 0x9a, 0x01}, 33000, 33000, false)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}, 66000, 33000, false)
	data, err := m.Bytes()
	if err != nil {
		t.Fatalf("build mp4: %v", err)
	}
	demuxer, err := mp4demux.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open mp4: %v", err)
	}
	return demuxer
}

func TestTimedPlaybackShowsEveryPass(t *testing.T) {
	tests := []struct {
		name   string
		policy pump.EOSPolicy
	}{
		{name: "rewind", policy: pump.EOSRewind},
		{name: "drain", policy: pump.EOSDrain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := mocks.NewLogger()
			factory := smartdecoder.NewFactory(smartdecoder.Options{Backend: smartdecoder.BackendPassthrough}, logger)
			opts := pump.Options{MaxLoops: 2, EOSPolicy: tt.policy, RenderMode: pump.RenderAtTimestamp}
			c := NewController(factory, opts, logger)

			surface := mocks.NewSurface()
			if err := c.Start(context.Background(), threeFrameMP4(t), surface); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.Wait(ctx); err != nil {
				t.Fatalf("Wait failed: %v", err)
			}
			stats := c.Stats()
			if err := c.Stop(); err != nil {
				t.Fatalf("Stop failed: %v", err)
			}

			frames := surface.Frames()
			want := []int64{0, 33000, 66000, 0, 33000, 66000}
			if len(frames) != len(want) {
				t.Fatalf("surface got %d frames, want %d", len(frames), len(want))
			}
			for i, f := range frames {
				if f.PresentationTimeUs != want[i] {
					t.Errorf("frame %d pts = %d, want %d", i, f.PresentationTimeUs, want[i])
				}
				if got := f.Flags.Has(ports.FlagDiscontinuity); got != (i == 3) {
					t.Errorf("frame %d discontinuity = %v", i, got)
				}
			}
			if stats.FramesRendered != 6 {
				t.Errorf("FramesRendered = %d, want 6", stats.FramesRendered)
			}
		})
	}
}

func TestPlaybackLoopsThroughMP4(t *testing.T) {
	m := mp4mux.New(256, 192, mp4mux.DefaultTimescale)
	m.SetParameterSets(testSPS, testPPS)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x65, 0x88, 0x00}, 0, 33000, true)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x41, 0x9a, 0x01}, 33000, 33000, false)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}, 66000, 33000, false)
	data, err := m.Bytes()
	if err != nil {
		t.Fatalf("build mp4: %v", err)
	}

	demuxer, err := mp4demux.Open(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open mp4: %v", err)
	}

	logger := mocks.NewLogger()
	factory := smartdecoder.NewFactory(smartdecoder.Options{Backend: smartdecoder.BackendPassthrough}, logger)
	c := NewController(factory, pump.Options{MaxLoops: 2}, logger)
	defer c.Stop()

	surface := mocks.NewSurface()
	if err := c.Start(context.Background(), demuxer, surface); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	frames := surface.Frames()
	if len(frames) != 6 {
		t.Fatalf("surface got %d frames, want 6", len(frames))
	}
	want := []int64{0, 33000, 66000, 0, 33000, 66000}
	for i, f := range frames {
		if f.PresentationTimeUs != want[i] {
			t.Errorf("frame %d pts = %d, want %d", i, f.PresentationTimeUs, want[i])
		}
	}
	// Sync samples carry their parameter sets in Annex B.
	if !bytes.HasPrefix(frames[0].Data, append([]byte{0, 0, 0, 1}, testSPS...)) {
		t.Errorf("first frame does not start with the SPS: % x", frames[0].Data[:8])
	}

	formats := surface.Formats()
	if len(formats) == 0 || formats[0].Width != 256 || formats[0].Height != 192 {
		t.Errorf("surface formats = %+v, want 256x192", formats)
	}

	stats := c.Stats()
	if stats.LoopsCompleted != 2 || stats.FramesRendered != 6 {
		t.Errorf("stats = %+v", stats)
	}
}
