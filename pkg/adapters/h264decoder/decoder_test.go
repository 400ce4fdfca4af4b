package h264decoder

import (
	"bytes"
	"errors"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var (
	idrUnit   = []byte{0, 0, 0, 1, 0x65, 0x88, 0x84}
	sliceUnit = []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}
)

// newRecordingDecoder returns a decoder whose ffmpeg step records the
// groups it is asked to decode.
func newRecordingDecoder(opts Options) (*Decoder, *[][]byte) {
	var groups [][]byte
	d := New(opts)
	d.run = func(group []byte) (image.Image, error) {
		groups = append(groups, append([]byte(nil), group...))
		return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
	}
	return d, &groups
}

func TestDecodeBeforeInit(t *testing.T) {
	d := New(Options{})
	if _, err := d.DecodeFrame(idrUnit); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestDecodeAccumulatesGroup(t *testing.T) {
	d, groups := newRecordingDecoder(Options{})
	if err := d.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer d.Close()

	// Units before the first IDR produce nothing.
	img, err := d.DecodeFrame(sliceUnit)
	if err != nil || img != nil {
		t.Fatalf("expected no picture before IDR, got img=%v err=%v", img, err)
	}

	for _, unit := range [][]byte{idrUnit, sliceUnit, sliceUnit} {
		img, err := d.DecodeFrame(unit)
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if img == nil {
			t.Fatal("expected picture")
		}
	}

	if len(*groups) != 3 {
		t.Fatalf("ran decoder %d times, want 3", len(*groups))
	}
	if got, want := len((*groups)[2]), len(idrUnit)+2*len(sliceUnit); got != want {
		t.Errorf("third group is %d bytes, want %d", got, want)
	}

	// A new IDR starts a new group.
	if _, err := d.DecodeFrame(idrUnit); err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if !bytes.Equal((*groups)[3], idrUnit) {
		t.Errorf("group after IDR = %x, want %x", (*groups)[3], idrUnit)
	}
}

func TestResetWaitsForIDR(t *testing.T) {
	d, groups := newRecordingDecoder(Options{})
	d.Init()

	d.DecodeFrame(idrUnit)
	d.Reset()

	img, err := d.DecodeFrame(sliceUnit)
	if err != nil || img != nil {
		t.Errorf("expected no picture after reset, got img=%v err=%v", img, err)
	}
	if len(*groups) != 1 {
		t.Errorf("ran decoder %d times, want 1", len(*groups))
	}
}

func TestGroupTooLarge(t *testing.T) {
	d, _ := newRecordingDecoder(Options{MaxGroupBytes: len(idrUnit) + 1})
	d.Init()

	if _, err := d.DecodeFrame(idrUnit); err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if _, err := d.DecodeFrame(sliceUnit); !errors.Is(err, ErrGroupTooLarge) {
		t.Errorf("expected ErrGroupTooLarge, got %v", err)
	}
}

func TestEmptyUnit(t *testing.T) {
	d, _ := newRecordingDecoder(Options{})
	d.Init()
	if _, err := d.DecodeFrame(nil); !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("expected ErrDecodeFailed, got %v", err)
	}
}

func TestCustomPathNotFound(t *testing.T) {
	d := New(Options{FFmpegPath: filepath.Join(t.TempDir(), "no-ffmpeg")})
	if err := d.Init(); !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound, got %v", err)
	}
	if IsAvailable(filepath.Join(t.TempDir(), "no-ffmpeg")) {
		t.Error("IsAvailable should be false for a missing override")
	}
}

func TestDecodeWithFFmpeg(t *testing.T) {
	ffmpegPath, err := findFFmpeg("")
	if err != nil {
		t.Skip("ffmpeg not available")
	}

	// Encode a short test pattern to raw H.264.
	streamPath := filepath.Join(t.TempDir(), "pattern.h264")
	cmd := exec.Command(ffmpegPath,
		"-y", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-frames:v", "3",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-f", "h264", streamPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot encode test stream: %v %s", err, out)
	}

	stream, err := os.ReadFile(streamPath)
	if err != nil {
		t.Fatal(err)
	}

	d := New(Options{FFmpegPath: ffmpegPath})
	if err := d.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer d.Close()

	img, err := d.DecodeFrame(stream)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if img == nil {
		t.Fatal("expected picture")
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("picture is %dx%d, want 64x48", b.Dx(), b.Dy())
	}
}
