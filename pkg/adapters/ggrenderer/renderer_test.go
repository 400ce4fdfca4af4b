package ggrenderer

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/user/pixelvideo/pkg/ports"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRenderer_CreateCanvas(t *testing.T) {
	r := New()

	canvas := r.CreateCanvas(100, 80, color.Black)
	if canvas == nil {
		t.Fatal("expected canvas to be created")
	}

	bounds := canvas.ToImage().Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 80 {
		t.Errorf("expected 100x80, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderer_EncodeJPEG(t *testing.T) {
	r := New()

	data, err := r.EncodeImage(solid(50, 40, color.RGBA{R: 255, A: 255}), ports.FormatJPEG, 80)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg.Decode failed: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 50 || b.Dy() != 40 {
		t.Errorf("expected 50x40, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderer_EncodePNG(t *testing.T) {
	r := New()

	data, err := r.EncodeImage(image.NewRGBA(image.Rect(0, 0, 30, 30)), ports.FormatPNG, 0)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 30 || b.Dy() != 30 {
		t.Errorf("expected 30x30, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderer_EncodeUnsupported(t *testing.T) {
	r := New()

	if _, err := r.EncodeImage(image.NewRGBA(image.Rect(0, 0, 1, 1)), ports.ImageFormat(42), 0); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestRenderer_ResizeImage(t *testing.T) {
	r := New()

	resized := r.ResizeImage(image.NewRGBA(image.Rect(0, 0, 100, 100)), 50, 25)

	bounds := resized.Bounds()
	if bounds.Dx() != 50 || bounds.Dy() != 25 {
		t.Errorf("expected 50x25, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCanvas_DrawRect(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(100, 100, color.Black)

	canvas.DrawRect(10, 10, 30, 30, color.RGBA{R: 255, A: 255})

	red, _, _, _ := canvas.ToImage().At(20, 20).RGBA()
	if red == 0 {
		t.Error("expected red pixel inside rectangle")
	}
	red, _, _, _ = canvas.ToImage().At(60, 60).RGBA()
	if red != 0 {
		t.Error("expected background outside rectangle")
	}
}

func TestCanvas_DrawImageScaled(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(100, 100, color.Black)

	canvas.DrawImageScaled(solid(10, 10, color.RGBA{G: 255, A: 255}), 0, 25, 100, 50)

	img := canvas.ToImage()
	_, green, _, _ := img.At(50, 50).RGBA()
	if green == 0 {
		t.Error("expected green pixel inside scaled image")
	}
	_, green, _, _ = img.At(50, 5).RGBA()
	if green != 0 {
		t.Error("expected background above scaled image")
	}
}

func TestCanvas_DrawImageScaled_EmptySource(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(10, 10, color.Black)

	// Should not panic on a zero-sized image
	canvas.DrawImageScaled(image.NewRGBA(image.Rect(0, 0, 0, 0)), 0, 0, 10, 10)
}

func TestCanvas_DrawText(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(200, 50, color.Black)

	style := ports.TextStyle{
		FontSize: 14,
		Color:    color.White,
		Align:    ports.AlignRight,
	}

	canvas.DrawText("00:01.000", 190, 25, style)

	w, h := canvas.MeasureText("00:01.000", style)
	if w <= 0 || h <= 0 {
		t.Errorf("expected positive text extent, got %.1fx%.1f", w, h)
	}
}
