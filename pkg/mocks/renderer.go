package mocks

import (
	"image"
	"image/color"
	"sync"

	"github.com/user/pixelvideo/pkg/ports"
)

// Renderer is a mock implementation of ports.Renderer.
type Renderer struct {
	mu sync.Mutex

	CreateCanvasFunc func(width, height int, bg color.Color) ports.Canvas
	EncodeImageFunc  func(img image.Image, format ports.ImageFormat, quality int) ([]byte, error)
	ResizeImageFunc  func(img image.Image, width, height int) image.Image

	canvases []*Canvas
}

func (m *Renderer) CreateCanvas(width, height int, bg color.Color) ports.Canvas {
	if m.CreateCanvasFunc != nil {
		return m.CreateCanvasFunc(width, height, bg)
	}
	c := &Canvas{Width: width, Height: height}
	m.mu.Lock()
	m.canvases = append(m.canvases, c)
	m.mu.Unlock()
	return c
}

func (m *Renderer) EncodeImage(img image.Image, format ports.ImageFormat, quality int) ([]byte, error) {
	if m.EncodeImageFunc != nil {
		return m.EncodeImageFunc(img, format, quality)
	}
	return []byte{byte(format)}, nil
}

func (m *Renderer) ResizeImage(img image.Image, width, height int) image.Image {
	if m.ResizeImageFunc != nil {
		return m.ResizeImageFunc(img, width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// Canvases returns the canvases created so far.
func (m *Renderer) Canvases() []*Canvas {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Canvas, len(m.canvases))
	copy(out, m.canvases)
	return out
}

var _ ports.Renderer = (*Renderer)(nil)

// ScaledDraw records one DrawImageScaled call.
type ScaledDraw struct {
	X, Y, Width, Height int
}

// Canvas is a mock implementation of ports.Canvas that records draw calls.
type Canvas struct {
	Width  int
	Height int

	Scaled []ScaledDraw
	Texts  []string
	Rects  int
}

func (m *Canvas) DrawImage(img image.Image, x, y int) {}

func (m *Canvas) DrawImageScaled(img image.Image, x, y, width, height int) {
	m.Scaled = append(m.Scaled, ScaledDraw{X: x, Y: y, Width: width, Height: height})
}

func (m *Canvas) DrawRect(x, y, w, h int, c color.Color) {
	m.Rects++
}

func (m *Canvas) DrawText(text string, x, y int, style ports.TextStyle) {
	m.Texts = append(m.Texts, text)
}

func (m *Canvas) MeasureText(text string, style ports.TextStyle) (float64, float64) {
	return float64(len(text)) * style.FontSize / 2, style.FontSize
}

func (m *Canvas) ToImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
}

var _ ports.Canvas = (*Canvas)(nil)
