package main

import (
	"errors"
	"testing"

	"github.com/user/pixelvideo/pkg/adapters/nullsurface"
	"github.com/user/pixelvideo/pkg/mocks"
	"github.com/user/pixelvideo/pkg/ports"
)

func TestTeeFansOut(t *testing.T) {
	a := nullsurface.New()
	b := mocks.NewSurface()
	b.QueueFrameFunc = func(ports.Frame) error { return errors.New("rejected") }

	s := newTee(a, b)
	if err := s.QueueFrame(ports.Frame{PresentationTimeUs: 5}); err == nil {
		t.Error("QueueFrame should report the failing target")
	}
	s.SetFormat(ports.MediaFormat{Width: 16, Height: 8})
	if err := s.DrawFrame(); err != nil {
		t.Errorf("DrawFrame failed: %v", err)
	}

	if a.Frames() != 1 || a.Draws() != 1 {
		t.Errorf("null surface saw %d frames, %d draws", a.Frames(), a.Draws())
	}
	if f := b.Formats(); len(f) != 1 || f[0].Width != 16 || f[0].Height != 8 {
		t.Errorf("formats = %+v, want one 16x8", f)
	}
}
