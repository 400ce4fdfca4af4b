package main

import (
	"errors"

	"github.com/user/pixelvideo/pkg/ports"
)

// tee fans one playback session out to several surfaces.
type tee struct {
	targets []ports.Surface
}

func newTee(targets ...ports.Surface) *tee {
	return &tee{targets: targets}
}

// QueueFrame hands the frame to every target, even after one fails.
func (t *tee) QueueFrame(frame ports.Frame) error {
	var errs []error
	for _, s := range t.targets {
		errs = append(errs, s.QueueFrame(frame))
	}
	return errors.Join(errs...)
}

func (t *tee) SetFormat(format ports.MediaFormat) {
	for _, s := range t.targets {
		s.SetFormat(format)
	}
}

func (t *tee) Resize(width, height int) {
	for _, s := range t.targets {
		s.Resize(width, height)
	}
}

func (t *tee) DrawFrame() error {
	var errs []error
	for _, s := range t.targets {
		errs = append(errs, s.DrawFrame())
	}
	return errors.Join(errs...)
}

var _ ports.Surface = (*tee)(nil)
