package canvassurface

import (
	"context"
	"time"
)

// Drawer is anything with a per-frame draw tick.
type Drawer interface {
	DrawFrame() error
}

// RunDrawLoop calls d.DrawFrame fps times per second until ctx ends, the
// way a render thread ticks on vsync. When ctx ends it draws once more and
// returns that result; otherwise it returns the first draw error.
func RunDrawLoop(ctx context.Context, d Drawer, fps int) error {
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final tick so the last queued frame is not lost.
			return d.DrawFrame()
		case <-ticker.C:
			if err := d.DrawFrame(); err != nil {
				return err
			}
		}
	}
}
