package softcodec

import "time"

const (
	defaultFrameInterval = 33333 * time.Microsecond
	defaultMaxLag        = time.Second
)

// presentationClock maps presentation timestamps to wall-clock due times.
//
// The clock is anchored on the first frame. A frame flagged as a
// discontinuity (the first frame of a new pass) re-anchors one frame
// interval after the latest due time handed out so far. Timestamps may go
// backwards without a flag; that is reordered content, not a loop. A frame
// more than maxLag late re-anchors to now instead of causing a burst.
type presentationClock struct {
	now    func() time.Time
	maxLag time.Duration

	anchored   bool
	anchorWall time.Time
	anchorPts  int64
	lastPts    int64
	maxDue     time.Time
	// interval is the smallest positive step seen between consecutive
	// timestamps; zero until one is known.
	interval time.Duration
}

func newPresentationClock(now func() time.Time) *presentationClock {
	if now == nil {
		now = time.Now
	}
	return &presentationClock{
		now:    now,
		maxLag: defaultMaxLag,
	}
}

func (c *presentationClock) anchor(wall time.Time, pts int64) {
	c.anchored = true
	c.anchorWall = wall
	c.anchorPts = pts
}

func (c *presentationClock) frameInterval() time.Duration {
	if c.interval == 0 {
		return defaultFrameInterval
	}
	return c.interval
}

// due returns when the frame with the given timestamp should be shown.
func (c *presentationClock) due(ptsUs int64, discontinuity bool) time.Time {
	now := c.now()

	switch {
	case !c.anchored:
		c.anchor(now, ptsUs)
	case discontinuity:
		c.anchor(c.maxDue.Add(c.frameInterval()), ptsUs)
	case ptsUs > c.lastPts:
		step := time.Duration(ptsUs-c.lastPts) * time.Microsecond
		if c.interval == 0 || step < c.interval {
			c.interval = step
		}
	}

	due := c.anchorWall.Add(time.Duration(ptsUs-c.anchorPts) * time.Microsecond)
	if now.Sub(due) > c.maxLag {
		c.anchor(now, ptsUs)
		due = now
	}

	c.lastPts = ptsUs
	if due.After(c.maxDue) {
		c.maxDue = due
	}
	return due
}

func (c *presentationClock) reset() {
	c.anchored = false
	c.lastPts = 0
	c.maxDue = time.Time{}
	c.interval = 0
}
