package transport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BitratePacer is a byte-budget token bucket over an attachment's target
// rate. streamWriter.WriteVideo consults it and skips delta frames that
// exceed the budget (keyframes are always sent). It is not connected to
// the GPU pipeline's rate-control curve.
type BitratePacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	bps     uint64
}

// defaultBurstMs is the token bucket's burst capacity, expressed as the
// number of milliseconds of the current bitrate it can hold; wide
// enough to let one keyframe through without waiting on the bucket to
// refill mid-frame.
const defaultBurstMs = 250

// defaultInitialBitrateBps seeds a newly attached client's pacer before
// any congestion signal has arrived, matching the rate-control curve's
// 1080p VBR baseline.
const defaultInitialBitrateBps = 8_000_000

// NewBitratePacer creates a pacer seeded at bps bytes per second.
func NewBitratePacer(bps uint64) *BitratePacer {
	p := &BitratePacer{}
	p.setLocked(bps)
	return p
}

func (p *BitratePacer) setLocked(bps uint64) {
	if bps == 0 {
		bps = 1
	}
	burst := int(bps * defaultBurstMs / 1000)
	if burst < 1 {
		burst = 1
	}
	p.bps = bps
	p.limiter = rate.NewLimiter(rate.Limit(bps), burst)
}

// SetBitrate updates the pacer's target rate. The server never calls
// it, so an attachment's pacer keeps its seed rate.
func (p *BitratePacer) SetBitrate(bps uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(bps)
}

// BitrateBps returns the pacer's current target rate.
func (p *BitratePacer) BitrateBps() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bps
}

// AllowN reports whether n bytes can be sent immediately without
// exceeding the paced rate, consuming the tokens if so.
func (p *BitratePacer) AllowN(n int) bool {
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()
	return limiter.AllowN(time.Now(), n)
}
