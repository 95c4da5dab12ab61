package pipeline

import (
	"sync"

	"github.com/khaledhikmat/aicam-go/model"
)

// frameRing is a fixed-capacity frame history. The capture loop pushes
// without ever blocking; on overflow the oldest frame is dropped.
type frameRing struct {
	mu      sync.Mutex
	frames  []model.Frame
	head    int
	count   int
	evicted int64
}

func newFrameRing(capacity int) *frameRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &frameRing{frames: make([]model.Frame, capacity)}
}

// push stores a frame and reports whether an older one was evicted for it.
func (r *frameRing) push(f model.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames[r.head] = f
	r.head = (r.head + 1) % len(r.frames)

	if r.count < len(r.frames) {
		r.count++
		return false
	}
	r.evicted++
	return true
}

// snapshot returns the buffered frames, oldest first.
func (r *frameRing) snapshot() []model.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Frame, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.frames)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.frames[(start+i)%len(r.frames)])
	}
	return out
}

func (r *frameRing) evictedCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}
