package pipeline

import (
	"github.com/khaledhikmat/aicam-go/model"
)

// pixelDiffThreshold is the absolute grayscale difference beyond which a
// pixel counts as changed between consecutive frames.
const pixelDiffThreshold = 30

// MotionDetector compares each frame against the previous one in grayscale
// and reports the percentage of pixels that changed. It keeps exactly one
// frame of state.
type MotionDetector struct {
	threshold float64
	prev      []byte
	width     int
	height    int
}

// NewMotionDetector creates a detector that flags motion when the changed
// pixel percentage exceeds threshold.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{threshold: threshold}
}

// Detect returns whether motion crossed the threshold and the magnitude as
// a 0-100 percentage. The first call only seeds the previous frame and
// reports no motion. A resolution change reseeds the same way.
func (d *MotionDetector) Detect(frame model.Frame) (bool, float64) {
	if frame.Empty() {
		return false, 0.0
	}

	gray := frame.Gray()
	if d.prev == nil || d.width != frame.Width || d.height != frame.Height {
		d.prev = gray
		d.width = frame.Width
		d.height = frame.Height
		return false, 0.0
	}

	changed := 0
	for i, v := range gray {
		diff := int(v) - int(d.prev[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > pixelDiffThreshold {
			changed++
		}
	}
	d.prev = gray

	magnitude := float64(changed) / float64(len(gray)) * 100
	return magnitude > d.threshold, magnitude
}
