package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// blobRadius is the footprint, in grid cells, deposited around each
// centroid.
const blobRadius = 10

// ErrHeatmapEmpty is returned when a render is requested before any
// centroid has been deposited.
var ErrHeatmapEmpty = errors.New("heatmap has no data")

// Heatmap accumulates person centroids on a fixed grid. Values only grow
// between resets. The orchestrator writes and the API reads, hence the lock.
type Heatmap struct {
	mu     sync.Mutex
	cells  []float64
	width  int
	height int
}

func NewHeatmap(width, height int) *Heatmap {
	return &Heatmap{
		cells:  make([]float64, width*height),
		width:  width,
		height: height,
	}
}

// Add deposits a blob of intensity around the frame-space centroid (cx, cy),
// mapped proportionally into grid space.
func (h *Heatmap) Add(cx, cy, frameW, frameH int) {
	if frameW <= 0 || frameH <= 0 {
		return
	}

	gx := cx * h.width / frameW
	gy := cy * h.height / frameH

	h.mu.Lock()
	defer h.mu.Unlock()

	for dy := -blobRadius; dy <= blobRadius; dy++ {
		for dx := -blobRadius; dx <= blobRadius; dx++ {
			if dx*dx+dy*dy > blobRadius*blobRadius {
				continue
			}
			x := gx + dx
			y := gy + dy
			if x < 0 || x >= h.width || y < 0 || y >= h.height {
				continue
			}
			h.cells[y*h.width+x] += 1.0
		}
	}
}

// Reset zeroes the grid. Statistics resets are independent of this.
func (h *Heatmap) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.cells {
		h.cells[i] = 0
	}
}

// RenderJPEG normalizes the grid by its peak value and encodes it through a
// jet-style palette. Returns ErrHeatmapEmpty when nothing has been deposited
// yet.
func (h *Heatmap) RenderJPEG() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	max := 0.0
	for _, v := range h.cells {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return nil, ErrHeatmapEmpty
	}

	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	for y := 0; y < h.height; y++ {
		for x := 0; x < h.width; x++ {
			img.SetRGBA(x, y, jetColor(h.cells[y*h.width+x]/max))
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jetColor maps a normalized intensity to the blue-cyan-green-yellow-red
// ramp.
func jetColor(v float64) color.RGBA {
	r := jetChannel(1.5 - abs(4*v-3))
	g := jetChannel(1.5 - abs(4*v-2))
	b := jetChannel(1.5 - abs(4*v-1))
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func jetChannel(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v * 255)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
