package model

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one captured frame in RGBA order, 4 bytes per pixel. Published
// frames are treated as immutable; mutate copies only.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

func (f Frame) Copy() Frame {
	dup := make([]byte, len(f.Data))
	copy(dup, f.Data)
	f.Data = dup
	return f
}

// RGBA wraps the frame buffer as an image without copying. Drawing into the
// returned image mutates the frame.
func (f Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Gray reduces the frame to one luma byte per pixel.
func (f Frame) Gray() []byte {
	out := make([]byte, f.Width*f.Height)
	for i, j := 0, 0; j < len(out); i, j = i+4, j+1 {
		r := int(f.Data[i])
		g := int(f.Data[i+1])
		b := int(f.Data[i+2])
		out[j] = byte((299*r + 587*g + 114*b) / 1000)
	}
	return out
}

// FrameFromImage converts an arbitrary image into an RGBA frame.
func FrameFromImage(img image.Image, seq uint64, ts time.Time) Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return Frame{
		Data:      rgba.Pix,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Seq:       seq,
		Timestamp: ts,
	}
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Center() (int, int) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

type Detection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Classified partitions detections by category. Vehicles cover car, truck,
// bus, motorcycle and bicycle.
type Classified struct {
	Persons  []Detection
	Vehicles []Detection
	Others   []Detection
}

// FaceLocation uses the top/right/bottom/left edge convention.
type FaceLocation struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

type Face struct {
	Location FaceLocation `json:"location"`
	Name     string       `json:"name"`
	Known    bool         `json:"known"`
	Distance float32      `json:"distance"`
}
