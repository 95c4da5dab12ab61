package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/khaledhikmat/aicam-go/model"
)

const boxThickness = 2

var (
	boxGreen  = color.RGBA{G: 255, A: 255}
	boxOrange = color.RGBA{R: 255, G: 165, A: 255}
)

// Annotate draws detection boxes, their labels and the status line onto the
// frame in place. Callers pass a private copy, never the shared frame.
func Annotate(frame model.Frame, dets []model.Detection, people int, motionMag, fps float64) {
	if frame.Empty() {
		return
	}
	img := frame.RGBA()

	for _, det := range dets {
		c := boxOrange
		if det.Confidence > 0.7 {
			c = boxGreen
		}
		drawRect(img, det.Box, c)
		drawLabel(img, fmt.Sprintf("%s %.2f", det.Class, det.Confidence), det.Box.X1, det.Box.Y1-10, c)
	}

	info := fmt.Sprintf("People: %d | Motion: %.1f | FPS: %.1f", people, motionMag, fps)
	drawLabel(img, info, 10, 30, boxGreen)
}

func drawRect(img *image.RGBA, b model.Box, c color.RGBA) {
	for t := 0; t < boxThickness; t++ {
		x1, y1 := b.X1+t, b.Y1+t
		x2, y2 := b.X2-t, b.Y2-t
		for x := x1; x <= x2; x++ {
			setPixel(img, x, y1, c)
			setPixel(img, x, y2, c)
		}
		for y := y1; y <= y2; y++ {
			setPixel(img, x1, y, c)
			setPixel(img, x2, y, c)
		}
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if !(image.Point{X: x, Y: y}).In(img.Rect) {
		return
	}
	img.SetRGBA(x, y, c)
}

func drawLabel(img *image.RGBA, text string, x, y int, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
