package camera

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
)

// syntheticService renders a block orbiting the frame center on a flat
// background. It stands in for a physical camera in tests and camera-less
// deployments and gives motion detection something to see.
type syntheticService struct {
	CfgSvc config.IService
	tick   int
	open   bool
}

func NewSynthetic(cfgsvc config.IService) IService {
	return &syntheticService{CfgSvc: cfgsvc}
}

func (svc *syntheticService) Name() string {
	return "synthetic"
}

func (svc *syntheticService) Open() error {
	svc.open = true
	return nil
}

func (svc *syntheticService) Read() (model.Frame, error) {
	if !svc.open {
		return model.Frame{}, fmt.Errorf("synthetic source not open")
	}

	w := svc.CfgSvc.GetCameraWidth()
	h := svc.CfgSvc.GetCameraHeight()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 24, G: 24, B: 24, A: 255}}, image.Point{}, draw.Src)

	svc.tick++
	size := h / 8
	if size < 8 {
		size = 8
	}
	cx := w/2 + int(float64(w/3)*math.Cos(float64(svc.tick)/20))
	cy := h/2 + int(float64(h/3)*math.Sin(float64(svc.tick)/20))
	block := image.Rect(cx-size/2, cy-size/2, cx+size/2, cy+size/2).Intersect(img.Bounds())
	draw.Draw(img, block, &image.Uniform{C: color.RGBA{R: 230, G: 230, B: 230, A: 255}}, image.Point{}, draw.Src)

	return model.FrameFromImage(img, 0, time.Now()), nil
}

func (svc *syntheticService) Close() error {
	svc.open = false
	return nil
}
