package faces

import "github.com/khaledhikmat/aicam-go/model"

type IService interface {
	Enabled() bool
	DetectFaces(frame model.Frame) ([]model.Face, error)
	Close() error
}
