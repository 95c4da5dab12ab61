package inference

import (
	"context"

	"github.com/khaledhikmat/aicam-go/model"
)

type IService interface {
	Load() error
	Detect(ctx context.Context, frame model.Frame, confThreshold, iouThreshold float32) ([]model.Detection, error)
	Close() error
}
