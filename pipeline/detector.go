package pipeline

import (
	"context"
	"time"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/inference"
)

// detectTimeout bounds a single inference call so a wedged model cannot
// stall the processing loop.
const detectTimeout = 2 * time.Second

var vehicleClasses = map[string]bool{
	"car":        true,
	"truck":      true,
	"bus":        true,
	"motorcycle": true,
	"bicycle":    true,
}

// Detector drives the inference service with the configured thresholds and
// applies the inference interval: when configured to run every Nth cycle it
// replays the last result in between, so downstream stages always see a
// detection list.
type Detector struct {
	svc      inference.IService
	conf     float32
	iou      float32
	interval int
	cycles   int
	last     []model.Detection
}

func NewDetector(cfgsvc config.IService, svc inference.IService) *Detector {
	return &Detector{
		svc:      svc,
		conf:     cfgsvc.GetConfidenceThreshold(),
		iou:      cfgsvc.GetIOUThreshold(),
		interval: cfgsvc.GetInferenceInterval(),
	}
}

// Load brings up the underlying model. Failures are fatal to startup.
func (d *Detector) Load() error {
	return d.svc.Load()
}

// Detect returns the detections for this cycle. On an inference fault the
// cached result is dropped and the error surfaces so the caller decides how
// to degrade.
func (d *Detector) Detect(ctx context.Context, frame model.Frame) ([]model.Detection, error) {
	d.cycles++
	if d.interval > 1 && (d.cycles-1)%d.interval != 0 {
		return d.last, nil
	}

	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	dets, err := d.svc.Detect(ctx, frame, d.conf, d.iou)
	if err != nil {
		d.last = nil
		return nil, err
	}
	d.last = dets
	return dets, nil
}

func (d *Detector) Close() error {
	return d.svc.Close()
}

// Classify partitions detections into persons, vehicles and everything else.
func Classify(dets []model.Detection) model.Classified {
	var out model.Classified
	for _, det := range dets {
		switch {
		case det.Class == "person":
			out.Persons = append(out.Persons, det)
		case vehicleClasses[det.Class]:
			out.Vehicles = append(out.Vehicles, det)
		default:
			out.Others = append(out.Others, det)
		}
	}
	return out
}
