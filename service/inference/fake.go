package inference

import (
	"context"

	"github.com/khaledhikmat/aicam-go/model"
)

// FakeService replays a scripted sequence of detection results, one entry per
// Detect call, repeating the last entry once the script runs out.
type FakeService struct {
	script    [][]model.Detection
	calls     int
	loadErr   error
	detectErr error
}

func NewFake(script ...[]model.Detection) *FakeService {
	return &FakeService{script: script}
}

func NewFakeWithErrors(loadErr, detectErr error) *FakeService {
	return &FakeService{loadErr: loadErr, detectErr: detectErr}
}

func (svc *FakeService) Load() error {
	return svc.loadErr
}

func (svc *FakeService) Detect(ctx context.Context, _ model.Frame, confThreshold, _ float32) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if svc.detectErr != nil {
		return nil, svc.detectErr
	}

	svc.calls++
	if len(svc.script) == 0 {
		return []model.Detection{}, nil
	}

	idx := svc.calls - 1
	if idx >= len(svc.script) {
		idx = len(svc.script) - 1
	}

	out := []model.Detection{}
	for _, det := range svc.script[idx] {
		if det.Confidence >= confThreshold {
			out = append(out, det)
		}
	}
	return out, nil
}

func (svc *FakeService) Calls() int {
	return svc.calls
}

func (svc *FakeService) Close() error {
	return nil
}
