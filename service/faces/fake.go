package faces

import "github.com/khaledhikmat/aicam-go/model"

type disabledService struct{}

func NewDisabled() IService {
	return &disabledService{}
}

func (svc *disabledService) Enabled() bool {
	return false
}

func (svc *disabledService) DetectFaces(_ model.Frame) ([]model.Face, error) {
	return nil, nil
}

func (svc *disabledService) Close() error {
	return nil
}

type fakeService struct {
	faces []model.Face
}

func NewFake(faces ...model.Face) IService {
	return &fakeService{faces: faces}
}

func (svc *fakeService) Enabled() bool {
	return true
}

func (svc *fakeService) DetectFaces(_ model.Frame) ([]model.Face, error) {
	out := make([]model.Face, len(svc.faces))
	copy(out, svc.faces)
	return out, nil
}

func (svc *fakeService) Close() error {
	return nil
}
