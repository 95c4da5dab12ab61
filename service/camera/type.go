package camera

import "github.com/khaledhikmat/aicam-go/model"

type IService interface {
	Open() error
	Read() (model.Frame, error)
	Name() string
	Close() error
}
