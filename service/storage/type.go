package storage

import "github.com/khaledhikmat/aicam-go/model"

type IService interface {
	StoreSnapshot(frame model.Frame, alertType string) (string, error)
	StorePreRoll(frames []model.Frame, alertType string) (string, error)
}
