package pipeline

import (
	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/camera"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/data"
	"github.com/khaledhikmat/aicam-go/service/email"
	"github.com/khaledhikmat/aicam-go/service/faces"
	"github.com/khaledhikmat/aicam-go/service/inference"
	"github.com/khaledhikmat/aicam-go/service/metrics"
	"github.com/khaledhikmat/aicam-go/service/storage"
	"github.com/khaledhikmat/aicam-go/service/watchdog"
	"github.com/khaledhikmat/aicam-go/service/webhook"
)

// ServicesFactory carries the service implementations the pipeline depends
// on. It is assembled once in main so every component receives the same
// instances. Mode processors can still swap individual services for
// different implementations.
type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	CameraSvc    camera.IService
	InferenceSvc inference.IService
	FacesSvc     faces.IService
	EmailSvc     email.IService
	WebhookSvc   webhook.IService
	StorageSvc   storage.IService
	WatchdogSvc  watchdog.IService
	MetricsSvc   *metrics.Service
}

// AlertData is what the orchestrator hands to the alert notifier: the alert
// itself plus the frame that triggered it so an incident snapshot can be
// stored without going back to the camera.
type AlertData struct {
	Alert model.Alert
	Frame model.Frame
}
