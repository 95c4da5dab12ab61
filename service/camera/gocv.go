package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
)

type deviceService struct {
	CfgSvc config.IService
	webcam *gocv.VideoCapture
}

func NewDevice(cfgsvc config.IService) IService {
	return &deviceService{CfgSvc: cfgsvc}
}

func (svc *deviceService) Name() string {
	return fmt.Sprintf("device:%d", svc.CfgSvc.GetCameraIndex())
}

func (svc *deviceService) Open() error {
	webcam, err := gocv.OpenVideoCapture(svc.CfgSvc.GetCameraIndex())
	if err != nil {
		return fmt.Errorf("open capture device %d: %w", svc.CfgSvc.GetCameraIndex(), err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(svc.CfgSvc.GetCameraWidth()))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(svc.CfgSvc.GetCameraHeight()))
	webcam.Set(gocv.VideoCaptureFPS, float64(svc.CfgSvc.GetCameraFPS()))

	svc.webcam = webcam
	return nil
}

func (svc *deviceService) Read() (model.Frame, error) {
	if svc.webcam == nil {
		return model.Frame{}, fmt.Errorf("capture device not open")
	}

	img := gocv.NewMat()
	defer img.Close() // Crucial to close the image to avoid memory leaks

	if ok := svc.webcam.Read(&img); !ok || img.Empty() {
		return model.Frame{}, fmt.Errorf("read frame from %s", svc.Name())
	}

	converted, err := img.ToImage()
	if err != nil {
		return model.Frame{}, fmt.Errorf("convert frame: %w", err)
	}

	return model.FrameFromImage(converted, 0, time.Now()), nil
}

func (svc *deviceService) Close() error {
	if svc.webcam == nil {
		return nil
	}
	err := svc.webcam.Close()
	svc.webcam = nil
	return err
}
