package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/khaledhikmat/aicam-go/service/lgr"
)

type settings struct {
	Camera    cameraSettings    `json:"camera"`
	Detection detectionSettings `json:"detection"`
	Security  securitySettings  `json:"security"`
	Analytics analyticsSettings `json:"analytics"`
	Storage   storageSettings   `json:"storage"`
	API       apiSettings       `json:"api"`
	Runtime   runtimeSettings   `json:"runtime"`
}

type cameraSettings struct {
	Source          string `json:"source"`
	CameraIndex     int    `json:"camera_index"`
	Resolution      []int  `json:"resolution"`
	FPS             int    `json:"fps"`
	Flip            bool   `json:"flip"`
	Rotation        int    `json:"rotation"`
	FrameBufferSize int    `json:"frame_buffer_size"`
}

type detectionSettings struct {
	Engine              string  `json:"engine"`
	ModelSize           string  `json:"model_size"`
	ModelPath           string  `json:"model_path"`
	OnnxLibraryPath     string  `json:"onnx_library_path"`
	ConfidenceThreshold float32 `json:"confidence_threshold"`
	IOUThreshold        float32 `json:"iou_threshold"`
	InferenceInterval   int     `json:"inference_interval"`
}

type securitySettings struct {
	EnableFaceRecognition bool    `json:"enable_face_recognition"`
	EnableMotionDetection bool    `json:"enable_motion_detection"`
	MotionThreshold       float64 `json:"motion_threshold"`
	RecordOnAlert         bool    `json:"record_on_alert"`
	EnableAlerts          bool    `json:"enable_alerts"`
	AlertEmail            string  `json:"alert_email"`
	AlertSlackWebhook     string  `json:"alert_slack_webhook"`
	SMTPAddr              string  `json:"smtp_addr"`
	SMTPFrom              string  `json:"smtp_from"`
	FaceCascadePath       string  `json:"face_cascade_path"`
	FaceModelPath         string  `json:"face_model_path"`
}

type analyticsSettings struct {
	EnablePeopleCounting bool  `json:"enable_people_counting"`
	EnableHeatmap        bool  `json:"enable_heatmap"`
	HeatmapResolution    []int `json:"heatmap_resolution"`
	StatisticsInterval   int   `json:"statistics_interval"`
	DwellTimeThreshold   int   `json:"dwell_time_threshold"`
}

type storageSettings struct {
	DatabasePath     string `json:"database_path"`
	VideoStoragePath string `json:"video_storage_path"`
	RetentionDays    int    `json:"retention_days"`
}

type apiSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type runtimeSettings struct {
	MaxShutdownTime int `json:"max_shutdown_time"`
	StallTimeout    int `json:"stall_timeout"`
}

func defaultSettings() settings {
	return settings{
		Camera: cameraSettings{
			Source:          "device",
			CameraIndex:     0,
			Resolution:      []int{1920, 1080},
			FPS:             30,
			Flip:            false,
			Rotation:        0,
			FrameBufferSize: 30,
		},
		Detection: detectionSettings{
			Engine:              "onnx",
			ModelSize:           "s",
			ConfidenceThreshold: 0.5,
			IOUThreshold:        0.45,
			InferenceInterval:   1,
		},
		Security: securitySettings{
			EnableFaceRecognition: true,
			EnableMotionDetection: true,
			MotionThreshold:       5.0,
			RecordOnAlert:         true,
			EnableAlerts:          true,
			SMTPAddr:              "localhost:25",
			SMTPFrom:              "alerts@aicam.local",
			FaceCascadePath:       "./models/facefinder",
			FaceModelPath:         "./models/facenet.onnx",
		},
		Analytics: analyticsSettings{
			EnablePeopleCounting: true,
			EnableHeatmap:        true,
			HeatmapResolution:    []int{640, 480},
			StatisticsInterval:   60,
			DwellTimeThreshold:   10,
		},
		Storage: storageSettings{
			DatabasePath:     "./data/camera.db",
			VideoStoragePath: "./videos",
			RetentionDays:    30,
		},
		API: apiSettings{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Runtime: runtimeSettings{
			MaxShutdownTime: 8,
			StallTimeout:    10,
		},
	}
}

type jsonFileService struct {
	s settings
}

// NewJSONFile builds configuration from built-in defaults overlaid with the
// given JSON file. A missing file is not an error; only keys present in the
// file override defaults.
func NewJSONFile(path string) (IService, error) {
	s := defaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				lgr.Logger.Info("config file not found, using defaults",
					slog.String("path", path))
				return &jsonFileService{s: s}, nil
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		lgr.Logger.Info("configuration loaded", slog.String("path", path))
	}

	return &jsonFileService{s: s}, nil
}

func (svc *jsonFileService) GetCameraSource() string {
	if svc.s.Camera.Source == "" {
		return "device"
	}
	return svc.s.Camera.Source
}

func (svc *jsonFileService) GetCameraIndex() int {
	return svc.s.Camera.CameraIndex
}

func (svc *jsonFileService) GetCameraWidth() int {
	if len(svc.s.Camera.Resolution) == 2 && svc.s.Camera.Resolution[0] > 0 {
		return svc.s.Camera.Resolution[0]
	}
	return 1920
}

func (svc *jsonFileService) GetCameraHeight() int {
	if len(svc.s.Camera.Resolution) == 2 && svc.s.Camera.Resolution[1] > 0 {
		return svc.s.Camera.Resolution[1]
	}
	return 1080
}

func (svc *jsonFileService) GetCameraFPS() int {
	if svc.s.Camera.FPS <= 0 {
		return 30
	}
	return svc.s.Camera.FPS
}

func (svc *jsonFileService) GetCameraFlip() bool {
	return svc.s.Camera.Flip
}

func (svc *jsonFileService) GetCameraRotation() int {
	return svc.s.Camera.Rotation
}

func (svc *jsonFileService) GetFrameBufferSize() int {
	if svc.s.Camera.FrameBufferSize <= 0 {
		return 30
	}
	return svc.s.Camera.FrameBufferSize
}

func (svc *jsonFileService) GetDetectionEngine() string {
	if svc.s.Detection.Engine == "" {
		return "onnx"
	}
	return svc.s.Detection.Engine
}

func (svc *jsonFileService) GetModelPath() string {
	if svc.s.Detection.ModelPath != "" {
		return svc.s.Detection.ModelPath
	}
	size := svc.s.Detection.ModelSize
	if size == "" {
		size = "s"
	}
	return fmt.Sprintf("./models/yolov8%s.onnx", size)
}

func (svc *jsonFileService) GetOnnxLibraryPath() string {
	return svc.s.Detection.OnnxLibraryPath
}

func (svc *jsonFileService) GetConfidenceThreshold() float32 {
	return svc.s.Detection.ConfidenceThreshold
}

func (svc *jsonFileService) GetIOUThreshold() float32 {
	return svc.s.Detection.IOUThreshold
}

func (svc *jsonFileService) GetInferenceInterval() int {
	if svc.s.Detection.InferenceInterval <= 0 {
		return 1
	}
	return svc.s.Detection.InferenceInterval
}

func (svc *jsonFileService) IsFaceRecognitionEnabled() bool {
	return svc.s.Security.EnableFaceRecognition
}

func (svc *jsonFileService) IsMotionDetectionEnabled() bool {
	return svc.s.Security.EnableMotionDetection
}

func (svc *jsonFileService) GetMotionThreshold() float64 {
	return svc.s.Security.MotionThreshold
}

func (svc *jsonFileService) IsRecordOnAlert() bool {
	return svc.s.Security.RecordOnAlert
}

func (svc *jsonFileService) IsAlertsEnabled() bool {
	return svc.s.Security.EnableAlerts
}

func (svc *jsonFileService) GetAlertEmail() string {
	return svc.s.Security.AlertEmail
}

func (svc *jsonFileService) GetAlertWebhookURL() string {
	return svc.s.Security.AlertSlackWebhook
}

func (svc *jsonFileService) GetSMTPAddr() string {
	if svc.s.Security.SMTPAddr == "" {
		return "localhost:25"
	}
	return svc.s.Security.SMTPAddr
}

func (svc *jsonFileService) GetSMTPFrom() string {
	return svc.s.Security.SMTPFrom
}

func (svc *jsonFileService) GetFaceCascadePath() string {
	return svc.s.Security.FaceCascadePath
}

func (svc *jsonFileService) GetFaceModelPath() string {
	return svc.s.Security.FaceModelPath
}

func (svc *jsonFileService) IsPeopleCountingEnabled() bool {
	return svc.s.Analytics.EnablePeopleCounting
}

func (svc *jsonFileService) IsHeatmapEnabled() bool {
	return svc.s.Analytics.EnableHeatmap
}

func (svc *jsonFileService) GetHeatmapWidth() int {
	if len(svc.s.Analytics.HeatmapResolution) == 2 && svc.s.Analytics.HeatmapResolution[0] > 0 {
		return svc.s.Analytics.HeatmapResolution[0]
	}
	return 640
}

func (svc *jsonFileService) GetHeatmapHeight() int {
	if len(svc.s.Analytics.HeatmapResolution) == 2 && svc.s.Analytics.HeatmapResolution[1] > 0 {
		return svc.s.Analytics.HeatmapResolution[1]
	}
	return 480
}

func (svc *jsonFileService) GetStatisticsInterval() int {
	if svc.s.Analytics.StatisticsInterval <= 0 {
		return 60
	}
	return svc.s.Analytics.StatisticsInterval
}

func (svc *jsonFileService) GetDwellTimeThreshold() int {
	return svc.s.Analytics.DwellTimeThreshold
}

func (svc *jsonFileService) GetDatabasePath() string {
	if svc.s.Storage.DatabasePath == "" {
		return "./data/camera.db"
	}
	return svc.s.Storage.DatabasePath
}

func (svc *jsonFileService) GetVideoStoragePath() string {
	if svc.s.Storage.VideoStoragePath == "" {
		return "./videos"
	}
	return svc.s.Storage.VideoStoragePath
}

func (svc *jsonFileService) GetRetentionDays() int {
	if svc.s.Storage.RetentionDays <= 0 {
		return 30
	}
	return svc.s.Storage.RetentionDays
}

func (svc *jsonFileService) GetAPIHost() string {
	if svc.s.API.Host == "" {
		return "0.0.0.0"
	}
	return svc.s.API.Host
}

func (svc *jsonFileService) GetAPIPort() int {
	if svc.s.API.Port <= 0 {
		return 5000
	}
	return svc.s.API.Port
}

func (svc *jsonFileService) GetModeMaxShutdownTime() int {
	if svc.s.Runtime.MaxShutdownTime <= 0 {
		return 8
	}
	return svc.s.Runtime.MaxShutdownTime
}

func (svc *jsonFileService) GetStallTimeout() int {
	if svc.s.Runtime.StallTimeout <= 0 {
		return 10
	}
	return svc.s.Runtime.StallTimeout
}
