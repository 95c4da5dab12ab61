package config

type IService interface {
	// camera
	GetCameraSource() string
	GetCameraIndex() int
	GetCameraWidth() int
	GetCameraHeight() int
	GetCameraFPS() int
	GetCameraFlip() bool
	GetCameraRotation() int
	GetFrameBufferSize() int

	// detection
	GetDetectionEngine() string
	GetModelPath() string
	GetOnnxLibraryPath() string
	GetConfidenceThreshold() float32
	GetIOUThreshold() float32
	GetInferenceInterval() int

	// security
	IsFaceRecognitionEnabled() bool
	IsMotionDetectionEnabled() bool
	GetMotionThreshold() float64
	IsRecordOnAlert() bool
	IsAlertsEnabled() bool
	GetAlertEmail() string
	GetAlertWebhookURL() string
	GetSMTPAddr() string
	GetSMTPFrom() string
	GetFaceCascadePath() string
	GetFaceModelPath() string

	// analytics
	IsPeopleCountingEnabled() bool
	IsHeatmapEnabled() bool
	GetHeatmapWidth() int
	GetHeatmapHeight() int
	GetStatisticsInterval() int
	GetDwellTimeThreshold() int

	// storage
	GetDatabasePath() string
	GetVideoStoragePath() string
	GetRetentionDays() int

	// api
	GetAPIHost() string
	GetAPIPort() int

	// runtime
	GetModeMaxShutdownTime() int
	GetStallTimeout() int
}
