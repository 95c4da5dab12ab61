package data

import "github.com/khaledhikmat/aicam-go/model"

type IService interface {
	LogEvent(eventType, severity string, personCount int, confidence float64, metadata string, clipPath *string) (int64, error)
	GetEvents(limit, hoursBack int) ([]model.EventRecord, error)

	LogAnalytics(snap model.AnalyticsSnapshot) error
	GetAnalytics(daysBack int) ([]model.AnalyticsRecord, error)

	AddKnownFace(name string, encoding []float32) error
	GetKnownFaces() ([]model.KnownFace, error)

	GetStatisticsSummary() (model.StatisticsSummary, error)
	CleanupOldData(retentionDays int) (int64, error)

	Close() error
}
