package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

func (e CustomError) Error() string {
	return e.Message
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

// DeviceError means the capture device could not be opened or produced no
// initial frame. Fatal at startup.
type DeviceError struct {
	Device string
	Inner  error
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("capture device %s: %v", e.Device, e.Inner)
}

func (e DeviceError) Unwrap() error {
	return e.Inner
}

// ModelLoadError means the detector weights could not be loaded. Fatal at startup.
type ModelLoadError struct {
	Path  string
	Inner error
}

func (e ModelLoadError) Error() string {
	return fmt.Sprintf("detection model %s: %v", e.Path, e.Inner)
}

func (e ModelLoadError) Unwrap() error {
	return e.Inner
}

// StallEvent is emitted by the watchdog when capture stops producing frames.
type StallEvent struct {
	LastFrame time.Time
	Elapsed   time.Duration
}

type FramerStats struct {
	AgentID   string `json:"agentId"`
	Camera    string `json:"camera"`
	FPS       int    `json:"fps"`
	Frames    int64  `json:"frames"`
	Skipped   int64  `json:"skipped"`
	Evicted   int64  `json:"evicted"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

type PipelineStats struct {
	SessionID string        `json:"sessionId"`
	Frames    uint64        `json:"frames"`
	Alerts    uint64        `json:"alerts"`
	Uptime    int64         `json:"uptime"`
	Tracking  TrackingStats `json:"tracking"`
	Timestamp int64         `json:"timestamp"`
}

type TrackingUpdate struct {
	PeopleCount  int     `json:"peopleCount"`
	ActiveTracks int     `json:"activeTracks"`
	AvgDwellTime float64 `json:"avgDwellTime"`
}

type TrackingStats struct {
	TotalFrames       uint64  `json:"totalFrames"`
	AvgPeopleCount    float64 `json:"avgPeopleCount"`
	PeakPeopleCount   int     `json:"peakPeopleCount"`
	CurrentTracks     int     `json:"currentTracks"`
	AvgDwellTime      float64 `json:"avgDwellTime"`
	TotalPeoplePassed int64   `json:"totalPeoplePassed"`
}

// PipelineStatus is the snapshot behind the status endpoint. A new value is
// swapped in atomically after each cycle; readers never see partial updates.
type PipelineStatus struct {
	Running         bool
	StartedAt       time.Time
	FramesProcessed uint64
	FPS             float64
	PeopleCount     int
	LastCycleAt     time.Time
}

// AnalyticsSnapshot is the periodic occupancy sample destined for the
// analytics table.
type AnalyticsSnapshot struct {
	Timestamp    time.Time
	PeopleCount  int
	AvgDwellTime float64
	PeakTraffic  bool
}

type Alert struct {
	Type        string
	Severity    string
	PersonCount int
	Confidence  float32
	Metadata    map[string]interface{}
	Timestamp   time.Time
}

// EventRecord mirrors one row of the events table. Tags follow the column
// names so API responses match the stored schema.
type EventRecord struct {
	ID            int64   `json:"id"`
	Timestamp     string  `json:"timestamp"`
	EventType     string  `json:"event_type"`
	Severity      string  `json:"severity"`
	PersonCount   int     `json:"person_count"`
	Confidence    float64 `json:"confidence"`
	Metadata      string  `json:"metadata"`
	VideoClipPath *string `json:"video_clip_path"`
}

type AnalyticsRecord struct {
	ID             int64   `json:"id"`
	Timestamp      string  `json:"timestamp"`
	HourOfDay      int     `json:"hour_of_day"`
	PeopleCount    int     `json:"people_count"`
	AvgDwellTime   float64 `json:"avg_dwell_time"`
	PeakTraffic    bool    `json:"peak_traffic"`
	ConversionRate float64 `json:"conversion_rate"`
}

type KnownFace struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Encoding  []float32 `json:"-"`
	DateAdded string    `json:"date_added"`
}

type StatisticsSummary struct {
	TotalEvents      int64   `json:"total_events"`
	CriticalAlerts24 int64   `json:"critical_alerts_24h"`
	AvgPeopleToday   float64 `json:"avg_people_today"`
}
