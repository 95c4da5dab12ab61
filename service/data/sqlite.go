package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
)

// sqlTimeLayout matches the format CURRENT_TIMESTAMP stores, so comparisons
// against it work lexically. All thresholds are computed in UTC because
// CURRENT_TIMESTAMP is UTC.
const sqlTimeLayout = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	event_type VARCHAR(50),
	severity VARCHAR(20),
	person_count INTEGER,
	confidence FLOAT,
	metadata TEXT,
	video_clip_path VARCHAR(255)
);

CREATE TABLE IF NOT EXISTS analytics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	hour_of_day INTEGER,
	people_count INTEGER,
	avg_dwell_time FLOAT,
	peak_traffic BOOLEAN,
	conversion_rate FLOAT
);

CREATE TABLE IF NOT EXISTS known_faces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name VARCHAR(100) UNIQUE,
	encoding TEXT,
	date_added DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_analytics_timestamp ON analytics(timestamp);
`

type sqliteService struct {
	CfgSvc config.IService
	db     *sql.DB
}

func NewSQLite(cfgsvc config.IService) (IService, error) {
	path := cfgsvc.GetDatabasePath()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// sqlite locks the whole file; a single connection avoids SQLITE_BUSY
	// under concurrent readers and writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteService{CfgSvc: cfgsvc, db: db}, nil
}

func (svc *sqliteService) LogEvent(eventType, severity string, personCount int, confidence float64, metadata string, clipPath *string) (int64, error) {
	res, err := svc.db.Exec(`
		INSERT INTO events (event_type, severity, person_count, confidence, metadata, video_clip_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		eventType, severity, personCount, confidence, metadata, clipPath)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

func (svc *sqliteService) GetEvents(limit, hoursBack int) ([]model.EventRecord, error) {
	since := time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour).Format(sqlTimeLayout)

	rows, err := svc.db.Query(`
		SELECT id, timestamp, event_type, severity, person_count, confidence, metadata, video_clip_path
		FROM events
		WHERE timestamp > ?
		ORDER BY timestamp DESC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.EventRecord{}
	for rows.Next() {
		var rec model.EventRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.EventType, &rec.Severity,
			&rec.PersonCount, &rec.Confidence, &rec.Metadata, &rec.VideoClipPath); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, rec)
	}
	return events, rows.Err()
}

func (svc *sqliteService) LogAnalytics(snap model.AnalyticsSnapshot) error {
	_, err := svc.db.Exec(`
		INSERT INTO analytics (hour_of_day, people_count, avg_dwell_time, peak_traffic)
		VALUES (?, ?, ?, ?)`,
		snap.Timestamp.Hour(), snap.PeopleCount, snap.AvgDwellTime, snap.PeakTraffic)
	if err != nil {
		return fmt.Errorf("insert analytics: %w", err)
	}
	return nil
}

func (svc *sqliteService) GetAnalytics(daysBack int) ([]model.AnalyticsRecord, error) {
	since := time.Now().UTC().AddDate(0, 0, -daysBack).Format(sqlTimeLayout)

	rows, err := svc.db.Query(`
		SELECT id, timestamp, hour_of_day, people_count, avg_dwell_time, peak_traffic, conversion_rate
		FROM analytics
		WHERE timestamp > ?
		ORDER BY timestamp DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	records := []model.AnalyticsRecord{}
	for rows.Next() {
		var rec model.AnalyticsRecord
		var conversion sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.HourOfDay, &rec.PeopleCount,
			&rec.AvgDwellTime, &rec.PeakTraffic, &conversion); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		rec.ConversionRate = conversion.Float64
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (svc *sqliteService) AddKnownFace(name string, encoding []float32) error {
	enc, err := json.Marshal(encoding)
	if err != nil {
		return fmt.Errorf("marshal encoding: %w", err)
	}

	_, err = svc.db.Exec(`
		INSERT OR REPLACE INTO known_faces (name, encoding)
		VALUES (?, ?)`, name, string(enc))
	if err != nil {
		return fmt.Errorf("insert known face: %w", err)
	}
	return nil
}

func (svc *sqliteService) GetKnownFaces() ([]model.KnownFace, error) {
	rows, err := svc.db.Query(`SELECT id, name, encoding, date_added FROM known_faces`)
	if err != nil {
		return nil, fmt.Errorf("query known faces: %w", err)
	}
	defer rows.Close()

	faces := []model.KnownFace{}
	for rows.Next() {
		var face model.KnownFace
		var enc string
		if err := rows.Scan(&face.ID, &face.Name, &enc, &face.DateAdded); err != nil {
			return nil, fmt.Errorf("scan known face: %w", err)
		}
		if err := json.Unmarshal([]byte(enc), &face.Encoding); err != nil {
			return nil, fmt.Errorf("decode encoding for %s: %w", face.Name, err)
		}
		faces = append(faces, face)
	}
	return faces, rows.Err()
}

func (svc *sqliteService) GetStatisticsSummary() (model.StatisticsSummary, error) {
	var summary model.StatisticsSummary

	if err := svc.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&summary.TotalEvents); err != nil {
		return summary, fmt.Errorf("count events: %w", err)
	}

	if err := svc.db.QueryRow(`
		SELECT COUNT(*) FROM events
		WHERE severity = 'critical' AND timestamp > datetime('now', '-1 day')`).
		Scan(&summary.CriticalAlerts24); err != nil {
		return summary, fmt.Errorf("count critical events: %w", err)
	}

	var avg sql.NullFloat64
	if err := svc.db.QueryRow(`
		SELECT AVG(people_count) FROM analytics
		WHERE date(timestamp) = date('now')`).Scan(&avg); err != nil {
		return summary, fmt.Errorf("average people: %w", err)
	}
	summary.AvgPeopleToday = avg.Float64

	return summary, nil
}

func (svc *sqliteService) CleanupOldData(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(sqlTimeLayout)

	var total int64
	for _, table := range []string{"events", "analytics"} {
		res, err := svc.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (svc *sqliteService) Close() error {
	return svc.db.Close()
}
