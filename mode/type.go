package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/pipeline"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// Processor is one runnable mode of the process. A processor owns the
// goroutines it spawns and returns only after draining them.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory) error

// procStats lands stats-stream payloads on their destinations: occupancy
// snapshots go to the analytics table, session stats are logged.
func procStats(svcs pipeline.ServicesFactory, stats interface{}) {
	switch stats := stats.(type) {
	case model.AnalyticsSnapshot:
		err := svcs.DataSvc.LogAnalytics(stats)
		if err != nil {
			lgr.Logger.Error(
				"failed to store occupancy snapshot",
				slog.Any("stats", stats),
				slog.Any("error", err),
			)
		}
	case model.FramerStats:
		lgr.Logger.Info(
			"framer session stats",
			slog.String("agentID", stats.AgentID),
			slog.String("camera", stats.Camera),
			slog.Int64("frames", stats.Frames),
			slog.Int64("skipped", stats.Skipped),
			slog.Int64("evicted", stats.Evicted),
			slog.Int("fps", stats.FPS),
			slog.Int64("uptime", stats.Uptime),
		)
	case model.PipelineStats:
		lgr.Logger.Info(
			"pipeline session stats",
			slog.String("sessionID", stats.SessionID),
			slog.Uint64("frames", stats.Frames),
			slog.Uint64("alerts", stats.Alerts),
			slog.Int64("uptime", stats.Uptime),
			slog.Int64("peoplePassed", stats.Tracking.TotalPeoplePassed),
			slog.Float64("avgPeopleCount", stats.Tracking.AvgPeopleCount),
		)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}
