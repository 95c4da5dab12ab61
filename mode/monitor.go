package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaledhikmat/aicam-go/api"
	"github.com/khaledhikmat/aicam-go/pipeline"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

const alertStreamCapacity = 16

// Monitor is the default mode: the full processing pipeline plus the API
// facade plus daily maintenance (retention cleanup and heatmap/statistics
// rollover at day change).
func Monitor(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	// The pipeline goroutines send on these streams, so the mode never
	// closes them. Shutdown is by cancellation; once the drain confirms
	// the senders are gone the streams are simply collected.
	statsStream := make(chan interface{}, 8)

	// Alert notifications ride their own buffered stream so a slow SMTP or
	// webhook leg never stalls the cycle loop
	alertStream := make(chan pipeline.AlertData, alertStreamCapacity)

	// Mode-local cancellation lets the failure paths below wind the
	// pipeline down before the deferred Stop waits on it
	runCtx, canxFn := context.WithCancel(canxCtx)
	defer canxFn()

	pipeline.AlertNotifier(runCtx, svcs, alertStream)

	orch := pipeline.NewOrchestrator(svcs, alertStream)
	if err := orch.Open(); err != nil {
		// Device or model failure before the first cycle; fatal
		return err
	}
	orch.Start(runCtx, statsStream)
	defer orch.Stop()

	// The facade reads orchestrator state; it never drives the pipeline
	apiErrStream := make(chan error, 1)
	go func() {
		apiErrStream <- api.NewServer(svcs, orch).Start(runCtx)
	}()

	maintenance := time.NewTicker(time.Minute)
	defer maintenance.Stop()
	lastDay := time.Now().YearDay()

	// Wait for cancellation, facade failure, stats or maintenance
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"monitor mode context cancelled",
			)
			goto resume

		case err := <-apiErrStream:
			if err != nil {
				lgr.Logger.Error(
					"api server failed",
					slog.Any("error", err),
				)
				// Stop the pipeline loops now so the deferred Stop
				// finds them drained
				canxFn()
				return err
			}
			goto resume

		case s := <-statsStream:
			procStats(svcs, s)

		case now := <-maintenance.C:
			if now.YearDay() == lastDay {
				continue
			}
			lastDay = now.YearDay()

			retention := svcs.CfgSvc.GetRetentionDays()
			deleted, err := svcs.DataSvc.CleanupOldData(retention)
			if err != nil {
				lgr.Logger.Error(
					"retention cleanup failed",
					slog.Int("retentionDays", retention),
					slog.Any("error", err),
				)
			} else {
				lgr.Logger.Info(
					"retention cleanup done",
					slog.Int("retentionDays", retention),
					slog.Int64("rowsDeleted", deleted),
				)
			}
			orch.ResetDaily()
		}
	}

	// Wait in a non-blocking way for the shutdown period so the pipeline
	// goroutines can report their final stats as they exit
resume:
	canxFn()
	lgr.Logger.Info(
		"monitor mode is waiting for all go routines to exit",
	)

	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"monitor mode shutdown waiting period expired. Exiting now",
				slog.Duration("period", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second),
			)
			return nil

		case s := <-statsStream:
			procStats(svcs, s)
		}
	}
}
