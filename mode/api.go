package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaledhikmat/aicam-go/api"
	"github.com/khaledhikmat/aicam-go/pipeline"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// API runs the facade and persistence without camera acquisition. The
// detection model still loads (so a missing model fails here, not later in
// the field) and the pipeline reports running with no frames flowing. Useful
// for exercising the endpoints against synthetic or absent video.
func API(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	// Headless: no cycle loop, so nothing ever sends on this stream
	alertStream := make(chan pipeline.AlertData, alertStreamCapacity)

	orch := pipeline.NewOrchestrator(svcs, alertStream)
	if err := orch.OpenHeadless(); err != nil {
		return err
	}

	apiErrStream := make(chan error, 1)
	go func() {
		apiErrStream <- api.NewServer(svcs, orch).Start(canxCtx)
	}()

	// Wait for cancellation or facade failure
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"api mode context cancelled",
			)
			goto resume

		case err := <-apiErrStream:
			if err != nil {
				lgr.Logger.Error(
					"api server failed",
					slog.Any("error", err),
				)
				return err
			}
			goto resume
		}
	}

resume:
	lgr.Logger.Info(
		"api mode is waiting for all go routines to exit",
	)

	timer := time.NewTimer(time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second)
	defer timer.Stop()

	<-timer.C
	lgr.Logger.Info(
		"api mode shutdown waiting period expired. Exiting now",
		slog.Duration("period", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second),
	)
	return nil
}
