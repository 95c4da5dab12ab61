package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/aicam-go/mode"
	"github.com/khaledhikmat/aicam-go/pipeline"
	"github.com/khaledhikmat/aicam-go/service/camera"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/data"
	"github.com/khaledhikmat/aicam-go/service/email"
	"github.com/khaledhikmat/aicam-go/service/faces"
	"github.com/khaledhikmat/aicam-go/service/inference"
	"github.com/khaledhikmat/aicam-go/service/lgr"
	"github.com/khaledhikmat/aicam-go/service/metrics"
	"github.com/khaledhikmat/aicam-go/service/storage"
	"github.com/khaledhikmat/aicam-go/service/watchdog"
	"github.com/khaledhikmat/aicam-go/service/webhook"
)

const (
	// WARNING: this has to be bigger than the mode processor shutdown time
	waitOnShutdown = 10 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"monitor": mode.Monitor,
	"api":     mode.API,
	"initdb":  mode.InitDB,
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
			return 1
		}
	}

	configPath := flag.String("config", "", "path to a JSON config file")
	apiOnly := flag.Bool("api-only", false, "run the API facade without camera acquisition")
	initDB := flag.Bool("init-db", false, "initialize the database schema and exit")
	flag.Parse()

	modeType := "monitor"
	if *apiOnly {
		modeType = "api"
	}
	if *initDB {
		modeType = "initdb"
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		panic("invalid mode")
	}

	// Create the services needed for the mode processor
	// They can be overridden by the mode processor with different implementations
	// Config service
	cfgSvc, err := config.NewJSONFile(*configPath)
	if err != nil {
		lgr.Logger.Error("error loading configuration", slog.Any("error", err))
		return 1
	}

	// Data service: schema creation failure is fatal
	dataSvc, err := data.NewSQLite(cfgSvc)
	if err != nil {
		lgr.Logger.Error("error opening database", slog.Any("error", err))
		return 1
	}
	defer dataSvc.Close()

	// Camera service
	var cameraSvc camera.IService
	if cfgSvc.GetCameraSource() == "synthetic" {
		cameraSvc = camera.NewSynthetic(cfgSvc)
	} else {
		cameraSvc = camera.NewDevice(cfgSvc)
	}

	// Inference service
	var inferenceSvc inference.IService
	if cfgSvc.GetDetectionEngine() == "fake" {
		inferenceSvc = inference.NewFake()
	} else {
		inferenceSvc = inference.NewOnnx(cfgSvc)
	}
	defer inferenceSvc.Close()

	// Faces service: optional, degrades to disabled when the cascade or the
	// embedding model cannot be loaded
	var facesSvc faces.IService
	if cfgSvc.IsFaceRecognitionEnabled() {
		facesSvc, err = faces.NewPigo(cfgSvc, dataSvc)
		if err != nil {
			lgr.Logger.Warn(
				"face recognition unavailable; continuing without it",
				slog.Any("error", err),
			)
			facesSvc = faces.NewDisabled()
		}
	} else {
		facesSvc = faces.NewDisabled()
	}
	defer facesSvc.Close()

	// Notification, storage, watchdog and metrics services
	emailSvc := email.NewSMTP(cfgSvc)
	webhookSvc := webhook.NewHTTP(cfgSvc)
	storageSvc := storage.NewDisk(cfgSvc)
	watchdogSvc := watchdog.NewTimed(canxCtx, cfgSvc)
	metricsSvc := metrics.New()

	svcs := pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      dataSvc,
		CameraSvc:    cameraSvc,
		InferenceSvc: inferenceSvc,
		FacesSvc:     facesSvc,
		EmailSvc:     emailSvc,
		WebhookSvc:   webhookSvc,
		StorageSvc:   storageSvc,
		WatchdogSvc:  watchdogSvc,
		MetricsSvc:   metricsSvc,
	}

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs)
	}()

	// Wait for cancellation or mode proc exit
	exitCode := 0
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"main context cancelled",
			)
			goto resume

		case err := <-modeProcResult:
			// Processors drain their own goroutines before returning,
			// so there is nothing left to wait on
			if err != nil {
				lgr.Logger.Error(
					"mode processor exited",
					slog.String("mode", modeType),
					slog.Any("error", xerrors.New(err.Error())),
				)
				return 1
			}
			return 0
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for the mode processor
	// to exit; it may need to report errors as it is exiting
resume:
	if canxCtx.Err() == nil {
		canxFn()
	}

	lgr.Logger.Info(
		"main is waiting for all go routines to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)
			return exitCode

		case err := <-modeProcResult:
			if err != nil {
				lgr.Logger.Error(
					"mode processor exited",
					slog.String("mode", modeType),
					slog.Any("error", xerrors.New(err.Error())),
				)
				exitCode = 1
			}
			return exitCode
		}
	}
}
