package pipeline

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// noFrameBackoff paces the cycle loop while capture has nothing to offer.
const noFrameBackoff = 10 * time.Millisecond

// preRollFrames is how much capture history accompanies an incident.
const preRollFrames = 8

// Orchestrator drives the per-frame processing cycle: motion, detection,
// faces, alerting, tracking, heatmap, annotation. It is the single writer of
// the status and annotated-frame cells; the API facade only ever reads them.
//
// The cycle loop always works on the newest captured frame. It does not wait
// for a new one, so a frame may be processed more than once when capture is
// slower than processing.
type Orchestrator struct {
	svcs ServicesFactory

	framer      *Framer
	motion      *MotionDetector
	detector    *Detector
	tracker     *Tracker
	heatmap     *Heatmap
	coordinator *AlertCoordinator

	sessionID string
	startedAt time.Time

	frames atomic.Uint64
	alerts atomic.Uint64

	status    atomic.Pointer[model.PipelineStatus]
	annotated atomic.Pointer[model.Frame]

	// FPS window and sampling state, owned by the run loop.
	windowStart time.Time
	windowCount int
	fpsEstimate float64
	lastSample  time.Time

	done chan struct{}
}

func NewOrchestrator(svcs ServicesFactory, alertStream chan AlertData) *Orchestrator {
	cfg := svcs.CfgSvc
	return &Orchestrator{
		svcs:        svcs,
		framer:      NewFramer(svcs),
		motion:      NewMotionDetector(cfg.GetMotionThreshold()),
		detector:    NewDetector(cfg, svcs.InferenceSvc),
		tracker:     NewTracker(),
		heatmap:     NewHeatmap(cfg.GetHeatmapWidth(), cfg.GetHeatmapHeight()),
		coordinator: NewAlertCoordinator(svcs, alertStream),
		sessionID:   uuid.NewString(),
	}
}

// Open readies the capture device and the detection model. Either failure is
// fatal to a monitoring session.
func (o *Orchestrator) Open() error {
	if err := o.framer.Open(); err != nil {
		return err
	}
	return o.detector.Load()
}

// OpenHeadless loads the detection model without touching a capture device.
// The API surface reports a running pipeline with no frames flowing.
func (o *Orchestrator) OpenHeadless() error {
	if err := o.detector.Load(); err != nil {
		return err
	}
	o.startedAt = time.Now()
	o.status.Store(&model.PipelineStatus{Running: true, StartedAt: o.startedAt})
	return nil
}

// Start launches capture and the cycle loop. Shut down by cancelling the
// context, then Stop to drain.
func (o *Orchestrator) Start(canxCtx context.Context, statsStream chan interface{}) {
	now := time.Now()
	o.startedAt = now
	o.windowStart = now
	o.lastSample = now
	o.status.Store(&model.PipelineStatus{Running: true, StartedAt: now})

	o.framer.Start(canxCtx, statsStream)

	o.done = make(chan struct{})
	go o.run(canxCtx, statsStream)
}

func (o *Orchestrator) run(canxCtx context.Context, statsStream chan interface{}) {
	defer close(o.done)
	defer o.finish(statsStream)

	// A failed subscription leaves stalls nil, which never fires.
	stalls, err := o.svcs.WatchdogSvc.Subscribe(o.framer.LastFrameAt)
	if err != nil {
		lgr.Logger.Error(
			"watchdog subscription failed",
			slog.String("sessionID", o.sessionID),
			slog.Any("error", err),
		)
	} else {
		defer func() {
			_ = o.svcs.WatchdogSvc.Unsubscribe()
		}()
	}

	lgr.Logger.Info(
		"processing loop started",
		slog.String("sessionID", o.sessionID),
	)

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"processing loop context cancelled",
				slog.String("sessionID", o.sessionID),
			)
			return
		case stall := <-stalls:
			lgr.Logger.Error(
				"capture stalled; stopping the pipeline",
				slog.String("sessionID", o.sessionID),
				slog.Time("lastFrame", stall.LastFrame),
				slog.Int64("elapsedMs", stall.Elapsed.Milliseconds()),
			)
			return
		default:
			frame, ok := o.framer.LatestCopy()
			if !ok {
				time.Sleep(noFrameBackoff)
				continue
			}
			o.cycle(canxCtx, frame, time.Now(), statsStream)
		}
	}
}

// cycle processes one captured frame end to end.
func (o *Orchestrator) cycle(canxCtx context.Context, frame model.Frame, now time.Time, statsStream chan interface{}) {
	cfg := o.svcs.CfgSvc

	motionDetected, magnitude := false, 0.0
	if cfg.IsMotionDetectionEnabled() {
		motionDetected, magnitude = o.motion.Detect(frame)
	}

	dets, err := o.detector.Detect(canxCtx, frame)
	if err != nil {
		o.svcs.MetricsSvc.DetectErrors.Add(1)
		lgr.Logger.Error(
			"detection failed",
			slog.String("sessionID", o.sessionID),
			slog.Any("error", err),
		)
		dets = nil
	}
	persons := Classify(dets).Persons

	var faces []model.Face
	if o.svcs.FacesSvc.Enabled() && len(persons) > 0 {
		faces, err = o.svcs.FacesSvc.DetectFaces(frame)
		if err != nil {
			lgr.Logger.Error(
				"face recognition failed",
				slog.String("sessionID", o.sessionID),
				slog.Any("error", err),
			)
			faces = nil
		}
	}

	alerts := o.coordinator.Evaluate(motionDetected, magnitude, len(persons), faces, now)
	if len(alerts) > 0 {
		// The ring holds what the camera saw leading up to the incident
		o.coordinator.Dispatch(alerts, frame, o.framer.Recent(preRollFrames))
	}
	o.alerts.Add(uint64(len(alerts)))

	update := model.TrackingUpdate{PeopleCount: len(persons)}
	if cfg.IsPeopleCountingEnabled() {
		update = o.tracker.Update(persons, now)
	}

	if cfg.IsHeatmapEnabled() {
		for _, p := range persons {
			cx, cy := p.Box.Center()
			o.heatmap.Add(cx, cy, frame.Width, frame.Height)
		}
	}

	o.meterTick(now)

	Annotate(frame, dets, len(persons), magnitude, o.fpsEstimate)
	o.annotated.Store(&frame)

	processed := o.frames.Add(1)
	met := o.svcs.MetricsSvc
	met.FramesProcessed.Add(1)
	met.ActiveTracks.Store(int64(update.ActiveTracks))
	met.PeopleCount.Store(int64(update.PeopleCount))

	o.status.Store(&model.PipelineStatus{
		Running:         true,
		StartedAt:       o.startedAt,
		FramesProcessed: processed,
		FPS:             o.fpsEstimate,
		PeopleCount:     update.PeopleCount,
		LastCycleAt:     now,
	})

	o.maybeSample(update, now, statsStream)
}

// meterTick advances the FPS window. The estimate only changes when a window
// of at least one second closes; in between the last estimate stands.
func (o *Orchestrator) meterTick(now time.Time) {
	o.windowCount++
	if elapsed := now.Sub(o.windowStart); elapsed >= time.Second {
		o.fpsEstimate = float64(o.windowCount) / elapsed.Seconds()
		o.windowStart = now
		o.windowCount = 0
		o.svcs.MetricsSvc.SetFPS(o.fpsEstimate)
	}
}

// maybeSample emits an occupancy snapshot on the stats stream once per
// statistics interval. The monitor mode persists them.
func (o *Orchestrator) maybeSample(update model.TrackingUpdate, now time.Time, statsStream chan interface{}) {
	interval := time.Duration(o.svcs.CfgSvc.GetStatisticsInterval()) * time.Second
	if interval <= 0 || now.Sub(o.lastSample) < interval {
		return
	}
	o.lastSample = now

	stats := o.tracker.Statistics(now)
	snap := model.AnalyticsSnapshot{
		Timestamp:    now,
		PeopleCount:  update.PeopleCount,
		AvgDwellTime: update.AvgDwellTime,
		PeakTraffic:  update.PeopleCount > 0 && update.PeopleCount >= stats.PeakPeopleCount,
	}

	select {
	case statsStream <- snap:
	default:
		lgr.Logger.Warn(
			"stats stream full; occupancy snapshot dropped",
			slog.String("sessionID", o.sessionID),
		)
	}
}

// finish runs on loop exit: release capture, mark the pipeline stopped and
// publish the final session stats.
func (o *Orchestrator) finish(statsStream chan interface{}) {
	o.framer.Stop()

	now := time.Now()
	status := o.Status()
	status.Running = false
	o.status.Store(&status)

	tracking := o.tracker.Statistics(now)
	lgr.Logger.Info(
		"final statistics",
		slog.String("sessionID", o.sessionID),
		slog.Uint64("frames", o.frames.Load()),
		slog.Uint64("alerts", o.alerts.Load()),
		slog.Int64("peoplePassed", tracking.TotalPeoplePassed),
		slog.Float64("avgPeopleCount", tracking.AvgPeopleCount),
	)

	statsStream <- model.PipelineStats{
		SessionID: o.sessionID,
		Frames:    o.frames.Load(),
		Alerts:    o.alerts.Load(),
		Uptime:    int64(now.Sub(o.startedAt).Seconds()),
		Tracking:  tracking,
		Timestamp: now.Unix(),
	}
}

// Stop waits for the cycle loop to drain. Bounded, and safe to call when
// Start never ran.
func (o *Orchestrator) Stop() {
	if o.done == nil {
		return
	}
	select {
	case <-o.done:
	case <-time.After(joinTimeout):
		lgr.Logger.Warn(
			"processing loop did not drain in time",
			slog.String("sessionID", o.sessionID),
		)
	}
}

// Status returns the latest cycle snapshot. The zero value reports a stopped
// pipeline.
func (o *Orchestrator) Status() model.PipelineStatus {
	if s := o.status.Load(); s != nil {
		return *s
	}
	return model.PipelineStatus{}
}

// AnnotatedJPEG encodes the newest annotated frame for the live stream.
func (o *Orchestrator) AnnotatedJPEG() ([]byte, bool) {
	f := o.annotated.Load()
	if f == nil || f.Empty() {
		return nil, false
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.RGBA(), &jpeg.Options{Quality: 85}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// HeatmapJPEG renders the occupancy heatmap.
func (o *Orchestrator) HeatmapJPEG() ([]byte, error) {
	return o.heatmap.RenderJPEG()
}

// Statistics summarizes tracking since start or the last daily reset.
func (o *Orchestrator) Statistics() model.TrackingStats {
	return o.tracker.Statistics(time.Now())
}

// ResetDaily clears the aggregated statistics and the heatmap. The monitor
// mode calls it at day rollover.
func (o *Orchestrator) ResetDaily() {
	o.tracker.ResetStatistics()
	o.heatmap.Reset()
	lgr.Logger.Info("daily statistics and heatmap reset")
}
