package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"testing"
	"time"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/data"
	"github.com/khaledhikmat/aicam-go/service/faces"
	"github.com/khaledhikmat/aicam-go/service/inference"
	"github.com/khaledhikmat/aicam-go/service/storage"
	"github.com/khaledhikmat/aicam-go/service/watchdog"
)

const orchTestConfig = `{
	"camera": {"source": "synthetic", "resolution": [64, 48], "fps": 100, "frame_buffer_size": 5},
	"detection": {"engine": "fake"},
	"security": {"enable_alerts": false, "enable_face_recognition": false},
	"analytics": {"heatmap_resolution": [64, 48], "statistics_interval": 1},
	"runtime": {"stall_timeout": 30}
}`

func orchServices(t *testing.T, configJSON string, infsvc inference.IService) ServicesFactory {
	t.Helper()

	svcs := testServices(t, configJSON)
	svcs.InferenceSvc = infsvc
	svcs.FacesSvc = faces.NewDisabled()
	svcs.WatchdogSvc = watchdog.NewTimed(context.Background(), svcs.CfgSvc)
	return svcs
}

func personDetection() model.Detection {
	return model.Detection{
		Class:      "person",
		Confidence: 0.9,
		Box:        model.Box{X1: 20, Y1: 10, X2: 40, Y2: 30},
	}
}

func TestOrchestratorLifecycle(t *testing.T) {
	svcs := orchServices(t, orchTestConfig, inference.NewFake([]model.Detection{personDetection()}))

	orch := NewOrchestrator(svcs, make(chan AlertData, 8))
	if err := orch.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	canxCtx, canxFn := context.WithCancel(context.Background())
	statsStream := make(chan interface{}, 100)
	orch.Start(canxCtx, statsStream)

	deadline := time.Now().Add(3 * time.Second)
	for orch.Status().FramesProcessed < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d frames processed", orch.Status().FramesProcessed)
		}
		time.Sleep(10 * time.Millisecond)
	}

	st := orch.Status()
	if !st.Running {
		t.Error("pipeline not reported running")
	}
	if st.PeopleCount != 1 {
		t.Errorf("people count = %d, want 1", st.PeopleCount)
	}

	jpg, ok := orch.AnnotatedJPEG()
	if !ok {
		t.Fatal("no annotated frame available")
	}
	img, err := jpeg.Decode(bytes.NewReader(jpg))
	if err != nil {
		t.Fatalf("annotated frame does not decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("annotated frame %dx%d, want 64x48", b.Dx(), b.Dy())
	}

	// One person per cycle means the heatmap has deposits by now.
	if _, err := orch.HeatmapJPEG(); err != nil {
		t.Errorf("heatmap render: %v", err)
	}

	if got := svcs.MetricsSvc.FramesProcessed.Load(); got < 5 {
		t.Errorf("processed metric = %d, want >= 5", got)
	}
	if got := svcs.MetricsSvc.PeopleCount.Load(); got != 1 {
		t.Errorf("people gauge = %d, want 1", got)
	}

	canxFn()
	orch.Stop()

	if orch.Status().Running {
		t.Error("still reported running after shutdown")
	}

	var final *model.PipelineStats
drain:
	for {
		select {
		case s := <-statsStream:
			if ps, ok := s.(model.PipelineStats); ok {
				final = &ps
			}
		default:
			break drain
		}
	}
	if final == nil {
		t.Fatal("no session stats published on shutdown")
	}
	if final.Frames < 5 {
		t.Errorf("final frames = %d, want >= 5", final.Frames)
	}
	if final.Tracking.CurrentTracks != 1 {
		t.Errorf("final tracks = %d, want 1", final.Tracking.CurrentTracks)
	}
}

func TestOrchestratorEmitsOccupancySnapshots(t *testing.T) {
	svcs := orchServices(t, orchTestConfig, inference.NewFake([]model.Detection{personDetection()}))

	orch := NewOrchestrator(svcs, make(chan AlertData, 8))
	if err := orch.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	canxCtx, canxFn := context.WithCancel(context.Background())
	statsStream := make(chan interface{}, 100)
	orch.Start(canxCtx, statsStream)
	defer func() {
		canxFn()
		orch.Stop()
	}()

	deadline := time.After(4 * time.Second)
	for {
		select {
		case s := <-statsStream:
			snap, ok := s.(model.AnalyticsSnapshot)
			if !ok {
				continue
			}
			if snap.PeopleCount != 1 {
				t.Errorf("snapshot people count = %d, want 1", snap.PeopleCount)
			}
			if !snap.PeakTraffic {
				t.Error("steady single occupant should read as peak traffic")
			}
			return
		case <-deadline:
			t.Fatal("no occupancy snapshot within the statistics interval")
		}
	}
}

func TestOrchestratorOpenFailsWithoutDevice(t *testing.T) {
	svcs := orchServices(t, orchTestConfig, inference.NewFake())
	svcs.CameraSvc = deadCamera{}

	orch := NewOrchestrator(svcs, make(chan AlertData, 1))
	err := orch.Open()
	var devErr model.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want DeviceError", err)
	}
}

func TestOrchestratorOpenFailsWithoutModel(t *testing.T) {
	loadErr := model.ModelLoadError{Path: "./models/yolov8s.onnx", Inner: errors.New("no such file")}
	svcs := orchServices(t, orchTestConfig, inference.NewFakeWithErrors(loadErr, nil))

	orch := NewOrchestrator(svcs, make(chan AlertData, 1))
	err := orch.Open()
	var mlErr model.ModelLoadError
	if !errors.As(err, &mlErr) {
		t.Fatalf("err = %v, want ModelLoadError", err)
	}
}

func TestOrchestratorHeadless(t *testing.T) {
	svcs := orchServices(t, orchTestConfig, inference.NewFake())

	orch := NewOrchestrator(svcs, make(chan AlertData, 1))
	if err := orch.OpenHeadless(); err != nil {
		t.Fatalf("open headless: %v", err)
	}

	st := orch.Status()
	if !st.Running {
		t.Error("headless pipeline not reported running")
	}
	if st.FramesProcessed != 0 {
		t.Errorf("frames processed = %d, want 0", st.FramesProcessed)
	}
	if _, ok := orch.AnnotatedJPEG(); ok {
		t.Error("annotated frame exists without a camera")
	}
	if _, err := orch.HeatmapJPEG(); !errors.Is(err, ErrHeatmapEmpty) {
		t.Errorf("heatmap err = %v, want ErrHeatmapEmpty", err)
	}
}

// freezingCamera serves a couple of reads, then parks until released. The
// published frame goes stale, which is what the watchdog looks for.
type freezingCamera struct {
	reads   int
	release chan struct{}
}

func (c *freezingCamera) Open() error { return nil }

func (c *freezingCamera) Read() (model.Frame, error) {
	c.reads++
	if c.reads > 2 {
		<-c.release
		return model.Frame{}, errors.New("device gone")
	}
	return uniformFrame(8, 8, 100), nil
}

func (c *freezingCamera) Name() string { return "freezing" }
func (c *freezingCamera) Close() error { return nil }

func TestOrchestratorStallEndsSession(t *testing.T) {
	cfg := `{
		"camera": {"source": "synthetic", "resolution": [8, 8], "fps": 100},
		"detection": {"engine": "fake"},
		"security": {"enable_alerts": false, "enable_face_recognition": false},
		"analytics": {"heatmap_resolution": [8, 8]},
		"runtime": {"stall_timeout": 1}
	}`
	svcs := orchServices(t, cfg, inference.NewFake())
	cam := &freezingCamera{release: make(chan struct{})}
	svcs.CameraSvc = cam

	orch := NewOrchestrator(svcs, make(chan AlertData, 1))
	if err := orch.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	canxCtx, canxFn := context.WithCancel(context.Background())
	statsStream := make(chan interface{}, 100)
	orch.Start(canxCtx, statsStream)
	defer func() {
		canxFn()
		close(cam.release)
	}()

	deadline := time.Now().Add(8 * time.Second)
	for orch.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("stalled capture did not end the session")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestOrchestratorCycleRaisesAlerts(t *testing.T) {
	dir := t.TempDir()
	cfg := fmt.Sprintf(`{
		"camera": {"source": "synthetic", "resolution": [64, 48], "fps": 100},
		"detection": {"engine": "fake"},
		"security": {"enable_alerts": true, "record_on_alert": false, "enable_face_recognition": true},
		"analytics": {"heatmap_resolution": [64, 48]},
		"storage": {"database_path": "%s/camera.db", "video_storage_path": "%s/videos"},
		"runtime": {"stall_timeout": 30}
	}`, dir, dir)

	svcs := orchServices(t, cfg, inference.NewFake([]model.Detection{personDetection()}))
	svcs.FacesSvc = faces.NewFake(model.Face{
		Name:     "Unknown",
		Known:    false,
		Location: model.FaceLocation{Top: 10, Right: 40, Bottom: 30, Left: 20},
	})

	datasvc, err := data.NewSQLite(svcs.CfgSvc)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { datasvc.Close() })
	svcs.DataSvc = datasvc
	svcs.StorageSvc = storage.NewDisk(svcs.CfgSvc)

	alertStream := make(chan AlertData, 8)
	orch := NewOrchestrator(svcs, alertStream)
	if err := orch.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	canxCtx, canxFn := context.WithCancel(context.Background())
	statsStream := make(chan interface{}, 100)
	orch.Start(canxCtx, statsStream)

	deadline := time.Now().Add(3 * time.Second)
	for svcs.MetricsSvc.AlertsRaised.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no alert raised for an unknown face")
		}
		time.Sleep(10 * time.Millisecond)
	}
	canxFn()
	orch.Stop()

	events, err := svcs.DataSvc.GetEvents(50, 24)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	found := false
	for _, ev := range events {
		if ev.EventType == "unknown_face" && ev.Severity == "critical" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("no unknown_face event persisted among %d events", len(events))
	}

	select {
	case ad := <-alertStream:
		if ad.Frame.Empty() {
			t.Error("streamed alert carries no frame")
		}
	default:
		t.Error("nothing handed to the notification stream")
	}
}
