package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/data"
	"github.com/khaledhikmat/aicam-go/service/email"
	"github.com/khaledhikmat/aicam-go/service/storage"
	"github.com/khaledhikmat/aicam-go/service/webhook"
)

// alertServices wires a full coordinator environment: real sqlite and disk
// storage in a temp dir, fake notification legs.
func alertServices(t *testing.T, security string) (ServicesFactory, *email.FakeService, *webhook.FakeService) {
	t.Helper()

	dir := t.TempDir()
	cfg := fmt.Sprintf(`{
		"camera": {"resolution": [64, 48]},
		"security": %s,
		"storage": {"database_path": "%s/camera.db", "video_storage_path": "%s/videos"}
	}`, security, dir, dir)

	svcs := testServices(t, cfg)

	datasvc, err := data.NewSQLite(svcs.CfgSvc)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { datasvc.Close() })

	emailsvc := email.NewFake()
	webhooksvc := webhook.NewFake()

	svcs.DataSvc = datasvc
	svcs.StorageSvc = storage.NewDisk(svcs.CfgSvc)
	svcs.EmailSvc = emailsvc
	svcs.WebhookSvc = webhooksvc
	return svcs, emailsvc, webhooksvc
}

const alertingOn = `{"enable_alerts": true, "record_on_alert": true, "alert_email": "ops@example.com", "alert_slack_webhook": "http://hooks.example.com/T000/B000"}`

func TestEvaluateMotionRule(t *testing.T) {
	svcs, _, _ := alertServices(t, alertingOn)
	a := NewAlertCoordinator(svcs, make(chan AlertData, 8))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	alerts := a.Evaluate(true, 15.0, 2, nil, now)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	al := alerts[0]
	if al.Type != "motion_detected" || al.Severity != "medium" || al.PersonCount != 2 {
		t.Errorf("alert = %+v, want motion_detected/medium with 2 people", al)
	}
	if al.Metadata["motion_magnitude"] != 15.0 {
		t.Errorf("metadata magnitude = %v, want 15", al.Metadata["motion_magnitude"])
	}

	// The escalation threshold is exclusive and independent of the motion
	// detection flag.
	if got := a.Evaluate(true, 10.0, 0, nil, now); len(got) != 0 {
		t.Errorf("magnitude exactly 10 raised %d alerts, want 0", len(got))
	}
	if got := a.Evaluate(true, 8.0, 0, nil, now); len(got) != 0 {
		t.Errorf("magnitude 8 raised %d alerts, want 0", len(got))
	}
	if got := a.Evaluate(false, 50.0, 0, nil, now); len(got) != 0 {
		t.Errorf("undetected motion raised %d alerts, want 0", len(got))
	}
}

func TestEvaluateUnknownFaceRule(t *testing.T) {
	svcs, _, _ := alertServices(t, alertingOn)
	a := NewAlertCoordinator(svcs, make(chan AlertData, 8))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	faces := []model.Face{
		{Name: "khaled", Known: true, Location: model.FaceLocation{Top: 10, Right: 40, Bottom: 30, Left: 20}},
		{Name: "Unknown", Known: false, Location: model.FaceLocation{Top: 100, Right: 240, Bottom: 200, Left: 140}},
	}

	alerts := a.Evaluate(false, 0, 2, faces, now)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 (known face must not alert)", len(alerts))
	}
	al := alerts[0]
	if al.Type != "unknown_face" || al.Severity != "critical" {
		t.Errorf("alert = %+v, want unknown_face/critical", al)
	}
	if al.Metadata["name"] != "Unknown" {
		t.Errorf("metadata name = %v, want Unknown", al.Metadata["name"])
	}
	if loc, ok := al.Metadata["location"].(model.FaceLocation); !ok || loc.Top != 100 {
		t.Errorf("metadata location = %v, want the face location", al.Metadata["location"])
	}
}

func TestEvaluateDisabledProducesNothing(t *testing.T) {
	svcs, _, _ := alertServices(t, `{"enable_alerts": false}`)
	a := NewAlertCoordinator(svcs, make(chan AlertData, 8))

	faces := []model.Face{{Name: "Unknown", Known: false}}
	if got := a.Evaluate(true, 99.0, 5, faces, time.Now()); got != nil {
		t.Errorf("disabled alerting produced %d alerts", len(got))
	}
}

func TestEvaluateDoesNotDeduplicate(t *testing.T) {
	svcs, _, _ := alertServices(t, alertingOn)
	a := NewAlertCoordinator(svcs, make(chan AlertData, 8))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if got := a.Evaluate(true, 20.0, 1, nil, now); len(got) != 1 {
			t.Fatalf("invocation %d produced %d alerts, want 1 every time", i, len(got))
		}
	}
}

func TestDispatchPersistsAndRecordsIncident(t *testing.T) {
	svcs, _, _ := alertServices(t, alertingOn)
	stream := make(chan AlertData, 8)
	a := NewAlertCoordinator(svcs, stream)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	frame := uniformFrame(64, 48, 128)
	a.Dispatch(a.Evaluate(true, 15.0, 1, nil, now), frame, nil)

	events, err := svcs.DataSvc.GetEvents(10, 24)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.EventType != "motion_detected" || ev.Severity != "medium" || ev.PersonCount != 1 {
		t.Errorf("event = %+v", ev)
	}
	if !strings.Contains(ev.Metadata, "motion_magnitude") {
		t.Errorf("metadata %q missing magnitude", ev.Metadata)
	}
	if ev.VideoClipPath == nil {
		t.Fatal("clip path not recorded")
	}
	if _, err := os.Stat(*ev.VideoClipPath); err != nil {
		t.Errorf("incident snapshot missing: %v", err)
	}

	select {
	case ad := <-stream:
		if ad.Alert.Type != "motion_detected" {
			t.Errorf("streamed alert type = %s", ad.Alert.Type)
		}
		if ad.Frame.Empty() {
			t.Error("streamed alert carries no frame")
		}
	default:
		t.Error("alert not handed to the notifier stream")
	}
}

func TestDispatchStoresPreRoll(t *testing.T) {
	svcs, _, _ := alertServices(t, alertingOn)
	a := NewAlertCoordinator(svcs, make(chan AlertData, 8))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	preRoll := []model.Frame{
		uniformFrame(64, 48, 10),
		uniformFrame(64, 48, 20),
		uniformFrame(64, 48, 30),
	}
	a.Dispatch(a.Evaluate(true, 15.0, 1, nil, now), uniformFrame(64, 48, 128), preRoll)

	events, err := svcs.DataSvc.GetEvents(10, 24)
	if err != nil || len(events) != 1 {
		t.Fatalf("events = %d (%v), want 1", len(events), err)
	}
	if !strings.Contains(events[0].Metadata, "pre_roll_path") {
		t.Fatalf("metadata %q carries no preroll path", events[0].Metadata)
	}

	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(events[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	dir, _ := meta["pre_roll_path"].(string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("preroll dir: %v", err)
	}
	if len(entries) != len(preRoll) {
		t.Errorf("preroll holds %d frames, want %d", len(entries), len(preRoll))
	}
}

func TestDispatchWithoutRecording(t *testing.T) {
	svcs, _, _ := alertServices(t, `{"enable_alerts": true, "record_on_alert": false}`)
	a := NewAlertCoordinator(svcs, make(chan AlertData, 8))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a.Dispatch(a.Evaluate(true, 15.0, 0, nil, now), uniformFrame(64, 48, 0), nil)

	events, err := svcs.DataSvc.GetEvents(10, 24)
	if err != nil || len(events) != 1 {
		t.Fatalf("events = %d (%v), want 1", len(events), err)
	}
	if events[0].VideoClipPath != nil {
		t.Errorf("clip path = %v, want none", *events[0].VideoClipPath)
	}
}

func TestDispatchNeverBlocksOnFullStream(t *testing.T) {
	svcs, _, _ := alertServices(t, alertingOn)
	stream := make(chan AlertData, 1)
	a := NewAlertCoordinator(svcs, stream)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	frame := uniformFrame(64, 48, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			a.Dispatch(a.Evaluate(true, 15.0, 0, nil, now), frame, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("dispatch blocked on a full alert stream")
	}
	if len(stream) != 1 {
		t.Errorf("stream holds %d alerts, want 1 (rest dropped)", len(stream))
	}
}

func TestAlertNotifierRunsBothLegs(t *testing.T) {
	svcs, emailsvc, webhooksvc := alertServices(t, alertingOn)
	stream := make(chan AlertData, 8)

	canxCtx, canxFn := context.WithCancel(context.Background())
	defer canxFn()
	AlertNotifier(canxCtx, svcs, stream)

	stream <- AlertData{Alert: model.Alert{
		Type:      "unknown_face",
		Severity:  "critical",
		Metadata:  map[string]interface{}{"severity": "critical", "name": "Unknown"},
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}

	deadline := time.Now().Add(2 * time.Second)
	for len(emailsvc.Sent()) == 0 || len(webhooksvc.Posts()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("legs did not run: %d emails, %d posts", len(emailsvc.Sent()), len(webhooksvc.Posts()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	msg := emailsvc.Sent()[0]
	if msg.To != "ops@example.com" {
		t.Errorf("email to = %q", msg.To)
	}
	if msg.Subject != "Security Alert: unknown_face" {
		t.Errorf("email subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Severity: critical") {
		t.Errorf("email body = %q", msg.Body)
	}

	payload := webhooksvc.Posts()[0]
	if payload["text"] != "**unknown_face** Alert" {
		t.Errorf("webhook text = %v", payload["text"])
	}
	atts, ok := payload["attachments"].([]map[string]interface{})
	if !ok || len(atts) != 1 {
		t.Fatalf("webhook attachments = %v", payload["attachments"])
	}
	if atts[0]["color"] != "danger" {
		t.Errorf("critical alert color = %v, want danger", atts[0]["color"])
	}
}

func TestAlertNotifierColorForMediumSeverity(t *testing.T) {
	svcs, _, webhooksvc := alertServices(t, alertingOn)
	stream := make(chan AlertData, 8)

	canxCtx, canxFn := context.WithCancel(context.Background())
	defer canxFn()
	AlertNotifier(canxCtx, svcs, stream)

	stream <- AlertData{Alert: model.Alert{Type: "motion_detected", Severity: "medium", Timestamp: time.Now()}}

	deadline := time.Now().Add(2 * time.Second)
	for len(webhooksvc.Posts()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("webhook leg did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	atts := webhooksvc.Posts()[0]["attachments"].([]map[string]interface{})
	if atts[0]["color"] != "warning" {
		t.Errorf("medium alert color = %v, want warning", atts[0]["color"])
	}
}

func TestAlertNotifierSkipsUnconfiguredLegs(t *testing.T) {
	svcs, emailsvc, webhooksvc := alertServices(t, `{"enable_alerts": true, "alert_email": "", "alert_slack_webhook": ""}`)
	stream := make(chan AlertData, 8)

	canxCtx, canxFn := context.WithCancel(context.Background())
	defer canxFn()
	AlertNotifier(canxCtx, svcs, stream)

	stream <- AlertData{Alert: model.Alert{Type: "motion_detected", Severity: "medium", Timestamp: time.Now()}}
	time.Sleep(300 * time.Millisecond)

	if len(emailsvc.Sent()) != 0 || len(webhooksvc.Posts()) != 0 {
		t.Errorf("unconfigured legs ran: %d emails, %d posts", len(emailsvc.Sent()), len(webhooksvc.Posts()))
	}
}
