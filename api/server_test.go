package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/pipeline"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/data"
	"github.com/khaledhikmat/aicam-go/service/metrics"
)

// stubPipeline serves canned responses so handler behavior can be pinned
// without a camera.
type stubPipeline struct {
	status  model.PipelineStatus
	frame   []byte
	heatmap []byte
	hmErr   error
}

func (p *stubPipeline) Status() model.PipelineStatus { return p.status }

func (p *stubPipeline) AnnotatedJPEG() ([]byte, bool) {
	if p.frame == nil {
		return nil, false
	}
	return p.frame, true
}

func (p *stubPipeline) HeatmapJPEG() ([]byte, error) {
	if p.hmErr != nil {
		return nil, p.hmErr
	}
	return p.heatmap, nil
}

func testServer(t *testing.T, pl Pipeline) (*Server, pipeline.ServicesFactory) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfgJSON := fmt.Sprintf(
		`{"storage": {"database_path": "%s/camera.db", "video_storage_path": "%s/videos"}}`,
		dir, dir,
	)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgJSON), 0o644))

	cfgsvc, err := config.NewJSONFile(cfgPath)
	require.NoError(t, err)

	datasvc, err := data.NewSQLite(cfgsvc)
	require.NoError(t, err)
	t.Cleanup(func() { datasvc.Close() })

	svcs := pipeline.ServicesFactory{
		CfgSvc:     cfgsvc,
		DataSvc:    datasvc,
		MetricsSvc: metrics.New(),
	}
	return NewServer(svcs, pl), svcs
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	pl := &stubPipeline{status: model.PipelineStatus{
		Running:         true,
		FramesProcessed: 1234,
		FPS:             29.97,
	}}
	srv, svcs := testServer(t, pl)

	_, err := svcs.DataSvc.LogEvent("motion_detected", "medium", 1, 0.9, "{}", nil)
	require.NoError(t, err)

	rec := get(t, srv, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status          string                  `json:"status"`
		Timestamp       string                  `json:"timestamp"`
		FramesProcessed uint64                  `json:"frames_processed"`
		FPS             string                  `json:"fps"`
		Database        model.StatisticsSummary `json:"database"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "running", body.Status)
	assert.Equal(t, uint64(1234), body.FramesProcessed)
	assert.Equal(t, "30.0", body.FPS, "fps is serialized as a one-decimal string")
	assert.Equal(t, int64(1), body.Database.TotalEvents)

	_, err = time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestStatusEndpointWhenStopped(t *testing.T) {
	srv, _ := testServer(t, &stubPipeline{})

	rec := get(t, srv, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "stopped", body["status"])
	assert.Equal(t, "0.0", body["fps"])
}

func TestStatusEndpointRejectsPost(t *testing.T) {
	srv, _ := testServer(t, &stubPipeline{})

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEventsEndpoint(t *testing.T) {
	srv, svcs := testServer(t, &stubPipeline{})

	for _, typ := range []string{"motion_detected", "unknown_face", "person_detected"} {
		_, err := svcs.DataSvc.LogEvent(typ, "medium", 1, 0.8, "{}", nil)
		require.NoError(t, err)
	}

	rec := get(t, srv, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []model.EventRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 3)

	types := map[string]bool{}
	for _, ev := range events {
		types[ev.EventType] = true
	}
	assert.True(t, types["motion_detected"] && types["unknown_face"] && types["person_detected"])
}

func TestEventsEndpointEmptyIsAnArray(t *testing.T) {
	srv, _ := testServer(t, &stubPipeline{})

	rec := get(t, srv, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAnalyticsEndpoint(t *testing.T) {
	srv, svcs := testServer(t, &stubPipeline{})

	err := svcs.DataSvc.LogAnalytics(model.AnalyticsSnapshot{
		Timestamp:    time.Now(),
		PeopleCount:  3,
		AvgDwellTime: 12.5,
		PeakTraffic:  true,
	})
	require.NoError(t, err)

	rec := get(t, srv, "/api/analytics")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []model.AnalyticsRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].PeopleCount)
	assert.InDelta(t, 12.5, records[0].AvgDwellTime, 0.001)
	assert.True(t, records[0].PeakTraffic)
}

func TestHeatmapEndpoint(t *testing.T) {
	fakeJPEG := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	srv, _ := testServer(t, &stubPipeline{heatmap: fakeJPEG})

	rec := get(t, srv, "/api/heatmap")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, fakeJPEG, rec.Body.Bytes())
}

func TestHeatmapEndpointUnavailable(t *testing.T) {
	srv, _ := testServer(t, &stubPipeline{hmErr: errors.New("heatmap has no data")})

	rec := get(t, srv, "/api/heatmap")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "Heatmap unavailable"}`, rec.Body.String())
}

func TestLiveStreamEmitsParts(t *testing.T) {
	frame := []byte(strings.Repeat("j", 100))
	srv, _ := testServer(t, &stubPipeline{
		status: model.PipelineStatus{Running: true},
		frame:  frame,
	})

	ts := httptest.NewServer(srv.ServeMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	// Two parts is enough to prove the stream keeps flowing.
	buf := make([]byte, 400)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	body := string(buf)
	assert.GreaterOrEqual(t, strings.Count(body, "--frame\r\n"), 2)
	assert.Contains(t, body, "Content-Type: image/jpeg\r\n")
	assert.Contains(t, body, fmt.Sprintf("Content-Length: %d\r\n", len(frame)))
}

func TestLiveStreamClosesWhenStopped(t *testing.T) {
	srv, _ := testServer(t, &stubPipeline{})

	ts := httptest.NewServer(srv.ServeMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body, "a stopped pipeline ends the stream without parts")
}

func TestLiveStreamHoldsWithoutFrames(t *testing.T) {
	// Running with no annotated frame is the api-only shape: the connection
	// stays open and nothing is emitted.
	srv, _ := testServer(t, &stubPipeline{status: model.PipelineStatus{Running: true}})

	ts := httptest.NewServer(srv.ServeMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	read := make(chan struct{})
	go func() {
		one := make([]byte, 1)
		resp.Body.Read(one)
		close(read)
	}()

	select {
	case <-read:
		t.Fatal("stream emitted data without an annotated frame")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, svcs := testServer(t, &stubPipeline{})
	svcs.MetricsSvc.FramesCaptured.Add(2)

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aicam_frames_captured_total 2")
}
