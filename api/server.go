package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/pipeline"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// liveFrameInterval paces the MJPEG stream at roughly 30 parts per second.
const liveFrameInterval = 33 * time.Millisecond

const shutdownTimeout = 2 * time.Second

const (
	eventsLimit         = 50
	eventsWindowHours   = 24
	analyticsWindowDays = 7
)

// Pipeline is the read-only view the facade serves from. The orchestrator
// implements it; handlers never mutate pipeline state.
type Pipeline interface {
	Status() model.PipelineStatus
	AnnotatedJPEG() ([]byte, bool)
	HeatmapJPEG() ([]byte, error)
}

type Server struct {
	svcs   pipeline.ServicesFactory
	pl     Pipeline
	server *http.Server
}

func NewServer(svcs pipeline.ServicesFactory, pl Pipeline) *Server {
	s := &Server{
		svcs: svcs,
		pl:   pl,
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", svcs.CfgSvc.GetAPIHost(), svcs.CfgSvc.GetAPIPort()),
		Handler: s.ServeMux(),
	}
	return s
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/events", s.eventsHandler)
	mux.HandleFunc("/api/analytics", s.analyticsHandler)
	mux.HandleFunc("/api/heatmap", s.heatmapHandler)
	mux.HandleFunc("/api/live", s.liveHandler)
	mux.Handle("/metrics", s.svcs.MetricsSvc.Handler())
	return mux
}

// Start serves until the context is cancelled, then shuts down gracefully.
// A listener failure before cancellation is returned right away so the
// caller can treat a facade that never came up as fatal.
func (s *Server) Start(canxCtx context.Context) error {
	listenErr := make(chan error, 1)
	go func() {
		lgr.Logger.Info("api server listening", slog.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return err
	case <-canxCtx.Done():
	}
	lgr.Logger.Info("api server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		if cerr := s.server.Close(); cerr != nil {
			return cerr
		}
		return err
	}
	return nil
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	st := s.pl.Status()
	statusText := "stopped"
	if st.Running {
		statusText = "running"
	}

	// A summary failure degrades to zeroes rather than failing the status
	// endpoint.
	summary, err := s.svcs.DataSvc.GetStatisticsSummary()
	if err != nil {
		lgr.Logger.Error("statistics summary failed", slog.Any("error", err))
		summary = model.StatisticsSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           statusText,
		"timestamp":        time.Now().Format(time.RFC3339),
		"frames_processed": st.FramesProcessed,
		"fps":              fmt.Sprintf("%.1f", st.FPS),
		"database":         summary,
	})
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	events, err := s.svcs.DataSvc.GetEvents(eventsLimit, eventsWindowHours)
	if err != nil {
		lgr.Logger.Error("event retrieval failed", slog.Any("error", err))
	}
	if events == nil {
		events = []model.EventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := s.svcs.DataSvc.GetAnalytics(analyticsWindowDays)
	if err != nil {
		lgr.Logger.Error("analytics retrieval failed", slog.Any("error", err))
	}
	if records == nil {
		records = []model.AnalyticsRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) heatmapHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	jpg, err := s.pl.HeatmapJPEG()
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Heatmap unavailable")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := w.Write(jpg); err != nil {
		lgr.Logger.Error("heatmap write failed", slog.Any("error", err))
	}
}

// liveHandler streams annotated frames as an MJPEG multipart response. The
// connection stays open while the pipeline runs even if no frame is
// available yet; it closes when the pipeline stops or the client leaves.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(liveFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !s.pl.Status().Running {
				return
			}
			jpg, ok := s.pl.AnnotatedJPEG()
			if !ok {
				continue
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpg)); err != nil {
				return
			}
			if _, err := w.Write(jpg); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lgr.Logger.Error("response encoding failed", slog.Any("error", err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
