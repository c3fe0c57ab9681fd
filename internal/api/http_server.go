package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reswatch/internal/config"
	"reswatch/internal/database"
	"reswatch/internal/domain"
	"reswatch/internal/metrics"
	"reswatch/internal/models"
	"reswatch/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SchedulerControl is the slice of the scheduler the API exposes to
// operators.
type SchedulerControl interface {
	Status() scheduler.Status
	ResumeJob(ctx context.Context, jobID string) error
}

// HistoryExporter produces an xlsx report for a date range.
type HistoryExporter interface {
	ExportHistory(ctx context.Context, start, end time.Time) (string, error)
}

// HTTPServer is the operator-facing API: job inspection and control,
// history queries and exports, health and metrics.
type HTTPServer struct {
	cfg      config.APIConfig
	repo     domain.Repository
	sched    SchedulerControl
	exporter HistoryExporter
	server   *http.Server
	logger   *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	repo domain.Repository,
	sched SchedulerControl,
	exporter HistoryExporter,
	prometheusEnabled bool,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, repo: repo, sched: sched, exporter: exporter, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/status", srv.handleStatus)
	mux.HandleFunc("GET /api/v1/jobs", srv.handleListJobs)
	mux.HandleFunc("POST /api/v1/jobs", srv.handleCreateJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}", srv.handleGetJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/resume", srv.handleResumeJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", srv.handleCancelJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}/history", srv.handleJobHistory)
	mux.HandleFunc("GET /api/v1/history", srv.handleHistory)
	mux.HandleFunc("POST /api/v1/history/export", srv.handleExport)
	if prometheusEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	auth := NewHTTPAuth(cfg)
	handler := srv.loggingMiddleware(auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the full middleware chain for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("status")
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs_list")
	jobs, err := s.repo.ListWatchJobs(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs_create")

	var job models.WatchJob
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if job.Status == "" {
		job.Status = models.StatusPending
	}
	if job.MonitoringStrategy == "" {
		job.MonitoringStrategy = models.StrategyContinuous
	}
	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.repo.GetRestaurantByID(r.Context(), job.RestaurantID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown restaurant")
			return
		}
		s.logger.Error().Err(err).Msg("load restaurant")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	if err := s.repo.CreateWatchJob(r.Context(), &job); err != nil {
		s.logger.Error().Err(err).Msg("create job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	writeJSON(w, http.StatusCreated, &job)
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs_get")
	job, err := s.repo.GetWatchJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error().Err(err).Msg("get job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs_resume")
	if err := s.sched.ResumeJob(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusMonitoring})
}

func (s *HTTPServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs_cancel")
	id := r.PathValue("id")

	job, err := s.repo.GetWatchJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error().Err(err).Msg("get job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job.IsTerminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is already %s", job.Status))
		return
	}

	if err := s.repo.UpdateWatchJobStatus(r.Context(), id, models.StatusCancelled); err != nil {
		s.logger.Error().Err(err).Msg("cancel job")
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusCancelled})
}

func (s *HTTPServer) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("jobs_history")
	records, err := s.repo.GetJobHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error().Err(err).Msg("job history")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("history")
	start, end, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.repo.GetHistoryByDateRange(r.Context(), start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("history range")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("history_export")
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	start, end, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := s.exporter.ExportHistory(r.Context(), start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("history export")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := strings.TrimSpace(r.URL.Query().Get("start"))
	endStr := strings.TrimSpace(r.URL.Query().Get("end"))
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("start and end are required")
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid start date; expected YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid end date; expected YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end is before start")
	}
	return start, end, nil
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
