// Package api exposes the backfill orchestration over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	appbackfill "github.com/districtdata/harvester/internal/app/backfill"
	"github.com/districtdata/harvester/internal/config"
	domain "github.com/districtdata/harvester/internal/domain/backfill"
	"github.com/districtdata/harvester/internal/domain/reportdate"
	"github.com/districtdata/harvester/pkg/common/logger"
	"github.com/districtdata/harvester/pkg/common/otel"
)

// Server is the HTTP surface for creating, inspecting, and cancelling
// backfill jobs.
type Server struct {
	cfg         *config.Config
	logger      *logger.Logger
	router      *chi.Mux
	tracer      trace.Tracer
	manager     *appbackfill.BackfillJobManager
	coordinator *appbackfill.Coordinator
}

// NewServer builds the router and wires the backfill handlers.
func NewServer(
	cfg *config.Config,
	log *logger.Logger,
	tracer trace.Tracer,
	manager *appbackfill.BackfillJobManager,
	coordinator *appbackfill.Coordinator,
) (*Server, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otel.Middleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:         cfg,
		logger:      log,
		router:      r,
		tracer:      tracer,
		manager:     manager,
		coordinator: coordinator,
	}

	s.routes()
	return s, nil
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Post("/backfills", s.handleCreateBackfill)
		r.Get("/backfills/{id}", s.handleGetBackfill)
		r.Post("/backfills/{id}/cancel", s.handleCancelBackfill)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// createBackfillRequest is the POST /v1/backfills body. An empty district
// list means the whole configured fleet.
type createBackfillRequest struct {
	Districts   []string `json:"districts"`
	Dates       []string `json:"dates"`
	EnableRetry *bool    `json:"enableRetry"`
}

func (s *Server) handleCreateBackfill(w http.ResponseWriter, r *http.Request) {
	var req createBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error(r.Context(), "failed to decode request", "error", err)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if len(req.Dates) == 0 {
		http.Error(w, "at least one date is required", http.StatusBadRequest)
		return
	}

	dates := make([]reportdate.Date, 0, len(req.Dates))
	for _, raw := range req.Dates {
		date, err := reportdate.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid date %q", raw), http.StatusBadRequest)
			return
		}
		dates = append(dates, date)
	}

	var scope domain.Scope
	if len(req.Districts) == 0 {
		scope = domain.NewSystemWideScope(s.cfg.Districts)
	} else {
		scope = domain.NewTargetedScope(req.Districts, s.cfg.Districts)
	}

	retriesEnabled := s.cfg.Retry.Enabled
	if req.EnableRetry != nil {
		retriesEnabled = *req.EnableRetry
	}

	job := s.manager.CreateJob(r.Context(), scope, dates, domain.NewRetryOptions(retriesEnabled))
	view := jobToView(job)

	// The run outlives the request; only cancellation through the job's own
	// lifecycle stops it.
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.coordinator.Run(runCtx, job.ID()); err != nil {
			s.logger.Error(runCtx, "backfill run aborted", "job_id", job.ID(), "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(view)
}

func (s *Server) handleGetBackfill(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	var view jobView
	if !s.manager.WithJob(jobID, func(job *domain.Job) { view = jobToView(job) }) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

type cancelBackfillRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleCancelBackfill(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	var req cancelBackfillRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	if req.Message == "" {
		req.Message = "cancelled via API"
	}

	cancelled, err := s.manager.CancelJob(r.Context(), jobID, req.Message)
	if err != nil {
		if errors.Is(err, appbackfill.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		s.logger.Error(r.Context(), "failed to cancel job", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status, _ := s.manager.JobStatus(jobID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"jobId":     jobID.String(),
		"cancelled": cancelled,
		"status":    status.String(),
	})
}

// Start runs the HTTP server until ctx is done, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", s.cfg.API.Host, s.cfg.API.Port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting server",
		"addr", server.Addr,
		"service", "harvester-api",
	)

	return server.ListenAndServe()
}
