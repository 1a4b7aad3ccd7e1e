package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/service"
)

// Server exposes the reminder engine over HTTP/JSON.
type Server struct {
	engine *service.Engine
	logger *logrus.Logger
	router chi.Router
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(engine *service.Engine, logger *logrus.Logger) *Server {
	s := &Server{engine: engine, logger: logger, router: chi.NewRouter()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Plans & reminders
		r.Post("/plans/schedule", s.handleSchedule)
		r.Post("/plans/reschedule", s.handleReschedule)
		r.Get("/plans/{id}/reminders", s.handleGetReminders)
		r.Delete("/plans/{id}/reminders", s.handleCancel)

		// Adherence
		r.Post("/plans/{id}/taken", s.handleTaken)
		r.Post("/plans/{id}/skipped", s.handleSkipped)
		r.Get("/compliance", s.handleCompliance)

		// Preferences
		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handleSetPreferences)

		r.Post("/sync", s.handleSync)
	})
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine errors onto HTTP status codes
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidPlan),
		errors.Is(err, models.ErrInvalidFrequency),
		errors.Is(err, models.ErrInvalidTimeAnchor):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrTransport):
		status = http.StatusBadGateway
	case errors.Is(err, models.ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	s.respondError(w, status, err.Error())
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil || r.Body == http.NoBody {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("HTTP request completed")
	})
}

// ---------------------------------------------------------------------------
// Plans & reminders
// ---------------------------------------------------------------------------

type scheduleResponse struct {
	PlanID   string                    `json:"plan_id"`
	Triggers []models.ScheduledTrigger `json:"triggers"`
	Warning  string                    `json:"warning,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	s.schedule(w, r, s.engine.Schedule)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	s.schedule(w, r, s.engine.Reschedule)
}

type scheduleFunc func(ctx context.Context, plan *models.MedicationPlan) (*service.ScheduleResult, error)

func (s *Server) schedule(w http.ResponseWriter, r *http.Request, fn scheduleFunc) {
	var plan models.MedicationPlan
	if ok, msg := s.decodeJSON(r, &plan); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := fn(r.Context(), &plan)
	if err != nil && (res == nil || !errors.Is(err, models.ErrPartialSchedule)) {
		s.respondEngineError(w, err)
		return
	}

	resp := scheduleResponse{PlanID: res.PlanID, Triggers: res.Triggers}
	if res.Warning != nil {
		resp.Warning = res.Warning.Error()
	}

	status := http.StatusOK
	if err != nil {
		// some triggers are live; report them together with the failure
		resp.Error = err.Error()
		status = http.StatusMultiStatus
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleGetReminders(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	s.respondJSON(w, http.StatusOK, map[string]any{
		"plan_id":  planID,
		"triggers": s.engine.Triggers(r.Context(), planID),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	if err := s.engine.Cancel(r.Context(), planID); err != nil {
		s.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Adherence
// ---------------------------------------------------------------------------

type takenRequest struct {
	Dosage string `json:"dosage"`
	Notes  string `json:"notes"`
}

type skippedRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleTaken(w http.ResponseWriter, r *http.Request) {
	var req takenRequest
	if r.ContentLength != 0 {
		if ok, msg := s.decodeJSON(r, &req); !ok {
			s.respondError(w, http.StatusBadRequest, msg)
			return
		}
	}

	event, err := s.engine.RecordTaken(r.Context(), chi.URLParam(r, "id"), req.Dosage, req.Notes)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, event)
}

func (s *Server) handleSkipped(w http.ResponseWriter, r *http.Request) {
	var req skippedRequest
	if r.ContentLength != 0 {
		if ok, msg := s.decodeJSON(r, &req); !ok {
			s.respondError(w, http.StatusBadRequest, msg)
			return
		}
	}

	event, err := s.engine.RecordSkipped(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, event)
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.ComplianceStats(r.Context(), r.URL.Query().Get("plan_id"))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// ---------------------------------------------------------------------------
// Preferences & sync
// ---------------------------------------------------------------------------

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.engine.GetPreferences(r.Context()))
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	// start from the current record so a partial body only changes what it names
	prefs := s.engine.GetPreferences(r.Context())
	if ok, msg := s.decodeJSON(r, &prefs); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	stored, err := s.engine.SetPreferences(r.Context(), prefs)
	if errors.Is(err, models.ErrPreferencesNotApplied) {
		// saved, but some plans could not be rescheduled
		s.respondJSON(w, http.StatusMultiStatus, map[string]any{
			"preferences": stored,
			"error":       err.Error(),
		})
		return
	}
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stored)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	report, err := s.engine.SyncPlans(r.Context(), force)
	if err != nil {
		s.respondJSON(w, http.StatusMultiStatus, map[string]any{
			"report": report,
			"error":  err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}
