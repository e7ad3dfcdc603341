// Package api exposes the HTTP interface for the frontier service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crawlkit/frontier/internal/config"
	"github.com/crawlkit/frontier/internal/frontier"
	"github.com/crawlkit/frontier/internal/metrics"
)

// IDGenerator produces crawl-run identifiers for jobs started without
// one.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the frontier router.
type Server struct {
	mux    chi.Router
	router *frontier.Router
	idGen  IDGenerator
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(router *frontier.Router, idGen IDGenerator, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router: router,
		idGen:  idGen,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/", s.startJob)
			r.Route("/{spider}", func(r chi.Router) {
				r.Delete("/", s.stopJob)
				r.Get("/stats", s.getStats)
				r.Post("/requests", s.storeRequests)
				r.Post("/requests/pop", s.popRequest)
			})
		})
	})

	s.mux = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

type startJobRequest struct {
	Spider  string `json:"spider"`
	CrawlID string `json:"crawl_id"`
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Spider == "" {
		writeError(w, s.logger, http.StatusBadRequest, "missing spider name")
		return
	}
	if req.CrawlID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			writeError(w, s.logger, http.StatusInternalServerError, fmt.Sprintf("generate crawl id: %v", err))
			return
		}
		req.CrawlID = id
	}
	job := frontier.Job{Spider: req.Spider, CrawlID: req.CrawlID}
	if _, err := s.router.StartWorker(job); err != nil {
		if errors.Is(err, frontier.ErrAlreadyStarted) {
			writeError(w, s.logger, http.StatusConflict, "worker already started")
			return
		}
		writeError(w, s.logger, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, map[string]string{
		"spider":   job.Spider,
		"crawl_id": job.CrawlID,
	})
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.router.ActiveJobs()
	out := make([]map[string]string, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, map[string]string{"spider": job.Spider, "crawl_id": job.CrawlID})
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	spider := chi.URLParam(r, "spider")
	if err := s.router.StopWorker(spider); err != nil {
		writeError(w, s.logger, http.StatusNotFound, "worker not running")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"spider": spider, "status": "stopped"})
}

type storeRequestsBody struct {
	Requests []*frontier.Request `json:"requests"`
}

func (s *Server) storeRequests(w http.ResponseWriter, r *http.Request) {
	spider := chi.URLParam(r, "spider")
	var body storeRequestsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.router.Store(spider, body.Requests...); err != nil {
		switch {
		case errors.Is(err, frontier.ErrNotARequest):
			writeError(w, s.logger, http.StatusBadRequest, "not a request")
		case errors.Is(err, frontier.ErrNotRunning):
			writeError(w, s.logger, http.StatusNotFound, "worker not running")
		default:
			writeError(w, s.logger, http.StatusServiceUnavailable, err.Error())
		}
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, map[string]any{
		"spider":   spider,
		"accepted": len(body.Requests),
	})
}

func (s *Server) popRequest(w http.ResponseWriter, r *http.Request) {
	spider := chi.URLParam(r, "spider")
	req, err := s.router.Pop(spider)
	if err != nil {
		if errors.Is(err, frontier.ErrNotRunning) {
			writeError(w, s.logger, http.StatusNotFound, "worker not running")
			return
		}
		writeError(w, s.logger, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"request": req})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	spider := chi.URLParam(r, "spider")
	count, err := s.router.Stats(spider)
	if err != nil {
		if errors.Is(err, frontier.ErrNotRunning) {
			writeError(w, s.logger, http.StatusNotFound, "worker not running")
			return
		}
		writeError(w, s.logger, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"spider": spider, "count": count})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
