// Package api exposes the HTTP control surface for the ingestion service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/config"
	"github.com/anithp/buddi-chain/internal/dataset"
	"github.com/anithp/buddi-chain/internal/ingest"
	"github.com/anithp/buddi-chain/internal/metrics"
	"github.com/anithp/buddi-chain/internal/middleware"
)

// Control is the scheduler control surface the HTTP layer drives.
type Control interface {
	Start() ingest.Phase
	Stop() ingest.Phase
	TriggerFetch() (ingest.CycleResult, bool)
	UpdateConfig(ingest.SchedulerConfigUpdate) (ingest.SchedulerConfig, error)
	Status() ingest.SchedulerStatus
}

// Server wires HTTP handlers to the scheduler, the conversation store, the
// dataset service and the anchor verifier.
type Server struct {
	router   chi.Router
	control  Control
	store    ingest.ConversationStore
	datasets *dataset.Service
	verifier ingest.AnchorVerifier
	log      *zap.Logger
}

// NewServer constructs a Server with middleware and routes. verifier may be
// nil when the configured anchorer cannot answer verification queries.
func NewServer(control Control, store ingest.ConversationStore, datasets *dataset.Service, verifier ingest.AnchorVerifier, cfg config.ServerConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		control:  control,
		store:    store,
		datasets: datasets,
		verifier: verifier,
		log:      log.Named("api"),
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", s.getStatus)
			r.Post("/start", s.startScheduler)
			r.Post("/stop", s.stopScheduler)
			r.Post("/fetch", s.triggerFetch)
			r.Post("/config", s.updateConfig)
		})
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.listConversations)
			r.Get("/{externalID}", s.getConversation)
			r.Get("/{externalID}/verify", s.verifyConversation)
		})
		r.Route("/datasets", func(r chi.Router) {
			r.Get("/", s.listDatasets)
			r.Post("/", s.createDataset)
			r.Get("/{datasetID}", s.getDataset)
			r.Post("/{datasetID}/export", s.exportDataset)
			r.Get("/{datasetID}/download", s.downloadDataset)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency for serving; a failing
	// existence probe means the backing database is unreachable.
	if _, err := s.store.Exists(r.Context(), "readiness-probe"); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.control.Status())
}

func (s *Server) startScheduler(w http.ResponseWriter, _ *http.Request) {
	phase := s.control.Start()
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(phase)})
}

func (s *Server) stopScheduler(w http.ResponseWriter, _ *http.Request) {
	phase := s.control.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(phase)})
}

func (s *Server) triggerFetch(w http.ResponseWriter, _ *http.Request) {
	res, busy := s.control.TriggerFetch()
	if busy {
		writeJSON(w, http.StatusConflict, map[string]bool{"busy": true})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var update ingest.SchedulerConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	applied, err := s.control.UpdateConfig(update)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied_config": applied})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	convs, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		s.log.Error("list conversations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []ingest.StoredConversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	conv, err := s.store.Get(r.Context(), externalID)
	if errors.Is(err, ingest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.log.Error("get conversation failed", zap.String("external_id", externalID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) verifyConversation(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		writeError(w, http.StatusNotImplemented, "anchor verification is not supported by the configured anchorer")
		return
	}
	externalID := chi.URLParam(r, "externalID")
	conv, err := s.store.Get(r.Context(), externalID)
	if errors.Is(err, ingest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.log.Error("get conversation failed", zap.String("external_id", externalID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	verified, err := s.verifier.VerifyAnchor(r.Context(), conv.AnchorID, conv.MerkleRoot)
	if err != nil {
		s.log.Error("anchor verification failed", zap.String("anchor_id", conv.AnchorID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "anchor verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"external_id": conv.ExternalID,
		"anchor_id":   conv.AnchorID,
		"merkle_root": conv.MerkleRoot,
		"verified":    verified,
	})
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	var isReady *bool
	if raw := r.URL.Query().Get("is_ready"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "is_ready must be a boolean")
			return
		}
		isReady = &v
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	if offset < 0 || limit < 1 {
		writeError(w, http.StatusBadRequest, "offset must be >= 0 and limit must be >= 1")
		return
	}

	sets := s.datasets.List(isReady, offset, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": sets,
		"count":    len(sets),
	})
}

func (s *Server) createDataset(w http.ResponseWriter, r *http.Request) {
	var req dataset.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ds, err := s.datasets.Create(r.Context(), req)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		s.log.Error("create dataset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create dataset")
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	ds, err := s.datasets.Get(id)
	if errors.Is(err, ingest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load dataset")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) exportDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	var req struct {
		Format string `json:"format"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	ds, err := s.datasets.Export(r.Context(), id, req.Format)
	if errors.Is(err, ingest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		s.log.Error("export dataset failed", zap.Int("dataset_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export dataset")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) downloadDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetID(w, r)
	if !ok {
		return
	}
	path, size, err := s.datasets.Download(id)
	if errors.Is(err, ingest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_path": path,
		"file_size": size,
	})
}

func datasetID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "datasetID"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "dataset id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
