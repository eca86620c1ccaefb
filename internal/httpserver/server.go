// Package httpserver exposes the release pipeline over HTTP for the
// surrounding API/CLI layer.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/promptgate/promptgate/internal/audit"
	"github.com/promptgate/promptgate/internal/auth"
	"github.com/promptgate/promptgate/internal/config"
	"github.com/promptgate/promptgate/internal/gate"
	"github.com/promptgate/promptgate/internal/history"
	"github.com/promptgate/promptgate/internal/models"
	"github.com/promptgate/promptgate/internal/regress"
	"github.com/promptgate/promptgate/internal/registry"
	"github.com/promptgate/promptgate/internal/release"
	"github.com/promptgate/promptgate/internal/suite"
	"github.com/promptgate/promptgate/internal/trend"
)

type Server struct {
	cfg          config.Config
	registry     *registry.Registry
	history      history.Reader
	detector     *regress.Detector
	gate         *gate.Gate
	executor     *release.Executor
	orchestrator *suite.Orchestrator
	auditLog     *audit.Log
}

func New(cfg config.Config, reg *registry.Registry, reader history.Reader, detector *regress.Detector,
	g *gate.Gate, exec *release.Executor, orch *suite.Orchestrator, auditLog *audit.Log) *Server {
	return &Server{
		cfg:          cfg,
		registry:     reg,
		history:      reader,
		detector:     detector,
		gate:         g,
		executor:     exec,
		orchestrator: orch,
		auditLog:     auditLog,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/prompts/{name}", s.handleLoad)
	r.Get("/prompts/{name}/versions", s.handleListVersions)
	r.Get("/trends/{evalType}", s.handleTrend)
	r.Get("/regressions", s.handleRegressions)
	r.Get("/suites/runs/current", s.handleSuiteStatus)
	r.Get("/audit", s.handleAuditList)
	r.Post("/promotions/check", s.handleGateCheck)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePrivileged(auth.Config{
			JWTSecret:       s.cfg.JWTSecret,
			AllowDebugToken: s.cfg.AllowDebugToken,
			DebugToken:      s.cfg.DebugToken,
		}))
		r.Post("/prompts", s.handleRegister)
		r.Post("/prompts/seed", s.handleSeed)
		r.Put("/prompts/{name}/aliases/{alias}", s.handleSetAlias)
		r.Delete("/prompts/{name}/aliases/{alias}", s.handleDeleteAlias)
		r.Post("/promotions", s.handlePromote)
		r.Post("/rollbacks", s.handleRollback)
		r.Post("/suites/runs", s.handleStartRun)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.registry.Ping(ctx); err != nil {
		status["ok"] = false
		status["store"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	loaded, err := s.registry.Load(r.Context(), name, r.URL.Query().Get("ref"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, loaded)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.registry.ListVersions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown prompt")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

type registerRequest struct {
	Name          string            `json:"name"`
	Template      string            `json:"template"`
	CommitMessage string            `json:"commitMessage"`
	ModelConfig   map[string]string `json:"modelConfig"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	version, err := s.registry.Register(r.Context(), req.Name, req.Template, req.CommitMessage, req.ModelConfig)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"name": req.Name, "version": version})
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	seeded, skipped := s.registry.SeedDefaults(r.Context())
	respondJSON(w, http.StatusOK, map[string]int{"seeded": seeded, "skipped": skipped})
}

type setAliasRequest struct {
	Version int `json:"version"`
}

func (s *Server) handleSetAlias(w http.ResponseWriter, r *http.Request) {
	var req setAliasRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	alias := chi.URLParam(r, "alias")
	if err := s.registry.SetAlias(r.Context(), name, alias, req.Version); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "version does not exist")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"name": name, "alias": alias, "version": req.Version})
}

func (s *Server) handleDeleteAlias(w http.ResponseWriter, r *http.Request) {
	err := s.registry.DeleteAlias(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "alias"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "alias not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	evalType := chi.URLParam(r, "evalType")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	points, err := s.history.QueryRuns(r.Context(), evalType, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary := trend.BuildSummary(evalType, points, trend.Config{StableMarginPp: s.cfg.StableMarginPp})
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRegressions(w http.ResponseWriter, r *http.Request) {
	set, err := s.detector.CheckAllRegressions(r.Context(), r.URL.Query().Get("evalType"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, set)
}

type gateCheckRequest struct {
	PromptName string `json:"promptName"`
	FromAlias  string `json:"fromAlias"`
	ToAlias    string `json:"toAlias"`
	Version    int    `json:"version"`
}

func (s *Server) handleGateCheck(w http.ResponseWriter, r *http.Request) {
	var req gateCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.gate.CheckGate(r.Context(), req.PromptName, req.FromAlias, req.ToAlias, req.Version)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type promoteRequest struct {
	PromptName string `json:"promptName"`
	FromAlias  string `json:"fromAlias"`
	ToAlias    string `json:"toAlias"`
	Version    int    `json:"version"`
	Force      bool   `json:"force"`
	Reason     string `json:"reason"`
}

type promoteResponse struct {
	Executed bool                    `json:"executed"`
	Result   *models.PromotionResult `json:"result,omitempty"`
	Record   *models.AuditRecord     `json:"record,omitempty"`
}

// handlePromote runs the gate and, when allowed (or explicitly forced
// with a reason), executes the alias mutation. A blocked gate is a normal
// response with executed=false, not an error; the caller decides.
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := auth.FromContext(r.Context())

	exec := release.PromotionExec{
		PromptName: req.PromptName,
		ToAlias:    req.ToAlias,
		Version:    req.Version,
		Actor:      actor.Subject,
		Forced:     req.Force,
		Reason:     req.Reason,
	}

	var result *models.PromotionResult
	if req.Force {
		if req.Reason == "" {
			respondError(w, http.StatusBadRequest, "forced promotion requires a reason")
			return
		}
		if exec.Version == 0 {
			a, err := s.registry.GetAlias(r.Context(), req.PromptName, req.FromAlias)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			exec.Version = a.Version
		}
	} else {
		checked, err := s.gate.CheckGate(r.Context(), req.PromptName, req.FromAlias, req.ToAlias, req.Version)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		result = &checked
		if !checked.Allowed {
			respondJSON(w, http.StatusOK, promoteResponse{Executed: false, Result: result})
			return
		}
		exec.Version = checked.Version
		exec.JustifyingRunIDs = checked.JustifyingRunIDs
	}

	record, err := s.executor.ExecutePromotion(r.Context(), exec)
	if err != nil {
		if errors.Is(err, release.ErrInvalidVersion) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, promoteResponse{Executed: true, Result: result, Record: &record})
}

type rollbackRequest struct {
	PromptName string `json:"promptName"`
	Alias      string `json:"alias"`
	Reason     string `json:"reason"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := auth.FromContext(r.Context())

	previous, ok, err := s.executor.FindPreviousVersion(r.Context(), req.PromptName, req.Alias)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusConflict, release.ErrInvalidRollback.Error())
		return
	}

	record, err := s.executor.ExecuteRollback(r.Context(), release.RollbackExec{
		PromptName:      req.PromptName,
		Alias:           req.Alias,
		PreviousVersion: previous,
		Reason:          req.Reason,
		Actor:           actor.Subject,
	})
	if err != nil {
		if errors.Is(err, release.ErrInvalidRollback) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, record)
}

type startRunRequest struct {
	SuiteName string   `json:"suiteName"`
	Datasets  []string `json:"datasets"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Datasets) == 0 {
		req.Datasets = s.cfg.SuiteDatasets
	}
	if req.SuiteName == "" {
		req.SuiteName = "default"
	}
	actor := auth.FromContext(r.Context())

	job, err := s.orchestrator.StartRun(req.SuiteName, req.Datasets, actor.Subject)
	if err != nil {
		if errors.Is(err, suite.ErrRunInProgress) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSuiteStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.orchestrator.GetStatus()
	if !ok {
		respondError(w, http.StatusNotFound, "no suite run recorded")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.auditLog.ListRecent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
