// Package httpserver exposes the install and promotion operations over HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Schredly/packgraph/internal/auth"
	"github.com/Schredly/packgraph/internal/config"
	"github.com/Schredly/packgraph/internal/install"
	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/promotion"
	"github.com/Schredly/packgraph/internal/store"
)

type Server struct {
	cfg      config.Config
	db       store.Store
	installs *install.Engine
	promoter *promotion.Engine
	intents  *promotion.IntentService
	validate *validator.Validate
	log      zerolog.Logger
}

func New(cfg config.Config, db store.Store, installs *install.Engine, promoter *promotion.Engine, intents *promotion.IntentService, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		installs: installs,
		promoter: promoter,
		intents:  intents,
		validate: validator.New(),
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware([]byte(s.cfg.JWTSecret)))

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/packages/install", s.handleInstall)
			r.Post("/packages/install-batch", s.handleInstallBatch)
		})

		r.Route("/environments", func(r chi.Router) {
			r.Get("/{environmentID}/state", s.handleEnvironmentState)
			r.Get("/diff", s.handleEnvironmentDiff)
			r.Post("/promote", s.handlePromote)
		})

		r.Route("/promotion-intents", func(r chi.Router) {
			r.Post("/", s.handleCreateIntent)
			r.Get("/", s.handleListIntents)
			r.Get("/{intentID}", s.handleGetIntent)
			r.Post("/{intentID}/preview", s.handlePreviewIntent)
			r.Post("/{intentID}/approve", s.handleApproveIntent)
			r.Post("/{intentID}/execute", s.handleExecuteIntent)
			r.Post("/{intentID}/reject", s.handleRejectIntent)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.db.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = "down"
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["db"] = "up"
	respondJSON(w, http.StatusOK, status)
}

type installRequest struct {
	Package                  models.GraphPackage `json:"package" validate:"required"`
	PreviewOnly              bool                `json:"previewOnly"`
	AllowDowngrade           bool                `json:"allowDowngrade"`
	AllowForeignTypeMutation bool                `json:"allowForeignTypeMutation"`
	EnvironmentID            string              `json:"environmentId"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req installRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", err.Error())
		return
	}
	if err := s.validate.Struct(req.Package); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_INVALID_PACKAGE", err.Error())
		return
	}

	result, err := s.installs.InstallPackage(r.Context(), tenantID, chi.URLParam(r, "projectID"), req.Package, install.Options{
		PreviewOnly:              req.PreviewOnly,
		AllowDowngrade:           req.AllowDowngrade,
		AllowForeignTypeMutation: req.AllowForeignTypeMutation,
		EnvironmentID:            req.EnvironmentID,
		InstalledBy:              actor.ID,
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type installBatchRequest struct {
	Packages                 []models.GraphPackage `json:"packages" validate:"required,min=1,dive"`
	PreviewOnly              bool                  `json:"previewOnly"`
	AllowDowngrade           bool                  `json:"allowDowngrade"`
	AllowForeignTypeMutation bool                  `json:"allowForeignTypeMutation"`
	EnvironmentID            string                `json:"environmentId"`
}

func (s *Server) handleInstallBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req installBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_INVALID_PACKAGE", err.Error())
		return
	}

	results, err := s.installs.InstallPackages(r.Context(), tenantID, chi.URLParam(r, "projectID"), req.Packages, install.Options{
		PreviewOnly:              req.PreviewOnly,
		AllowDowngrade:           req.AllowDowngrade,
		AllowForeignTypeMutation: req.AllowForeignTypeMutation,
		EnvironmentID:            req.EnvironmentID,
		InstalledBy:              actor.ID,
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleEnvironmentState(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	state, err := s.promoter.EnvironmentPackageState(r.Context(), tenantID, chi.URLParam(r, "environmentID"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"packages": state})
}

func (s *Server) handleEnvironmentDiff(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", "from and to environment ids are required")
		return
	}
	diff, err := s.promoter.DiffEnvironments(r.Context(), tenantID, from, to)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "PACKGRAPH_NOT_FOUND", err.Error())
			return
		}
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, diff)
}

type promoteRequest struct {
	ProjectID         string `json:"projectId" validate:"required"`
	FromEnvironmentID string `json:"fromEnvironmentId" validate:"required"`
	ToEnvironmentID   string `json:"toEnvironmentId" validate:"required"`
	PreviewOnly       bool   `json:"previewOnly"`
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", err.Error())
		return
	}

	result, err := s.promoter.PromotePackages(r.Context(), tenantID, req.ProjectID, req.FromEnvironmentID, req.ToEnvironmentID, promotion.PromoteOptions{
		PreviewOnly: req.PreviewOnly,
		PromotedBy:  actor.ID,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "PACKGRAPH_NOT_FOUND", err.Error())
			return
		}
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type createIntentRequest struct {
	ProjectID         string `json:"projectId" validate:"required"`
	FromEnvironmentID string `json:"fromEnvironmentId" validate:"required"`
	ToEnvironmentID   string `json:"toEnvironmentId" validate:"required"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req createIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", err.Error())
		return
	}

	intent, err := s.intents.Create(r.Context(), tenantID, promotion.CreateIntentInput{
		ProjectID:         req.ProjectID,
		FromEnvironmentID: req.FromEnvironmentID,
		ToEnvironmentID:   req.ToEnvironmentID,
		CreatedBy:         actor.ID,
	})
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, intent)
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		respondError(w, http.StatusBadRequest, "PACKGRAPH_BAD_REQUEST", "projectId is required")
		return
	}
	intents, err := s.intents.List(r.Context(), tenantID, projectID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"intents": intents})
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	intent, err := s.intents.Get(r.Context(), tenantID, chi.URLParam(r, "intentID"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

func (s *Server) handlePreviewIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	intent, err := s.intents.Preview(r.Context(), tenantID, chi.URLParam(r, "intentID"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

func (s *Server) handleApproveIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := s.identity(w, r)
	if !ok {
		return
	}
	intent, err := s.intents.Approve(r.Context(), tenantID, chi.URLParam(r, "intentID"), actor)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

func (s *Server) handleExecuteIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := s.identity(w, r)
	if !ok {
		return
	}
	intent, err := s.intents.Execute(r.Context(), tenantID, chi.URLParam(r, "intentID"), actor.ID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

func (s *Server) handleRejectIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, actor, ok := s.identity(w, r)
	if !ok {
		return
	}
	intent, err := s.intents.Reject(r.Context(), tenantID, chi.URLParam(r, "intentID"), actor)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

// identity pulls the tenant and actor resolved by the auth middleware.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (string, auth.Actor, bool) {
	tenantID, ok := auth.TenantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "PACKGRAPH_AUTH", "tenant not resolved")
		return "", auth.Actor{}, false
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "PACKGRAPH_AUTH", "actor not resolved")
		return "", auth.Actor{}, false
	}
	return tenantID, actor, true
}

// respondFailure maps status-carrying errors to their HTTP shape and treats
// everything else as an internal failure.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var se *auth.StatusError
	if errors.As(err, &se) {
		respondError(w, se.Status, se.Code, se.Message)
		return
	}
	s.log.Error().Err(err).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "PACKGRAPH_INTERNAL", err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
