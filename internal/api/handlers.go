// Package api contains the HTTP handlers for the operator-facing optimizer API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"furnace-optimizer/backend/internal/repository"
	"furnace-optimizer/backend/internal/services"
	"furnace-optimizer/backend/internal/session"

	"github.com/labstack/echo/v4"
)

const (
	serviceName = "furnace-optimizer"
	version     = "1.0.0"

	// SessionHeader and SessionCookie carry the session id on guarded routes.
	SessionHeader = "X-Session-ID"
	SessionCookie = "session_id"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler contains HTTP handlers for the optimizer REST API
type Handler struct {
	sessions *session.Manager
	identity services.IdentityClient
	store    repository.SubmissionStore
	logger   Logger
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(sessions *session.Manager, identity services.IdentityClient, store repository.SubmissionStore, logger Logger) *Handler {
	return &Handler{
		sessions: sessions,
		identity: identity,
		store:    store,
		logger:   logger,
	}
}

// RegisterHandlers mounts every route on e.
func RegisterHandlers(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HandleHealth)

	api := e.Group("/api/v1")
	api.POST("/register", h.Register)
	api.POST("/session", h.Login)
	api.DELETE("/session", h.Logout, h.RequireSession)
	api.GET("/parameters", h.GetParameters, h.RequireSession)
	api.PUT("/parameters/:field", h.PutParameter, h.RequireSession)
	api.POST("/predict", h.Predict, h.RequireSession)
	api.GET("/state", h.GetState, h.RequireSession)
	api.GET("/submissions", h.ListSubmissions, h.RequireSession)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HandleHealth reports service health. A failing history store degrades the
// status but still answers 200 so the operator API stays routable.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   serviceName,
		Version:   version,
		Checks:    map[string]string{"store": "ok"},
	}
	if err := h.store.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
		status.Checks["store"] = err.Error()
	}
	return c.JSON(http.StatusOK, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type           string `json:"type"`
	Title          string `json:"title"`
	Status         int    `json:"status"`
	Detail         string `json:"detail"`
	Instance       string `json:"instance,omitempty"`
	ReauthRequired bool   `json:"reauth_required,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(c echo.Context, status int, title, detail string) error {
	return writeProblem(c, ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeProblem(c echo.Context, problem ProblemDetails) error {
	problem.Instance = c.Request().URL.Path
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	c.Response().WriteHeader(problem.Status)
	return json.NewEncoder(c.Response()).Encode(problem)
}
