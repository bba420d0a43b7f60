package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dualchat/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: svc,
		logger:  logger,
	}
}

// RegisterRoutes registers the routes. mw guards every route except /health.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	// Relay
	e.POST("/start-session", h.StartSession, mw...)
	e.POST("/ai-chat", h.AIChat, mw...)

	// Catalog and configuration
	e.GET("/providers", h.ListProviders, mw...)
	e.GET("/config/active", h.GetActiveConfiguration, mw...)

	// Sessions
	e.GET("/sessions", h.ListSessions, mw...)
	e.POST("/sessions/import", h.ImportSession, mw...)
	e.GET("/sessions/:session_id", h.GetSessionState, mw...)
	e.GET("/sessions/:session_id/messages", h.GetSessionMessages, mw...)
	e.POST("/sessions/:session_id/pause", h.PauseSession, mw...)
	e.POST("/sessions/:session_id/resume", h.ResumeSession, mw...)
	e.POST("/sessions/:session_id/notes", h.InjectNote, mw...)
	e.GET("/sessions/:session_id/export", h.ExportSession, mw...)
	e.GET("/sessions/:session_id/events", h.GetSessionEvents, mw...)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
