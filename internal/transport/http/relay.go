package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dualchat/internal/domain"
)

// StartSession activates a new configuration and opens a session bound to it.
// POST /start-session
func (h *Handler) StartSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	resp, err := h.service.StartSession(ctx, OwnerID(c), req)
	if err != nil {
		status := statusFor(err)
		if domain.ErrorCode(err) == domain.CodePersistenceError {
			status = http.StatusBadRequest
		}
		return h.failWithStatus(c, err, status)
	}

	return c.JSON(http.StatusOK, resp)
}

// AIChat relays one conversation to the slot's model.
// POST /ai-chat
func (h *Handler) AIChat(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.service.Relay(ctx, OwnerID(c), domain.RelayRequest{
		SessionID: req.SessionID,
		ModelType: req.ModelType,
		Messages:  req.Messages,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, domain.ChatResponse{
		Response: result.Content,
		Model:    result.ModelUsed,
	})
}

// ListProviders returns the provider catalog.
// GET /providers
func (h *Handler) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"providers": h.service.ListProviders(),
	})
}

// GetActiveConfiguration returns the caller's active configuration with the key masked.
// GET /config/active
func (h *Handler) GetActiveConfiguration(c echo.Context) error {
	ctx := c.Request().Context()

	cfg, err := h.service.GetActiveConfiguration(ctx, OwnerID(c))
	if err != nil {
		status := statusFor(err)
		if domain.ErrorCode(err) == domain.CodeNoActiveConfiguration {
			status = http.StatusNotFound
		}
		return h.failWithStatus(c, err, status)
	}
	return c.JSON(http.StatusOK, cfg)
}
