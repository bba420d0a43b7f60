package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dualchat/internal/domain"
)

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch domain.ErrorCode(err) {
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeNoActiveConfiguration, domain.CodeUnsupportedProvider, domain.CodeInvalidRequest:
		return http.StatusBadRequest
	case domain.CodeSessionNotFound:
		return http.StatusNotFound
	case domain.CodeSessionPaused:
		return http.StatusConflict
	case domain.CodePolicyDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error", "code"} with the status statusFor picks.
func (h *Handler) fail(c echo.Context, err error) error {
	return h.failWithStatus(c, err, statusFor(err))
}

func (h *Handler) failWithStatus(c echo.Context, err error, status int) error {
	code := domain.ErrorCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Path(), "code", code, "error", err)
	}
	return c.JSON(status, domain.ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: msg, Code: domain.CodeInvalidRequest})
}
