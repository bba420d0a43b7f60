package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/xiaot623/dualchat/internal/auth"
	"github.com/xiaot623/dualchat/internal/domain"
)

const ownerKey = "owner_id"

// OwnerID returns the authenticated caller, or "" when there is none.
func OwnerID(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}

// BearerAuth resolves "Authorization: Bearer <token>" to an owner id.
func BearerAuth(tokens *auth.Tokens) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			owner, ok := tokens.Owner(key)
			if ok {
				c.Set(ownerKey, owner)
			}
			return ok, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return c.JSON(http.StatusUnauthorized, domain.ErrorResponse{
				Error: (&domain.UnauthenticatedError{}).Error(),
				Code:  domain.CodeUnauthenticated,
			})
		},
	})
}

// RateLimit allows rps requests per second per caller, with bursts of the
// same size. Callers are identified by owner id, falling back to the client IP.
func RateLimit(rps int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:  rate.Limit(rps),
		Burst: rps,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if owner := OwnerID(c); owner != "" {
				return "owner:" + owner, nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, domain.ErrorResponse{Error: "unable to identify caller", Code: domain.CodeInvalidRequest})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, domain.ErrorResponse{Error: "rate limit exceeded", Code: "rate_limited"})
		},
	})
}
