// Package http provides the HTTP server of the relay.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/dualchat/internal/auth"
	"github.com/xiaot623/dualchat/internal/config"
	"github.com/xiaot623/dualchat/internal/service"
)

// Server is the public HTTP server.
type Server struct {
	echo *echo.Echo
}

// Option customizes the server.
type Option func(*serverOptions)

type serverOptions struct {
	logger    *slog.Logger
	metrics   http.Handler
	websocket echo.HandlerFunc
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithMetrics serves h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(o *serverOptions) { o.metrics = h }
}

// WithWebSocket serves h at GET /ws. The handler authenticates on its own.
func WithWebSocket(h echo.HandlerFunc) Option {
	return func(o *serverOptions) { o.websocket = h }
}

// NewServer creates the HTTP server with every route registered.
func NewServer(svc *service.Service, cfg *config.Config, tokens *auth.Tokens, opts ...Option) *Server {
	o := &serverOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig(o.logger)))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	protected := []echo.MiddlewareFunc{BearerAuth(tokens)}
	if cfg.RateLimitRPS > 0 {
		protected = append(protected, RateLimit(cfg.RateLimitRPS))
	}

	h := NewHandler(svc, o.logger)
	h.RegisterRoutes(e, protected...)

	if o.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(o.metrics))
	}
	if o.websocket != nil {
		e.GET("/ws", o.websocket)
	}

	return &Server{echo: e}
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLoggerConfig(logger *slog.Logger) middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if owner := OwnerID(c); owner != "" {
				attrs = append(attrs, slog.String("owner_id", owner))
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}
}
