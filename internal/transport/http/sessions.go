package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/export"
	"github.com/xiaot623/dualchat/internal/repository"
)

const maxImportBytes = 16 << 20

// ListSessions lists the caller's sessions, newest first.
// GET /sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	sessions, err := h.service.ListSessions(ctx, OwnerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// GetSessionState returns the live state of a session.
// GET /sessions/:session_id
func (h *Handler) GetSessionState(c echo.Context) error {
	ctx := c.Request().Context()

	state, err := h.service.SessionState(ctx, OwnerID(c), c.Param("session_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// GetSessionMessages lists a session's messages, oldest first.
// GET /sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	ctx := c.Request().Context()

	messages, err := h.service.ListMessages(ctx, OwnerID(c), c.Param("session_id"))
	if err != nil {
		return h.fail(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// PauseSession stops new relays for a session.
// POST /sessions/:session_id/pause
func (h *Handler) PauseSession(c echo.Context) error {
	state, err := h.service.PauseSession(c.Request().Context(), OwnerID(c), c.Param("session_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// ResumeSession accepts relays again.
// POST /sessions/:session_id/resume
func (h *Handler) ResumeSession(c echo.Context) error {
	state, err := h.service.ResumeSession(c.Request().Context(), OwnerID(c), c.Param("session_id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// InjectNote stores a steering note.
// POST /sessions/:session_id/notes
func (h *Handler) InjectNote(c echo.Context) error {
	var req domain.NoteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.service.InjectNote(c.Request().Context(), OwnerID(c), c.Param("session_id"), req.Note)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

// ExportSession downloads a transcript.
// GET /sessions/:session_id/export?format=&filter=&metadata=&timestamps=&model_info=
func (h *Handler) ExportSession(c echo.Context) error {
	opts := export.DefaultOptions()
	if f := c.QueryParam("format"); f != "" {
		opts.Format = export.Format(strings.ToLower(f))
	}
	if f := c.QueryParam("filter"); f != "" {
		opts.Filter = export.Filter(f)
	}
	opts.IncludeMetadata = queryBool(c, "metadata", opts.IncludeMetadata)
	opts.IncludeTimestamps = queryBool(c, "timestamps", opts.IncludeTimestamps)
	opts.IncludeModelInfo = queryBool(c, "model_info", opts.IncludeModelInfo)

	file, err := h.service.ExportSession(c.Request().Context(), OwnerID(c), c.Param("session_id"), opts)
	if err != nil {
		return h.fail(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+file.Filename+`"`)
	return c.Blob(http.StatusOK, file.ContentType, file.Data)
}

// ImportSession recreates a session from a JSON export.
// POST /sessions/import
func (h *Handler) ImportSession(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes))
	if err != nil {
		return badRequest(c, "invalid request body")
	}

	session, err := h.service.ImportSession(c.Request().Context(), OwnerID(c), data)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session": session,
	})
}

// GetSessionEvents lists a session's relay accounting events.
// GET /sessions/:session_id/events?after_ts=&types=&limit=
func (h *Handler) GetSessionEvents(c echo.Context) error {
	filter := repository.EventFilter{Limit: 100}
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			filter.Limit = val
		}
	}
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			filter.AfterTs = val
		}
	}
	if t := c.QueryParam("types"); t != "" {
		for _, typ := range strings.Split(t, ",") {
			if typ = strings.TrimSpace(typ); typ != "" {
				filter.Types = append(filter.Types, typ)
			}
		}
	}

	events, err := h.service.ListRelayEvents(c.Request().Context(), OwnerID(c), c.Param("session_id"), filter)
	if err != nil {
		return h.fail(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

func queryBool(c echo.Context, name string, def bool) bool {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
