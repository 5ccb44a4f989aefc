package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atelier-shop/backend/internal/logging"
	"github.com/atelier-shop/backend/internal/service"
	"github.com/atelier-shop/backend/internal/transport"
)

type SessionHTTP struct {
	Svc        *service.SessionService
	VideoAppID string
}

func (h *SessionHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session.create")

	uid, err := userID(c)
	if err != nil {
		l.Error("create_session_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	session, err := h.Svc.CreateOrResumeSession(ctx, uid)
	if err != nil {
		return sessionError(c, l, "create_session_error", err)
	}

	l.Info("session ready", "session_id", session.ID, "code", session.Code)
	return c.JSON(http.StatusOK, session)
}

func (h *SessionHTTP) Join(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session.join")

	uid, err := userID(c)
	if err != nil {
		l.Error("join_session_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	var req transport.JoinSessionRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("join_session_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Message: "invalid body"})
	}
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Message: "code required"})
	}

	session, err := h.Svc.JoinSession(ctx, uid, req.Code)
	if err != nil {
		return sessionError(c, l, "join_session_error", err)
	}

	l.Info("session joined", "session_id", session.ID)
	return c.JSON(http.StatusOK, session)
}

func (h *SessionHTTP) Disconnect(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session.disconnect")

	uid, err := userID(c)
	if err != nil {
		l.Error("disconnect_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	if err := h.Svc.Disconnect(ctx, uid); err != nil {
		return sessionError(c, l, "disconnect_error", err)
	}

	l.Info("disconnected from session")
	return c.JSON(http.StatusOK, map[string]string{"message": "disconnected"})
}

// Current restores session state on page load.
func (h *SessionHTTP) Current(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session.current")

	uid, err := userID(c)
	if err != nil {
		l.Error("current_session_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	session, err := h.Svc.ResumeOnLoad(ctx, uid)
	if err != nil {
		l.Error("current_session_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "internal error"})
	}
	if session == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *SessionHTTP) Participants(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session.participants")

	uid, err := userID(c)
	if err != nil {
		l.Error("participants_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	participants, err := h.Svc.Participants(ctx, uid)
	if err != nil {
		return sessionError(c, l, "participants_error", err)
	}
	return c.JSON(http.StatusOK, participants)
}

// Call provisions the video call for the active session: channel name is the
// session code, the call itself runs over the external video transport.
func (h *SessionHTTP) Call(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session.call")

	uid, err := userID(c)
	if err != nil {
		l.Error("call_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	session, ok := h.Svc.Current(uid)
	if !ok {
		return c.JSON(http.StatusNotFound, transport.ErrorResponse{Message: "no active session"})
	}

	return c.JSON(http.StatusOK, transport.CallInfo{
		AppID:   h.VideoAppID,
		Channel: session.Code,
	})
}

func sessionError(c echo.Context, l *slog.Logger, tag string, err error) error {
	switch {
	case errors.Is(err, service.ErrAlreadyInSession):
		l.Warn(tag, "status", 409, "error", err)
		return c.JSON(http.StatusConflict, transport.ErrorResponse{Message: "you are already in a session"})
	case errors.Is(err, service.ErrSessionNotFound):
		l.Warn(tag, "status", 404, "error", err)
		return c.JSON(http.StatusNotFound, transport.ErrorResponse{Message: "session not found"})
	case errors.Is(err, service.ErrSelfJoinForbidden):
		l.Warn(tag, "status", 403, "error", err)
		return c.JSON(http.StatusForbidden, transport.ErrorResponse{Message: "you cannot join your own session"})
	case errors.Is(err, service.ErrSessionFull):
		l.Warn(tag, "status", 409, "error", err)
		return c.JSON(http.StatusConflict, transport.ErrorResponse{Message: "session is full"})
	case errors.Is(err, service.ErrSessionCreationFailed),
		errors.Is(err, service.ErrSessionJoinFailed),
		errors.Is(err, service.ErrSessionTeardownFailed):
		l.Error(tag, "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "internal error"})
	default:
		l.Error(tag, "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "internal error"})
	}
}
