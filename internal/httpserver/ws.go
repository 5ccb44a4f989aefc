package httpserver

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/logging"
	"github.com/atelier-shop/backend/internal/repo"
	"github.com/atelier-shop/backend/internal/service"
	"github.com/atelier-shop/backend/internal/ws"
)

type WSHandler struct {
	Hub      *ws.Hub
	Sessions *service.SessionService
	Carts    *service.CartService
	Repo     *repo.GormRepo
	Feed     *feed.Feed
	Log      *slog.Logger

	upgrader websocket.Upgrader
}

// Handle upgrades the connection and runs a watcher for the client until it
// disconnects. The watcher's feed subscriptions are released on every exit
// path via the request context.
func (h *WSHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "ws")

	uid, err := userID(c)
	if err != nil {
		l.Error("ws_error", "status", 401, "error", err)
		return echo.ErrUnauthorized
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		l.Warn("ws_upgrade_failed", "error", err)
		return nil
	}

	client := ws.NewClient(uid, conn)
	h.Hub.Add(client)
	defer h.Hub.Remove(client)

	watcher := &ws.Watcher{
		UserID:   uid,
		Sessions: h.Sessions,
		Carts:    h.Carts,
		Repo:     h.Repo,
		Feed:     h.Feed,
		Sink:     client,
		Log:      h.Log.With("component", "watcher", "user_id", uid),
	}

	watchCtx, cancel := watcherContext(ctx, client)
	defer cancel()
	go watcher.Run(watchCtx)

	l.Info("ws connected", "user_id", uid)
	client.ReadPump()
	l.Info("ws disconnected", "user_id", uid)
	return nil
}

// watcherContext ends the watcher when either the request context or the
// client connection goes away.
func watcherContext(parent context.Context, client *ws.Client) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-client.Done():
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}
