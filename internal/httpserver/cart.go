package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/atelier-shop/backend/internal/logging"
	"github.com/atelier-shop/backend/internal/service"
	"github.com/atelier-shop/backend/internal/transport"
)

type CartHTTP struct {
	Svc      *service.CartService
	Sessions *service.SessionService
}

func (h *CartHTTP) GetPersonal(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.personal.get")

	uid, err := userID(c)
	if err != nil {
		l.Error("get_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	items, err := h.Svc.PersonalItems(ctx, uid)
	if err != nil {
		l.Error("get_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "internal error"})
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CartHTTP) AddPersonal(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.personal.add")

	uid, err := userID(c)
	if err != nil {
		l.Error("add_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	in, ok := bindItem(c, l)
	if !ok {
		return nil
	}

	item, err := h.Svc.AddPersonalItem(ctx, uid, in)
	if err != nil {
		l.Error("add_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "error adding item to personal cart"})
	}

	l.Info("item added to personal cart", "item_id", item.ItemID, "quantity", item.Quantity)
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHTTP) UpdatePersonal(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.personal.update")

	uid, err := userID(c)
	if err != nil {
		l.Error("update_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	itemID := c.Param("item_id")
	var req transport.UpdateQuantityRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Message: "invalid body"})
	}

	item, removed, err := h.Svc.UpdatePersonalQuantity(ctx, uid, itemID, req.Delta)
	if err != nil {
		return cartError(c, l, "update_cart_error", err)
	}
	if removed {
		return c.JSON(http.StatusOK, transport.RemovedResponse{ItemID: itemID, Removed: true})
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CartHTTP) RemovePersonal(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.personal.remove")

	uid, err := userID(c)
	if err != nil {
		l.Error("remove_cart_error", "status", 401, "error", err)
		return c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
	}

	itemID := c.Param("item_id")
	if err := h.Svc.RemovePersonalItem(ctx, uid, itemID); err != nil {
		l.Error("remove_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "error removing item from cart"})
	}
	return c.JSON(http.StatusOK, transport.RemovedResponse{ItemID: itemID, Removed: true})
}

func (h *CartHTTP) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.session.get")

	sid, ok := h.activeSession(c, l)
	if !ok {
		return nil
	}

	items, err := h.Svc.SessionItems(ctx, sid)
	if err != nil {
		l.Error("get_session_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "internal error"})
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CartHTTP) AddSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.session.add")

	sid, ok := h.activeSession(c, l)
	if !ok {
		return nil
	}

	in, ok := bindItem(c, l)
	if !ok {
		return nil
	}

	item, err := h.Svc.AddSessionItem(ctx, sid, in)
	if err != nil {
		l.Error("add_session_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "error adding item to shared cart"})
	}

	l.Info("item added to session cart", "item_id", item.ItemID, "quantity", item.Quantity)
	return c.JSON(http.StatusCreated, item)
}

func (h *CartHTTP) UpdateSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.session.update")

	sid, ok := h.activeSession(c, l)
	if !ok {
		return nil
	}

	itemID := c.Param("item_id")
	var req transport.UpdateQuantityRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_session_cart_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Message: "invalid body"})
	}

	item, removed, err := h.Svc.UpdateSessionQuantity(ctx, sid, itemID, req.Delta)
	if err != nil {
		return cartError(c, l, "update_session_cart_error", err)
	}
	if removed {
		return c.JSON(http.StatusOK, transport.RemovedResponse{ItemID: itemID, Removed: true})
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CartHTTP) RemoveSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.session.remove")

	sid, ok := h.activeSession(c, l)
	if !ok {
		return nil
	}

	itemID := c.Param("item_id")
	if err := h.Svc.RemoveSessionItem(ctx, sid, itemID); err != nil {
		l.Error("remove_session_cart_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "error removing item from session cart"})
	}
	return c.JSON(http.StatusOK, transport.RemovedResponse{ItemID: itemID, Removed: true})
}

// activeSession resolves the caller's session scope or writes the error
// response itself.
func (h *CartHTTP) activeSession(c echo.Context, l *slog.Logger) (uuid.UUID, bool) {
	uid, err := userID(c)
	if err != nil {
		l.Error("session_scope_error", "status", 401, "error", err)
		_ = c.JSON(http.StatusUnauthorized, transport.ErrorResponse{Message: "not authenticated"})
		return uuid.Nil, false
	}

	session, ok := h.Sessions.Current(uid)
	if !ok {
		l.Warn("session_scope_error", "status", 404)
		_ = c.JSON(http.StatusNotFound, transport.ErrorResponse{Message: "no active session"})
		return uuid.Nil, false
	}
	return session.ID, true
}

func bindItem(c echo.Context, l *slog.Logger) (service.ItemInput, bool) {
	var req transport.AddItemRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_item_error", "status", 400, "error", err)
		_ = c.JSON(http.StatusBadRequest, transport.ErrorResponse{Message: "invalid body"})
		return service.ItemInput{}, false
	}
	if req.ItemID == "" {
		l.Warn("add_item_error", "status", 400)
		_ = c.JSON(http.StatusBadRequest, transport.ErrorResponse{Message: "item_id required"})
		return service.ItemInput{}, false
	}
	return service.ItemInput{
		ItemID: req.ItemID,
		Name:   req.Name,
		Price:  req.Price,
		Image:  req.Image,
	}, true
}

func cartError(c echo.Context, l *slog.Logger, tag string, err error) error {
	if errors.Is(err, service.ErrItemNotFound) {
		l.Warn(tag, "status", 404, "error", err)
		return c.JSON(http.StatusNotFound, transport.ErrorResponse{Message: "item not found"})
	}
	l.Error(tag, "status", 500, "error", err)
	return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "error updating item quantity"})
}
