package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/atelier-shop/backend/internal/logging"
	"github.com/atelier-shop/backend/internal/repo"
	"github.com/atelier-shop/backend/internal/search"
	"github.com/atelier-shop/backend/internal/transport"
)

type ProductHTTP struct {
	Repo   *repo.GormRepo
	Search *search.Service
}

func (h *ProductHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.list")

	products, err := h.Repo.Products(ctx)
	if err != nil {
		l.Error("list_products_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "internal error"})
	}
	return c.JSON(http.StatusOK, products)
}

func (h *ProductHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get")

	p, err := h.Repo.ProductByID(ctx, c.Param("id"))
	if err != nil {
		l.Warn("get_product_error", "status", 404, "error", err)
		return c.JSON(http.StatusNotFound, transport.ErrorResponse{Message: "product not found"})
	}
	return c.JSON(http.StatusOK, p)
}

func (h *ProductHTTP) SearchProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.search")

	if h.Search == nil {
		return c.JSON(http.StatusServiceUnavailable, transport.ErrorResponse{Message: "search is not configured"})
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Message: "q required"})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size < 1 || size > 100 {
		size = 20
	}

	total, products, err := h.Search.Search(ctx, query, (page-1)*size, size)
	if err != nil {
		l.Error("search_products_error", "status", 500, "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Message: "internal error"})
	}

	return c.JSON(http.StatusOK, transport.SearchResponse{Total: total, Items: products})
}
