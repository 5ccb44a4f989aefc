package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Deps struct {
	SessionHandler *SessionHTTP
	CartHandler    *CartHTTP
	ProductHandler *ProductHTTP
	WSHandler      *WSHandler
	JWTSecret      []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.GET("/products", d.ProductHandler.List)
	e.GET("/products/search", d.ProductHandler.SearchProducts)
	e.GET("/products/:id", d.ProductHandler.Get)

	authMW := RequireAuth(d.JWTSecret)

	session := e.Group("/session", authMW)
	session.POST("", d.SessionHandler.Create)
	session.GET("", d.SessionHandler.Current)
	session.DELETE("", d.SessionHandler.Disconnect)
	session.POST("/join", d.SessionHandler.Join)
	session.GET("/participants", d.SessionHandler.Participants)
	session.GET("/call", d.SessionHandler.Call)

	cart := e.Group("/cart", authMW)
	cart.GET("", d.CartHandler.GetPersonal)
	cart.POST("", d.CartHandler.AddPersonal)
	cart.PATCH("/items/:item_id", d.CartHandler.UpdatePersonal)
	cart.DELETE("/items/:item_id", d.CartHandler.RemovePersonal)

	sessionCart := e.Group("/session/cart", authMW)
	sessionCart.GET("", d.CartHandler.GetSession)
	sessionCart.POST("", d.CartHandler.AddSession)
	sessionCart.PATCH("/items/:item_id", d.CartHandler.UpdateSession)
	sessionCart.DELETE("/items/:item_id", d.CartHandler.RemoveSession)

	e.GET("/ws", d.WSHandler.Handle, authMW)
}
