package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/atelier-shop/backend/internal/config"
	"github.com/atelier-shop/backend/internal/feed"
	"github.com/atelier-shop/backend/internal/httpserver"
	"github.com/atelier-shop/backend/internal/logging"
	"github.com/atelier-shop/backend/internal/repo"
	"github.com/atelier-shop/backend/internal/search"
	"github.com/atelier-shop/backend/internal/service"
	"github.com/atelier-shop/backend/internal/ws"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	e := echo.New()
	e.HideBanner = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), logger)))
			return next(c)
		}
	})

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.InitDB(initCtx)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	changeFeed := feed.New()

	store := &repo.GormRepo{
		DB:   db,
		Feed: changeFeed,
	}

	var relay *feed.Relay
	if cfg.KafkaAddress != "" {
		relay = feed.NewRelay(cfg.KafkaAddress, changeFeed, logger)
		defer relay.Close()
	}

	var searchSvc *search.Service
	if cfg.ESURL != "" {
		esClient, err := search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("es init error: %v", err)
		}
		searchSvc = &search.Service{ES: esClient, Index: search.ProductIndex}

		products, err := store.Products(context.Background())
		if err != nil {
			log.Fatalf("load products: %v", err)
		}
		if err := searchSvc.IndexProducts(context.Background(), products); err != nil {
			logger.Error("index products", "error", err)
		}
	}

	sessionSvc := &service.SessionService{
		Repo:  store,
		State: service.NewClientState(),
	}
	cartSvc := &service.CartService{Repo: store}

	hub := ws.NewHub()
	defer hub.CloseAll()

	httpserver.Register(e, &httpserver.Deps{
		SessionHandler: &httpserver.SessionHTTP{Svc: sessionSvc, VideoAppID: cfg.VideoAppID},
		CartHandler:    &httpserver.CartHTTP{Svc: cartSvc, Sessions: sessionSvc},
		ProductHandler: &httpserver.ProductHTTP{Repo: store, Search: searchSvc},
		WSHandler: &httpserver.WSHandler{
			Hub:      hub,
			Sessions: sessionSvc,
			Carts:    cartSvc,
			Repo:     store,
			Feed:     changeFeed,
			Log:      logger,
		},
		JWTSecret: cfg.JWTSecret,
	})

	go func() {
		log.Printf("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.Close()
	}

	log.Println("Server stopped")
}
