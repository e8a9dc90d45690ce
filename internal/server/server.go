package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"roundtrip-router/internal/config"
	"roundtrip-router/internal/database"
	"roundtrip-router/internal/geocoding"
	"roundtrip-router/internal/handlers"
	"roundtrip-router/internal/oracle"
	"roundtrip-router/internal/postgres"
	"roundtrip-router/internal/routing"
	"roundtrip-router/internal/sqlite"
)

// Server wraps the HTTP server and all dependencies
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	db         database.DataStore
	geocoder   geocoding.Geocoder
	listener   net.Listener
	addr       string
}

// New creates and initializes a new server (does not start it)
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	opts := cfg.SearchOptions()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search defaults: %w", err)
	}

	log.Printf("Initializing data store...")
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data store: %w", err)
	}

	geocoder := geocoding.NewNominatimGeocoder(geocoding.Config{BaseURL: cfg.GeocoderURL})
	optimizer := routing.NewOptimizer(oracle.NewOSRMClient(cfg.OracleConfig()))
	handler := handlers.NewHandler(db, geocoder, optimizer, opts)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(loggingMiddleware)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: localOrigin,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{echo.HeaderContentType},
	}))
	handler.Register(e)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		db:         db,
		geocoder:   geocoder,
		addr:       cfg.ServerAddr,
	}, nil
}

// openStore picks PostgreSQL when DATABASE_URL is set and SQLite otherwise
func openStore(ctx context.Context, cfg *config.Config) (database.DataStore, error) {
	if cfg.DatabaseURL != "" {
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	path := cfg.DBPath
	if path == "" {
		var err error
		path, err = database.GetDefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	store, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Printf("Starting server on %s", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.geocoder.Close(); err != nil {
		log.Printf("Failed to close geocoder: %v", err)
	}
	return s.db.Close()
}

func loggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		if err := next(c); err != nil {
			c.Error(err)
		}

		req := c.Request()
		log.Printf("[HTTP] %s %s %d %v", req.Method, req.URL.Path, c.Response().Status, time.Since(start))
		return nil
	}
}

// Only local origins may call the API from a browser
func localOrigin(origin string) (bool, error) {
	return strings.HasPrefix(origin, "http://localhost:") ||
		strings.HasPrefix(origin, "http://127.0.0.1:"), nil
}
