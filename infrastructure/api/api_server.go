// Package api provides the HTTP server that hosts the health endpoints
// and the streamable MCP transport.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"

	"github.com/schemavault/schemavault/application/service"
	apimiddleware "github.com/schemavault/schemavault/infrastructure/api/middleware"
	mcpinternal "github.com/schemavault/schemavault/internal/mcp"
)

// APIServer exposes the schema catalog over HTTP: health endpoints plus
// the streamable MCP transport.
type APIServer struct {
	catalog    *service.Catalog
	version    string
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given catalog.
func NewAPIServer(catalog *service.Catalog, version string, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &APIServer{
		catalog: catalog,
		version: version,
		logger:  logger,
	}
	a.router = a.buildRouter()
	return a
}

// buildRouter assembles the full route tree. Timeout middleware is
// deliberately absent at the top level: the MCP endpoint streams responses
// and manages session state via response headers, which is incompatible
// with chi's Timeout wrapping the ResponseWriter. Routes that can be
// bounded get a per-group timeout instead.
func (a *APIServer) buildRouter() chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(apimiddleware.Logging(a.logger))

	router.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(10 * time.Second))
		r.Get("/", a.handleRoot)
		r.Get("/health", a.handleHealth)
	})

	// CORS allows browser-based MCP clients through.
	mcpSrv := mcpinternal.NewServer(a.catalog, a.version, a.logger)
	httpHandler := server.NewStreamableHTTPServer(mcpSrv.MCPServer())
	router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Mcp-Session-Id"},
			MaxAge:         300,
		}))
		r.Mount("/mcp", httpHandler)
	})

	return router
}

func (a *APIServer) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "schemavault",
		"version": a.version,
	})
}

func (a *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tables": a.catalog.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until it is shut down.
func (a *APIServer) ListenAndServe(addr string) error {
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	a.logger.Info("starting HTTP server", slog.String("addr", addr))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.httpServer == nil {
		return nil
	}
	a.logger.Info("shutting down HTTP server")
	return a.httpServer.Shutdown(ctx)
}

// Handler returns the routes as an http.Handler for use with custom
// servers and tests.
func (a *APIServer) Handler() http.Handler {
	return a.router
}
