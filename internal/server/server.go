// Package server provides HTTP server initialization and lifecycle
// management for the RoomHaven search API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/roomhaven/roomhaven/internal/config"
	"github.com/roomhaven/roomhaven/internal/engine"
	"github.com/roomhaven/roomhaven/web/handlers"
)

// Start initializes and starts the HTTP server, shutting it down gracefully
// when ctx is cancelled. Returns the actual address being listened on
// (useful for testing with port 0).
func Start(ctx context.Context, cfg *config.Config, service *engine.SearchService) (string, error) {
	mux := http.NewServeMux()
	searchHandler := handlers.NewSearchHandler(service)

	// v2 search routes, gated by the feature flag.
	apiMux := http.NewServeMux()
	if cfg.Features.SearchV2 {
		apiMux.HandleFunc("/api/v2/search", requireGet(searchHandler.Search))
		apiMux.HandleFunc("/api/v2/search/facets", requireGet(searchHandler.Facets))
		apiMux.HandleFunc("/api/v2/listings/similar", requireGet(searchHandler.Similar))
	}

	// Health endpoint; no auth required, used by monitoring.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg.Security.APIToken))

	var handler http.Handler = mux
	if cfg.Security.RateLimitPerSecond > 0 {
		rateLimiter := handlers.NewRateLimiter(cfg.Security.RateLimitPerSecond, cfg.Security.RateLimitBurst)
		handler = handlers.RateLimitMiddleware(handler, rateLimiter)
	}
	handler = handlers.SecurityHeaders(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	return actualAddr, nil
}

// requireGet rejects non-GET methods before the handler runs.
func requireGet(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
