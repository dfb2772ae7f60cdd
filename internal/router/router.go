package router

import (
	"net/http"

	"github.com/roomnotify/roomnotify/internal/handler"
	"github.com/roomnotify/roomnotify/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no auth required)
	mux.HandleFunc("GET /health", h.Health)

	// The webhook trigger posts to the root; there is no path routing.
	// Authentication happens inside the pipeline because the response
	// shape folds it into the configuration readiness report.
	mux.HandleFunc("POST /", h.Webhook)

	// Apply middleware stack
	var handler http.Handler = mux

	// Request logging
	handler = mw.Logger(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
