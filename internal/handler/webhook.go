package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/roomnotify/roomnotify/internal/auth"
	"github.com/roomnotify/roomnotify/internal/config"
	"github.com/roomnotify/roomnotify/internal/service"
)

// maxBodyBytes bounds the webhook payload; booking rows are small.
const maxBodyBytes = 1 << 20

// webhookResponse is the envelope for every webhook outcome.
type webhookResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Missing *config.Report `json:"missing,omitempty"`
	Stack   string         `json:"stack,omitempty"`
}

// Webhook handles POST /, the booking change-event endpoint. It runs
// the dispatch pipeline once and maps the outcome to a status code:
// 500 when configuration or the source check is incomplete, 400 when
// the payload cannot be parsed or delivery fails, 200 on a sent
// notification.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	// Delivery settings are snapshotted per invocation and threaded
	// through the pipeline; nothing below reads the environment ad hoc.
	delivery := h.cfg.Delivery()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeFailure(w, fmt.Errorf("read request body: %w", err))
		return
	}
	defer r.Body.Close()

	err = h.notifySvc.Dispatch(r.Context(), delivery, r.Header.Get(auth.SourceHeader), body)
	if err != nil {
		var cfgErr *service.ConfigError
		if errors.As(err, &cfgErr) {
			writeJSON(w, http.StatusInternalServerError, webhookResponse{
				Success: false,
				Error:   "Email configuration incomplete",
				Missing: &cfgErr.Report,
			})
			return
		}
		// Parse and delivery failures share the client-visible 400.
		h.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Success: true,
		Message: "Notification email sent",
	})
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("notification dispatch failed")
	resp := webhookResponse{
		Success: false,
		Error:   err.Error(),
	}
	// Diagnostic detail is opt-in; this endpoint faces an internal
	// trigger but the default stays quiet.
	if h.cfg.ExposeErrors() {
		resp.Stack = string(debug.Stack())
	}
	writeJSON(w, http.StatusBadRequest, resp)
}
