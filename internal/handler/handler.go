package handler

import (
	"encoding/json"
	"net/http"

	"github.com/roomnotify/roomnotify/internal/config"
	"github.com/roomnotify/roomnotify/internal/logger"
	"github.com/roomnotify/roomnotify/internal/service"
)

// Handler holds all HTTP handlers
type Handler struct {
	cfg       *config.Config
	log       *logger.Logger
	notifySvc *service.NotifyService
}

// New creates a new Handler instance
func New(cfg *config.Config, log *logger.Logger, notifySvc *service.NotifyService) *Handler {
	return &Handler{
		cfg:       cfg,
		log:       log,
		notifySvc: notifySvc,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
