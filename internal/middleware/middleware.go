package middleware

import (
	"github.com/roomnotify/roomnotify/internal/logger"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	log *logger.Logger
}

// New creates a new Middleware instance
func New(log *logger.Logger) *Middleware {
	return &Middleware{
		log: log,
	}
}
