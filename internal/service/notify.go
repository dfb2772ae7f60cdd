package service

import (
	"context"

	"github.com/roomnotify/roomnotify/internal/auth"
	"github.com/roomnotify/roomnotify/internal/config"
	"github.com/roomnotify/roomnotify/internal/email"
	"github.com/roomnotify/roomnotify/internal/logger"
	"github.com/roomnotify/roomnotify/internal/model"
)

// ConfigError reports an invocation whose delivery configuration is
// incomplete or whose source check failed. The report deliberately
// merges both causes so callers cannot probe which check failed; they
// stay separate inputs internally.
type ConfigError struct {
	Report config.Report
}

func (e *ConfigError) Error() string { return "email configuration incomplete" }

// NotifyService runs the notification dispatch pipeline: readiness
// check, payload parsing, content templating, mail delivery. One run
// per invocation, no state shared across runs.
type NotifyService struct {
	sender email.Sender
	log    *logger.Logger
}

// NewNotifyService creates a new NotifyService
func NewNotifyService(sender email.Sender, log *logger.Logger) *NotifyService {
	if log == nil {
		log = logger.Discard()
	}
	return &NotifyService{
		sender: sender,
		log:    log.WithComponent("notify"),
	}
}

// Dispatch runs the pipeline once for a raw webhook body. sourceHeader
// is the trusted-source marker from the request. Stage failures come
// back typed: *ConfigError, *model.ParseError or *email.DeliveryError.
func (s *NotifyService) Dispatch(ctx context.Context, cfg config.Delivery, sourceHeader string, body []byte) error {
	authenticated := auth.VerifySource(sourceHeader, cfg.AuthSecret)

	report := cfg.Report(authenticated)
	if report.Incomplete() {
		s.log.Error().
			Strs("missing", report.Missing()).
			Msg("email configuration incomplete")
		return &ConfigError{Report: report}
	}

	ev, err := model.ParseBookingEvent(body)
	if err != nil {
		return err
	}

	subject, content, ok := email.RenderBooking(*ev)
	if !ok {
		// No template registered: the notification still goes out, empty.
		// TODO: decide whether an unknown event type should be a 400 instead.
		s.log.Warn().
			Str("type", string(ev.Type)).
			Msg("no template for event type, sending empty notification")
	}

	msg := email.Message{
		From:    cfg.User,
		To:      cfg.Recipient,
		CC:      ev.Record.CreatedByEmail,
		Subject: subject,
		Body:    content,
	}

	s.log.Info().
		Str("type", string(ev.Type)).
		Str("to", msg.To).
		Str("subject", subject).
		Msg("sending notification email")

	if err := s.sender.Send(ctx, cfg, msg); err != nil {
		s.log.Error().Err(err).Str("type", string(ev.Type)).Msg("notification delivery failed")
		return err
	}

	s.log.Info().Str("type", string(ev.Type)).Msg("notification email sent")
	return nil
}
