package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/roomnotify/roomnotify/internal/config"
	"github.com/roomnotify/roomnotify/internal/logger"
)

// Dialer abstracts net.Dialer to simplify testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPOption configures the behaviour of the SMTP sender.
type SMTPOption func(*SMTPSender)

// WithTLSConfig overrides the TLS configuration used for the session.
func WithTLSConfig(cfg *tls.Config) SMTPOption {
	return func(s *SMTPSender) {
		s.tlsConfig = cfg
	}
}

// WithDialer swaps the network dialer used to establish connections.
func WithDialer(d Dialer) SMTPOption {
	return func(s *SMTPSender) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithHelloName customises the EHLO identity presented to the server.
func WithHelloName(name string) SMTPOption {
	return func(s *SMTPSender) {
		if strings.TrimSpace(name) != "" {
			s.helloName = strings.TrimSpace(name)
		}
	}
}

// WithClock replaces the clock used for the Date header.
func WithClock(now func() time.Time) SMTPOption {
	return func(s *SMTPSender) {
		if now != nil {
			s.now = now
		}
	}
}

// SMTPSender implements Sender over a direct SMTP session. Each Send
// opens its own encrypted session, submits exactly one message and
// closes the connection on every exit path.
type SMTPSender struct {
	log       *logger.Logger
	dialer    Dialer
	tlsConfig *tls.Config
	helloName string
	now       func() time.Time
}

// NewSMTPSender constructs a Sender backed by an SMTP server.
func NewSMTPSender(log *logger.Logger, opts ...SMTPOption) *SMTPSender {
	if log == nil {
		log = logger.Discard()
	}
	s := &SMTPSender{
		log:       log.WithComponent("smtp"),
		dialer:    &net.Dialer{Timeout: 30 * time.Second},
		helloName: "localhost",
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Send delivers the message over one SMTP session. The session is
// encrypted either implicitly (port 465) or via STARTTLS; a server that
// offers neither is refused.
func (s *SMTPSender) Send(ctx context.Context, cfg config.Delivery, msg Message) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Stage: "connect", Err: err}
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	s.log.Debug().Str("addr", addr).Str("to", msg.To).Msg("opening SMTP session")

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DeliveryError{Stage: "connect", Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Closing the connection unblocks the session exchange when the
	// request is aborted mid-flight. The watchdog holds the raw
	// connection because the implicit-TLS wrap below reassigns conn.
	raw := conn
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = raw.Close()
		case <-done:
		}
	}()
	defer close(done)

	tlsCfg := s.sessionTLSConfig(cfg.Host)
	implicitTLS := cfg.Port == 465
	if implicitTLS {
		conn = tls.Client(conn, tlsCfg)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return &DeliveryError{Stage: "connect", Err: err}
	}
	defer client.Close()

	if err := client.Hello(s.helloName); err != nil {
		return &DeliveryError{Stage: "hello", Err: err}
	}

	if !implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return &DeliveryError{Stage: "starttls", Err: errors.New("server does not support STARTTLS")}
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			return &DeliveryError{Stage: "starttls", Err: err}
		}
	}

	if cfg.User != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
				return &DeliveryError{Stage: "auth", Err: err}
			}
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return &DeliveryError{Stage: "mail from", Err: err}
	}
	if err := client.Rcpt(msg.To); err != nil {
		return &DeliveryError{Stage: "rcpt to", Err: err}
	}
	if msg.CC != "" {
		if err := client.Rcpt(msg.CC); err != nil {
			return &DeliveryError{Stage: "rcpt cc", Err: err}
		}
	}

	writer, err := client.Data()
	if err != nil {
		return &DeliveryError{Stage: "data", Err: err}
	}
	if _, err := writer.Write(s.buildMessage(msg)); err != nil {
		_ = writer.Close()
		return &DeliveryError{Stage: "data write", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &DeliveryError{Stage: "data close", Err: err}
	}

	if err := client.Quit(); err != nil && !errors.Is(err, io.EOF) {
		return &DeliveryError{Stage: "quit", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return &DeliveryError{Stage: "send", Err: err}
	}
	return nil
}

func (s *SMTPSender) buildMessage(msg Message) []byte {
	var buf bytes.Buffer
	writeHeader := func(key, value string) {
		if value == "" {
			return
		}
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(sanitizeHeaderValue(value))
		buf.WriteString("\r\n")
	}

	writeHeader("From", msg.From)
	writeHeader("To", msg.To)
	writeHeader("Cc", msg.CC)
	writeHeader("Subject", encodeHeaderWord(msg.Subject))
	writeHeader("Date", s.now().UTC().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/plain; charset=UTF-8")
	buf.WriteString("\r\n")
	buf.WriteString(normalizeBody(msg.Body))

	return buf.Bytes()
}

func (s *SMTPSender) sessionTLSConfig(host string) *tls.Config {
	if s.tlsConfig != nil {
		cfg := s.tlsConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		return cfg
	}
	return &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
}

func normalizeBody(body string) string {
	if body == "" {
		return ""
	}
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.ReplaceAll(normalized, "\n", "\r\n")
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}

// encodeHeaderWord RFC 2047-encodes a header value when it carries
// non-ASCII text; ASCII values pass through unchanged. The rendered
// subjects are French, so this is the common case.
func encodeHeaderWord(value string) string {
	return mime.QEncoding.Encode("utf-8", sanitizeHeaderValue(value))
}
