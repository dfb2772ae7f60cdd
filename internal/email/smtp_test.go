package email_test

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"mime"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roomnotify/roomnotify/internal/config"
	"github.com/roomnotify/roomnotify/internal/email"
	"github.com/roomnotify/roomnotify/internal/logger"
)

// fakeSMTPServer is a minimal in-process SMTP server supporting EHLO,
// STARTTLS, AUTH, MAIL, RCPT, DATA and QUIT, recording what it saw.
type fakeSMTPServer struct {
	ln       net.Listener
	tlsCfg   *tls.Config
	starttls bool

	mu    sync.Mutex
	rcpts []string
	data  []string
	auth  bool
}

func newFakeSMTPServer(t *testing.T, starttls bool) *fakeSMTPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &fakeSMTPServer{ln: ln, starttls: starttls}
	if starttls {
		s.tlsCfg = &tls.Config{Certificates: []tls.Certificate{selfSignedCert(t)}}
	}

	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTPServer) addr() (host string, port int) {
	tcp := s.ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", tcp.Port
}

func (s *fakeSMTPServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	s.handle(conn)
}

func (s *fakeSMTPServer) handle(conn net.Conn) {
	br := bufio.NewReader(conn)
	write := func(line string) {
		conn.Write([]byte(line + "\r\n"))
	}

	write("220 fake ESMTP")
	secured := false

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))

		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			if s.starttls && !secured {
				write("250-fake")
				write("250 STARTTLS")
			} else {
				write("250-fake")
				write("250 AUTH PLAIN")
			}
		case cmd == "STARTTLS":
			write("220 2.0.0 ready to start TLS")
			tlsConn := tls.Server(conn, s.tlsCfg)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			br = bufio.NewReader(conn)
			secured = true
		case strings.HasPrefix(cmd, "AUTH"):
			s.mu.Lock()
			s.auth = true
			s.mu.Unlock()
			write("235 2.7.0 accepted")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			write("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, strings.TrimSpace(line))
			s.mu.Unlock()
			write("250 ok")
		case cmd == "DATA":
			write("354 go ahead")
			for {
				dl, err := br.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(dl, "\r\n") == "." {
					break
				}
				s.mu.Lock()
				s.data = append(s.data, strings.TrimRight(dl, "\r\n"))
				s.mu.Unlock()
			}
			write("250 2.0.0 queued")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("250 ok")
		}
	}
}

func (s *fakeSMTPServer) message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.data, "\n")
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func testDelivery(host string, port int) config.Delivery {
	return config.Delivery{
		Host:      host,
		Port:      port,
		User:      "notifier@example.com",
		Pass:      "secret",
		Recipient: "manager@example.com",
	}
}

func TestSMTPSenderSend(t *testing.T) {
	srv := newFakeSMTPServer(t, true)
	host, port := srv.addr()

	sender := email.NewSMTPSender(
		logger.Discard(),
		email.WithTLSConfig(&tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}),
		email.WithClock(func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }),
	)

	msg := email.Message{
		From:    "notifier@example.com",
		To:      "manager@example.com",
		CC:      "marie@example.com",
		Subject: "Nouvelle demande de réservation: Réunion",
		Body:    "Ligne un\nLigne deux",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sender.Send(ctx, testDelivery(host, port), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	srv.mu.Lock()
	rcpts := append([]string(nil), srv.rcpts...)
	authed := srv.auth
	srv.mu.Unlock()

	if !authed {
		t.Error("server saw no AUTH")
	}
	if len(rcpts) != 2 {
		t.Fatalf("rcpts = %v, want recipient and cc", rcpts)
	}
	if !strings.Contains(rcpts[0], "manager@example.com") || !strings.Contains(rcpts[1], "marie@example.com") {
		t.Errorf("rcpts = %v", rcpts)
	}

	got := srv.message()
	for _, want := range []string{
		"From: notifier@example.com",
		"To: manager@example.com",
		"Cc: marie@example.com",
		// Accented subjects go out RFC 2047-encoded.
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Content-Type: text/plain; charset=UTF-8",
		"Ligne un",
		"Ligne deux",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("message missing %q\n%s", want, got)
		}
	}
	if strings.Contains(got, "Subject: Nouvelle") {
		t.Errorf("non-ASCII subject emitted raw\n%s", got)
	}
}

func TestSMTPSenderNoCC(t *testing.T) {
	srv := newFakeSMTPServer(t, true)
	host, port := srv.addr()

	sender := email.NewSMTPSender(
		logger.Discard(),
		email.WithTLSConfig(&tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}),
	)

	msg := email.Message{
		From:    "notifier@example.com",
		To:      "manager@example.com",
		Subject: "Test",
		Body:    "corps",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sender.Send(ctx, testDelivery(host, port), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	srv.mu.Lock()
	rcpts := append([]string(nil), srv.rcpts...)
	srv.mu.Unlock()
	if len(rcpts) != 1 {
		t.Errorf("rcpts = %v, want single recipient", rcpts)
	}
	if strings.Contains(srv.message(), "Cc:") {
		t.Errorf("empty CC should not produce a Cc header\n%s", srv.message())
	}
	if !strings.Contains(srv.message(), "Subject: Test") {
		t.Errorf("ASCII subject should pass through unencoded\n%s", srv.message())
	}
}

// A server without STARTTLS must be refused: the session is required to
// be encrypted.
func TestSMTPSenderRefusesCleartext(t *testing.T) {
	srv := newFakeSMTPServer(t, false)
	host, port := srv.addr()

	sender := email.NewSMTPSender(logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := sender.Send(ctx, testDelivery(host, port), email.Message{
		From: "a@example.com", To: "b@example.com", Subject: "x", Body: "y",
	})
	if err == nil {
		t.Fatal("expected error for cleartext-only server")
	}
	var dErr *email.DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("error %T is not *email.DeliveryError", err)
	}
	if dErr.Stage != "starttls" {
		t.Errorf("stage = %q, want starttls", dErr.Stage)
	}
}

type failingDialer struct{ err error }

func (d failingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, d.err
}

func TestSMTPSenderConnectFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	sender := email.NewSMTPSender(logger.Discard(), email.WithDialer(failingDialer{err: dialErr}))

	err := sender.Send(context.Background(), testDelivery("smtp.example.com", 587), email.Message{
		From: "a@example.com", To: "b@example.com",
	})

	var dErr *email.DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("error %T is not *email.DeliveryError", err)
	}
	if dErr.Stage != "connect" {
		t.Errorf("stage = %q, want connect", dErr.Stage)
	}
	if !errors.Is(err, dialErr) {
		t.Error("underlying dial error not wrapped")
	}
}

// Cancelling the context mid-session must abort the exchange by
// closing the connection; the watchdog holds the raw connection so it
// never races with the TLS wrap on the main path.
func TestSMTPSenderCancelledMidSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	// Accept the connection but never send a greeting, so the client
	// blocks inside the session until the watchdog closes the socket.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1)
		conn.Read(buf)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	sender := email.NewSMTPSender(logger.Discard())
	tcp := ln.Addr().(*net.TCPAddr)
	err = sender.Send(ctx, testDelivery("127.0.0.1", tcp.Port), email.Message{
		From: "a@example.com", To: "b@example.com", Subject: "x", Body: "y",
	})
	if err == nil {
		t.Fatal("expected error for cancelled session")
	}
	var dErr *email.DeliveryError
	if !errors.As(err, &dErr) {
		t.Fatalf("error %T is not *email.DeliveryError", err)
	}
}

func TestSMTPSenderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := email.NewSMTPSender(logger.Discard())
	err := sender.Send(ctx, testDelivery("smtp.example.com", 587), email.Message{
		From: "a@example.com", To: "b@example.com",
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}
