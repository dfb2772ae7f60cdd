package email

import (
	"context"
	"fmt"

	"github.com/roomnotify/roomnotify/internal/config"
)

// Sender is the interface that all email providers must implement.
// This abstraction allows swapping providers (SMTP, Gmail, etc.)
// without changing the dispatch pipeline.
type Sender interface {
	// Send delivers one message using the delivery settings of the
	// current invocation. The transport session, if any, is opened and
	// torn down within this call.
	Send(ctx context.Context, cfg config.Delivery, msg Message) error
}

// Message represents an email message to be sent. It is constructed per
// request and discarded after the send attempt.
type Message struct {
	From    string // sender address
	To      string // recipient address
	CC      string // optional carbon-copy address
	Subject string // message subject
	Body    string // plain-text body
}

// DeliveryError wraps a transport-level failure. Connect, session-auth
// and send-rejection failures all surface through it; Stage names the
// exchange step that failed and Err carries the server diagnostic.
type DeliveryError struct {
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email delivery: %s: %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
