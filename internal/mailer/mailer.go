// Package mailer delivers one-time password emails.
//
// Two transports implement Sender:
//   - HTTPSender posts to a MailerSend-compatible transactional email API
//   - SMTPSender relays through an SMTP server
//
// Neither retries. A failed send is reported to the caller, which discards
// the pending code so the user can simply ask again.
package mailer

import (
	"context"
	"errors"
	"fmt"
)

// Sender delivers an OTP code to an email address.
type Sender interface {
	Send(ctx context.Context, email, code string) error
}

// ErrNotConfigured is returned when the transport lacks credentials or a
// sender address.
var ErrNotConfigured = errors.New("mailer: not configured")

const (
	fromName = "JokeBot"
	subject  = "🔐 Your OTP Code"
)

func body(code string) string {
	return fmt.Sprintf("Your OTP is: %s", code)
}
