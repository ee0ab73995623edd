package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/mailer"
)

const (
	MsgOTPSendFailed    = "Failed to send OTP. Check email configuration."
	MsgIncorrectOTP     = "Incorrect OTP."
	MsgResetStoreFailed = "Failed to update password. Please try again."
)

// PasswordSetter replaces an account's password. *AuthService implements it.
type PasswordSetter interface {
	SetPassword(ctx context.Context, email, password string) error
}

// ResetService runs the email-OTP password reset.
//
// Per email there are two states: idle (no entry in the OTPStore) and
// awaiting verification (an entry exists). RequestReset moves to awaiting
// only when the email was actually sent; Verify moves back to idle only
// when the new password was stored.
//
// There is no expiry and no attempt limit on codes.
type ResetService struct {
	otps     *OTPStore
	mail     mailer.Sender
	accounts PasswordSetter
	logger   *slog.Logger

	newCode func() (string, error)
}

func NewResetService(otps *OTPStore, mail mailer.Sender, accounts PasswordSetter, logger *slog.Logger) *ResetService {
	return &ResetService{
		otps:     otps,
		mail:     mail,
		accounts: accounts,
		logger:   logger,
		newCode:  randomCode,
	}
}

// RequestReset issues a code for email and mails it.
//
// Errors:
//   - apperror.ErrValidation for a malformed email
//   - apperror.ErrUnavailable when the mail could not be sent; no code
//     stays pending in that case
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return apperror.ValidationFailed("email", MsgInvalidEmail)
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("service/reset: generating code: %w", err)
	}

	s.otps.Put(email, code)

	if err := s.mail.Send(ctx, email, code); err != nil {
		s.otps.Delete(email, code)
		s.logger.Warn("OTP not sent", slog.String("email", email), slog.String("error", err.Error()))
		return apperror.Unavailable(MsgOTPSendFailed, err)
	}

	s.logger.Info("OTP issued", slog.String("email", email))
	return nil
}

// Verify sets newPassword if code is the pending code for email.
//
// A wrong code returns apperror.ErrValidation and changes nothing. A
// storage failure keeps the code pending so the user can retry.
func (s *ResetService) Verify(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)

	if !s.otps.Match(email, code) {
		s.logger.Info("OTP mismatch", slog.String("email", email))
		return apperror.ValidationFailed("otp", MsgIncorrectOTP)
	}

	if err := s.accounts.SetPassword(ctx, email, newPassword); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return err
		}
		s.logger.Error("storing reset password", slog.String("email", email), slog.String("error", err.Error()))
		return fmt.Errorf("service/reset: %w", err)
	}

	s.otps.Delete(email, code)
	s.logger.Info("password reset", slog.String("email", email))
	return nil
}

// Pending reports whether email has a code awaiting verification.
func (s *ResetService) Pending(email string) bool {
	return s.otps.Pending(strings.TrimSpace(email))
}

// randomCode returns a uniformly random code in [100000, 999999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
