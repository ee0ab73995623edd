// Package service contains the business logic of JokeBot.
//
//	Handler / session dispatcher → Service → Repository, Mailer, Assistant
//
// Services depend on interfaces (repository.UserRepository, mailer.Sender,
// Streamer) so tests drive them with in-memory fakes and no HTTP.
//
// AuthService owns registration and login: it validates input, hashes and
// checks passwords, and issues the identity token the handler stores in a
// cookie.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/auth"
	"github.com/sakif/jokebot/internal/model"
	"github.com/sakif/jokebot/internal/repository"
)

// User-facing messages. The presentation layer shows them verbatim.
const (
	MsgInvalidCredentials = "Invalid email or password."
	MsgEmailExists        = "Email already exists."
	MsgInvalidEmail       = "Please enter a valid email address."
)

// emailPattern is a basic syntax check, not RFC 5322. It also keeps
// path separators out of the per-user conversation directory name.
var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// ValidEmail reports whether email passes the basic syntax check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// AuthService handles registration and login.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user with a freshly issued identity token so the
// handler can set the cookie in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an account and logs it in.
//
// Errors:
//   - apperror.ErrValidation for a malformed email, empty name or password
//   - apperror.ErrConflict when the email is already registered
//   - anything else is a storage or hashing failure
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)

	if !ValidEmail(email) {
		return nil, apperror.ValidationFailed("email", MsgInvalidEmail)
	}
	if name == "" {
		return nil, apperror.ValidationFailed("name", "Please enter your name.")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "Please choose a password.")
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Email: email, Name: name, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: MsgEmailExists, Field: "email"}
		}
		return nil, fmt.Errorf("service/auth: creating user %s: %w", email, err)
	}

	s.logger.Info("user registered", slog.String("email", email))

	return s.issue(user)
}

// Authenticate checks credentials and logs the user in.
//
// An unknown email and a wrong password produce the same
// apperror.ErrUnauthorized, so the response does not reveal which accounts
// exist. Storage failures are returned wrapped and are NOT reported as bad
// credentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("login failed", slog.String("email", email), slog.String("reason", "unknown email"))
			return nil, apperror.Unauthorized(MsgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.String("email", email), slog.String("reason", "wrong password"))
			return nil, apperror.Unauthorized(MsgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", email, err)
	}

	s.logger.Info("user logged in", slog.String("email", email))

	return s.issue(user)
}

// GetUser returns the account for email, used to resolve the identity
// cookie into a display name.
func (s *AuthService) GetUser(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, fmt.Errorf("service/auth: email must not be empty")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", email, err)
	}
	return user, nil
}

// SetPassword replaces the password of an existing account.
func (s *AuthService) SetPassword(ctx context.Context, email, password string) error {
	if password == "" {
		return apperror.ValidationFailed("password", "Please choose a password.")
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, email, hash); err != nil {
		return fmt.Errorf("service/auth: updating password for %s: %w", email, err)
	}

	s.logger.Info("password updated", slog.String("email", email))
	return nil
}

func (s *AuthService) hash(password string) (string, error) {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		if len(password) > 72 {
			return "", apperror.ValidationFailed("password", "Password must be at most 72 bytes.")
		}
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return hash, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.Email, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
