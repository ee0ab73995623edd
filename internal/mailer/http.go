package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultEndpoint is the MailerSend email API.
const DefaultEndpoint = "https://api.mailersend.com/v1/email"

// HTTPConfig configures HTTPSender.
type HTTPConfig struct {
	APIKey   string
	Sender   string // from address
	Endpoint string // defaults to DefaultEndpoint
	Timeout  time.Duration
}

// HTTPSender sends OTP emails through a transactional email HTTP API.
//
// The API key travels as a bearer token. The oauth2 client injects the
// Authorization header on every request, the same way the provider SDKs
// do, without us building the header by hand.
type HTTPSender struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSender creates an HTTPSender. base is the transport used under the
// bearer-token layer; nil means http.DefaultClient.
func NewHTTPSender(cfg HTTPConfig, base *http.Client, logger *slog.Logger) *HTTPSender {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   "Bearer",
	}))
	client.Timeout = cfg.Timeout

	return &HTTPSender{cfg: cfg, client: client, logger: logger}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type emailRequest struct {
	From    address   `json:"from"`
	To      []address `json:"to"`
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
}

// Send posts the OTP email. Only 202 Accepted counts as success.
func (s *HTTPSender) Send(ctx context.Context, email, code string) error {
	if s.cfg.APIKey == "" || s.cfg.Sender == "" {
		s.logger.Error("mail API key or sender address not set")
		return ErrNotConfigured
	}

	payload, err := json.Marshal(emailRequest{
		From:    address{Email: s.cfg.Sender, Name: fromName},
		To:      []address{{Email: email}},
		Subject: subject,
		Text:    body(code),
	})
	if err != nil {
		return fmt.Errorf("mailer: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("mailer: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("sending OTP email",
			slog.String("to", email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("mailer: posting to %s: %w", s.cfg.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		s.logger.Info("OTP email sent", slog.String("to", email))
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	attrs := []any{
		slog.String("to", email),
		slog.Int("status", resp.StatusCode),
		slog.String("body", string(raw)),
	}
	var detail map[string]any
	if err := json.Unmarshal(raw, &detail); err == nil {
		attrs = append(attrs, slog.Any("detail", detail))
	}
	s.logger.Error("OTP email rejected", attrs...)

	return fmt.Errorf("mailer: unexpected status %d", resp.StatusCode)
}
