package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		ttl     time.Duration
		wantErr bool
	}{
		{name: "short secret", secret: "short", ttl: time.Hour, wantErr: true},
		{name: "zero ttl", secret: "this-is-16-chars", ttl: 0, wantErr: true},
		{name: "valid", secret: "this-is-16-chars", ttl: time.Hour, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenServiceWithTTL(tt.secret, tt.ttl)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTokenServiceWithTTL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts := newTestTokenService(t)
	if ts.TTL() != DefaultTokenTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultTokenTTL)
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("ada@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("Generate() token has %d dots, want 2", got)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("ada@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "ada@example.com" {
		t.Errorf("Validate() = %q, want %q", got, "ada@example.com")
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	expired, err := ts.GenerateWithDuration("ada@example.com", -time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	valid, _ := ts.Generate("ada@example.com")
	foreign, _ := other.Generate("ada@example.com")
	noSubject, _ := ts.Generate("")

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "tampered signature", token: valid[:len(valid)-3] + "xxx"},
		{name: "signed with another secret", token: foreign},
		{name: "empty subject", token: noSubject},
		{name: "empty string", token: ""},
		{name: "garbage", token: "not.a.jwt.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Validate(tt.token); err == nil {
				t.Errorf("Validate(%s) error = nil, want error", tt.name)
			}
		})
	}
}
