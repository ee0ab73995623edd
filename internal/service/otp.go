package service

import (
	"crypto/subtle"
	"sync"
)

// OTPStore holds pending password-reset codes in memory, one per email.
// A new code for the same email replaces the old one. Codes never expire
// and are lost on restart.
type OTPStore struct {
	mu    sync.Mutex
	codes map[string]string
}

func NewOTPStore() *OTPStore {
	return &OTPStore{codes: make(map[string]string)}
}

// Put stores code as the pending code for email.
func (s *OTPStore) Put(email, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = code
}

// Match reports whether a code is pending for email and equals code.
func (s *OTPStore) Match(email, code string) bool {
	s.mu.Lock()
	pending, ok := s.codes[email]
	s.mu.Unlock()

	return ok && subtle.ConstantTimeCompare([]byte(pending), []byte(code)) == 1
}

// Pending reports whether email is awaiting verification.
func (s *OTPStore) Pending(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[email]
	return ok
}

// Delete removes the pending entry for email if it still holds code.
// A code issued by a later request is left alone.
func (s *OTPStore) Delete(email, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes[email] == code {
		delete(s.codes, email)
	}
}
