package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/model"
)

// newTestDB returns a fresh in-memory database, closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, email, name string) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: "$2a$04$fakehashfakehashfakehashfakehashfakehashfakehashfake",
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:        "ada@example.com",
		Name:         "Ada",
		PasswordHash: "hash",
	}

	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
	if !user.CreatedAt.Equal(user.UpdatedAt) {
		t.Errorf("CreatedAt = %v, UpdatedAt = %v, want equal on create", user.CreatedAt, user.UpdatedAt)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "ada@example.com", "Ada")

	err := db.Create(context.Background(), &model.User{
		Email:        "ada@example.com",
		Name:         "Someone Else",
		PasswordHash: "other",
	})

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() duplicate error = %v, want ErrConflict", err)
	}

	// The original row must be untouched.
	got, err := db.GetByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.Name != "Ada" {
		t.Errorf("Name = %q, want %q", got.Name, "Ada")
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "grace@example.com", "Grace")

	got, err := db.GetByEmail(context.Background(), "grace@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}

	if got.Email != created.Email {
		t.Errorf("Email = %q, want %q", got.Email, created.Email)
	}
	if got.Name != "Grace" {
		t.Errorf("Name = %q, want %q", got.Name, "Grace")
	}
	if got.PasswordHash != created.PasswordHash {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, created.PasswordHash)
	}
}

func TestGetByEmailNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdatePassword(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "ada@example.com", "Ada")

	if err := db.UpdatePassword(context.Background(), "ada@example.com", "new-hash"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, err := db.GetByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "new-hash")
	}
}

func TestUpdatePasswordUnknownEmail(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdatePassword(context.Background(), "ghost@example.com", "hash")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdatePassword() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// MIGRATION TESTS
// =========================================================================

func TestNewIsIdempotentOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")

	first, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New() first open error = %v", err)
	}
	createTestUser(t, first, "ada@example.com", "Ada")
	first.Close()

	second, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New() second open error = %v", err)
	}
	defer second.Close()

	if _, err := second.GetByEmail(context.Background(), "ada@example.com"); err != nil {
		t.Errorf("GetByEmail() after reopen error = %v", err)
	}
}

func TestNewConcurrentOpens(t *testing.T) {
	const n = 8
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := New(context.Background(), ":memory:")
			if err != nil {
				errs <- err
				return
			}
			defer db.Close()
			user := &model.User{
				Email:        fmt.Sprintf("user%d@example.com", i),
				Name:         "User",
				PasswordHash: "$2a$04$fakehashfakehashfakehashfakehashfakehashfakehashfake",
			}
			errs <- db.Create(context.Background(), user)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("New() or Create() in parallel error = %v", err)
		}
	}
}
