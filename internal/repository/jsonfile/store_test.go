package jsonfile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/model"
)

const owner = "ada@example.com"

var idPattern = regexp.MustCompile(`^chat_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_\d{4}$`)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fixedClock makes ids deterministic; each call to suffix returns the next value.
func fixedClock(s *Store, at time.Time, suffixes ...int) {
	s.now = func() time.Time { return at }
	i := 0
	s.suffix = func() int {
		v := suffixes[i%len(suffixes)]
		i++
		return v
	}
}

func msg(role model.Role, content string) model.Message {
	return model.Message{Role: role, Content: content, Timestamp: "2024-01-02 03:04:05"}
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate(t *testing.T) {
	s := newTestStore(t)
	fixedClock(s, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), 1234)

	conv, err := s.Create(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, "chat_2024-01-02_03-04-05_1234", conv.ID)
	assert.Equal(t, "Chat - 2024-01-02", conv.Title)
	assert.Equal(t, filepath.Join(s.root, owner+"_conversations", conv.ID+".json"), conv.Path)

	data, err := os.ReadFile(conv.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestCreate_DefaultIDFormat(t *testing.T) {
	s := newTestStore(t)

	conv, err := s.Create(context.Background(), owner)
	require.NoError(t, err)

	assert.Regexp(t, idPattern, conv.ID)
}

func TestCreate_RejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)

	for _, bad := range []string{"", "..", "../etc", "a/b"} {
		_, err := s.Create(context.Background(), bad)
		assert.ErrorIs(t, err, apperror.ErrValidation, "owner %q", bad)
	}
}

// =========================================================================
// SAVE / LOAD TESTS
// =========================================================================

func TestSaveLoad(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.Create(context.Background(), owner)
	require.NoError(t, err)

	messages := []model.Message{
		msg(model.RoleUser, "Tell me a joke about penguins please"),
		msg(model.RoleAssistant, "Why don't penguins fly? They're not tall enough to be pilots!"),
	}

	saved, err := s.Save(context.Background(), owner, conv.ID, messages)
	require.NoError(t, err)
	assert.Equal(t, "Tell me a joke about penguins ...", saved.Title)

	got := s.Load(context.Background(), owner, conv.ID)
	assert.Equal(t, messages, got)
}

func TestSave_FileFormat(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.Create(context.Background(), owner)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), owner, conv.ID, []model.Message{msg(model.RoleUser, "hi")})
	require.NoError(t, err)

	data, err := os.ReadFile(conv.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"role":"user","content":"hi","timestamp":"2024-01-02 03:04:05"}]`, string(data))
}

func TestSave_NilMessagesWritesEmptyArray(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(context.Background(), owner, "chat_2024-01-02_03-04-05_1234", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(saved.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestLoad_Degrades(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.Create(context.Background(), owner)
	require.NoError(t, err)

	t.Run("missing file", func(t *testing.T) {
		got := s.Load(context.Background(), owner, "chat_1999-01-01_00-00-00_1000")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("corrupt file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(conv.Path, []byte("{not json"), 0o644))
		got := s.Load(context.Background(), owner, conv.ID)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("object instead of array", func(t *testing.T) {
		require.NoError(t, os.WriteFile(conv.Path, []byte(`{"role":"user"}`), 0o644))
		assert.Empty(t, s.Load(context.Background(), owner, conv.ID))
	})

	t.Run("traversal id", func(t *testing.T) {
		assert.Empty(t, s.Load(context.Background(), owner, "../../secrets"))
	})
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestList(t *testing.T) {
	s := newTestStore(t)
	fixedClock(s, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), 2000, 1000, 3000)

	second, err := s.Create(context.Background(), owner) // _2000
	require.NoError(t, err)
	first, err := s.Create(context.Background(), owner) // _1000
	require.NoError(t, err)
	third, err := s.Create(context.Background(), owner) // _3000
	require.NoError(t, err)

	_, err = s.Save(context.Background(), owner, first.ID, []model.Message{msg(model.RoleUser, "short")})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(third.Path, []byte("garbage"), 0o644))

	got := s.List(context.Background(), owner)
	require.Len(t, got, 3)

	assert.Equal(t, first.ID, got[0].ID, "sorted by file name")
	assert.Equal(t, "short...", got[0].Title)
	assert.Equal(t, second.ID, got[1].ID)
	assert.Equal(t, "Chat - 2024-01-02", got[1].Title, "empty conversation gets placeholder")
	assert.Equal(t, third.ID, got[2].ID)
	assert.Equal(t, "Chat - 2024-01-02", got[2].Title, "corrupt conversation gets placeholder")
}

func TestList_MissingDirectory(t *testing.T) {
	s := newTestStore(t)

	got := s.List(context.Background(), "nobody@example.com")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestList_IgnoresOtherFiles(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.Create(context.Background(), owner)
	require.NoError(t, err)

	dir := filepath.Dir(conv.Path)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	got := s.List(context.Background(), owner)
	require.Len(t, got, 1)
	assert.Equal(t, conv.ID, got[0].ID)
}

func TestDeriveTitle_CountsCharactersNotBytes(t *testing.T) {
	content := strings.Repeat("é", 40)
	got := deriveTitle("chat_2024-01-02_03-04-05_1234", []model.Message{msg(model.RoleUser, content)})

	assert.Equal(t, strings.Repeat("é", 30)+"...", got)
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	fixedClock(s, time.Now(), 1111, 2222)

	_, err := s.Create(context.Background(), owner)
	require.NoError(t, err)
	_, err = s.Create(context.Background(), owner)
	require.NoError(t, err)
	other, err := s.Create(context.Background(), "grace@example.com")
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(context.Background(), owner))

	assert.Empty(t, s.List(context.Background(), owner))
	assert.Len(t, s.List(context.Background(), "grace@example.com"), 1)
	_, err = os.Stat(other.Path)
	assert.NoError(t, err, "other users' files are untouched")
}

func TestDeleteAll_NothingToDelete(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteAll(context.Background(), owner)
	assert.NoError(t, err)
}

func TestDeleteAll_InvalidOwner(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteAll(context.Background(), "../x")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
