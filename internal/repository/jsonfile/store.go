// Package jsonfile stores conversations as flat JSON files, one file per
// conversation under a per-user directory:
//
//	<root>/<email>_conversations/<id>.json
//
// Each file holds a JSON array of messages. Files are replaced atomically
// on save (write to a temp file, then rename), so a crash mid-write leaves
// the previous version in place instead of a truncated array.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/model"
	"github.com/sakif/jokebot/internal/repository"
)

// compile-time check that *Store implements repository.ConversationRepository
var _ repository.ConversationRepository = (*Store)(nil)

const (
	dirSuffix   = "_conversations"
	fileExt     = ".json"
	idTimestamp = "2006-01-02_15-04-05"
	titleRunes  = 30
)

// validName guards every path segment built from request data. Ids and
// owners that could escape the data root are rejected before touching disk.
var validName = regexp.MustCompile(`^[\w.@+-]+$`)

// Store implements repository.ConversationRepository on the local filesystem.
type Store struct {
	root   string
	logger *slog.Logger

	// writers to the same file are serialised; keyed by absolute path
	locks sync.Map

	now    func() time.Time
	suffix func() int
}

// New creates a Store rooted at dir. The directory is created lazily.
func New(dir string, logger *slog.Logger) *Store {
	return &Store{
		root:   dir,
		logger: logger,
		now:    time.Now,
		suffix: func() int { return 1000 + rand.IntN(9000) },
	}
}

// NewID formats a conversation id: chat_<YYYY-MM-DD_HH-MM-SS>_<1000-9999>.
func NewID(t time.Time, suffix int) string {
	return fmt.Sprintf("chat_%s_%04d", t.Format(idTimestamp), suffix)
}

// Create makes a new, empty conversation for owner.
//
// Two calls within the same second can draw the same suffix; the second
// then truncates the first conversation. The window is 1 in 9000 per second
// per user and is accepted.
func (s *Store) Create(ctx context.Context, owner string) (*model.Conversation, error) {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: creating %s: %w", dir, err)
	}

	id := NewID(s.now(), s.suffix())
	path := filepath.Join(dir, id+fileExt)

	if err := s.write(path, []model.Message{}); err != nil {
		return nil, err
	}

	s.logger.Info("conversation created",
		slog.String("owner", owner),
		slog.String("conversation_id", id),
	)

	return &model.Conversation{ID: id, Title: placeholderTitle(id), Path: path}, nil
}

// List returns owner's conversations ordered by file name, which for
// generated ids is creation order. It never fails: an unreadable directory
// yields an empty list and unreadable files get a placeholder title.
func (s *Store) List(ctx context.Context, owner string) []model.Conversation {
	dir, err := s.ownerDir(owner)
	if err != nil {
		s.logger.Warn("listing conversations: invalid owner", slog.String("owner", owner))
		return []model.Conversation{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("listing conversations",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
		return []model.Conversation{}
	}

	// os.ReadDir returns entries sorted by file name.
	conversations := make([]model.Conversation, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if !validName.MatchString(id) {
			continue
		}
		path := filepath.Join(dir, name)

		title := placeholderTitle(id)
		if messages, err := readMessages(path); err != nil {
			s.logger.Warn("reading conversation for title",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else {
			title = deriveTitle(id, messages)
		}

		conversations = append(conversations, model.Conversation{ID: id, Title: title, Path: path})
	}

	return conversations
}

// Save overwrites the conversation file with messages and returns the
// conversation with its refreshed title.
func (s *Store) Save(ctx context.Context, owner, id string, messages []model.Message) (*model.Conversation, error) {
	path, err := s.conversationPath(owner, id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: creating %s: %w", filepath.Dir(path), err)
	}

	if messages == nil {
		messages = []model.Message{}
	}
	if err := s.write(path, messages); err != nil {
		return nil, err
	}

	return &model.Conversation{ID: id, Title: deriveTitle(id, messages), Path: path}, nil
}

// Load returns the stored messages, or an empty list when the file is
// missing, unreadable or not a JSON array of messages.
func (s *Store) Load(ctx context.Context, owner, id string) []model.Message {
	path, err := s.conversationPath(owner, id)
	if err != nil {
		s.logger.Warn("loading conversation: invalid id",
			slog.String("owner", owner),
			slog.String("conversation_id", id),
		)
		return []model.Message{}
	}

	messages, err := readMessages(path)
	if err != nil {
		s.logger.Warn("loading conversation",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return []model.Message{}
	}
	return messages
}

// DeleteAll removes every conversation file of owner. Files that vanish
// concurrently are not an error.
func (s *Store) DeleteAll(ctx context.Context, owner string) error {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("jsonfile: reading %s: %w", dir, err)
	}

	var errs []error
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		mu := s.lock(path)
		err := os.Remove(path)
		mu.Unlock()

		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			errs = append(errs, fmt.Errorf("jsonfile: removing %s: %w", path, err))
		}
	}

	s.logger.Info("conversations deleted",
		slog.String("owner", owner),
		slog.Int("count", removed),
	)

	return errors.Join(errs...)
}

func (s *Store) write(path string, messages []model.Message) error {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encoding %s: %w", path, err)
	}

	mu := s.lock(path)
	defer mu.Unlock()

	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("jsonfile: writing %s: %w", path, err)
	}
	return nil
}

// lock acquires the mutex for path and returns it locked.
func (s *Store) lock(path string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

func (s *Store) ownerDir(owner string) (string, error) {
	if !validName.MatchString(owner) || strings.Trim(owner, ".") == "" {
		return "", apperror.ValidationFailed("owner", "invalid conversation owner")
	}
	return filepath.Join(s.root, owner+dirSuffix), nil
}

func (s *Store) conversationPath(owner, id string) (string, error) {
	dir, err := s.ownerDir(owner)
	if err != nil {
		return "", err
	}
	if !validName.MatchString(id) || strings.Trim(id, ".") == "" {
		return "", apperror.ValidationFailed("conversation", "invalid conversation id")
	}
	return filepath.Join(dir, id+fileExt), nil
}

func readMessages(path string) ([]model.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// deriveTitle is the first 30 characters of the first message plus "...",
// or the placeholder when there are no messages.
func deriveTitle(id string, messages []model.Message) string {
	if len(messages) == 0 {
		return placeholderTitle(id)
	}
	runes := []rune(messages[0].Content)
	if len(runes) > titleRunes {
		runes = runes[:titleRunes]
	}
	return string(runes) + "..."
}

// placeholderTitle is "Chat - <date>", the date being the second
// underscore-separated part of the id.
func placeholderTitle(id string) string {
	parts := strings.SplitN(id, "_", 3)
	if len(parts) < 2 {
		return "Chat - " + id
	}
	return "Chat - " + parts[1]
}
