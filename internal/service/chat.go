package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jokebot/internal/apperror"
	"github.com/sakif/jokebot/internal/assistant"
	"github.com/sakif/jokebot/internal/model"
	"github.com/sakif/jokebot/internal/repository"
)

const MsgSaveFailed = "Failed to save conversation. Please try again."

// Streamer produces a streamed assistant reply. *assistant.Client implements it.
type Streamer interface {
	StreamReply(ctx context.Context, message, displayName string) iter.Seq[assistant.Fragment]
}

// ChatService manages a user's conversations and runs chat turns.
type ChatService struct {
	conversations repository.ConversationRepository
	assistant     Streamer
	logger        *slog.Logger
	now           func() time.Time
}

func NewChatService(conversations repository.ConversationRepository, assistant Streamer, logger *slog.Logger) *ChatService {
	return &ChatService{
		conversations: conversations,
		assistant:     assistant,
		logger:        logger,
		now:           time.Now,
	}
}

// Start creates a new, empty conversation for user.
func (s *ChatService) Start(ctx context.Context, user *model.User) (*model.Conversation, error) {
	conv, err := s.conversations.Create(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/chat: creating conversation: %w", err)
	}
	return conv, nil
}

// Conversations lists user's conversations, oldest first.
func (s *ChatService) Conversations(ctx context.Context, user *model.User) []model.Conversation {
	return s.conversations.List(ctx, user.Email)
}

// Open returns the messages of a conversation; empty when it is missing
// or unreadable.
func (s *ChatService) Open(ctx context.Context, user *model.User, conversationID string) []model.Message {
	return s.conversations.Load(ctx, user.Email, conversationID)
}

// DeleteAll removes every conversation of user.
func (s *ChatService) DeleteAll(ctx context.Context, user *model.User) error {
	if err := s.conversations.DeleteAll(ctx, user.Email); err != nil {
		return fmt.Errorf("service/chat: deleting conversations: %w", err)
	}
	return nil
}

// Reply runs one chat turn.
//
//  1. Append the user's message to the stored conversation
//  2. Stream the assistant reply, passing each fragment to emit as it arrives
//  3. Append the accumulated reply, unless it is empty
//  4. Save the whole conversation
//
// The returned messages are the conversation after the turn. They are
// returned even when saving fails, together with the error, so the caller
// can still show what was said.
func (s *ChatService) Reply(
	ctx context.Context,
	user *model.User,
	conversationID string,
	text string,
	emit func(assistant.Fragment),
) ([]model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("message", "Message must not be empty.")
	}

	turn := xid.New().String()
	logger := s.logger.With(
		slog.String("turn", turn),
		slog.String("conversation_id", conversationID),
	)

	messages := s.conversations.Load(ctx, user.Email, conversationID)
	messages = append(messages, model.Message{
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: s.now().Format(model.TimestampLayout),
	})

	var reply strings.Builder
	fragments := 0
	for f := range s.assistant.StreamReply(ctx, text, user.Name) {
		reply.WriteString(f.Text)
		fragments++
		if emit != nil {
			emit(f)
		}
	}

	if reply.Len() > 0 {
		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   reply.String(),
			Timestamp: s.now().Format(model.TimestampLayout),
		})
		logger.Info("assistant replied", slog.Int("fragments", fragments), slog.Int("chars", reply.Len()))
	} else {
		logger.Warn("assistant reply was empty")
	}

	// The turn is saved even if the client went away mid-stream.
	if _, err := s.conversations.Save(context.WithoutCancel(ctx), user.Email, conversationID, messages); err != nil {
		logger.Error("saving conversation", slog.String("error", err.Error()))
		return messages, &apperror.AppError{Err: fmt.Errorf("service/chat: %w", err), Message: MsgSaveFailed}
	}

	return messages, nil
}
