package repository

import (
	"context"

	"github.com/sakif/jokebot/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// ConversationRepository stores chat history per owner (the user's email).
//
// List and Load never fail: unreadable data degrades to placeholder titles
// and empty message lists.
type ConversationRepository interface {
	Create(ctx context.Context, owner string) (*model.Conversation, error)
	List(ctx context.Context, owner string) []model.Conversation
	Save(ctx context.Context, owner, id string, messages []model.Message) (*model.Conversation, error)
	Load(ctx context.Context, owner, id string) []model.Message
	DeleteAll(ctx context.Context, owner string) error
}
