// Package store persists conversations and their message history.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/aiact-go/internal/models"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// SessionRegistry records conversation metadata.
type SessionRegistry interface {
	// Create stores a new conversation with a generated id.
	Create(ctx context.Context, name string) (models.Conversation, error)
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (models.Conversation, error)
	// List returns all conversations, oldest first.
	List(ctx context.Context) ([]models.Conversation, error)
	// Rename sets the name and bumps UpdatedAt. It reports how many
	// conversations were changed, 0 for an unknown id.
	Rename(ctx context.Context, id, name string) (int, error)
	// Delete removes the conversation and its whole history.
	Delete(ctx context.Context, id string) error
}

// ConversationStore holds the append-only message history per conversation.
type ConversationStore interface {
	// History returns the messages oldest first. An unknown or empty
	// conversation yields an empty slice.
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	// Append adds messages atomically in the given order. The conversation
	// must exist.
	Append(ctx context.Context, conversationID string, msgs ...models.Message) error
	// DeleteHistory removes all messages but keeps the conversation.
	DeleteHistory(ctx context.Context, conversationID string) error
}

// Store is a complete persistence backend.
type Store interface {
	SessionRegistry
	ConversationStore
	Close() error
}
