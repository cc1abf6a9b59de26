// Package database defines the conversation store port (interface).
package database

import (
	"context"

	"github.com/wirechat/wirechat/internal/domain/chat"
)

// Store is the port interface for conversation persistence. Conversations
// are stored with their full message logs; list results include the logs so
// a stored conversation can be restored from a single call.
type Store interface {
	// ListConversations returns all stored conversations with messages,
	// most recently updated first.
	ListConversations(ctx context.Context) ([]chat.Conversation, error)

	// GetConversation returns one conversation with its message log.
	// Returns domain.ErrNotFound when no conversation has the id.
	GetConversation(ctx context.Context, id int64) (*chat.Conversation, error)

	// SaveConversation upserts a conversation and its messages, assigning
	// ids to the conversation and to any message that lacks one. The
	// returned conversation carries every assigned id.
	SaveConversation(ctx context.Context, conv chat.Conversation) (*chat.Conversation, error)

	// UpdateMessageContent replaces the content of a stored message.
	UpdateMessageContent(ctx context.Context, messageID int64, content string) error

	// ForkConversation cuts a stored conversation after the message with
	// the given sequence and installs a fresh assistant placeholder in
	// place of everything removed. Returns the branched conversation.
	ForkConversation(ctx context.Context, id int64, sequence int) (*chat.Conversation, error)

	// GetSystemPrompt returns the stored system prompt, empty when unset.
	GetSystemPrompt(ctx context.Context) (string, error)

	// SetSystemPrompt persists the system prompt.
	SetSystemPrompt(ctx context.Context, content string) error
}
