// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/support-chat/internal/domain"
)

// Repository defines the interface for persisting accounts and conversations.
type Repository interface {
	// CreateAccount inserts a new account and returns its id.
	// Returns domain.ErrDuplicateEmail if the email is already registered.
	CreateAccount(ctx context.Context, name, email, passwordHash string) (int64, error)

	// GetAccount retrieves an account by id. Returns nil, nil if not found.
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)

	// GetAccountByEmail retrieves an account by exact email. Returns nil, nil if not found.
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)

	// CreateConversation inserts an empty conversation owned by accountID.
	CreateConversation(ctx context.Context, accountID int64) (int64, error)

	// GetConversation retrieves a conversation by id. Returns nil, nil if not found.
	GetConversation(ctx context.Context, id int64) (*domain.Conversation, error)

	// UpdateTranscript replaces the transcript of a conversation.
	UpdateTranscript(ctx context.Context, id int64, transcript string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
