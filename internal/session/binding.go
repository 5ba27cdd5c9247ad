package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ashureev/support-chat/internal/domain"
	"github.com/ashureev/support-chat/internal/store"
)

// Binding is the writable transcript a session is bound to.
type Binding interface {
	// Load returns the current transcript.
	Load(ctx context.Context) (string, error)
	// Save replaces the transcript.
	Save(ctx context.Context, transcript string) error
	// Key identifies the underlying transcript for write serialization.
	Key() string
	// AccountID is the owning account, or 0 for anonymous sessions.
	AccountID() int64
	// ConversationID is the persisted conversation, or 0 for anonymous sessions.
	ConversationID() int64
}

type conversationBinding struct {
	repo           store.Repository
	accountID      int64
	conversationID int64
}

func (b *conversationBinding) Load(ctx context.Context) (string, error) {
	conv, err := b.repo.GetConversation(ctx, b.conversationID)
	if err != nil {
		return "", err
	}
	if conv == nil {
		return "", domain.StoreFailure("load conversation", fmt.Errorf("conversation %d not found", b.conversationID))
	}
	return conv.Transcript, nil
}

func (b *conversationBinding) Save(ctx context.Context, transcript string) error {
	return b.repo.UpdateTranscript(ctx, b.conversationID, transcript)
}

func (b *conversationBinding) Key() string {
	return "conversation:" + strconv.FormatInt(b.conversationID, 10)
}

func (b *conversationBinding) AccountID() int64      { return b.accountID }
func (b *conversationBinding) ConversationID() int64 { return b.conversationID }

type anonymousBinding struct {
	mgr   *Manager
	token string
}

func (b *anonymousBinding) Load(_ context.Context) (string, error) {
	s, ok := b.mgr.Get(b.token)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return s.Transcript, nil
}

func (b *anonymousBinding) Save(_ context.Context, transcript string) error {
	_, err := b.mgr.Update(b.token, func(s *domain.Session) {
		s.Transcript = transcript
	})
	return err
}

func (b *anonymousBinding) Key() string {
	return "session:" + b.token
}

func (b *anonymousBinding) AccountID() int64      { return 0 }
func (b *anonymousBinding) ConversationID() int64 { return 0 }
