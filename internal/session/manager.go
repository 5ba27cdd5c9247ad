// Package session maps session cookies to authenticated conversations or
// anonymous in-memory transcripts.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/support-chat/internal/domain"
	"github.com/ashureev/support-chat/internal/shared"
	"github.com/ashureev/support-chat/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Options configures a Manager.
type Options struct {
	TTL        time.Duration
	BcryptCost int
}

// Manager owns the server-side session records. Sessions live in memory;
// accounts and conversations live in the repository.
type Manager struct {
	repo       store.Repository
	ttl        time.Duration
	bcryptCost int
	bindLocks  *shared.KeyedMutex
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewManager creates a session manager backed by repo.
func NewManager(repo store.Repository, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Manager{
		repo:       repo,
		ttl:        opts.TTL,
		bcryptCost: opts.BcryptCost,
		bindLocks:  shared.NewKeyedMutex(),
		now:        time.Now,
		sessions:   make(map[string]*domain.Session),
	}
}

// Start creates a fresh anonymous session.
func (m *Manager) Start() domain.Session {
	now := m.now()
	s := &domain.Session{
		Token:      uuid.NewString(),
		CreatedAt:  now,
		LastSeenAt: now,
	}

	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()

	return *s
}

// Get returns a copy of the session and marks it as seen. Expired sessions
// are dropped and reported as missing.
func (m *Manager) Get(token string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return domain.Session{}, false
	}
	now := m.now()
	if s.Expired(now, m.ttl) {
		delete(m.sessions, token)
		return domain.Session{}, false
	}
	s.LastSeenAt = now
	return *s, true
}

// Update applies fn to the session under the manager lock.
func (m *Manager) Update(token string, fn func(*domain.Session)) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	fn(s)
	s.LastSeenAt = m.now()
	return *s, nil
}

// Destroy removes the session. Destroying an unknown token is not an error.
func (m *Manager) Destroy(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// Len returns the number of live session records.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupExpired drops sessions idle for longer than the TTL.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for token, s := range m.sessions {
		if s.Expired(now, m.ttl) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// Signup registers a new account and authenticates the session as it.
func (m *Manager) Signup(ctx context.Context, token, name, email, password string) (int64, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return 0, domain.ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := m.repo.CreateAccount(ctx, name, email, string(hash))
	if err != nil {
		return 0, err
	}

	if err := m.authenticate(token, id); err != nil {
		return 0, err
	}
	slog.Info("Account created", "user_id", id)
	return id, nil
}

// Login authenticates the session with an email/password pair.
func (m *Manager) Login(ctx context.Context, token, email, password string) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return 0, domain.ErrMissingFields
	}

	account, err := m.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return 0, domain.ErrInvalidCredentials
		}
		return 0, fmt.Errorf("compare password: %w", err)
	}

	if err := m.authenticate(token, account.ID); err != nil {
		return 0, err
	}
	return account.ID, nil
}

// Logout destroys the session.
func (m *Manager) Logout(token string) error {
	return m.Destroy(token)
}

// authenticate binds accountID to the session. Switching accounts drops the
// previous conversation binding so a conversation never changes owner.
func (m *Manager) authenticate(token string, accountID int64) error {
	_, err := m.Update(token, func(s *domain.Session) {
		if s.AccountID != accountID {
			s.ConversationID = 0
			s.Transcript = ""
			s.Initialized = false
		}
		s.AccountID = accountID
	})
	return err
}

// EnsureConversation makes sure the session is bound: authenticated sessions
// get a persisted conversation, anonymous ones an empty in-session transcript.
func (m *Manager) EnsureConversation(ctx context.Context, token string) (domain.Session, error) {
	unlock := m.bindLocks.Lock(token)
	defer unlock()

	s, ok := m.Get(token)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	if !s.IsAuthenticated() {
		if s.Initialized {
			return s, nil
		}
		return m.Update(token, func(s *domain.Session) {
			if !s.Initialized && !s.IsAuthenticated() {
				s.Transcript = ""
				s.Initialized = true
			}
		})
	}

	if s.HasConversation() {
		return s, nil
	}

	convID, err := m.repo.CreateConversation(ctx, s.AccountID)
	if err != nil {
		return s, err
	}
	accountID := s.AccountID
	s, err = m.Update(token, func(s *domain.Session) {
		if s.AccountID == accountID && !s.HasConversation() {
			s.ConversationID = convID
		}
	})
	if err != nil {
		return s, err
	}
	slog.Info("Conversation created", "user_id", accountID, "conversation_id", s.ConversationID)
	return s, nil
}

// Bind resolves the writable transcript binding for the session.
func (m *Manager) Bind(ctx context.Context, token string) (Binding, error) {
	s, err := m.EnsureConversation(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.IsAuthenticated() {
		if !s.HasConversation() {
			return nil, domain.StoreFailure("bind conversation", errors.New("session lost its conversation binding"))
		}
		return &conversationBinding{repo: m.repo, accountID: s.AccountID, conversationID: s.ConversationID}, nil
	}
	return &anonymousBinding{mgr: m, token: token}, nil
}

// BoundBinding returns the session's binding without creating anything. It
// reports false for unknown sessions and for authenticated sessions that have
// no conversation yet.
func (m *Manager) BoundBinding(token string) (Binding, bool) {
	s, ok := m.Get(token)
	if !ok {
		return nil, false
	}
	if s.IsAuthenticated() {
		if !s.HasConversation() {
			return nil, false
		}
		return &conversationBinding{repo: m.repo, accountID: s.AccountID, conversationID: s.ConversationID}, true
	}
	return &anonymousBinding{mgr: m, token: token}, true
}
