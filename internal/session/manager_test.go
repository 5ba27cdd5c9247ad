package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/support-chat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	mu            sync.Mutex
	accounts      map[int64]*domain.Account
	conversations map[int64]*domain.Conversation
	nextAccount   int64
	nextConv      int64
	createConvErr error
	createCalls   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:      make(map[int64]*domain.Account),
		conversations: make(map[int64]*domain.Conversation),
	}
}

func (f *fakeRepo) CreateAccount(_ context.Context, name, email, hash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			return 0, domain.ErrDuplicateEmail
		}
	}
	f.nextAccount++
	f.accounts[f.nextAccount] = &domain.Account{ID: f.nextAccount, Name: name, Email: email, PasswordHash: hash}
	return f.nextAccount, nil
}

func (f *fakeRepo) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.accounts[id]
	if a == nil {
		return nil, nil
	}
	copy := *a
	return &copy, nil
}

func (f *fakeRepo) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			copy := *a
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateConversation(_ context.Context, accountID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createConvErr != nil {
		return 0, f.createConvErr
	}
	f.nextConv++
	owner := accountID
	f.conversations[f.nextConv] = &domain.Conversation{ID: f.nextConv, AccountID: &owner, CreatedAt: time.Now()}
	return f.nextConv, nil
}

func (f *fakeRepo) GetConversation(_ context.Context, id int64) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conversations[id]
	if c == nil {
		return nil, nil
	}
	copy := *c
	return &copy, nil
}

func (f *fakeRepo) UpdateTranscript(_ context.Context, id int64, transcript string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conversations[id]
	if c == nil {
		return domain.StoreFailure("update transcript", fmt.Errorf("conversation %d not found", id))
	}
	c.Transcript = transcript
	return nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

func (f *fakeRepo) createConversationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func newTestManager(repo *fakeRepo) *Manager {
	return NewManager(repo, Options{TTL: time.Hour, BcryptCost: bcrypt.MinCost})
}

func TestSignupThenLoginReturnsSameID(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()

	signupSession := m.Start()
	id, err := m.Signup(ctx, signupSession.Token, "A", "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	s, _ := m.Get(signupSession.Token)
	if s.AccountID != id {
		t.Fatalf("signup should authenticate the session, got account %d", s.AccountID)
	}
	if repo.accounts[id].PasswordHash == "pw" {
		t.Fatal("password must not be stored in plaintext")
	}

	loginSession := m.Start()
	got, err := m.Login(ctx, loginSession.Token, "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got != id {
		t.Fatalf("Login returned %d, want %d", got, id)
	}
}

func TestLoginErrors(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()
	token := m.Start().Token

	if _, err := m.Login(ctx, token, "a@b.com", "pw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("empty store: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.Login(ctx, token, "", "pw"); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("missing email: expected ErrMissingFields, got %v", err)
	}
	if _, err := m.Login(ctx, token, "a@b.com", ""); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("missing password: expected ErrMissingFields, got %v", err)
	}

	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := m.Login(ctx, m.Start().Token, "a@b.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignupErrors(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()
	token := m.Start().Token

	if _, err := m.Signup(ctx, token, " ", "a@b.com", "pw"); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := m.Signup(ctx, m.Start().Token, "B", "a@b.com", "pw2"); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if len(repo.accounts) != 1 {
		t.Fatalf("expected exactly one account, got %d", len(repo.accounts))
	}
}

func TestEnsureConversationAuthenticated(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()
	token := m.Start().Token

	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	s, err := m.EnsureConversation(ctx, token)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if !s.HasConversation() {
		t.Fatal("authenticated session must be bound to a conversation")
	}

	again, err := m.EnsureConversation(ctx, token)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if again.ConversationID != s.ConversationID {
		t.Fatalf("conversation changed from %d to %d", s.ConversationID, again.ConversationID)
	}
	if repo.createConversationCalls() != 1 {
		t.Fatalf("expected one conversation row, got %d", repo.createConversationCalls())
	}
}

func TestEnsureConversationConcurrentFirstRequests(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()
	token := m.Start().Token
	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EnsureConversation(ctx, token)
		}()
	}
	wg.Wait()

	if repo.createConversationCalls() != 1 {
		t.Fatalf("expected one conversation row, got %d", repo.createConversationCalls())
	}
}

func TestEnsureConversationAnonymousKeepsTranscript(t *testing.T) {
	m := newTestManager(newFakeRepo())
	ctx := context.Background()
	token := m.Start().Token

	b, err := m.Bind(ctx, token)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if b.ConversationID() != 0 || b.AccountID() != 0 {
		t.Fatal("anonymous binding must not reference a conversation")
	}
	if err := b.Save(ctx, "Customer: hi\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A later request must not reset the in-session transcript.
	if _, err := m.EnsureConversation(ctx, token); err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "Customer: hi\n" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestBindAuthenticatedPersists(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()
	token := m.Start().Token
	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	b, err := m.Bind(ctx, token)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := b.Save(ctx, "Customer: hi\nChatbot: hello\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	conv, _ := repo.GetConversation(ctx, b.ConversationID())
	if conv.Transcript != "Customer: hi\nChatbot: hello\n" {
		t.Fatalf("persisted transcript = %q", conv.Transcript)
	}
	if b.Key() == "" {
		t.Fatal("binding key must not be empty")
	}
}

func TestBoundBindingCreatesNothing(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()

	anon := m.Start().Token
	if b, ok := m.BoundBinding(anon); !ok || b.Key() != "session:"+anon {
		t.Fatalf("anonymous session should resolve to its in-session transcript, got %v %v", b, ok)
	}

	token := m.Start().Token
	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, ok := m.BoundBinding(token); ok {
		t.Fatal("authenticated session without a conversation must not resolve")
	}
	if n := repo.createConversationCalls(); n != 0 {
		t.Fatalf("expected no conversation to be created, got %d", n)
	}

	if _, err := m.EnsureConversation(ctx, token); err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	b, ok := m.BoundBinding(token)
	if !ok || b.ConversationID() == 0 {
		t.Fatalf("bound session should resolve to its conversation, got %v %v", b, ok)
	}
	if n := repo.createConversationCalls(); n != 1 {
		t.Fatalf("expected exactly one conversation, got %d", n)
	}

	if _, ok := m.BoundBinding("unknown"); ok {
		t.Fatal("unknown token must not resolve")
	}
}

func TestLoginAsOtherAccountDropsConversation(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()

	if _, err := m.Signup(ctx, m.Start().Token, "B", "b@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	token := m.Start().Token
	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	first, _ := m.EnsureConversation(ctx, token)

	if _, err := m.Login(ctx, token, "b@b.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, _ := m.EnsureConversation(ctx, token)
	if second.ConversationID == first.ConversationID {
		t.Fatal("conversation must not be shared across accounts")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	m := newTestManager(newFakeRepo())
	token := m.Start().Token

	if err := m.Logout(token); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := m.Logout(token); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if _, ok := m.Get(token); ok {
		t.Fatal("session should be gone")
	}
}

func TestCleanupExpired(t *testing.T) {
	m := newTestManager(newFakeRepo())
	now := time.Now()
	m.now = func() time.Time { return now }

	stale := m.Start().Token
	now = now.Add(30 * time.Minute)
	fresh := m.Start().Token
	now = now.Add(45 * time.Minute)

	if removed := m.CleanupExpired(); removed != 1 {
		t.Fatalf("expected one expired session, removed %d", removed)
	}
	if _, ok := m.Get(stale); ok {
		t.Fatal("stale session should be removed")
	}
	if _, ok := m.Get(fresh); !ok {
		t.Fatal("fresh session should survive")
	}
}

func TestMiddlewareSwallowsBindingFailure(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	codec := NewCookieCodec("0123456789abcdef", time.Hour, false)
	ctx := context.Background()

	token := m.Start().Token
	if _, err := m.Signup(ctx, token, "A", "a@b.com", "pw"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	repo.createConvErr = domain.StoreFailure("insert conversation", errors.New("disk I/O error"))

	value, err := codec.Encode(token)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: value})
	rr := httptest.NewRecorder()

	var seen string
	Middleware(m, codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected request to continue, got %d", rr.Code)
	}
	if seen != token {
		t.Fatalf("expected existing token %q in context, got %q", token, seen)
	}
	s, _ := m.Get(token)
	if s.HasConversation() {
		t.Fatal("session should remain unbound after a store failure")
	}
}

func TestMiddlewareIssuesCookieAndSkipsAuthPaths(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo)
	codec := NewCookieCodec("0123456789abcdef", time.Hour, false)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})
	rr := httptest.NewRecorder()

	var token string
	Middleware(m, codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = TokenFromContext(r.Context())
	})).ServeHTTP(rr, req)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected a fresh session cookie, got %v", cookies)
	}
	decoded, err := codec.Decode(cookies[0].Value)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != token {
		t.Fatalf("cookie token %q does not match context token %q", decoded, token)
	}
	s, _ := m.Get(token)
	if s.Initialized {
		t.Fatal("auth paths must not bind a transcript")
	}
}

func TestMiddlewareRefreshesAgingCookie(t *testing.T) {
	m := newTestManager(newFakeRepo())
	codec := NewCookieCodec("0123456789abcdef", time.Hour, false)
	token := m.Start().Token
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	fresh, err := codec.Encode(token)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: fresh})
	rr := httptest.NewRecorder()
	Middleware(m, codec)(next).ServeHTTP(rr, req)
	if cookies := rr.Result().Cookies(); len(cookies) != 0 {
		t.Fatalf("fresh cookie should not be re-issued, got %v", cookies)
	}

	now := time.Now()
	aging, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        token,
		IssuedAt:  jwt.NewNumericDate(now.Add(-50 * time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}).SignedString([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: aging})
	rr = httptest.NewRecorder()
	var seen string
	Middleware(m, codec)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TokenFromContext(r.Context())
	})).ServeHTTP(rr, req)

	if seen != token {
		t.Fatalf("aging cookie must keep the session, got %q want %q", seen, token)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected the cookie to be re-issued, got %v", cookies)
	}
	if got, err := codec.Decode(cookies[0].Value); err != nil || got != token {
		t.Fatalf("re-issued cookie = %q, %v", got, err)
	}
	if cookies[0].MaxAge != int(time.Hour.Seconds()) {
		t.Fatalf("re-issued cookie MaxAge = %d", cookies[0].MaxAge)
	}
}

func TestCookieCodecRejectsOtherSecret(t *testing.T) {
	a := NewCookieCodec("0123456789abcdef", time.Hour, false)
	b := NewCookieCodec("fedcba9876543210", time.Hour, false)

	value, err := a.Encode("tok")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got, err := a.Decode(value); err != nil || got != "tok" {
		t.Fatalf("Decode = %q, %v", got, err)
	}
	if _, err := b.Decode(value); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestSweeperStopsOnCancel(t *testing.T) {
	m := newTestManager(newFakeRepo())
	ctx, cancel := context.WithCancel(context.Background())
	StartSweeper(ctx, m, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
}
