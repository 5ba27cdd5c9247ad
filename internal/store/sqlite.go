package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/support-chat/internal/domain"
	"github.com/ashureev/support-chat/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers while a transcript write is in flight.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		conversation_data TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAccount inserts a new account and returns its id.
func (s *SQLiteStore) CreateAccount(ctx context.Context, name, email, passwordHash string) (int64, error) {
	query := `INSERT INTO users (name, email, password) VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, name, email, passwordHash)
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return 0, domain.ErrDuplicateEmail
		}
		return 0, domain.StoreFailure("insert user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, domain.StoreFailure("user last insert id", err)
	}
	return id, nil
}

// GetAccount retrieves an account by id.
func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT id, name, email, password FROM users WHERE id = ?`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, id))
}

// GetAccountByEmail retrieves an account by exact email.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT id, name, email, password FROM users WHERE email = ?`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(&account.ID, &account.Name, &account.Email, &account.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StoreFailure("scan user row", err)
	}
	return &account, nil
}

// CreateConversation inserts an empty conversation owned by accountID.
func (s *SQLiteStore) CreateConversation(ctx context.Context, accountID int64) (int64, error) {
	query := `INSERT INTO conversations (user_id, conversation_data, created_at) VALUES (?, '', ?)`
	result, err := s.db.ExecContext(ctx, query, accountID, time.Now().Unix())
	if err != nil {
		return 0, domain.StoreFailure("insert conversation", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, domain.StoreFailure("conversation last insert id", err)
	}
	return id, nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `SELECT id, user_id, conversation_data, created_at FROM conversations WHERE id = ?`

	var conv domain.Conversation
	var userID sql.NullInt64
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(&conv.ID, &userID, &conv.Transcript, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StoreFailure("scan conversation row", err)
	}

	if userID.Valid {
		owner := userID.Int64
		conv.AccountID = &owner
	}
	conv.CreatedAt = time.Unix(createdAt, 0)

	return &conv, nil
}

// UpdateTranscript replaces the transcript of a conversation.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) UpdateTranscript(ctx context.Context, id int64, transcript string) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.updateTranscriptOnce(ctx, id, transcript)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			break
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
			slog.Debug("UpdateTranscript hit a locked database, retrying",
				"conversation_id", id,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return domain.StoreFailure("update transcript", ctx.Err())
			}
		}
	}
	if err != nil {
		return domain.StoreFailure("update transcript", err)
	}
	return nil
}

func (s *SQLiteStore) updateTranscriptOnce(ctx context.Context, id int64, transcript string) error {
	query := `UPDATE conversations SET conversation_data = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, transcript, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateTranscript affected 0 rows", "conversation_id", id)
		return fmt.Errorf("conversation %d not found", id)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
