package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/support-chat/internal/session"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Event directions and types.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	EventCustomerMessage = "customer_message"
	EventChatbotReply    = "chatbot_reply"
	EventModelError      = "model_error"
	EventAnalysis        = "analysis"
)

// ConversationLogConfig controls where conversation events are written.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogEvent is one NDJSON line.
type ConversationLogEvent struct {
	Timestamp       time.Time `json:"ts"`
	ConversationKey string    `json:"conversation_key"`
	UserID          int64     `json:"user_id,omitempty"`
	ConversationID  int64     `json:"conversation_id,omitempty"`
	Direction       string    `json:"direction"`
	EventType       string    `json:"event_type"`
	ContentRaw      string    `json:"content_raw"`
	Content         string    `json:"content"`
}

// ConversationLogger records conversation events without blocking callers.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// NopConversationLogger discards events.
type NopConversationLogger struct{}

// Log implements ConversationLogger.
func (NopConversationLogger) Log(ConversationLogEvent) {}

// Close implements ConversationLogger.
func (NopConversationLogger) Close() error { return nil }

type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger
	queue  chan ConversationLogEvent
	global io.WriteCloser
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewConversationLogger starts an asynchronous NDJSON writer. Per-conversation
// files go to Dir/<owner>/<conversation>.ndjson; the optional global file is
// size-rotated.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return NopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	if cfg.GlobalEnabled {
		l.global = &lumberjack.Logger{
			Filename: cfg.GlobalPath,
			MaxSize:  100,
			MaxAge:   30,
			Compress: true,
		}
	}

	go l.run()
	return l, nil
}

func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"conversation_key", event.ConversationKey, "event_type", event.EventType)
	}
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.appendLine(l.pathFor(event), line); err != nil {
			l.logger.Warn("failed to write conversation log", "error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileConversationLogger) pathFor(event ConversationLogEvent) string {
	owner := "anonymous"
	if event.UserID != 0 {
		owner = "user-" + strconv.FormatInt(event.UserID, 10)
	}
	name := sanitizeFileName(event.ConversationKey)
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(l.cfg.Dir, owner, name+".ndjson")
}

func (l *fileConversationLogger) appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close drains the queue and closes the global writer.
func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if l.global != nil {
		return l.global.Close()
	}
	return nil
}

func newEvent(b session.Binding, direction, eventType, content string) ConversationLogEvent {
	return ConversationLogEvent{
		ConversationKey: b.Key(),
		UserID:          b.AccountID(),
		ConversationID:  b.ConversationID(),
		Direction:       direction,
		EventType:       eventType,
		ContentRaw:      content,
	}
}

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	spacePattern    = regexp.MustCompile(`\s+`)
	fileNamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// cleanForReadability strips escape sequences and collapses whitespace.
func cleanForReadability(raw string) string {
	clean := ansiPattern.ReplaceAllString(raw, "")
	clean = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, clean)
	return strings.TrimSpace(spacePattern.ReplaceAllString(clean, " "))
}

func sanitizeFileName(key string) string {
	return strings.Trim(fileNamePattern.ReplaceAllString(key, "_"), "_")
}
