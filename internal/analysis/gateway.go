// Package analysis runs the external analyzer over a transcript, repairs and
// parses its output into a verdict and triggers the follow-up email.
package analysis

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/support-chat/internal/domain"
)

// Result is a parsed analysis. Fields holds the analyzer's object as decoded,
// which is what the HTTP layer returns.
type Result struct {
	Verdict *domain.Verdict
	Fields  map[string]any
	Raw     string
}

// Gateway coordinates the analyzer and mailer.
type Gateway struct {
	analyzer    Analyzer
	mailer      Mailer
	mailTimeout time.Duration
	wg          sync.WaitGroup
}

// NewGateway creates an analysis gateway. mailer may be nil, in which case
// email requests are logged and skipped.
func NewGateway(analyzer Analyzer, mailer Mailer, mailTimeout time.Duration) *Gateway {
	return &Gateway{analyzer: analyzer, mailer: mailer, mailTimeout: mailTimeout}
}

// Analyze runs the analyzer over transcript and parses its output. When the
// verdict asks for an email, the send runs in the background and its outcome
// never affects the returned result.
func (g *Gateway) Analyze(ctx context.Context, transcript string) (*Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, domain.ErrEmptyConversation
	}

	started := time.Now()
	raw, err := g.analyzer.Analyze(ctx, transcript)
	if err != nil {
		slog.Error("Analyzer failed", "error", err)
		return nil, err
	}

	verdict, fields, err := ParseVerdict(raw)
	if err != nil {
		slog.Error("Failed to parse analysis", "error", err, "raw", raw)
		return nil, err
	}

	slog.Info("Conversation analyzed",
		"sentiment", verdict.Sentiment,
		"ticket_type", verdict.TicketType,
		"requires_email", bool(verdict.RequiresEmail),
		"duration_ms", time.Since(started).Milliseconds())

	if verdict.RequiresEmail {
		g.notify(ctx, verdict)
	}
	return &Result{Verdict: verdict, Fields: fields, Raw: raw}, nil
}

func (g *Gateway) notify(ctx context.Context, v *domain.Verdict) {
	if g.mailer == nil {
		slog.Warn("Verdict requires email but no mailer is configured")
		return
	}
	body, err := RenderEmail(v)
	if err != nil {
		slog.Error("Failed to render email", "error", err)
		return
	}

	// Detach from the request so the send outlives the response.
	mailCtx := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if g.mailTimeout > 0 {
			var cancel context.CancelFunc
			mailCtx, cancel = context.WithTimeout(mailCtx, g.mailTimeout)
			defer cancel()
		}
		if err := g.mailer.Send(mailCtx, EmailSubject, body); err != nil {
			slog.Error("Failed to send follow-up email", "error", err)
			return
		}
		slog.Info("Follow-up email sent")
	}()
}

// Wait blocks until in-flight email sends finish.
func (g *Gateway) Wait() {
	g.wg.Wait()
}
