package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/ashureev/support-chat/internal/config"
	"github.com/ashureev/support-chat/internal/domain"
)

// Analyzer turns a transcript into raw verdict text.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (string, error)
}

// Mailer delivers a notification email.
type Mailer interface {
	Send(ctx context.Context, subject, htmlBody string) error
}

// ProcessAnalyzer runs an external analyzer executable. The transcript is
// passed as the final argument and the verdict is read from stdout.
type ProcessAnalyzer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewProcessAnalyzer builds an analyzer from process settings.
func NewProcessAnalyzer(cfg config.ProcessConfig) *ProcessAnalyzer {
	return &ProcessAnalyzer{Command: cfg.Command, Args: cfg.Args, Timeout: cfg.Timeout}
}

// Analyze implements Analyzer. A non-zero exit yields *domain.AnalyzerError
// carrying stderr.
func (p *ProcessAnalyzer) Analyze(ctx context.Context, transcript string) (string, error) {
	stdout, stderr, err := runProcess(ctx, p.Timeout, p.Command, append(append([]string{}, p.Args...), transcript)...)
	if err != nil {
		return "", err
	}
	if stderr != "" {
		slog.Warn("Analyzer wrote to stderr", "command", p.Command, "stderr", stderr)
	}
	return stdout, nil
}

// ProcessMailer runs an external mail sender with subject and HTML body as
// its final two arguments.
type ProcessMailer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewProcessMailer builds a mailer from process settings.
func NewProcessMailer(cfg config.ProcessConfig) *ProcessMailer {
	return &ProcessMailer{Command: cfg.Command, Args: cfg.Args, Timeout: cfg.Timeout}
}

// Send implements Mailer.
func (p *ProcessMailer) Send(ctx context.Context, subject, htmlBody string) error {
	stdout, _, err := runProcess(ctx, p.Timeout, p.Command, append(append([]string{}, p.Args...), subject, htmlBody)...)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	slog.Debug("Mailer finished", "command", p.Command, "output", strings.TrimSpace(stdout))
	return nil
}

// runProcess executes name without a shell and waits for it to exit.
func runProcess(ctx context.Context, timeout time.Duration, name string, args ...string) (string, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", err, ctxErr)
	}
	return stdout.String(), stderr.String(), &domain.AnalyzerError{
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
}
