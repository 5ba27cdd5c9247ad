// Package chat implements the chat gateway: append the customer turn, ask the
// model for a reply over the whole transcript, persist both turns.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/support-chat/internal/domain"
	"github.com/ashureev/support-chat/internal/llm"
	"github.com/ashureev/support-chat/internal/session"
	"github.com/ashureev/support-chat/internal/shared"
)

// Reply is the result of one chat turn.
type Reply struct {
	Reply      string `json:"reply"`
	Transcript string `json:"conversation"`
}

// Gateway runs chat turns against a transcript binding.
type Gateway struct {
	model        llm.Generator
	locks        *shared.KeyedMutex
	log          ConversationLogger
	systemPrompt string
}

// NewGateway creates a chat gateway. log may be nil.
func NewGateway(model llm.Generator, log ConversationLogger, systemPrompt string) *Gateway {
	if log == nil {
		log = NopConversationLogger{}
	}
	return &Gateway{
		model:        model,
		locks:        shared.NewKeyedMutex(),
		log:          log,
		systemPrompt: systemPrompt,
	}
}

// SendMessage appends utterance to the bound transcript, forwards the whole
// transcript to the model and persists the reply. Turns on the same
// transcript are serialized. On model failure nothing is persisted.
func (g *Gateway) SendMessage(ctx context.Context, b session.Binding, utterance, systemPrompt string) (*Reply, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, domain.ErrMissingFields
	}
	if systemPrompt == "" {
		systemPrompt = g.systemPrompt
	}

	unlock := g.locks.Lock(b.Key())
	defer unlock()

	current, err := b.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	working := domain.AppendCustomer(current, utterance)
	g.log.Log(newEvent(b, DirectionInbound, EventCustomerMessage, utterance))

	reply, err := g.model.Generate(ctx, llm.Request{Prompt: working, System: systemPrompt})
	if err != nil {
		slog.Error("Model call failed", "error", err, "binding", b.Key())
		g.log.Log(newEvent(b, DirectionOutbound, EventModelError, err.Error()))
		return nil, err
	}

	working = domain.AppendChatbot(working, reply)
	if err := b.Save(ctx, working); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}
	g.log.Log(newEvent(b, DirectionOutbound, EventChatbotReply, reply))

	slog.Info("Chat turn completed",
		"binding", b.Key(),
		"user_id", b.AccountID(),
		"transcript_bytes", len(working))

	return &Reply{Reply: reply, Transcript: working}, nil
}

// RecordAnalysis adds an analysis summary to the conversation log of b.
func (g *Gateway) RecordAnalysis(b session.Binding, summary string) {
	g.log.Log(newEvent(b, DirectionOutbound, EventAnalysis, summary))
}
