package domain

import (
	"encoding/json"
	"strings"
)

// Sentiment is the overall customer tone reported by the analyzer.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentUnknown  Sentiment = "unknown"
)

// ParseSentiment maps free-form analyzer text onto the sentiment enum.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	case SentimentNeutral:
		return SentimentNeutral
	default:
		return SentimentUnknown
	}
}

// UnmarshalJSON accepts any string and normalizes it.
func (s *Sentiment) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = SentimentUnknown
		return nil
	}
	*s = ParseSentiment(raw)
	return nil
}

// Flag is a boolean that also accepts the strings "true"/"false" and "yes"/"no",
// which models routinely emit instead of JSON booleans.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1":
			*f = true
		default:
			*f = false
		}
		return nil
	}
	*f = false
	return nil
}

// Verdict is the structured result of analyzing a transcript.
type Verdict struct {
	TicketSummary  string          `json:"ticket_summary"`
	Sentiment      Sentiment       `json:"sentiment"`
	TicketType     string          `json:"ticket_type"`
	IsResolved     Flag            `json:"is_resolved"`
	Tasks          json.RawMessage `json:"tasks,omitempty"`
	TaskAssignment json.RawMessage `json:"task_assignment,omitempty"`
	RequiresEmail  Flag            `json:"requires_email"`
	EmailContext   string          `json:"email_context,omitempty"`
	Flags          map[string]Flag `json:"flags,omitempty"`
}

// Normalize fills defaults for fields the analyzer omitted.
func (v *Verdict) Normalize() {
	if v.Sentiment == "" {
		v.Sentiment = SentimentUnknown
	}
	if v.Flags == nil {
		v.Flags = map[string]Flag{}
	}
}
