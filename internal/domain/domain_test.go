package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTranscriptAppend(t *testing.T) {
	tr := AppendCustomer("", "hello")
	tr = AppendChatbot(tr, "hi there")

	want := "Customer: hello\nChatbot: hi there\n"
	if tr != want {
		t.Fatalf("transcript = %q, want %q", tr, want)
	}

	c, b := CountTurns(tr)
	if c != 1 || b != 1 {
		t.Fatalf("CountTurns = (%d, %d), want (1, 1)", c, b)
	}
}

func TestParseSentiment(t *testing.T) {
	cases := map[string]Sentiment{
		"positive":  SentimentPositive,
		" Negative": SentimentNegative,
		"NEUTRAL":   SentimentNeutral,
		"mixed":     SentimentUnknown,
		"":          SentimentUnknown,
	}
	for in, want := range cases {
		if got := ParseSentiment(in); got != want {
			t.Errorf("ParseSentiment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVerdictLenientDecoding(t *testing.T) {
	raw := `{
		"ticket_summary": "Customer wants an invoice",
		"sentiment": "Positive",
		"ticket_type": "billing_issue",
		"is_resolved": "false",
		"requires_email": true,
		"email_context": "Send the invoice",
		"tasks": ["send invoice"],
		"flags": {"follow_up_required": "yes", "schedule_demo": false, "note": 3}
	}`

	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal verdict: %v", err)
	}
	v.Normalize()

	if v.Sentiment != SentimentPositive {
		t.Errorf("sentiment = %q", v.Sentiment)
	}
	if v.IsResolved {
		t.Error("expected is_resolved false")
	}
	if !v.RequiresEmail {
		t.Error("expected requires_email true")
	}
	if !v.Flags["follow_up_required"] || v.Flags["schedule_demo"] || v.Flags["note"] {
		t.Errorf("unexpected flags: %#v", v.Flags)
	}
	if string(v.Tasks) != `["send invoice"]` {
		t.Errorf("tasks = %s", v.Tasks)
	}
}

func TestVerdictNormalizeDefaults(t *testing.T) {
	var v Verdict
	v.Normalize()
	if v.Sentiment != SentimentUnknown {
		t.Errorf("sentiment = %q, want unknown", v.Sentiment)
	}
	if v.Flags == nil {
		t.Error("expected flags to be initialized")
	}
}

func TestErrorUnwrapping(t *testing.T) {
	aerr := &AnalyzerError{ExitCode: 2, Stderr: "boom"}
	if !errors.Is(aerr, ErrAnalyzerFailed) {
		t.Fatal("AnalyzerError should match ErrAnalyzerFailed")
	}

	merr := &MalformedAnalysisError{Raw: "nope", Err: errors.New("bad json")}
	if !errors.Is(merr, ErrMalformedAnalysis) {
		t.Fatal("MalformedAnalysisError should match ErrMalformedAnalysis")
	}

	base := errors.New("disk full")
	serr := StoreFailure("update transcript", base)
	if !errors.Is(serr, ErrStore) || !errors.Is(serr, base) {
		t.Fatalf("StoreFailure should match both sentinels: %v", serr)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{LastSeenAt: now.Add(-2 * time.Hour)}
	if !s.Expired(now, time.Hour) {
		t.Fatal("expected session idle for 2h to be expired with 1h ttl")
	}
	if s.Expired(now, 3*time.Hour) {
		t.Fatal("expected session to be live with 3h ttl")
	}
}
