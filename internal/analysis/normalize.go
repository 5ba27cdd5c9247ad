package analysis

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/ashureev/support-chat/internal/domain"
)

var (
	fencePattern = regexp.MustCompile("```(?:json|JSON)?")
	errNotObject = errors.New("analysis output is not a JSON object")
)

// Normalize repairs analyzer output before parsing. It strips markdown fence
// markers, trims anything outside the outermost object and folds line breaks
// inside quoted string values into a single space.
func Normalize(raw string) string {
	s := strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\uFEFF' || r == '\u200B' {
			return -1
		}
		return r
	}, raw))
	s = strings.TrimSpace(fencePattern.ReplaceAllString(s, ""))

	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return foldStringNewlines(s)
}

// foldStringNewlines replaces every whitespace run containing a line break
// inside a JSON string literal with one space. Text outside strings is kept.
func foldStringNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '"':
			inString = false
			b.WriteByte(c)
		case ' ', '\t', '\r', '\n':
			j := i
			breaks := false
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r' || s[j] == '\n') {
				if s[j] == '\n' || s[j] == '\r' {
					breaks = true
				}
				j++
			}
			if breaks {
				b.WriteByte(' ')
			} else {
				b.WriteString(s[i:j])
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ParseVerdict normalizes and decodes analyzer output. It returns the typed
// verdict together with the decoded object so callers can pass the analyzer's
// fields through unchanged. Failures are *domain.MalformedAnalysisError.
func ParseVerdict(raw string) (*domain.Verdict, map[string]any, error) {
	normalized := Normalize(raw)

	var fields map[string]any
	if err := json.Unmarshal([]byte(normalized), &fields); err != nil {
		return nil, nil, &domain.MalformedAnalysisError{Raw: raw, Err: err}
	}
	if fields == nil {
		return nil, nil, &domain.MalformedAnalysisError{Raw: raw, Err: errNotObject}
	}

	var v domain.Verdict
	if err := json.Unmarshal([]byte(normalized), &v); err != nil {
		return nil, nil, &domain.MalformedAnalysisError{Raw: raw, Err: err}
	}
	v.Normalize()
	return &v, fields, nil
}
