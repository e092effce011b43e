package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidConfig is returned when a provider rejects a ProviderConfig
// before any network call is made.
var ErrInvalidConfig = errors.New("invalid provider configuration")

// StatusError is a non-2xx answer from an upstream API.
type StatusError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if text := http.StatusText(e.StatusCode); text != "" {
		b.WriteString(" ")
		b.WriteString(text)
	}
	if e.Type != "" || e.Code != "" {
		fmt.Fprintf(&b, " (type=%s, code=%s)", e.Type, e.Code)
	}
	return b.String()
}

// NewStatusError builds a StatusError from a response body. Bodies in the
// common {"error":{"message","type","code"}} shape are decoded; anything else
// is kept verbatim (truncated).
func NewStatusError(statusCode int, body []byte) *StatusError {
	se := &StatusError{StatusCode: statusCode}
	var probe struct {
		Error struct {
			Message string          `json:"message"`
			Type    string          `json:"type"`
			Code    json.RawMessage `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error.Message != "" {
		se.Message = probe.Error.Message
		se.Type = probe.Error.Type
		se.Code = strings.Trim(string(probe.Error.Code), `"`)
		if se.Code == "null" {
			se.Code = ""
		}
		return se
	}
	se.Message = truncateUTF8(strings.TrimSpace(string(body)), maxErrorBody)
	return se
}

const maxErrorBody = 512

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// ---------------------------------------------------------------------------
// Context overflow detection
// ---------------------------------------------------------------------------

// overflowPatterns match the error messages upstreams return when the input
// exceeds the model's context window.
var overflowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)exceed.*context window`),               // OpenAI (Completions & Responses)
	regexp.MustCompile(`(?i)maximum context length is \d+ tokens`), // OpenRouter, older OpenAI
	regexp.MustCompile(`(?i)reduce the length of the messages`),    // Groq
	regexp.MustCompile(`(?i)exceeds the available context size`),   // llama.cpp
	regexp.MustCompile(`(?i)greater than the context length`),      // LM Studio
	regexp.MustCompile(`(?i)context[_ ]length[_ ]exceeded`),        // generic
	regexp.MustCompile(`(?i)too many tokens`),                      // generic
}

// IsContextOverflow reports whether err describes a context-window overflow.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == "context_length_exceeded" {
		return true
	}
	msg := err.Error()
	for _, re := range overflowPatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
