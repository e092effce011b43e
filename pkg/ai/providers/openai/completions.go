package openai

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/ai/models"
	"github.com/bitop-dev/chatstream/pkg/ai/sse"
)

// completions speaks POST {baseURL}/chat/completions. It carries text only;
// hosted tools are not offered in this dialect.
type completions struct {
	logger *slog.Logger
}

// ---------------------------------------------------------------------------
// Wire types (chat completions)
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string | []chatPart
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Stream              bool          `json:"stream"`
	Temperature         *float64      `json:"temperature,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *errorBody `json:"error"`
}

// ---------------------------------------------------------------------------
// dialect implementation
// ---------------------------------------------------------------------------

func (c *completions) kind() models.Dialect { return models.DialectChat }
func (c *completions) path() string         { return "/chat/completions" }

// endOfStream accepts a body that closes without [DONE]; some compatible
// servers never send it.
func (c *completions) endOfStream() error { return nil }

func (c *completions) body(req ai.Request) any {
	if len(req.Tools) > 0 {
		c.logger.Debug("openai: hosted tools ignored by chat completions", "tools", req.Tools)
	}
	out := chatRequest{
		Model:               req.Config.Model,
		Stream:              true,
		Temperature:         req.Config.Temperature,
		MaxCompletionTokens: req.Config.MaxTokens,
	}
	for _, t := range upstreamTurns(req.Messages) {
		out.Messages = append(out.Messages, c.message(t))
	}
	return out
}

func (c *completions) message(t ai.Turn) chatMessage {
	images := imageParts(t, c.logger)
	if len(images) == 0 {
		return chatMessage{Role: string(t.Role), Content: t.Content}
	}
	parts := make([]chatPart, 0, len(images)+1)
	if t.Content != "" {
		parts = append(parts, chatPart{Type: "text", Text: t.Content})
	}
	for _, a := range images {
		parts = append(parts, chatPart{
			Type:     "image_url",
			ImageURL: &chatImageURL{URL: a.DataURL(), Detail: "auto"},
		})
	}
	return chatMessage{Role: string(t.Role), Content: parts}
}

func (c *completions) translate(ev sse.Event) ([]ai.StreamEvent, bool, error) {
	if ev.Data == "[DONE]" {
		return nil, true, nil
	}
	if ev.Data == "" {
		return nil, false, nil
	}

	var chunk chatChunk
	if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
		return nil, false, fmt.Errorf("malformed chunk: %w", err)
	}
	if chunk.Error != nil {
		return nil, false, chunk.Error.err("upstream error")
	}
	if len(chunk.Choices) == 0 {
		return nil, false, nil // usage-only chunk
	}
	if text := chunk.Choices[0].Delta.Content; text != "" {
		return []ai.StreamEvent{ai.TextDelta(text)}, false, nil
	}
	return nil, false, nil
}

var _ dialect = (*completions)(nil)
