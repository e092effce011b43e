package openai

// responses speaks the OpenAI Responses API (POST {baseURL}/responses).
//
// Differences from chat completions that matter here:
//   - "input" instead of "messages"; user content parts are "input_text" / "input_image"
//   - "max_output_tokens" instead of "max_completion_tokens"
//   - hosted tools (web_search, file_search) run upstream and report their
//     lifecycle through output items and per-tool progress events
//   - the stream ends with response.completed / response.incomplete /
//     response.failed instead of a [DONE] sentinel

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/ai/models"
	"github.com/bitop-dev/chatstream/pkg/ai/sse"
	"github.com/bitop-dev/chatstream/pkg/ai/toolcall"
	"github.com/bitop-dev/chatstream/pkg/tools"
)

// errResponseFailed is reported when the upstream fails a response without
// saying why.
var errResponseFailed = errors.New("response failed")

// errTruncated is reported when the body ends before a terminal event.
var errTruncated = errors.New("stream ended before response.completed")

type responses struct {
	tools   *tools.Registry
	tracker *toolcall.Tracker
	logger  *slog.Logger
}

func newResponses(reg *tools.Registry, logger *slog.Logger) *responses {
	return &responses{tools: reg, tracker: toolcall.New(), logger: logger}
}

// ---------------------------------------------------------------------------
// Wire types: Responses API
// ---------------------------------------------------------------------------

type respInputItem struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string | []respPart
}

type respPart struct {
	Type     string `json:"type"` // "input_text" | "input_image"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type respRequest struct {
	Model           string           `json:"model"`
	Input           []respInputItem  `json:"input"`
	Tools           []map[string]any `json:"tools,omitempty"`
	Stream          bool             `json:"stream"`
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
}

// SSE payloads. Only the fields read by translate are declared.
type respEvent struct {
	Type        string          `json:"type"`
	Delta       string          `json:"delta,omitempty"`
	ItemID      string          `json:"item_id,omitempty"`
	OutputIndex *int            `json:"output_index,omitempty"`
	Item        json.RawMessage `json:"item,omitempty"`
	Response    *respResponse   `json:"response,omitempty"`

	// type=error
	Message string          `json:"message,omitempty"`
	Code    json.RawMessage `json:"code,omitempty"`
}

type respItem struct {
	ID     string `json:"id"`
	Type   string `json:"type"` // "message" | "web_search_call" | "file_search_call" | …
	Status string `json:"status"`
}

type respResponse struct {
	Status            string     `json:"status"`
	Error             *errorBody `json:"error"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
}

// ---------------------------------------------------------------------------
// dialect implementation
// ---------------------------------------------------------------------------

func (r *responses) kind() models.Dialect { return models.DialectResponses }
func (r *responses) path() string         { return "/responses" }
func (r *responses) endOfStream() error   { return errTruncated }

func (r *responses) body(req ai.Request) any {
	cfg := req.Config
	out := respRequest{
		Model:           cfg.Model,
		Stream:          true,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxTokens,
	}
	for _, t := range upstreamTurns(req.Messages) {
		out.Input = append(out.Input, r.item(t))
	}
	for _, t := range r.tools.Resolve(models.DefaultToolsFor(cfg.Model), req.Tools, cfg, r.logger) {
		out.Tools = append(out.Tools, t.Definition(cfg))
	}
	return out
}

func (r *responses) item(t ai.Turn) respInputItem {
	images := imageParts(t, r.logger)
	if len(images) == 0 {
		return respInputItem{Role: string(t.Role), Content: t.Content}
	}
	parts := make([]respPart, 0, len(images)+1)
	if t.Content != "" {
		parts = append(parts, respPart{Type: "input_text", Text: t.Content})
	}
	for _, a := range images {
		parts = append(parts, respPart{Type: "input_image", ImageURL: a.DataURL(), Detail: "auto"})
	}
	return respInputItem{Role: string(t.Role), Content: parts}
}

func (r *responses) translate(ev sse.Event) ([]ai.StreamEvent, bool, error) {
	if ev.Data == "" || ev.Data == "[DONE]" {
		return nil, ev.Data == "[DONE]", nil
	}
	var re respEvent
	if err := json.Unmarshal([]byte(ev.Data), &re); err != nil {
		return nil, false, fmt.Errorf("malformed event: %w", err)
	}
	if re.Type == "" {
		re.Type = ev.Type
	}

	switch re.Type {
	case "response.output_text.delta":
		if re.Delta == "" {
			return nil, false, nil
		}
		return []ai.StreamEvent{ai.TextDelta(re.Delta)}, false, nil

	case "response.output_item.added":
		return r.itemAdded(re), false, nil

	case "response.output_item.done":
		return r.itemDone(re), false, nil

	case "response.completed":
		return nil, true, nil

	case "response.incomplete":
		reason := ""
		if re.Response != nil && re.Response.IncompleteDetails != nil {
			reason = re.Response.IncompleteDetails.Reason
		}
		r.logger.Warn("openai: response incomplete", "reason", reason)
		return nil, true, nil

	case "response.failed":
		if re.Response != nil && re.Response.Error != nil {
			return nil, false, re.Response.Error.err(errResponseFailed.Error())
		}
		return nil, false, errResponseFailed

	case "error":
		eb := errorBody{Message: re.Message, Code: re.Code}
		return nil, false, eb.err("upstream error")
	}

	return r.toolPhase(re), false, nil
}

// itemAdded starts tracking output items produced by a hosted tool.
func (r *responses) itemAdded(re respEvent) []ai.StreamEvent {
	var item respItem
	if err := json.Unmarshal(re.Item, &item); err != nil {
		return nil
	}
	tool := r.tools.ByItemType(item.Type)
	if tool == nil {
		if item.Type != "message" && item.Type != "reasoning" {
			r.logger.Debug("openai: untracked output item", "item_type", item.Type, "item_id", item.ID)
		}
		return nil
	}
	if ev, ok := r.tracker.Start(item.ID, tool.Type(), re.OutputIndex); ok {
		return []ai.StreamEvent{ev}
	}
	return nil
}

// itemDone carries the authoritative result of a tool call.
func (r *responses) itemDone(re respEvent) []ai.StreamEvent {
	var item respItem
	if err := json.Unmarshal(re.Item, &item); err != nil {
		return nil
	}
	tool := r.tools.ByItemType(item.Type)
	if tool == nil {
		return nil
	}
	var (
		ev ai.StreamEvent
		ok bool
	)
	if item.Status == string(ai.ToolFailed) {
		ev, ok = r.tracker.Fail(item.ID)
	} else {
		ev, ok = r.tracker.Complete(item.ID, tool.Query(re.Item))
	}
	if !ok {
		r.logger.Debug("openai: tool result for unknown item dropped", "item_id", item.ID)
		return nil
	}
	return []ai.StreamEvent{ev}
}

// toolPhase handles response.<item_type>.<phase> progress events, e.g.
// response.web_search_call.searching.
func (r *responses) toolPhase(re respEvent) []ai.StreamEvent {
	rest, ok := strings.CutPrefix(re.Type, "response.")
	if !ok {
		return nil
	}
	itemType, phase, ok := strings.Cut(rest, ".")
	if !ok || r.tools.ByItemType(itemType) == nil {
		return nil
	}

	switch phase {
	case "in_progress", "searching":
		ev, ok := r.tracker.Progress(re.ItemID, ai.ToolStatus(phase))
		if !ok {
			r.logger.Debug("openai: tool progress for unknown item dropped", "item_id", re.ItemID, "phase", phase)
			return nil
		}
		return []ai.StreamEvent{ev}
	case "completed":
		r.tracker.MarkCompleted(re.ItemID)
	default:
		r.logger.Debug("openai: unhandled tool phase", "event", re.Type)
	}
	return nil
}

var _ dialect = (*responses)(nil)
