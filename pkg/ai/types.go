// Package ai defines the core types for streaming chat: conversation turns,
// provider configuration, tool-call records, canonical stream events and the
// provider interface.
package ai

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Conversation turns
// ---------------------------------------------------------------------------

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	// RoleTool turns exist for display and persistence only. Providers never
	// send them upstream.
	RoleTool Role = "tool"
)

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// Attachment is a file attached to a turn. Data is base64 encoded.
type Attachment struct {
	ID       string         `json:"id,omitempty"`
	Type     AttachmentType `json:"type"`
	Name     string         `json:"name"`
	MIMEType string         `json:"mime_type"`
	Size     int64          `json:"size"`
	Data     string         `json:"data"`
}

// DataURL returns the attachment as a data: URL.
func (a Attachment) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + a.Data
}

// Turn is one message of the conversation as handed to a provider.
type Turn struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// ProviderKind selects the adapter that serves a request.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
)

// OpenAI API dialects accepted in OpenAIOptions.API.
const (
	APIAuto      = "auto"
	APIChat      = "chat"
	APIResponses = "responses"
)

// OpenAIOptions carries OpenAI specific settings.
type OpenAIOptions struct {
	Organization string `json:"organization,omitempty" yaml:"organization"`
	// API forces a dialect: "chat", "responses" or "auto" (model based).
	API string `json:"api,omitempty" yaml:"api"`
	// VectorStoreIDs are required by the file_search tool.
	VectorStoreIDs []string `json:"vector_store_ids,omitempty" yaml:"vector_store_ids"`
}

// ProviderConfig describes how to reach a model. Whether a config is valid
// depends on the provider that receives it; see Provider.ValidateConfig.
type ProviderConfig struct {
	Provider    ProviderKind   `json:"provider"`
	APIKey      string         `json:"api_key"`
	BaseURL     string         `json:"base_url,omitempty"`
	Model       string         `json:"model"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	OpenAI      *OpenAIOptions `json:"openai,omitempty"`
}

// HasCredentials reports whether the fields every provider needs are set.
func (c ProviderConfig) HasCredentials() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Model) != ""
}

// ---------------------------------------------------------------------------
// Tool calls
// ---------------------------------------------------------------------------

// ToolType names a hosted tool the provider runs on our behalf.
type ToolType string

const (
	ToolWebSearch  ToolType = "web_search"
	ToolFileSearch ToolType = "file_search"
)

// ToolStatus is the lifecycle state of a tool call. Statuses only advance.
type ToolStatus string

const (
	ToolInProgress ToolStatus = "in_progress"
	ToolSearching  ToolStatus = "searching"
	ToolCompleted  ToolStatus = "completed"
	ToolFailed     ToolStatus = "failed"
)

// Rank orders statuses for monotonic updates. Terminal statuses share the top rank.
func (s ToolStatus) Rank() int {
	switch s {
	case ToolInProgress:
		return 1
	case ToolSearching:
		return 2
	case ToolCompleted, ToolFailed:
		return 3
	}
	return 0
}

// Terminal reports whether no further transitions are allowed.
func (s ToolStatus) Terminal() bool {
	return s == ToolCompleted || s == ToolFailed
}

// ToolCallRecord is the reconstructed state of one tool invocation.
// ItemID is assigned by the provider and correlates every lifecycle event.
type ToolCallRecord struct {
	ItemID      string     `json:"item_id"`
	Type        ToolType   `json:"type"`
	Status      ToolStatus `json:"status"`
	Query       string     `json:"query,omitempty"`
	OutputIndex *int       `json:"output_index,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Canonical stream events
// ---------------------------------------------------------------------------

// StreamEventType enumerates the canonical events a provider can emit.
type StreamEventType string

const (
	StreamEventTextDelta     StreamEventType = "text_delta"
	StreamEventToolStarted   StreamEventType = "tool_started"
	StreamEventToolProgress  StreamEventType = "tool_progress"
	StreamEventToolCompleted StreamEventType = "tool_completed"
	StreamEventToolFailed    StreamEventType = "tool_failed"

	// Terminal events. At most one per stream; none when the stream was aborted.
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a provider-agnostic streaming occurrence.
type StreamEvent struct {
	Type StreamEventType
	Text string          // text_delta
	Tool *ToolCallRecord // tool_* (a snapshot, safe to retain)
	Err  error           // error
}

// Terminal reports whether ev ends the stream.
func (ev StreamEvent) Terminal() bool {
	return ev.Type == StreamEventDone || ev.Type == StreamEventError
}

func TextDelta(text string) StreamEvent {
	return StreamEvent{Type: StreamEventTextDelta, Text: text}
}

func Done() StreamEvent { return StreamEvent{Type: StreamEventDone} }

func Failure(err error) StreamEvent {
	return StreamEvent{Type: StreamEventError, Err: err}
}
