// Package models holds static metadata for the OpenAI models the adapter
// knows about: which wire dialect serves them and which hosted tools they get
// by default.
//
// Usage:
//
//	info := models.Lookup("gpt-5-mini-2025-08-07")
//	if info != nil {
//	    fmt.Println(info.Dialect) // responses
//	}
package models

import (
	"sort"
	"strings"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// Dialect is an OpenAI wire protocol shape.
type Dialect string

const (
	DialectChat      Dialect = "chat"      // /chat/completions
	DialectResponses Dialect = "responses" // /responses
)

// ---------------------------------------------------------------------------
// ModelInfo
// ---------------------------------------------------------------------------

// ModelInfo holds static metadata for a model family.
type ModelInfo struct {
	// Prefix matches the family's model ids, e.g. "gpt-5" matches "gpt-5-mini".
	Prefix string

	DisplayName string

	// Dialect is the API shape used when the config does not force one.
	Dialect Dialect

	// DefaultTools are hosted tools enabled for every request to this family.
	DefaultTools []ai.ToolType

	ContextWindow   int
	MaxOutputTokens int
	SupportsVision  bool
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// registry is sorted by descending prefix length so the first match is the
// most specific one.
var registry = buildRegistry()

// Lookup returns the most specific ModelInfo whose prefix matches id
// (case-insensitive). Returns nil if the model is unknown.
func Lookup(id string) *ModelInfo {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil
	}
	for _, m := range registry {
		if strings.HasPrefix(id, m.Prefix) {
			return m
		}
	}
	return nil
}

// DialectFor returns the dialect for id. Unknown models use chat completions,
// the shape every OpenAI-compatible server speaks.
func DialectFor(id string) Dialect {
	if m := Lookup(id); m != nil {
		return m.Dialect
	}
	return DialectChat
}

// DefaultToolsFor returns a copy of the default hosted tools for id.
func DefaultToolsFor(id string) []ai.ToolType {
	m := Lookup(id)
	if m == nil || len(m.DefaultTools) == 0 {
		return nil
	}
	return append([]ai.ToolType(nil), m.DefaultTools...)
}

// All returns every registered ModelInfo, most specific prefix first.
func All() []*ModelInfo {
	return append([]*ModelInfo(nil), registry...)
}

// ---------------------------------------------------------------------------
// Registry builder
// ---------------------------------------------------------------------------

func reg(m ModelInfo) *ModelInfo { return &m }

var webSearch = []ai.ToolType{ai.ToolWebSearch}

func buildRegistry() []*ModelInfo {
	ms := []*ModelInfo{
		// ── Responses API ──────────────────────────────────────────────────
		reg(ModelInfo{
			Prefix: "gpt-5", DisplayName: "GPT-5", Dialect: DialectResponses,
			DefaultTools: webSearch, ContextWindow: 400000, MaxOutputTokens: 128000, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "gpt-5-mini", DisplayName: "GPT-5 Mini", Dialect: DialectResponses,
			DefaultTools: webSearch, ContextWindow: 400000, MaxOutputTokens: 128000, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "gpt-5-nano", DisplayName: "GPT-5 Nano", Dialect: DialectResponses,
			DefaultTools: webSearch, ContextWindow: 400000, MaxOutputTokens: 128000, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "gpt-4.1", DisplayName: "GPT-4.1", Dialect: DialectResponses,
			ContextWindow: 1047576, MaxOutputTokens: 32768, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "o3", DisplayName: "o3", Dialect: DialectResponses,
			ContextWindow: 200000, MaxOutputTokens: 100000, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "o4-mini", DisplayName: "o4-mini", Dialect: DialectResponses,
			ContextWindow: 200000, MaxOutputTokens: 100000, SupportsVision: true,
		}),

		// ── Chat Completions ───────────────────────────────────────────────
		reg(ModelInfo{
			Prefix: "gpt-4o", DisplayName: "GPT-4o", Dialect: DialectChat,
			ContextWindow: 128000, MaxOutputTokens: 16384, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "gpt-4o-mini", DisplayName: "GPT-4o Mini", Dialect: DialectChat,
			ContextWindow: 128000, MaxOutputTokens: 16384, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "gpt-4o-search-preview", DisplayName: "GPT-4o Search Preview", Dialect: DialectChat,
			ContextWindow: 128000, MaxOutputTokens: 16384,
		}),
		reg(ModelInfo{
			Prefix: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", Dialect: DialectChat,
			ContextWindow: 128000, MaxOutputTokens: 4096, SupportsVision: true,
		}),
		reg(ModelInfo{
			Prefix: "gpt-3.5-turbo", DisplayName: "GPT-3.5 Turbo", Dialect: DialectChat,
			ContextWindow: 16385, MaxOutputTokens: 4096,
		}),
		reg(ModelInfo{
			Prefix: "o1", DisplayName: "o1", Dialect: DialectChat,
			ContextWindow: 200000, MaxOutputTokens: 100000, SupportsVision: true,
		}),
	}

	sort.SliceStable(ms, func(i, j int) bool {
		return len(ms[i].Prefix) > len(ms[j].Prefix)
	})
	return ms
}
