// Package tools is the catalog of hosted tools: tools the model provider runs
// on our behalf (web search, file search) whose lifecycle we only observe.
package tools

import (
	"encoding/json"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// ---------------------------------------------------------------------------
// Tool interface
// ---------------------------------------------------------------------------

// Tool describes one hosted tool kind.
// Register it with the Registry; the provider adapter consults it when
// building requests and when decoding tool items from the stream.
type Tool interface {
	// Type is the tool kind callers ask for.
	Type() ai.ToolType
	// ItemType is the output item type the provider uses for calls of this
	// tool, e.g. "web_search_call".
	ItemType() string
	// Check reports why cfg cannot serve this tool, or nil when it can.
	Check(cfg ai.ProviderConfig) error
	// Definition returns the tool entry sent upstream.
	Definition(cfg ai.ProviderConfig) map[string]any
	// Query extracts the search query from a finished output item.
	Query(item json.RawMessage) string
}
