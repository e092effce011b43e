package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// ErrMissingVectorStores is returned by FileSearch.Check when no vector store
// is configured.
var ErrMissingVectorStores = errors.New("file_search requires at least one vector store id")

// Hosted returns a registry holding every hosted tool the adapter supports.
func Hosted() *Registry {
	r := NewRegistry()
	r.Register(WebSearch{})
	r.Register(FileSearch{})
	return r
}

// ---------------------------------------------------------------------------
// web_search
// ---------------------------------------------------------------------------

type WebSearch struct{}

func (WebSearch) Type() ai.ToolType { return ai.ToolWebSearch }
func (WebSearch) ItemType() string  { return "web_search_call" }

func (WebSearch) Check(ai.ProviderConfig) error { return nil }

func (WebSearch) Definition(ai.ProviderConfig) map[string]any {
	return map[string]any{"type": string(ai.ToolWebSearch)}
}

// Query reads action.query, falling back to the older top-level query field.
func (WebSearch) Query(item json.RawMessage) string {
	var v struct {
		Query  string `json:"query"`
		Action struct {
			Query string `json:"query"`
		} `json:"action"`
	}
	if err := json.Unmarshal(item, &v); err != nil {
		return ""
	}
	if v.Action.Query != "" {
		return v.Action.Query
	}
	return v.Query
}

// ---------------------------------------------------------------------------
// file_search
// ---------------------------------------------------------------------------

type FileSearch struct{}

func (FileSearch) Type() ai.ToolType { return ai.ToolFileSearch }
func (FileSearch) ItemType() string  { return "file_search_call" }

func (FileSearch) Check(cfg ai.ProviderConfig) error {
	if cfg.OpenAI == nil || len(nonEmpty(cfg.OpenAI.VectorStoreIDs)) == 0 {
		return ErrMissingVectorStores
	}
	return nil
}

func (FileSearch) Definition(cfg ai.ProviderConfig) map[string]any {
	var ids []string
	if cfg.OpenAI != nil {
		ids = nonEmpty(cfg.OpenAI.VectorStoreIDs)
	}
	return map[string]any{
		"type":             string(ai.ToolFileSearch),
		"vector_store_ids": ids,
	}
}

// Query joins the queries the provider ran for the call.
func (FileSearch) Query(item json.RawMessage) string {
	var v struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal(item, &v); err != nil {
		return ""
	}
	return strings.Join(nonEmpty(v.Queries), ", ")
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
