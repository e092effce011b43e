package models

import (
	"testing"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

func TestLookup_MostSpecificPrefix(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"gpt-5", "gpt-5"},
		{"gpt-5-mini-2025-08-07", "gpt-5-mini"},
		{"GPT-4o-mini", "gpt-4o-mini"},
		{"gpt-4o-2024-08-06", "gpt-4o"},
		{"o3-pro", "o3"},
		{"gpt-4.1-nano", "gpt-4.1"},
	}
	for _, tc := range cases {
		info := Lookup(tc.id)
		if info == nil {
			t.Errorf("Lookup(%q) = nil", tc.id)
			continue
		}
		if info.Prefix != tc.want {
			t.Errorf("Lookup(%q).Prefix = %q, want %q", tc.id, info.Prefix, tc.want)
		}
	}
}

func TestLookup_Unknown(t *testing.T) {
	if Lookup("llama-3-70b") != nil {
		t.Error("Lookup of unknown model should return nil")
	}
	if Lookup("  ") != nil {
		t.Error("Lookup of blank id should return nil")
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]Dialect{
		"gpt-5":           DialectResponses,
		"gpt-4.1":         DialectResponses,
		"o4-mini":         DialectResponses,
		"gpt-4o":          DialectChat,
		"o1-preview":      DialectChat,
		"deepseek-chat":   DialectChat,
		"qwen-max-latest": DialectChat,
	}
	for id, want := range cases {
		if got := DialectFor(id); got != want {
			t.Errorf("DialectFor(%q) = %s, want %s", id, got, want)
		}
	}
}

func TestDefaultToolsFor(t *testing.T) {
	tools := DefaultToolsFor("gpt-5-nano")
	if len(tools) != 1 || tools[0] != ai.ToolWebSearch {
		t.Errorf("DefaultToolsFor(gpt-5-nano) = %v", tools)
	}
	tools[0] = ai.ToolFileSearch
	if again := DefaultToolsFor("gpt-5-nano"); again[0] != ai.ToolWebSearch {
		t.Error("DefaultToolsFor returned shared slice")
	}
	if tools := DefaultToolsFor("gpt-4o"); tools != nil {
		t.Errorf("DefaultToolsFor(gpt-4o) = %v, want nil", tools)
	}
}

func TestAll_WellFormed(t *testing.T) {
	all := All()
	if len(all) < 10 {
		t.Errorf("All() returned %d models, want at least 10", len(all))
	}
	for i, m := range all {
		if m.ContextWindow <= 0 {
			t.Errorf("model %q has zero ContextWindow", m.Prefix)
		}
		if m.Dialect != DialectChat && m.Dialect != DialectResponses {
			t.Errorf("model %q has dialect %q", m.Prefix, m.Dialect)
		}
		if i > 0 && len(all[i-1].Prefix) < len(m.Prefix) {
			t.Errorf("registry not ordered by prefix length at %q", m.Prefix)
		}
	}
}
