package tools_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/tools"
)

func types(ts []tools.Tool) []ai.ToolType {
	out := make([]ai.ToolType, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Type())
	}
	return out
}

func equalTypes(a, b []ai.ToolType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func withStores(ids ...string) ai.ProviderConfig {
	return ai.ProviderConfig{
		Provider: ai.ProviderOpenAI, APIKey: "k", Model: "gpt-5",
		OpenAI: &ai.OpenAIOptions{VectorStoreIDs: ids},
	}
}

func TestRegistry_GetAndByItemType(t *testing.T) {
	reg := tools.Hosted()

	if got := reg.Get(ai.ToolWebSearch); got == nil || got.ItemType() != "web_search_call" {
		t.Fatalf("Get(web_search) = %v", got)
	}
	if got := reg.ByItemType("file_search_call"); got == nil || got.Type() != ai.ToolFileSearch {
		t.Fatalf("ByItemType(file_search_call) = %v", got)
	}
	if got := reg.ByItemType("computer_call"); got != nil {
		t.Errorf("ByItemType(computer_call) = %v, want nil", got)
	}
	if got := reg.Get("code_interpreter"); got != nil {
		t.Errorf("Get(code_interpreter) = %v, want nil", got)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.WebSearch{})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	reg.Register(tools.WebSearch{})
}

func TestRegistry_Types(t *testing.T) {
	got := tools.Hosted().Types()
	want := []ai.ToolType{ai.ToolFileSearch, ai.ToolWebSearch}
	if !equalTypes(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
}

func TestResolve(t *testing.T) {
	reg := tools.Hosted()
	cases := []struct {
		name      string
		defaults  []ai.ToolType
		requested []ai.ToolType
		cfg       ai.ProviderConfig
		want      []ai.ToolType
	}{
		{
			name:     "defaults only",
			defaults: []ai.ToolType{ai.ToolWebSearch},
			cfg:      withStores(),
			want:     []ai.ToolType{ai.ToolWebSearch},
		},
		{
			name:      "dedupe keeps first seen order",
			defaults:  []ai.ToolType{ai.ToolWebSearch},
			requested: []ai.ToolType{ai.ToolFileSearch, ai.ToolWebSearch, ai.ToolFileSearch},
			cfg:       withStores("vs_1"),
			want:      []ai.ToolType{ai.ToolWebSearch, ai.ToolFileSearch},
		},
		{
			name:      "file search without stores dropped",
			requested: []ai.ToolType{ai.ToolFileSearch, ai.ToolWebSearch},
			cfg:       withStores(" "),
			want:      []ai.ToolType{ai.ToolWebSearch},
		},
		{
			name:      "unknown tool dropped",
			requested: []ai.ToolType{"image_generation"},
			cfg:       withStores(),
			want:      []ai.ToolType{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := types(reg.Resolve(tc.defaults, tc.requested, tc.cfg, nil))
			if !equalTypes(got, tc.want) {
				t.Errorf("Resolve = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFileSearch_CheckAndDefinition(t *testing.T) {
	fs := tools.FileSearch{}
	if err := fs.Check(ai.ProviderConfig{}); !errors.Is(err, tools.ErrMissingVectorStores) {
		t.Errorf("Check without options = %v", err)
	}
	cfg := withStores("vs_1", "", "vs_2")
	if err := fs.Check(cfg); err != nil {
		t.Fatalf("Check = %v", err)
	}
	def := fs.Definition(cfg)
	ids, _ := def["vector_store_ids"].([]string)
	if def["type"] != "file_search" || len(ids) != 2 || ids[1] != "vs_2" {
		t.Errorf("Definition = %v", def)
	}
}

func TestQueryExtraction(t *testing.T) {
	ws := tools.WebSearch{}
	if q := ws.Query(json.RawMessage(`{"type":"web_search_call","action":{"type":"search","query":"weather"}}`)); q != "weather" {
		t.Errorf("web search action query = %q", q)
	}
	if q := ws.Query(json.RawMessage(`{"query":"legacy"}`)); q != "legacy" {
		t.Errorf("web search legacy query = %q", q)
	}
	if q := ws.Query(json.RawMessage(`not json`)); q != "" {
		t.Errorf("malformed item query = %q", q)
	}

	fs := tools.FileSearch{}
	if q := fs.Query(json.RawMessage(`{"queries":["alpha","","beta"]}`)); q != "alpha, beta" {
		t.Errorf("file search query = %q", q)
	}
}
