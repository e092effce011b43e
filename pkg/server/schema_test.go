package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeStreamBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"minimal", `{"messages":[{"role":"user","content":"hi"}]}`, ""},
		{"full", `{"request_id":"r1","session_id":"s1","tools":["web_search"],
			"messages":[{"role":"system","content":"x"},{"role":"user","content":"look",
				"attachments":[{"type":"image","name":"a.png","mime_type":"image/png","size":3,"data":"AAA="}]}],
			"config":{"provider":"openai","api_key":"k","model":"gpt-5","temperature":0.2,"max_tokens":100,
				"openai":{"api":"responses","vector_store_ids":["vs_1"]}}}`, ""},
		{"not json", `{"messages":`, "bad request"},
		{"no messages", `{"request_id":"r1"}`, "messages"},
		{"empty messages", `{"messages":[]}`, "/messages"},
		{"bad role", `{"messages":[{"role":"robot","content":"hi"}]}`, "/messages/0/role"},
		{"unknown tool", `{"messages":[{"role":"user"}],"tools":["code_interpreter"]}`, "/tools/0"},
		{"unknown field", `{"messages":[{"role":"user"}],"stream":true}`, "stream"},
		{"temperature range", `{"messages":[{"role":"user"}],"config":{"temperature":3}}`, "/config/temperature"},
		{"attachment without data", `{"messages":[{"role":"user","attachments":[{"type":"image","mime_type":"image/png"}]}]}`, "data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(tc.body))
			body, err := decodeStreamBody(httptest.NewRecorder(), r)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(body.Messages) == 0 {
					t.Error("messages not decoded")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestDecodeStreamBody_DecodesConfig(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"messages":[{"role":"user","content":"hi"}],"config":{"provider":"openai","api_key":"k","model":"gpt-4o","max_tokens":50}}`))
	body, err := decodeStreamBody(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatal(err)
	}
	if body.Config == nil || body.Config.Model != "gpt-4o" || body.Config.MaxTokens == nil || *body.Config.MaxTokens != 50 {
		t.Errorf("config = %+v", body.Config)
	}
}

func TestStreamSchemaCompiles(t *testing.T) {
	if _, err := streamSchema(); err != nil {
		t.Fatal(err)
	}
}
