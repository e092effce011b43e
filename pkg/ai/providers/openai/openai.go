// Package openai implements the ai.Provider interface for OpenAI (streaming).
// Two wire dialects are spoken: chat completions and the Responses API. The
// dialect is chosen once per request from the config. Any OpenAI-compatible
// endpoint works by setting BaseURL.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/ai/models"
	"github.com/bitop-dev/chatstream/pkg/ai/sse"
	"github.com/bitop-dev/chatstream/pkg/tools"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Options configures a Provider. Zero values are usable.
type Options struct {
	// HTTPClient sends requests. Defaults to a client without an overall
	// timeout so long generations are not cut short.
	HTTPClient sse.Doer
	// Tools is the hosted tool catalog. Defaults to tools.Hosted().
	Tools *tools.Registry
	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Provider is the OpenAI streaming provider.
type Provider struct {
	client sse.Doer
	tools  *tools.Registry
	logger *slog.Logger
}

// New creates a Provider.
func New(opts Options) *Provider {
	p := &Provider{client: opts.HTTPClient, tools: opts.Tools, logger: opts.Logger}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.tools == nil {
		p.tools = tools.Hosted()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

func (p *Provider) Kind() ai.ProviderKind { return ai.ProviderOpenAI }

// ValidateConfig checks the provider kind and the required fields.
func (p *Provider) ValidateConfig(cfg ai.ProviderConfig) bool {
	if cfg.Provider != ai.ProviderOpenAI {
		p.logger.Warn("openai: config rejected: provider is not openai", "provider", cfg.Provider)
		return false
	}
	if !cfg.HasCredentials() {
		p.logger.Warn("openai: config rejected: missing api key or model",
			"has_api_key", strings.TrimSpace(cfg.APIKey) != "",
			"has_model", strings.TrimSpace(cfg.Model) != "")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Dialects
// ---------------------------------------------------------------------------

// dialect is one OpenAI wire shape. A value serves a single stream.
type dialect interface {
	kind() models.Dialect
	path() string
	body(req ai.Request) any
	// translate maps one native event to canonical events. finished reports
	// that the upstream signalled the end of the response.
	translate(ev sse.Event) (out []ai.StreamEvent, finished bool, err error)
	// endOfStream is consulted when the body ends before translate reported
	// finished. A non-nil error fails the stream.
	endOfStream() error
}

// selectDialect picks the wire shape from the config alone: an explicit
// OpenAI.API wins, otherwise the model table decides.
func selectDialect(cfg ai.ProviderConfig) models.Dialect {
	if cfg.OpenAI != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.OpenAI.API)) {
		case ai.APIChat:
			return models.DialectChat
		case ai.APIResponses:
			return models.DialectResponses
		}
	}
	return models.DialectFor(cfg.Model)
}

func (p *Provider) newDialect(cfg ai.ProviderConfig, logger *slog.Logger) dialect {
	if selectDialect(cfg) == models.DialectResponses {
		return newResponses(p.tools, logger)
	}
	return &completions{logger: logger}
}

// ---------------------------------------------------------------------------
// Stream implementation
// ---------------------------------------------------------------------------

// Stream implements ai.Provider. The returned channel is closed when the
// stream ends. A cancelled ctx closes it without a terminal event.
func (p *Provider) Stream(ctx context.Context, req ai.Request) <-chan ai.StreamEvent {
	events := make(chan ai.StreamEvent, 64)
	go func() {
		defer close(events)
		p.stream(ctx, req, events)
	}()
	return events
}

func (p *Provider) stream(ctx context.Context, req ai.Request, events chan<- ai.StreamEvent) {
	if !p.ValidateConfig(req.Config) {
		p.logger.Error("openai: stream rejected: invalid configuration")
		events <- ai.Failure(fmt.Errorf("invalid OpenAI configuration: %w", ai.ErrInvalidConfig))
		return
	}

	cfg := req.Config
	d := p.newDialect(cfg, p.logger)
	log := p.logger.With("model", cfg.Model, "dialect", d.kind())

	send := func(ev ai.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		if ai.IsContextOverflow(err) {
			log.Warn("openai: context window exceeded", "error", err)
		}
		log.Error("openai: stream failed", "error", err)
		send(ai.Failure(fmt.Errorf("OpenAI API error: %w", err)))
	}

	httpReq, err := p.newRequest(ctx, cfg, d, req)
	if err != nil {
		fail(err)
		return
	}

	log.Info("openai: stream started", "base_url", baseURL(cfg), "turns", len(req.Messages))
	st, err := sse.Open(ctx, p.client, httpReq)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("openai: stream aborted before response")
			return
		}
		fail(err)
		return
	}
	defer st.Close()

	chunks := 0
	ended := false
	for ev, err := range st.Events() {
		if err != nil {
			fail(err)
			return
		}
		out, finished, err := d.translate(ev)
		for _, e := range out {
			if e.Type == ai.StreamEventTextDelta {
				chunks++
			}
			if !send(e) {
				log.Info("openai: stream aborted", "chunks", chunks)
				return
			}
		}
		if err != nil {
			fail(err)
			return
		}
		if finished {
			ended = true
			break
		}
	}

	if ctx.Err() != nil {
		log.Info("openai: stream aborted", "chunks", chunks)
		return
	}
	if !ended {
		if err := d.endOfStream(); err != nil {
			fail(err)
			return
		}
	}
	log.Info("openai: stream completed", "chunks", chunks)
	send(ai.Done())
}

func (p *Provider) newRequest(ctx context.Context, cfg ai.ProviderConfig, d dialect, req ai.Request) (*http.Request, error) {
	body, err := json.Marshal(d.body(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(cfg)+d.path(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	if cfg.OpenAI != nil && cfg.OpenAI.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", cfg.OpenAI.Organization)
	}
	return httpReq, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func baseURL(cfg ai.ProviderConfig) string {
	if u := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); u != "" {
		return u
	}
	return defaultBaseURL
}

// upstreamTurns drops tool turns: they exist for display and persistence and
// the upstream API does not accept the role.
func upstreamTurns(turns []ai.Turn) []ai.Turn {
	out := make([]ai.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == ai.RoleTool {
			continue
		}
		out = append(out, t)
	}
	return out
}

// imageParts returns the attachments of t sent as multimodal content. Only
// user turns carry images; every other attachment is dropped from the payload.
func imageParts(t ai.Turn, logger *slog.Logger) []ai.Attachment {
	var images []ai.Attachment
	for _, a := range t.Attachments {
		if t.Role == ai.RoleUser && a.Type == ai.AttachmentImage && a.Data != "" {
			images = append(images, a)
			continue
		}
		logger.Debug("openai: attachment not sent", "role", t.Role, "type", a.Type, "name", a.Name)
	}
	return images
}

// errorBody is the error object OpenAI embeds in stream payloads.
type errorBody struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

func (e *errorBody) err(fallback string) error {
	msg := e.Message
	if msg == "" {
		msg = fallback
	}
	code := strings.Trim(string(e.Code), `"`)
	if code == "" || code == "null" {
		return errors.New(msg)
	}
	return fmt.Errorf("%s (code=%s)", msg, code)
}
