// Package chat drives streaming chat requests.
//
// A Controller registers a cancellation handle per request, pumps the
// provider's canonical events to the caller in transport order and records
// hosted tool calls through a MessageWriter as they happen.
//
// Usage:
//
//	ctl := chat.New(chat.Options{
//	    Providers: ai.NewRegistry(openai.New(openai.Options{})),
//	    Store:     store,
//	})
//	for ev := range ctl.Stream(ctx, chat.StreamRequest{RequestID: id, Messages: turns, Config: cfg}) {
//	    if ev.Type == ai.StreamEventTextDelta {
//	        fmt.Print(ev.Text)
//	    }
//	}
//
// From another goroutine, ctl.CancelChat(id) stops the request. An aborted
// stream closes without a done or error event.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/session"
)

// MessageWriter is the part of the persistence layer the controller needs to
// record tool calls. session.Store satisfies it.
type MessageWriter interface {
	CreateMessage(ctx context.Context, p session.CreateMessageParams) (string, error)
	UpdateMessage(ctx context.Context, id string, p session.UpdateMessageParams) error
}

// StreamRequest is one chat call. It must not be modified after submission.
type StreamRequest struct {
	// RequestID keys the request for CancelChat. Empty means a fresh UUID;
	// such a request can only be stopped through its context.
	RequestID string `json:"request_id"`
	// SessionID, when set together with a store, enables tool-call rows.
	SessionID string            `json:"session_id,omitempty"`
	Messages  []ai.Turn         `json:"messages"`
	Config    ai.ProviderConfig `json:"config"`
	Tools     []ai.ToolType     `json:"tools,omitempty"`
}

// Callbacks receive the events of one request. Nil callbacks are skipped.
// OnToolCallComplete also receives failed tool calls.
type Callbacks struct {
	OnChunk            func(text string)
	OnToolCallStart    func(rec ai.ToolCallRecord)
	OnToolCallProgress func(rec ai.ToolCallRecord)
	OnToolCallComplete func(rec ai.ToolCallRecord)
	OnDone             func()
	OnError            func(message string)
}

// Options configures a Controller.
type Options struct {
	Providers *ai.Registry
	Requests  *Registry     // nil → NewRegistry()
	Store     MessageWriter // optional: no tool-call rows when nil
	Logger    *slog.Logger  // nil → discard
}

// Controller is safe for concurrent use. Requests are independent of each
// other.
type Controller struct {
	providers *ai.Registry
	requests  *Registry
	store     MessageWriter
	logger    *slog.Logger
}

// New creates a Controller.
func New(opts Options) *Controller {
	c := &Controller{
		providers: opts.Providers,
		requests:  opts.Requests,
		store:     opts.Store,
		logger:    opts.Logger,
	}
	if c.providers == nil {
		c.providers = ai.NewRegistry()
	}
	if c.requests == nil {
		c.requests = NewRegistry()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Requests returns the registry of in-flight requests.
func (c *Controller) Requests() *Registry { return c.requests }

// Stream starts req and returns its events. The channel is always closed.
// It carries exactly one done or error event, or none when the request is
// cancelled through CancelChat or ctx.
//
// Callers must drain the channel or cancel the request.
func (c *Controller) Stream(ctx context.Context, req StreamRequest) <-chan ai.StreamEvent {
	_, events := c.start(ctx, req)
	return events
}

// Run streams req and invokes cb for every event until the request finishes.
// It blocks; at most one of OnDone and OnError fires, and neither fires once
// the request is cancelled.
func (c *Controller) Run(ctx context.Context, req StreamRequest, cb Callbacks) {
	h, events := c.start(ctx, req)
	consume(h, events, cb)
}

// StreamChat is the fire-and-forget form of Run. The request is registered
// before StreamChat returns, so an immediate CancelChat finds it.
func (c *Controller) StreamChat(ctx context.Context, req StreamRequest, cb Callbacks) {
	h, events := c.start(ctx, req)
	go consume(h, events, cb)
}

// CancelChat aborts an in-flight request. It reports false for unknown or
// already finished ids, so a second cancel of the same id returns false.
func (c *Controller) CancelChat(requestID string) bool {
	found := c.requests.Cancel(requestID)
	c.logger.Info("chat: cancel", "request_id", requestID, "found", found)
	return found
}

// Shutdown aborts every outstanding request.
func (c *Controller) Shutdown() {
	if n := c.requests.Shutdown(); n > 0 {
		c.logger.Info("chat: aborted outstanding requests", "count", n)
	}
}

func (c *Controller) start(ctx context.Context, req StreamRequest) (*Handle, <-chan ai.StreamEvent) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	out := make(chan ai.StreamEvent, 16)
	h := newHandle(ctx)
	if err := c.requests.Register(req.RequestID, h); err != nil {
		h.release()
		c.logger.Warn("chat: request rejected", "request_id", req.RequestID, "error", err)
		out <- ai.Failure(fmt.Errorf("request %s: %w", req.RequestID, err))
		close(out)
		return h, out
	}
	go c.pump(h, req, out)
	return h, out
}

// pump forwards provider events to out until the provider closes its
// channel. Once the handle is stopped events are drained, not delivered.
func (c *Controller) pump(h *Handle, req StreamRequest, out chan<- ai.StreamEvent) {
	defer close(out)
	defer h.release()
	defer c.requests.Release(req.RequestID, h)

	log := c.logger.With("request_id", req.RequestID)
	finish := func(ev ai.StreamEvent) {
		c.requests.Release(req.RequestID, h)
		select {
		case out <- ev:
		case <-h.ctx.Done():
		}
	}

	provider, ok := c.providers.Lookup(req.Config.Provider)
	if !ok {
		log.Warn("chat: unknown provider", "provider", req.Config.Provider)
		finish(ai.Failure(fmt.Errorf("unknown provider %q", req.Config.Provider)))
		return
	}

	log.Debug("chat: stream start", "provider", provider.Kind(), "model", req.Config.Model,
		"session_id", req.SessionID, "turns", len(req.Messages))

	var rows *toolRows
	if c.store != nil && req.SessionID != "" {
		rows = &toolRows{
			store:     c.store,
			ctx:       context.WithoutCancel(h.ctx),
			sessionID: req.SessionID,
			ids:       make(map[string]string),
			logger:    log,
		}
	}

	events := provider.Stream(h.ctx, ai.Request{
		Messages: req.Messages,
		Config:   req.Config,
		Tools:    req.Tools,
	})

	order := make(toolOrder)
	finished := false
	for ev := range events {
		if finished || h.stopped() {
			continue
		}
		if isToolEvent(ev.Type) {
			if !order.admit(ev) {
				log.Debug("chat: tool event out of order", "type", ev.Type)
				continue
			}
			if rows != nil {
				rows.record(ev)
			}
		}
		switch ev.Type {
		case ai.StreamEventDone:
			finished = true
			log.Debug("chat: stream done")
			finish(ev)
		case ai.StreamEventError:
			finished = true
			log.Warn("chat: stream error", "error", ev.Err, "context_overflow", ai.IsContextOverflow(ev.Err))
			finish(ev)
		default:
			select {
			case out <- ev:
			case <-h.ctx.Done():
			}
		}
	}

	switch {
	case h.stopped():
		log.Info("chat: stream cancelled")
	case !finished:
		finish(ai.Failure(fmt.Errorf("%s stream ended without completion", provider.Kind())))
	}
}

// consume dispatches events to cb, checking the handle before each one.
func consume(h *Handle, events <-chan ai.StreamEvent, cb Callbacks) {
	for ev := range events {
		if h.stopped() {
			continue
		}
		cb.dispatch(ev)
	}
}

func (cb Callbacks) dispatch(ev ai.StreamEvent) {
	switch ev.Type {
	case ai.StreamEventTextDelta:
		if cb.OnChunk != nil {
			cb.OnChunk(ev.Text)
		}
	case ai.StreamEventToolStarted:
		if cb.OnToolCallStart != nil && ev.Tool != nil {
			cb.OnToolCallStart(*ev.Tool)
		}
	case ai.StreamEventToolProgress:
		if cb.OnToolCallProgress != nil && ev.Tool != nil {
			cb.OnToolCallProgress(*ev.Tool)
		}
	case ai.StreamEventToolCompleted, ai.StreamEventToolFailed:
		if cb.OnToolCallComplete != nil && ev.Tool != nil {
			cb.OnToolCallComplete(*ev.Tool)
		}
	case ai.StreamEventDone:
		if cb.OnDone != nil {
			cb.OnDone()
		}
	case ai.StreamEventError:
		if cb.OnError != nil {
			cb.OnError(ErrorMessage(ev.Err))
		}
	}
}

// ErrorMessage renders err for OnError. It is never empty.
func ErrorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
