package chat

import (
	"context"
	"log/slog"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/session"
)

// toolRows mirrors the tool calls of one stream into message rows. Calls are
// synchronous so rows follow event order. Failures are logged and swallowed.
type toolRows struct {
	store     MessageWriter
	ctx       context.Context
	sessionID string
	ids       map[string]string // item id → message id
	logger    *slog.Logger
}

func (t *toolRows) record(ev ai.StreamEvent) {
	rec := ev.Tool
	switch ev.Type {
	case ai.StreamEventToolStarted:
		id, err := t.store.CreateMessage(t.ctx, session.CreateMessageParams{
			SessionID:       t.sessionID,
			Role:            ai.RoleTool,
			Status:          session.StatusSent,
			ContentType:     session.ContentToolCall,
			ToolType:        rec.Type,
			ToolStatus:      rec.Status,
			ToolItemID:      rec.ItemID,
			ToolOutputIndex: rec.OutputIndex,
		})
		if err != nil {
			t.logger.Error("chat: create tool message", "item_id", rec.ItemID, "tool", rec.Type, "error", err)
			return
		}
		t.ids[rec.ItemID] = id

	case ai.StreamEventToolProgress:
		t.update(rec, session.UpdateMessageParams{ToolStatus: &rec.Status})

	case ai.StreamEventToolCompleted:
		content := completionText(rec)
		t.update(rec, session.UpdateMessageParams{
			Content:    &content,
			ToolStatus: &rec.Status,
			ToolQuery:  &rec.Query,
		})

	case ai.StreamEventToolFailed:
		status := session.StatusError
		t.update(rec, session.UpdateMessageParams{ToolStatus: &rec.Status, Status: &status})
	}
}

func (t *toolRows) update(rec *ai.ToolCallRecord, p session.UpdateMessageParams) {
	id, ok := t.ids[rec.ItemID]
	if !ok {
		t.logger.Debug("chat: no tool message to update", "item_id", rec.ItemID)
		return
	}
	if err := t.store.UpdateMessage(t.ctx, id, p); err != nil {
		t.logger.Warn("chat: update tool message", "item_id", rec.ItemID, "status", rec.Status, "error", err)
	}
}

// completionText describes a finished tool call, e.g.
// "web_search completed: weather in Paris".
func completionText(rec *ai.ToolCallRecord) string {
	text := string(rec.Type) + " completed"
	if rec.Query != "" {
		text += ": " + rec.Query
	}
	return text
}

// toolOrder admits tool events only in lifecycle order per item: one
// started, any number of progress, then one completed or failed.
type toolOrder map[string]bool // item id → finished

func (o toolOrder) admit(ev ai.StreamEvent) bool {
	if ev.Tool == nil {
		return false
	}
	id := ev.Tool.ItemID
	finished, seen := o[id]
	switch ev.Type {
	case ai.StreamEventToolStarted:
		if seen {
			return false
		}
		o[id] = false
		return true
	case ai.StreamEventToolProgress:
		return seen && !finished
	case ai.StreamEventToolCompleted, ai.StreamEventToolFailed:
		if !seen || finished {
			return false
		}
		o[id] = true
		return true
	}
	return false
}

func isToolEvent(t ai.StreamEventType) bool {
	switch t {
	case ai.StreamEventToolStarted, ai.StreamEventToolProgress,
		ai.StreamEventToolCompleted, ai.StreamEventToolFailed:
		return true
	}
	return false
}
