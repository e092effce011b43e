// Package toolcall folds the scattered lifecycle notices a provider sends for
// hosted tool invocations into one coherent record per item.
package toolcall

import (
	"time"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// Tracker holds the tool-call records of a single stream. It is not safe for
// concurrent use; each stream owns its own Tracker and drops it when done.
type Tracker struct {
	records map[string]*ai.ToolCallRecord
	// notified marks items whose detailed completion was already emitted.
	notified map[string]bool
	now      func() time.Time
}

func New() *Tracker {
	return &Tracker{
		records:  make(map[string]*ai.ToolCallRecord),
		notified: make(map[string]bool),
		now:      time.Now,
	}
}

// Start records a new item in progress and returns a tool_started event.
// A second Start for a known item is ignored.
func (t *Tracker) Start(itemID string, typ ai.ToolType, outputIndex *int) (ai.StreamEvent, bool) {
	if itemID == "" {
		return ai.StreamEvent{}, false
	}
	if _, ok := t.records[itemID]; ok {
		return ai.StreamEvent{}, false
	}
	rec := &ai.ToolCallRecord{
		ItemID:    itemID,
		Type:      typ,
		Status:    ai.ToolInProgress,
		Timestamp: t.now(),
	}
	if outputIndex != nil {
		idx := *outputIndex
		rec.OutputIndex = &idx
	}
	t.records[itemID] = rec
	return t.emit(ai.StreamEventToolStarted, rec), true
}

// Progress advances a known item to status and returns a tool_progress event.
// Unknown items, terminal items and backwards moves yield nothing. The
// timestamp changes only when the status does.
func (t *Tracker) Progress(itemID string, status ai.ToolStatus) (ai.StreamEvent, bool) {
	rec, ok := t.records[itemID]
	if !ok || rec.Status.Terminal() || status.Terminal() {
		return ai.StreamEvent{}, false
	}
	if status.Rank() < rec.Status.Rank() {
		return ai.StreamEvent{}, false
	}
	if status != rec.Status {
		rec.Status = status
		rec.Timestamp = t.now()
	}
	return t.emit(ai.StreamEventToolProgress, rec), true
}

// MarkCompleted handles a bare completion notice: the status moves to
// completed but nothing is emitted. The detailed notice follows via Complete.
func (t *Tracker) MarkCompleted(itemID string) {
	rec, ok := t.records[itemID]
	if !ok || rec.Status.Terminal() {
		return
	}
	rec.Status = ai.ToolCompleted
	rec.Timestamp = t.now()
}

// Complete attaches the query to a known item, marks it completed and returns
// a tool_completed event. It emits at most once per item.
func (t *Tracker) Complete(itemID, query string) (ai.StreamEvent, bool) {
	rec, ok := t.records[itemID]
	if !ok || rec.Status == ai.ToolFailed || t.notified[itemID] {
		return ai.StreamEvent{}, false
	}
	if rec.Status != ai.ToolCompleted {
		rec.Status = ai.ToolCompleted
		rec.Timestamp = t.now()
	}
	rec.Query = query
	t.notified[itemID] = true
	return t.emit(ai.StreamEventToolCompleted, rec), true
}

// Fail marks a known item failed and returns a tool_failed event. An item
// moved to completed by a bare notice can still fail until it is reported.
func (t *Tracker) Fail(itemID string) (ai.StreamEvent, bool) {
	rec, ok := t.records[itemID]
	if !ok || rec.Status == ai.ToolFailed || t.notified[itemID] {
		return ai.StreamEvent{}, false
	}
	rec.Status = ai.ToolFailed
	rec.Timestamp = t.now()
	t.notified[itemID] = true
	return t.emit(ai.StreamEventToolFailed, rec), true
}

// Get returns a snapshot of the record for itemID.
func (t *Tracker) Get(itemID string) (ai.ToolCallRecord, bool) {
	rec, ok := t.records[itemID]
	if !ok {
		return ai.ToolCallRecord{}, false
	}
	return snapshot(rec), true
}

// Len returns the number of tracked items.
func (t *Tracker) Len() int { return len(t.records) }

func (t *Tracker) emit(typ ai.StreamEventType, rec *ai.ToolCallRecord) ai.StreamEvent {
	snap := snapshot(rec)
	return ai.StreamEvent{Type: typ, Tool: &snap}
}

func snapshot(rec *ai.ToolCallRecord) ai.ToolCallRecord {
	out := *rec
	if rec.OutputIndex != nil {
		idx := *rec.OutputIndex
		out.OutputIndex = &idx
	}
	return out
}
