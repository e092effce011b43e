// Package session persists chat sessions and their messages.
//
// A session is an ordered conversation; every message row belongs to exactly
// one session. Besides plain text turns, messages record hosted tool calls
// (content type tool_call) so a transcript can show what the model searched.
//
// Usage:
//
//	store, _ := session.OpenSQLite("~/.local/share/chatstream/chat.db")
//	defer store.Close()
//
//	sess, _ := store.CreateSession(ctx, "")
//	id, _ := store.CreateMessage(ctx, session.CreateMessageParams{
//	    SessionID: sess.ID, Role: ai.RoleUser, Content: "hello",
//	})
//	msgs, _ := store.ListMessages(ctx, sess.ID)
package session

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
)

// DefaultTitle names sessions that have no user message yet.
const DefaultTitle = "New Chat"

const titleMaxRunes = 30

// Status is the delivery state of a message.
type Status string

const (
	StatusSent    Status = "sent"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// ContentType tells text turns apart from tool-call rows.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentToolCall ContentType = "tool_call"
)

// Session is one conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted row of a conversation.
type Message struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	Role        ai.Role     `json:"role"`
	Content     string      `json:"content"`
	Status      Status      `json:"status"`
	ContentType ContentType `json:"content_type"`

	// Tool call fields, set when ContentType is tool_call.
	ToolType        ai.ToolType   `json:"tool_type,omitempty"`
	ToolStatus      ai.ToolStatus `json:"tool_status,omitempty"`
	ToolQuery       string        `json:"tool_query,omitempty"`
	ToolItemID      string        `json:"tool_item_id,omitempty"`
	ToolOutputIndex *int          `json:"tool_output_index,omitempty"`

	Attachments []ai.Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Turn converts m into the shape providers consume.
func (m Message) Turn() ai.Turn {
	return ai.Turn{Role: m.Role, Content: m.Content, Attachments: m.Attachments}
}

// CreateMessageParams describes a new message. Status defaults to sent and
// ContentType to text.
type CreateMessageParams struct {
	SessionID   string          `json:"session_id"`
	Role        ai.Role         `json:"role"`
	Content     string          `json:"content"`
	Status      Status          `json:"status,omitempty"`
	ContentType ContentType     `json:"content_type,omitempty"`
	Attachments []ai.Attachment `json:"attachments,omitempty"`

	ToolType        ai.ToolType   `json:"tool_type,omitempty"`
	ToolStatus      ai.ToolStatus `json:"tool_status,omitempty"`
	ToolItemID      string        `json:"tool_item_id,omitempty"`
	ToolOutputIndex *int          `json:"tool_output_index,omitempty"`
	ToolQuery       string        `json:"tool_query,omitempty"`
}

// UpdateMessageParams changes the non-nil fields of a message.
type UpdateMessageParams struct {
	Content    *string        `json:"content,omitempty"`
	Status     *Status        `json:"status,omitempty"`
	ToolStatus *ai.ToolStatus `json:"tool_status,omitempty"`
	ToolQuery  *string        `json:"tool_query,omitempty"`
}

func (p UpdateMessageParams) empty() bool {
	return p.Content == nil && p.Status == nil && p.ToolStatus == nil && p.ToolQuery == nil
}

// Store is the persistence bridge. Implementations must be safe for
// concurrent use.
type Store interface {
	CreateSession(ctx context.Context, title string) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	// ListSessions returns sessions most recently updated first. A limit
	// <= 0 means 100.
	ListSessions(ctx context.Context, limit, offset int) ([]Session, error)
	RenameSession(ctx context.Context, id, title string) error
	// DeleteSession removes the session together with its messages.
	DeleteSession(ctx context.Context, id string) error
	SessionExists(ctx context.Context, id string) (bool, error)

	// CreateMessage returns ErrSessionNotFound when the session is missing.
	// The first user message of a session also names it (see Title).
	CreateMessage(ctx context.Context, p CreateMessageParams) (string, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	UpdateMessage(ctx context.Context, id string, p UpdateMessageParams) error
	// AppendMessageContent adds text to the end of a message's content.
	AppendMessageContent(ctx context.Context, id, text string) error
	// ListMessages returns a session's messages oldest first.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)

	Close() error
}

// Title derives a session title from the first user message: whitespace
// trimmed, line breaks folded to spaces, cut to 30 characters.
func Title(content string) string {
	t := strings.TrimSpace(content)
	t = strings.Join(strings.FieldsFunc(t, func(r rune) bool { return r == '\n' || r == '\r' }), " ")
	if t == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(t) <= titleMaxRunes {
		return t
	}
	return string([]rune(t)[:titleMaxRunes]) + "..."
}
