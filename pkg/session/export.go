// Session export.
//
// ExportMarkdown renders a conversation as a plain transcript. ExportHTML
// renders it as a self-contained, shareable HTML file: all CSS is inlined and
// no JavaScript is required.
//
// Usage:
//
//	sess, _ := store.GetSession(ctx, id)
//	msgs, _ := store.ListMessages(ctx, id)
//	os.WriteFile("chat.html", session.ExportHTML(sess, msgs), 0o644)
package session

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// ---------------------------------------------------------------------------
// Markdown
// ---------------------------------------------------------------------------

// ExportMarkdown renders sess and its messages as Markdown. Tool calls become
// quoted lines; failed messages are marked.
func ExportMarkdown(sess Session, msgs []Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", sess.Title)
	if !sess.CreatedAt.IsZero() {
		fmt.Fprintf(&buf, "_Created %s · %d messages_\n\n", sess.CreatedAt.Format("2006-01-02 15:04 MST"), len(msgs))
	}

	for _, m := range msgs {
		if m.ContentType == ContentToolCall {
			fmt.Fprintf(&buf, "> %s\n\n", toolLine(m))
			continue
		}
		fmt.Fprintf(&buf, "## %s\n\n", roleLabel(m.Role))
		if m.Content != "" {
			buf.WriteString(strings.TrimRight(m.Content, "\n"))
			buf.WriteString("\n\n")
		}
		for _, a := range m.Attachments {
			fmt.Fprintf(&buf, "- attachment: %s (%s)\n", a.Name, a.MIMEType)
		}
		if len(m.Attachments) > 0 {
			buf.WriteString("\n")
		}
		if m.Status == StatusError {
			buf.WriteString("_(error)_\n\n")
		}
	}
	return buf.Bytes()
}

// toolLine summarises a tool-call row, e.g. "web_search completed: weather".
func toolLine(m Message) string {
	status := m.ToolStatus
	if status == "" {
		status = ai.ToolInProgress
	}
	line := string(m.ToolType) + " " + string(status)
	if m.ToolQuery != "" {
		line += ": " + m.ToolQuery
	}
	return line
}

func roleLabel(r ai.Role) string {
	switch r {
	case ai.RoleUser:
		return "User"
	case ai.RoleAssistant:
		return "Assistant"
	case ai.RoleSystem:
		return "System"
	case ai.RoleTool:
		return "Tool"
	}
	return string(r)
}

// ---------------------------------------------------------------------------
// HTML
// ---------------------------------------------------------------------------

// ExportHTML renders sess and its messages as a self-contained HTML document.
func ExportHTML(sess Session, msgs []Message) []byte {
	var buf bytes.Buffer
	title := html.EscapeString(sess.Title)

	buf.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>` + title + `</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:#0f0f0f;color:#e0e0e0;line-height:1.6;padding:24px}
.page{max-width:900px;margin:0 auto}
.header{border-bottom:1px solid #333;padding-bottom:16px;margin-bottom:24px}
.header h1{font-size:1.4rem;color:#fff;margin-bottom:6px}
.header .meta{font-size:0.8rem;color:#666;display:flex;gap:16px;flex-wrap:wrap}
.message{margin-bottom:20px;border-radius:8px;overflow:hidden}
.msg-header{padding:8px 14px;font-size:0.75rem;font-weight:600;letter-spacing:0.05em;text-transform:uppercase}
.msg-body{padding:14px;white-space:pre-wrap;word-break:break-word;font-size:0.9rem}
.user .msg-header{background:#1a2a1a;color:#6abf69}
.user .msg-body{background:#111811}
.assistant .msg-header{background:#1a1a2e;color:#7b9dd4}
.assistant .msg-body{background:#111120}
.system .msg-header{background:#1e1a2e;color:#a78bd4}
.system .msg-body{background:#12101a;color:#999}
.tool-call{margin-bottom:12px;padding:6px 14px;border-left:3px solid #d4a76b;background:#1a100a;font-family:monospace;font-size:0.85rem;color:#d4a76b}
.tool-call.failed{border-color:#e05c5c;color:#e05c5c}
.error{color:#e05c5c}
.meta-badge{background:#222;border-radius:4px;padding:2px 8px}
</style>
</head>
<body>
<div class="page">
<div class="header">
  <h1>` + title + `</h1>
  <div class="meta">`)

	if sess.ID != "" {
		fmt.Fprintf(&buf, `<span class="meta-badge">session: %s</span>`, html.EscapeString(shortID(sess.ID)))
	}
	if !sess.CreatedAt.IsZero() {
		fmt.Fprintf(&buf, `<span class="meta-badge">%s</span>`, sess.CreatedAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&buf, `<span class="meta-badge">%d messages</span>`, len(msgs))

	buf.WriteString(`
  </div>
</div>
<div class="messages">
`)

	for _, m := range msgs {
		renderMessage(&buf, m)
	}

	buf.WriteString(`
</div>
</div>
</body>
</html>`)
	return buf.Bytes()
}

func renderMessage(buf *bytes.Buffer, m Message) {
	if m.ContentType == ContentToolCall {
		class := "tool-call"
		if m.ToolStatus == ai.ToolFailed || m.Status == StatusError {
			class += " failed"
		}
		fmt.Fprintf(buf, `<div class="%s">%s</div>`+"\n", class, html.EscapeString(toolLine(m)))
		return
	}

	fmt.Fprintf(buf, `<div class="message %s">`, html.EscapeString(string(m.Role)))
	fmt.Fprintf(buf, `<div class="msg-header">%s</div>`, html.EscapeString(roleLabel(m.Role)))
	buf.WriteString(`<div class="msg-body">`)
	buf.WriteString(html.EscapeString(m.Content))
	for _, a := range m.Attachments {
		renderAttachment(buf, a)
	}
	if m.Status == StatusError {
		buf.WriteString(`<div class="error">Error</div>`)
	}
	buf.WriteString(`</div></div>` + "\n")
}

func renderAttachment(buf *bytes.Buffer, a ai.Attachment) {
	if a.Type == ai.AttachmentImage && a.Data != "" {
		mime := a.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		fmt.Fprintf(buf, `<img src="data:%s;base64,%s" style="max-width:100%%;border-radius:4px;margin:4px 0" alt="%s">`,
			html.EscapeString(mime), html.EscapeString(a.Data), html.EscapeString(a.Name))
		return
	}
	fmt.Fprintf(buf, `<div class="meta-badge">%s</div>`, html.EscapeString(a.Name))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
