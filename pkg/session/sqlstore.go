package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	// register the pgx database/sql driver ("pgx")
	_ "github.com/jackc/pgx/v5/stdlib"
	// register the sqlite driver ("sqlite")
	_ "modernc.org/sqlite"

	"github.com/bitop-dev/chatstream/pkg/ai"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQLStore implements Store on database/sql. The same schema and queries
// serve SQLite and PostgreSQL; only placeholder syntax differs.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

var _ Store = (*SQLStore)(nil)

// PoolOptions tunes the PostgreSQL connection pool. Zero values keep the
// database/sql defaults.
type PoolOptions struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// DefaultSQLitePath returns the platform-appropriate location of the chat
// database.
func DefaultSQLitePath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatstream", "chat.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "chatstream", "chat.db")
}

// Open opens a store for driver ("sqlite" or "pgx"). For sqlite dsn is a
// file path.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, "sqlite3", "":
		return OpenSQLite(dsn)
	case DriverPostgres, "postgres", "postgresql":
		return OpenPostgres(dsn, PoolOptions{})
	}
	return nil, fmt.Errorf("session: unsupported database driver %q", driver)
}

// OpenSQLite opens (or creates) a SQLite store at path.
func OpenSQLite(path string) (*SQLStore, error) {
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session: create database directory: %w", err)
	}
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite db: %w", err)
	}
	// One writer at a time; readers queue behind it instead of failing busy.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("session: %s: %w", pragma, err)
		}
	}
	return newSQLStore(db, false)
}

// OpenPostgres opens a PostgreSQL store using dsn.
func OpenPostgres(dsn string, pool PoolOptions) (*SQLStore, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open postgres db: %w", err)
	}
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return newSQLStore(db, true)
}

func newSQLStore(db *sql.DB, postgres bool) (*SQLStore, error) {
	s := &SQLStore{db: db, postgres: postgres, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Timestamps are unix milliseconds so both databases store and order them
// the same way.
func (s *SQLStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'sent' CHECK(status IN ('sent','pending','error')),
	content_type TEXT NOT NULL DEFAULT 'text',
	tool_type TEXT,
	tool_status TEXT,
	tool_query TEXT,
	tool_item_id TEXT,
	tool_output_index INTEGER,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	data TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("session: apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *SQLStore) CreateSession(ctx context.Context, title string) (Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	now := s.now().UTC()
	sess := Session{ID: newID(), Title: title, CreatedAt: fromMillis(now.UnixMilli()), UpdatedAt: fromMillis(now.UnixMilli())}
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO sessions(id, title, created_at, updated_at) VALUES(?, ?, ?, ?)`),
		sess.ID, sess.Title, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("session: create session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`), id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: get session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT id, title, created_at, updated_at
FROM sessions
ORDER BY updated_at DESC, id DESC
LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session: list sessions: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLStore) RenameSession(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE sessions SET title = ? WHERE id = ?`), title, id)
	if err != nil {
		return fmt.Errorf("session: rename session: %w", err)
	}
	return affected(res, ErrSessionNotFound)
}

func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`
DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE session_id = ?)`), id); err != nil {
			return fmt.Errorf("session: delete attachments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM messages WHERE session_id = ?`), id); err != nil {
			return fmt.Errorf("session: delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("session: delete session: %w", err)
		}
		return affected(res, ErrSessionNotFound)
	})
}

func (s *SQLStore) SessionExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM sessions WHERE id = ?`), id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("session: session exists: %w", err)
	}
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func (s *SQLStore) CreateMessage(ctx context.Context, p CreateMessageParams) (string, error) {
	if p.Role == "" {
		return "", errors.New("session: create message: role required")
	}
	if p.Status == "" {
		p.Status = StatusSent
	}
	if p.ContentType == "" {
		p.ContentType = ContentText
	}
	id := newID()
	now := s.now().UTC().UnixMilli()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM sessions WHERE id = ?`), p.SessionID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return ErrSessionNotFound
		}

		_, err := tx.ExecContext(ctx, s.q(`
INSERT INTO messages(id, session_id, role, content, status, content_type,
	tool_type, tool_status, tool_query, tool_item_id, tool_output_index, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id, p.SessionID, string(p.Role), p.Content, string(p.Status), string(p.ContentType),
			nullString(string(p.ToolType)), nullString(string(p.ToolStatus)), nullString(p.ToolQuery),
			nullString(p.ToolItemID), nullInt(p.ToolOutputIndex), now)
		if err != nil {
			return err
		}

		for _, a := range p.Attachments {
			_, err := tx.ExecContext(ctx, s.q(`
INSERT INTO attachments(id, message_id, type, name, mime_type, size, data, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`),
				newID(), id, string(a.Type), a.Name, a.MIMEType, a.Size, a.Data, now)
			if err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, s.q(`UPDATE sessions SET updated_at = ? WHERE id = ?`), now, p.SessionID); err != nil {
			return err
		}

		if p.Role == ai.RoleUser {
			var users int
			if err := tx.QueryRowContext(ctx, s.q(`
SELECT COUNT(1) FROM messages WHERE session_id = ? AND role = ?`), p.SessionID, string(ai.RoleUser)).Scan(&users); err != nil {
				return err
			}
			if users == 1 {
				if _, err := tx.ExecContext(ctx, s.q(`UPDATE sessions SET title = ? WHERE id = ?`), Title(p.Content), p.SessionID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if errors.Is(err, ErrSessionNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session: create message: %w", err)
	}
	return id, nil
}

const messageColumns = `id, session_id, role, content, status, content_type,
	tool_type, tool_status, tool_query, tool_item_id, tool_output_index, created_at`

func (s *SQLStore) GetMessage(ctx context.Context, id string) (Message, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("session: get message: %w", err)
	}
	byMessage, err := s.attachments(ctx, m.SessionID, id)
	if err != nil {
		return Message{}, err
	}
	m.Attachments = byMessage[id]
	return m, nil
}

func (s *SQLStore) UpdateMessage(ctx context.Context, id string, p UpdateMessageParams) error {
	if p.empty() {
		_, err := s.GetMessage(ctx, id)
		return err
	}
	var sets []string
	var args []any
	if p.Content != nil {
		sets, args = append(sets, "content = ?"), append(args, *p.Content)
	}
	if p.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, string(*p.Status))
	}
	if p.ToolStatus != nil {
		sets, args = append(sets, "tool_status = ?"), append(args, string(*p.ToolStatus))
	}
	if p.ToolQuery != nil {
		sets, args = append(sets, "tool_query = ?"), append(args, *p.ToolQuery)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE messages SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return fmt.Errorf("session: update message: %w", err)
	}
	return affected(res, ErrMessageNotFound)
}

func (s *SQLStore) AppendMessageContent(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE messages SET content = content || ? WHERE id = ?`), text, id)
	if err != nil {
		return fmt.Errorf("session: append message: %w", err)
	}
	return affected(res, ErrMessageNotFound)
}

func (s *SQLStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT `+messageColumns+`
FROM messages
WHERE session_id = ?
ORDER BY created_at ASC, id ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: list messages: %w", err)
	}
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("session: list messages: %w", err)
		}
		out = append(out, m)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("session: list messages: %w", err)
	}

	byMessage, err := s.attachments(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Attachments = byMessage[out[i].ID]
	}
	return out, nil
}

// attachments loads the attachments of a session's messages, or of a single
// message when messageID is set, keyed by message id.
func (s *SQLStore) attachments(ctx context.Context, sessionID, messageID string) (map[string][]ai.Attachment, error) {
	query := `
SELECT a.id, a.message_id, a.type, a.name, a.mime_type, a.size, a.data
FROM attachments a JOIN messages m ON m.id = a.message_id
WHERE m.session_id = ?`
	args := []any{sessionID}
	if messageID != "" {
		query += ` AND a.message_id = ?`
		args = append(args, messageID)
	}
	query += ` ORDER BY a.created_at ASC, a.id ASC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("session: load attachments: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]ai.Attachment)
	for rows.Next() {
		var a ai.Attachment
		var msgID, typ string
		if err := rows.Scan(&a.ID, &msgID, &typ, &a.Name, &a.MIMEType, &a.Size, &a.Data); err != nil {
			return nil, fmt.Errorf("session: load attachments: %w", err)
		}
		a.Type = ai.AttachmentType(typ)
		out[msgID] = append(out[msgID], a)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// q rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) q(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var created, updated int64
	if err := row.Scan(&sess.ID, &sess.Title, &created, &updated); err != nil {
		return Session{}, err
	}
	sess.CreatedAt, sess.UpdatedAt = fromMillis(created), fromMillis(updated)
	return sess, nil
}

func scanMessage(row scanner) (Message, error) {
	var (
		m                                       Message
		role, status, contentType               string
		toolType, toolStatus, toolQuery, itemID sql.NullString
		outputIndex                             sql.NullInt64
		created                                 int64
	)
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &status, &contentType,
		&toolType, &toolStatus, &toolQuery, &itemID, &outputIndex, &created); err != nil {
		return Message{}, err
	}
	m.Role = ai.Role(role)
	m.Status = Status(status)
	m.ContentType = ContentType(contentType)
	m.ToolType = ai.ToolType(toolType.String)
	m.ToolStatus = ai.ToolStatus(toolStatus.String)
	m.ToolQuery = toolQuery.String
	m.ToolItemID = itemID.String
	if outputIndex.Valid {
		idx := int(outputIndex.Int64)
		m.ToolOutputIndex = &idx
	}
	m.CreatedAt = fromMillis(created)
	return m, nil
}

func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// newID returns a time-ordered UUIDv7, falling back to v4.
func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
