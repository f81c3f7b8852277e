package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/aiact-go/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a durable store in a single SQLite file.
type SQLite struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Debug("sqlite store opened", "path", path)
	return &SQLite{
		conn:   conn,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func (s *SQLite) Create(ctx context.Context, name string) (models.Conversation, error) {
	now := s.now()
	c := models.Conversation{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO chats (chat_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return models.Conversation{}, fmt.Errorf("insert chat: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (models.Conversation, error) {
	var c models.Conversation
	var created, updated string
	if err := row.Scan(&c.ID, &c.Name, &created, &updated); err != nil {
		return models.Conversation{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return models.Conversation{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return models.Conversation{}, err
	}
	return c, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (models.Conversation, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT chat_id, name, created_at, updated_at FROM chats WHERE chat_id = ?`, id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return models.Conversation{}, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (s *SQLite) List(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT chat_id, name, created_at, updated_at FROM chats ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	out := make([]models.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return out, nil
}

func (s *SQLite) Rename(ctx context.Context, id, name string) (int, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE chats SET name = ?, updated_at = ? WHERE chat_id = ?`,
		name, formatTime(s.now()), id)
	if err != nil {
		return 0, fmt.Errorf("rename chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rename chat: %w", err)
	}
	return int(n), nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, role, parent_id, content, citations, created_at
		 FROM messages WHERE chat_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := make([]models.Message, 0)
	for rows.Next() {
		var r models.Record
		var parent, citations sql.NullString
		var created string
		if err := rows.Scan(&r.ID, &r.Role, &parent, &r.Content, &citations, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		r.ConversationID = conversationID
		r.ParentID = parent.String
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if citations.Valid && citations.String != "" {
			if err := json.Unmarshal([]byte(citations.String), &r.Citations); err != nil {
				return nil, fmt.Errorf("decode citations of %s: %w", r.ID, err)
			}
		}

		msg, err := r.Message()
		if err != nil {
			return nil, err
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}

func (s *SQLite) Append(ctx context.Context, conversationID string, msgs ...models.Message) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE chats SET updated_at = ? WHERE chat_id = ?`, formatTime(s.now()), conversationID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}

	for _, m := range msgs {
		r := models.ToRecord(m)
		var parent, citations any
		if r.ParentID != "" {
			parent = r.ParentID
		}
		if r.Role == models.RoleAssistant {
			data, err := json.Marshal(nonNilCitations(r.Citations))
			if err != nil {
				return fmt.Errorf("encode citations: %w", err)
			}
			citations = string(data)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, role, parent_id, content, citations, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, conversationID, string(r.Role), parent, r.Content, citations, formatTime(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func nonNilCitations(c []models.Citation) []models.Citation {
	if c == nil {
		return []models.Citation{}
	}
	return c
}

func (s *SQLite) DeleteHistory(ctx context.Context, conversationID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}
