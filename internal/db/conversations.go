package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/surrealdb/surrealdb.go"
)

const appendAttempts = 5

// Store adapts a Client to store.Store.
type Store struct {
	client *Client
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an initialized client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

type conversationRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r conversationRecord) model() models.Conversation {
	return models.Conversation{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

type messageRecord struct {
	MessageID      string            `json:"message_id"`
	ConversationID string            `json:"conversation_id"`
	Role           string            `json:"role"`
	ParentID       *string           `json:"parent_id"`
	Content        string            `json:"content"`
	Citations      []models.Citation `json:"citations"`
	CreatedAt      time.Time         `json:"created_at"`
}

const conversationFields = `record::id(id) AS id, name, created_at, updated_at`

func (s *Store) Create(ctx context.Context, name string) (models.Conversation, error) {
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.client.db, `
		CREATE type::record("conversation", $id) SET
			name = $name,
			created_at = time::now(),
			updated_at = time::now()
		RETURN `+conversationFields, map[string]any{
		"id":   uuid.NewString(),
		"name": name,
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}
	rec, ok := first(results)
	if !ok {
		return models.Conversation{}, fmt.Errorf("create conversation: no result returned")
	}
	return rec.model(), nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Conversation, error) {
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.client.db,
		`SELECT `+conversationFields+` FROM type::record("conversation", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("get conversation: %w", wrapQueryError(err))
	}
	rec, ok := first(results)
	if !ok {
		return models.Conversation{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return rec.model(), nil
}

func (s *Store) List(ctx context.Context) ([]models.Conversation, error) {
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.client.db,
		`SELECT `+conversationFields+` FROM conversation ORDER BY created_at ASC`, nil)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", wrapQueryError(err))
	}
	out := []models.Conversation{}
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			out = append(out, rec.model())
		}
	}
	return out, nil
}

// Rename updates an existing conversation only; UPDATE never creates.
func (s *Store) Rename(ctx context.Context, id, name string) (int, error) {
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.client.db, `
		UPDATE type::record("conversation", $id) SET
			name = $name,
			updated_at = time::now()
		RETURN `+conversationFields, map[string]any{"id": id, "name": name})
	if err != nil {
		return 0, fmt.Errorf("rename conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// Delete removes the conversation. The record reference on message
// cascades, the explicit message delete covers servers without it.
func (s *Store) Delete(ctx context.Context, id string) error {
	results, err := surrealdb.Query[[]conversationRecord](ctx, s.client.db, `
		BEGIN TRANSACTION;
		DELETE message WHERE conversation = type::record("conversation", $id);
		DELETE type::record("conversation", $id) RETURN BEFORE;
		COMMIT TRANSACTION;
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", wrapQueryError(err))
	}
	// Only the conversation delete returns rows.
	if results != nil {
		for _, r := range *results {
			if len(r.Result) > 0 {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (s *Store) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	results, err := surrealdb.Query[[]messageRecord](ctx, s.client.db, `
		SELECT message_id, record::id(conversation) AS conversation_id, role,
			parent_id, content, citations, created_at, seq
		FROM message
		WHERE conversation = type::record("conversation", $id)
		ORDER BY seq ASC
	`, map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", wrapQueryError(err))
	}

	out := []models.Message{}
	if results == nil || len(*results) == 0 {
		return out, nil
	}
	for _, rec := range (*results)[0].Result {
		r := models.Record{
			ID:             rec.MessageID,
			ConversationID: rec.ConversationID,
			Role:           models.Role(rec.Role),
			Content:        rec.Content,
			Citations:      rec.Citations,
			CreatedAt:      rec.CreatedAt.UTC(),
		}
		if rec.ParentID != nil {
			r.ParentID = *rec.ParentID
		}
		msg, err := r.Message()
		if err != nil {
			return nil, fmt.Errorf("decode message %s: %w", rec.MessageID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Append writes all messages in one transaction, numbering them after the
// last stored message. Concurrent appends conflict and are retried.
func (s *Store) Append(ctx context.Context, conversationID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		rec := models.ToRecord(m)
		p := map[string]any{
			"offset":     i + 1,
			"message_id": rec.ID,
			"role":       string(rec.Role),
			"content":    rec.Content,
			"created_at": rec.CreatedAt,
		}
		if rec.Role == models.RoleAssistant {
			p["parent_id"] = rec.ParentID
			citations := rec.Citations
			if citations == nil {
				citations = []models.Citation{}
			}
			p["citations"] = citations
		}
		payload[i] = p
	}

	sql := `
		BEGIN TRANSACTION;
		LET $conv = type::record("conversation", $id);
		IF !record::exists($conv) { THROW "` + errConversationMissing + `" };
		LET $base = math::max((SELECT VALUE seq FROM message WHERE conversation = $conv)) ?? 0;
		FOR $m IN $messages {
			CREATE message CONTENT {
				conversation: $conv,
				seq: $base + $m.offset,
				message_id: $m.message_id,
				role: $m.role,
				parent_id: $m.parent_id,
				content: $m.content,
				citations: $m.citations,
				created_at: $m.created_at
			};
		};
		UPDATE $conv SET updated_at = time::now();
		COMMIT TRANSACTION;
	`
	vars := map[string]any{"id": conversationID, "messages": payload}

	var err error
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		_, err = surrealdb.Query[any](ctx, s.client.db, sql, vars)
		err = wrapQueryError(err)
		if !errors.Is(err, ErrTransactionConflict) {
			break
		}
		s.client.slog.Debug("append conflict, retrying", "conversation", conversationID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*10) * time.Millisecond):
		}
	}
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

func (s *Store) DeleteHistory(ctx context.Context, conversationID string) error {
	_, err := surrealdb.Query[any](ctx, s.client.db,
		`DELETE message WHERE conversation = type::record("conversation", $id)`,
		map[string]any{"id": conversationID})
	if err != nil {
		return fmt.Errorf("delete history: %w", wrapQueryError(err))
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}

func first[T any](results *[]surrealdb.QueryResult[[]T]) (T, bool) {
	var zero T
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return zero, false
	}
	return (*results)[0].Result[0], true
}
