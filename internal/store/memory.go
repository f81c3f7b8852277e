package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/aiact-go/internal/models"
)

// Memory keeps everything in process memory. History is lost on exit.
type Memory struct {
	mu            sync.RWMutex
	order         []string
	conversations map[string]models.Conversation
	history       map[string][]models.Message
	now           func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]models.Conversation),
		history:       make(map[string][]models.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Create(ctx context.Context, name string) (models.Conversation, error) {
	now := m.now()
	c := models.Conversation{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = c
	m.order = append(m.order, c.ID)
	return c, nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

func (m *Memory) List(ctx context.Context) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Conversation, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.conversations[id])
	}
	return out, nil
}

func (m *Memory) Rename(ctx context.Context, id, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return 0, nil
	}
	c.Name = name
	c.UpdatedAt = m.now()
	m.conversations[id] = c
	return 1, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.conversations, id)
	delete(m.history, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	return nil
}

func (m *Memory) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history[conversationID]), nil
}

func (m *Memory) Append(ctx context.Context, conversationID string, msgs ...models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	for _, msg := range msgs {
		if a, ok := msg.(models.AssistantMessage); ok && a.Citations == nil {
			a.Citations = []models.Citation{}
			msg = a
		}
		m.history[conversationID] = append(m.history[conversationID], msg)
	}
	c.UpdatedAt = m.now()
	m.conversations[conversationID] = c
	return nil
}

func (m *Memory) DeleteHistory(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, conversationID)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
