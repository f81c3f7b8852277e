// Package storetest checks that a store.Store implementation behaves like
// the reference in-memory store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. Cleanup is the caller's job.
type Factory func(t *testing.T) store.Store

// Run exercises the full store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("Rename", func(t *testing.T) { testRename(t, newStore(t)) })
	t.Run("AppendHistory", func(t *testing.T) { testAppendHistory(t, newStore(t)) })
	t.Run("AppendUnknown", func(t *testing.T) { testAppendUnknown(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("DeleteHistory", func(t *testing.T) { testDeleteHistory(t, newStore(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
}

func userMsg(convID, content string) models.UserMessage {
	return models.UserMessage{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Content:        content,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func answerTo(u models.UserMessage, content string, citations []models.Citation) models.AssistantMessage {
	return models.AssistantMessage{
		ID:             uuid.NewString(),
		ConversationID: u.ConversationID,
		ParentID:       u.ID,
		Content:        content,
		Citations:      citations,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Create(ctx, models.DefaultConversationName)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, models.DefaultConversationName, got.Name)
	assert.WithinDuration(t, c.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		c, err := s.Create(ctx, fmt.Sprintf("pogovor %d", i))
		require.NoError(t, err)
		ids = append(ids, c.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, c := range list {
		assert.Equal(t, ids[i], c.ID)
	}
}

func testRename(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Create(ctx, "staro")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	n, err := s.Rename(ctx, c.ID, "novo")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "novo", got.Name)
	assert.True(t, got.UpdatedAt.After(c.UpdatedAt))

	n, err = s.Rename(ctx, uuid.NewString(), "x")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testAppendHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Create(ctx, "zgodovina")
	require.NoError(t, err)

	u1 := userMsg(c.ID, "Živjo")
	a1 := answerTo(u1, "Pozdravljeni!", nil)
	u2 := userMsg(c.ID, "Kdaj začne uredba veljati?")
	a2 := answerTo(u2, "Dvajseti dan po objavi.", []models.Citation{
		{PassageID: "113", Fragments: []string{"začne veljati dvajseti dan po objavi"}},
	})
	require.NoError(t, s.Append(ctx, c.ID, u1, a1))
	require.NoError(t, s.Append(ctx, c.ID, u2, a2))

	history, err := s.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, u1.ID, history[0].MessageID())
	assert.Equal(t, models.RoleUser, history[0].Role())

	got1, ok := history[1].(models.AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, u1.ID, got1.ParentID)
	assert.Empty(t, got1.Citations)
	assert.NotNil(t, got1.Citations)

	got2, ok := history[3].(models.AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, a2.Citations, got2.Citations)
	assert.Equal(t, c.ID, got2.ConversationID)

	turns := models.PairTurns(history)
	require.Len(t, turns, 2)
	assert.Equal(t, "Kdaj začne uredba veljati?", turns[1].User.Content)

	empty, err := s.History(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testAppendUnknown(t *testing.T, s store.Store) {
	id := uuid.NewString()
	err := s.Append(context.Background(), id, userMsg(id, "x"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Create(ctx, "za brisanje")
	require.NoError(t, err)
	u := userMsg(c.ID, "vprašanje")
	require.NoError(t, s.Append(ctx, c.ID, u, answerTo(u, "odgovor", nil)))

	require.NoError(t, s.Delete(ctx, c.ID))

	_, err = s.Get(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	history, err := s.History(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, s.Delete(ctx, c.ID), store.ErrNotFound)
}

func testDeleteHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Create(ctx, "ohrani")
	require.NoError(t, err)
	u := userMsg(c.ID, "vprašanje")
	require.NoError(t, s.Append(ctx, c.ID, u, answerTo(u, "odgovor", nil)))

	require.NoError(t, s.DeleteHistory(ctx, c.ID))

	history, err := s.History(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, err = s.Get(ctx, c.ID)
	assert.NoError(t, err)
}

func testConcurrentAppends(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, err := s.Create(ctx, "vzporedno")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := userMsg(c.ID, fmt.Sprintf("vprašanje %d", i))
			assert.NoError(t, s.Append(ctx, c.ID, u, answerTo(u, "odgovor", nil)))
		}(i)
	}
	wg.Wait()

	history, err := s.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 20)
	// Each append is atomic, so every answer directly follows its question.
	for i := 0; i < len(history); i += 2 {
		a, ok := history[i+1].(models.AssistantMessage)
		require.True(t, ok)
		assert.Equal(t, history[i].MessageID(), a.ParentID)
	}
}
