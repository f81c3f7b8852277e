package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/raphaelgruber/aiact-go/internal/llm"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opCompleter replies by request Op.
type opCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	ops     []string
}

func (c *opCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, req.Op)
	if err := c.errs[req.Op]; err != nil {
		return "", err
	}
	reply, ok := c.replies[req.Op]
	if !ok {
		return "", errors.New("no reply for " + req.Op)
	}
	return reply, nil
}

func (c *opCompleter) Stream(ctx context.Context, req llm.Request, fn llm.StreamFunc) (string, error) {
	reply, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return reply, fn(ctx, reply)
}

func (c *opCompleter) called(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, o := range c.ops {
		if o == op {
			n++
		}
	}
	return n
}

type fixedRetriever []models.ScoredPassage

func (r fixedRetriever) Query(ctx context.Context, text string, k int) ([]models.ScoredPassage, error) {
	if k > 0 && k < len(r) {
		return r[:k], nil
	}
	return r, nil
}

type partMap map[string]map[string]any

func (p partMap) Part(id string) (map[string]any, bool, error) {
	part, ok := p[id]
	return part, ok, nil
}

type chatHarness struct {
	svc   *ChatService
	llm   *opCompleter
	store *store.Memory
}

func newChatHarness(t *testing.T, titles bool) *chatHarness {
	t.Helper()
	c := &opCompleter{
		replies: map[string]string{
			string(workflow.StageClassifyRelevance): `{"Relevance": "Not Related", "Reasoning": "Pozdrav."}`,
			string(workflow.StageGeneralAnswer):     "Pozdravljeni! Kako vam lahko pomagam?",
			"title":                                 "„Pozdrav in uvod“\nDodatna vrstica",
		},
		errs: map[string]error{},
	}
	mem := store.NewMemory()
	retriever := fixedRetriever{
		{Passage: models.Passage{ID: "5", Type: models.PassageArticle, RawText: "Prepovedane prakse umetne inteligence"}, Score: 0.4},
		{Passage: models.Passage{ID: "113", Type: models.PassageArticle, RawText: "Začetek veljavnosti"}, Score: 0.2},
	}
	engine, err := workflow.NewEngine(c, retriever, mem, workflow.Options{})
	require.NoError(t, err)

	parts := partMap{"5": {"id_elementa": "5", "vsebina": "Prepovedane prakse"}}
	svc := NewChatService(engine, mem, c, retriever, parts, ChatOptions{GenerateTitles: titles, TitleTemperature: 0.4})
	return &chatHarness{svc: svc, llm: c, store: mem}
}

func TestAskNamesNewConversation(t *testing.T) {
	h := newChatHarness(t, true)
	ctx := context.Background()

	res, err := h.svc.Ask(ctx, "", "Živjo")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Pozdrav in uvod", res.Conversation.Name)

	stored, err := h.store.Get(ctx, res.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pozdrav in uvod", stored.Name)

	// Follow-up turns keep the name.
	_, err = h.svc.Ask(ctx, res.Conversation.ID, "Še eno vprašanje")
	require.NoError(t, err)
	assert.Equal(t, 1, h.llm.called("title"))
}

func TestAskTitleFailureKeepsTurn(t *testing.T) {
	h := newChatHarness(t, true)
	h.llm.errs["title"] = errors.New("quota")

	res, err := h.svc.Ask(context.Background(), "", "Živjo")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationName, res.Conversation.Name)
	assert.Equal(t, "Pozdravljeni! Kako vam lahko pomagam?", res.Turn.Assistant.Content)
}

func TestAskWithoutTitles(t *testing.T) {
	h := newChatHarness(t, false)

	res, err := h.svc.Ask(context.Background(), "", "Živjo")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationName, res.Conversation.Name)
	assert.Zero(t, h.llm.called("title"))
}

func TestAskStreamAppliesTitle(t *testing.T) {
	h := newChatHarness(t, true)

	events, err := h.svc.AskStream(context.Background(), "", "Živjo")
	require.NoError(t, err)

	var last workflow.Event
	var chunks int
	for ev := range events {
		if ev.Type == workflow.EventAnswerChunk {
			chunks++
		}
		last = ev
	}
	require.Equal(t, workflow.EventTurnComplete, last.Type)
	res, ok := last.Value.(workflow.Result)
	require.True(t, ok)
	assert.Equal(t, "Pozdrav in uvod", res.Conversation.Name)
	assert.Positive(t, chunks)
}

func TestAskValidation(t *testing.T) {
	h := newChatHarness(t, true)

	_, err := h.svc.Ask(context.Background(), "", "   ")
	assert.ErrorIs(t, err, workflow.ErrEmptyInput)

	_, err = h.svc.AskStream(context.Background(), "missing", "Živjo")
	assert.ErrorIs(t, err, workflow.ErrConversationNotFound)
}

func TestConversationManagement(t *testing.T) {
	h := newChatHarness(t, false)
	ctx := context.Background()

	res, err := h.svc.Ask(ctx, "", "Živjo")
	require.NoError(t, err)
	id := res.Conversation.ID

	list, err := h.svc.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	renamed, err := h.svc.Rename(ctx, id, "  Moj pogovor ")
	require.NoError(t, err)
	assert.Equal(t, "Moj pogovor", renamed.Name)
	assert.False(t, renamed.UpdatedAt.Before(res.Conversation.UpdatedAt))

	_, err = h.svc.Rename(ctx, id, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.svc.Rename(ctx, "missing", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	turns, err := h.svc.Turns(ctx, id)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "Živjo", turns[0].User.Content)
	assert.Equal(t, turns[0].User.ID, turns[0].Assistant.ParentID)

	require.NoError(t, h.svc.ClearHistory(ctx, id))
	turns, err = h.svc.Turns(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, turns)

	conv, err := h.svc.Conversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Moj pogovor", conv.Name)

	require.NoError(t, h.svc.Delete(ctx, id))
	_, err = h.svc.Conversation(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.svc.Turns(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, h.svc.ClearHistory(ctx, id), store.ErrNotFound)
}

func TestPartAndSearch(t *testing.T) {
	h := newChatHarness(t, false)
	ctx := context.Background()

	part, err := h.svc.Part(ctx, " 5 ")
	require.NoError(t, err)
	assert.Equal(t, "Prepovedane prakse", part["vsebina"])

	_, err = h.svc.Part(ctx, "999")
	assert.ErrorIs(t, err, ErrPartNotFound)

	hits, err := h.svc.Search(ctx, "prepovedane prakse", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "5", hits[0].ID)

	_, err = h.svc.Search(ctx, "", 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `"Prepovedane prakse"`, want: "Prepovedane prakse"},
		{in: "  „Veljavnost uredbe“  ", want: "Veljavnost uredbe"},
		{in: "Naslov\nrazlaga", want: "Naslov"},
		{in: "   ", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanTitle(tt.in), tt.in)
	}
}
