package httpapi_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/client"
	"github.com/raphaelgruber/aiact-go/internal/httpapi"
	"github.com/raphaelgruber/aiact-go/internal/lexindex"
	"github.com/raphaelgruber/aiact-go/internal/llm"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/retriever"
	"github.com/raphaelgruber/aiact-go/internal/service"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[req.Op]; err != nil {
		return "", err
	}
	reply, ok := f.replies[req.Op]
	if !ok {
		return "", errors.New("no reply for " + req.Op)
	}
	return reply, nil
}

func (f *fakeCompleter) Stream(ctx context.Context, req llm.Request, fn llm.StreamFunc) (string, error) {
	reply, err := f.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := fn(ctx, word); err != nil {
			return "", err
		}
	}
	return reply, nil
}

func (f *fakeCompleter) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

type corpusSource []models.Passage

func (c corpusSource) Passages(ctx context.Context) ([]models.Passage, error) {
	return c, nil
}

type partMap map[string]map[string]any

func (p partMap) Part(id string) (map[string]any, bool, error) {
	part, ok := p[id]
	return part, ok, nil
}

const greeting = "Pozdravljeni! Kako vam lahko pomagam?"

type env struct {
	client *client.Client
	llm    *fakeCompleter
	store  *store.Memory
	index  *service.IndexService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	collector := metrics.NewCollector()

	llmFake := &fakeCompleter{
		replies: map[string]string{
			string(workflow.StageClassifyRelevance): `{"Relevance": "Not Related", "Reasoning": "Pozdrav."}`,
			string(workflow.StageGeneralAnswer):     greeting,
			"title":                                 "Pozdrav",
		},
		errs: map[string]error{},
	}
	source := corpusSource{
		{ID: "5", Type: models.PassageArticle, RawText: "Prepovedane prakse umetne inteligence"},
		{ID: "113", Type: models.PassageArticle, RawText: "Začetek veljavnosti uredbe"},
		{ID: "uvodna_1", Type: models.PassagePoint, RawText: "Namen uredbe je izboljšati notranji trg"},
	}
	ret := retriever.New(lexindex.NewHandle(nil), source, retriever.Options{Metrics: collector, Logger: logger})
	mem := store.NewMemory()

	engine, err := workflow.NewEngine(llmFake, ret, mem, workflow.Options{Metrics: collector, Logger: logger})
	require.NoError(t, err)

	parts := partMap{"5": {"id_elementa": "5", "vsebina": "Prepovedane prakse"}}
	chat := service.NewChatService(engine, mem, llmFake, ret, parts, service.ChatOptions{
		GenerateTitles: true,
		Logger:         logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	index := service.NewIndexService(ctx, ret, nil, service.NewJobManager(logger), logger)

	srv := httptest.NewServer(httpapi.New(chat, index, collector, logger).Handler())
	t.Cleanup(srv.Close)

	return &env{client: client.New(srv.URL), llm: llmFake, store: mem, index: index}
}

func TestInvokeAndManageChats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp, err := e.client.Ask(ctx, "", "Živjo")
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "Pozdrav", resp.Name)
	assert.Equal(t, "Živjo", resp.UserInput)
	assert.Equal(t, greeting, resp.Answer)
	assert.NotNil(t, resp.RelevantPartTexts)
	assert.Empty(t, resp.RelevantPartTexts)
	assert.Equal(t, []workflow.Stage{workflow.StageClassifyRelevance, workflow.StageGeneralAnswer}, resp.Path)

	chats, err := e.client.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, resp.ChatID, chats[0].ID)

	renamed, err := e.client.RenameChat(ctx, resp.ChatID, "Moj pogovor")
	require.NoError(t, err)
	assert.Equal(t, "Moj pogovor", renamed.Name)

	chat, err := e.client.Chat(ctx, resp.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Moj pogovor", chat.Name)

	turns, err := e.client.History(ctx, resp.ChatID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, greeting, turns[0].Assistant.Content)

	require.NoError(t, e.client.ClearHistory(ctx, resp.ChatID))
	turns, err = e.client.History(ctx, resp.ChatID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, e.client.DeleteChat(ctx, resp.ChatID))
	_, err = e.client.Chat(ctx, resp.ChatID)
	assert.True(t, client.IsNotFound(err))
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		status int
		detail string
	}{
		{
			name:   "blank input",
			call:   func() error { _, err := e.client.Ask(ctx, "", "  "); return err },
			status: http.StatusBadRequest,
			detail: "User input is required.",
		},
		{
			name:   "unknown chat",
			call:   func() error { _, err := e.client.Ask(ctx, "missing", "Živjo"); return err },
			status: http.StatusNotFound,
			detail: "Chat not found",
		},
		{
			name:   "rename unknown chat",
			call:   func() error { _, err := e.client.RenameChat(ctx, "missing", "x"); return err },
			status: http.StatusNotFound,
		},
		{
			name:   "blank name",
			call:   func() error { _, err := e.client.RenameChat(ctx, "missing", " "); return err },
			status: http.StatusBadRequest,
		},
		{
			name:   "history of unknown chat",
			call:   func() error { _, err := e.client.History(ctx, "missing"); return err },
			status: http.StatusNotFound,
		},
		{
			name:   "unknown part",
			call:   func() error { _, err := e.client.Part(ctx, "999"); return err },
			status: http.StatusNotFound,
		},
		{
			name:   "unknown job",
			call:   func() error { _, err := e.client.GetJob(ctx, "nope"); return err },
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, apiErr.Detail)
			}
		})
	}

	chats, err := e.client.Chats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestUpstreamFailureHidesDetails(t *testing.T) {
	e := newEnv(t)
	e.llm.fail(string(workflow.StageClassifyRelevance), errors.New("api key sk-secret rejected"))

	_, err := e.client.Ask(context.Background(), "", "Živjo")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.NotContains(t, apiErr.Detail, "sk-secret")
}

func collectTypes(types *[]workflow.EventType, text *strings.Builder) client.EventFunc {
	return func(ev client.StreamEvent) error {
		*types = append(*types, ev.Type)
		if chunk, ok := ev.Chunk(); ok {
			text.WriteString(chunk)
		}
		return nil
	}
}

func TestStreamTransports(t *testing.T) {
	e := newEnv(t)

	transports := map[string]func(ctx context.Context, id, input string, fn client.EventFunc) (*workflow.Result, error){
		"sse":       e.client.AskSSE,
		"websocket": e.client.AskStream,
	}
	for name, ask := range transports {
		t.Run(name, func(t *testing.T) {
			var types []workflow.EventType
			var text strings.Builder

			res, err := ask(context.Background(), "", "Živjo", collectTypes(&types, &text))
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, greeting, res.Turn.Assistant.Content)
			assert.Equal(t, greeting, text.String())
			assert.Equal(t, "Pozdrav", res.Conversation.Name)

			require.NotEmpty(t, types)
			assert.Equal(t, workflow.EventConversationSnapshot, types[0])
			assert.Equal(t, workflow.EventTurnComplete, types[len(types)-1])
			assert.Contains(t, types, workflow.EventStageProgress)

			// Follow-up on the same conversation.
			next, err := ask(context.Background(), res.Conversation.ID, "Še enkrat", nil)
			require.NoError(t, err)
			assert.False(t, next.Created)
			assert.Equal(t, res.Conversation.ID, next.Conversation.ID)
		})
	}
}

func TestStreamErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.AskSSE(ctx, "missing", "Živjo", nil)
	assert.True(t, client.IsNotFound(err))

	_, err = e.client.AskStream(ctx, "", " ", nil)
	var streamErr *client.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "User input is required.", streamErr.Message)

	e.llm.fail(string(workflow.StageGeneralAnswer), errors.New("upstream timeout at 10.0.0.1"))
	for _, ask := range []func(context.Context, string, string, client.EventFunc) (*workflow.Result, error){e.client.AskSSE, e.client.AskStream} {
		_, err := ask(ctx, "", "Živjo", nil)
		require.ErrorAs(t, err, &streamErr)
		assert.Equal(t, workflow.StageGeneralAnswer, streamErr.Stage)
		assert.NotContains(t, streamErr.Message, "10.0.0.1")
	}

	chats, err := e.client.Chats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestPartSearchAndJobs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	part, err := e.client.Part(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "Prepovedane prakse", part["vsebina"])

	hits, err := e.client.Search(ctx, "prepovedane prakse", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "5", hits[0].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	job, err := e.client.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.JobTypeIndexRebuild, job.Type)
	assert.Equal(t, "api", job.Trigger)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := e.client.WaitJob(waitCtx, job.ID, 10*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, service.JobStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, 3, done.Result.Passages)

	jobs, err := e.client.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	stats, err := e.client.Stats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats.Index)
	assert.Equal(t, 3, stats.Index.Passages)
	require.NotNil(t, stats.IndexBuild)
	assert.Positive(t, stats.IndexBuild.Count)
}

func TestInvalidBody(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Post(e.client.BaseURL()+"/chatbot", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFormatSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, httpapi.FormatSSE(&buf, "answer_chunk", []byte(`{"text":"Živjo"}`)))
	assert.Equal(t, "event: answer_chunk\ndata: {\"text\":\"Živjo\"}\n\n", buf.String())

	buf.Reset()
	require.NoError(t, httpapi.FormatSSE(&buf, "", []byte("x")))
	assert.Equal(t, "data: x\n\n", buf.String())
}
