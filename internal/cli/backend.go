package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/aiact-go/internal/app"
	"github.com/raphaelgruber/aiact-go/internal/client"
	"github.com/raphaelgruber/aiact-go/internal/corpus"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/retriever"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

// backend is what the chat commands need, served either in-process or by
// a running aiact-server.
type backend interface {
	// Ask runs one turn. onEvent, when set, receives progress and answer
	// chunks as they are produced.
	Ask(ctx context.Context, chatID, question string, onEvent func(workflow.Event)) (*workflow.Result, error)
	Chats(ctx context.Context) ([]models.Conversation, error)
	Rename(ctx context.Context, id, name string) (*models.Conversation, error)
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]models.Turn, error)
	ClearHistory(ctx context.Context, id string) error
	Part(ctx context.Context, id string) (map[string]any, error)
	Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error)
	Close() error
}

// localBackend runs everything in-process. Passage lookups only touch the
// corpus and index; the completion service and store are opened on the
// first chat operation.
type localBackend struct {
	catalog   *corpus.Catalog
	retriever *retriever.Retriever
	app       *app.App
}

func newLocalBackend() *localBackend {
	catalog, r := app.NewRetriever(cfg, nil, logger)
	return &localBackend{catalog: catalog, retriever: r}
}

func (l *localBackend) services(ctx context.Context) (*app.App, error) {
	if l.app != nil {
		return l.app, nil
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init services: %w", err)
	}
	l.app = a
	return a, nil
}

func (l *localBackend) Ask(ctx context.Context, chatID, question string, onEvent func(workflow.Event)) (*workflow.Result, error) {
	a, err := l.services(ctx)
	if err != nil {
		return nil, err
	}
	if onEvent == nil {
		return a.Chat.Ask(ctx, chatID, question)
	}

	events, err := a.Chat.AskStream(ctx, chatID, question)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		onEvent(ev)
		switch v := ev.Value.(type) {
		case workflow.Result:
			return &v, nil
		case workflow.ErrorInfo:
			return nil, &client.StreamError{Stage: v.Stage, Message: v.Message}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("stream ended without a result")
}

func (l *localBackend) Chats(ctx context.Context) ([]models.Conversation, error) {
	a, err := l.services(ctx)
	if err != nil {
		return nil, err
	}
	return a.Chat.Conversations(ctx)
}

func (l *localBackend) Rename(ctx context.Context, id, name string) (*models.Conversation, error) {
	a, err := l.services(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := a.Chat.Rename(ctx, id, name)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (l *localBackend) Delete(ctx context.Context, id string) error {
	a, err := l.services(ctx)
	if err != nil {
		return err
	}
	return a.Chat.Delete(ctx, id)
}

func (l *localBackend) History(ctx context.Context, id string) ([]models.Turn, error) {
	a, err := l.services(ctx)
	if err != nil {
		return nil, err
	}
	return a.Chat.Turns(ctx, id)
}

func (l *localBackend) ClearHistory(ctx context.Context, id string) error {
	a, err := l.services(ctx)
	if err != nil {
		return err
	}
	return a.Chat.ClearHistory(ctx, id)
}

func (l *localBackend) Part(ctx context.Context, id string) (map[string]any, error) {
	part, ok, err := l.catalog.Part(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("part not found: %s", id)
	}
	return part, nil
}

func (l *localBackend) Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error) {
	return l.retriever.Query(ctx, query, k)
}

func (l *localBackend) Close() error {
	if l.app == nil {
		return nil
	}
	return l.app.Close()
}

// remoteBackend forwards to aiact-server.
type remoteBackend struct {
	client *client.Client
}

func (r *remoteBackend) Ask(ctx context.Context, chatID, question string, onEvent func(workflow.Event)) (*workflow.Result, error) {
	if onEvent == nil {
		resp, err := r.client.Ask(ctx, chatID, question)
		if err != nil {
			return nil, err
		}
		return &workflow.Result{
			Conversation: models.Conversation{ID: resp.ChatID, Name: resp.Name},
			Created:      resp.Created,
			Turn: models.Turn{
				User:      models.UserMessage{ConversationID: resp.ChatID, Content: resp.UserInput},
				Assistant: models.AssistantMessage{ConversationID: resp.ChatID, Content: resp.Answer, Citations: resp.RelevantPartTexts},
			},
			Path: resp.Path,
		}, nil
	}

	return r.client.AskStream(ctx, chatID, question, func(ev client.StreamEvent) error {
		switch ev.Type {
		case workflow.EventAnswerChunk:
			var c workflow.Chunk
			if err := ev.Decode(&c); err != nil {
				return err
			}
			onEvent(workflow.Event{Type: ev.Type, Value: c})
		case workflow.EventStageProgress:
			var p workflow.Progress
			if err := ev.Decode(&p); err != nil {
				return err
			}
			onEvent(workflow.Event{Type: ev.Type, Value: p})
		}
		return nil
	})
}

func (r *remoteBackend) Chats(ctx context.Context) ([]models.Conversation, error) {
	return r.client.Chats(ctx)
}

func (r *remoteBackend) Rename(ctx context.Context, id, name string) (*models.Conversation, error) {
	return r.client.RenameChat(ctx, id, name)
}

func (r *remoteBackend) Delete(ctx context.Context, id string) error {
	return r.client.DeleteChat(ctx, id)
}

func (r *remoteBackend) History(ctx context.Context, id string) ([]models.Turn, error) {
	return r.client.History(ctx, id)
}

func (r *remoteBackend) ClearHistory(ctx context.Context, id string) error {
	return r.client.ClearHistory(ctx, id)
}

func (r *remoteBackend) Part(ctx context.Context, id string) (map[string]any, error) {
	return r.client.Part(ctx, id)
}

func (r *remoteBackend) Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error) {
	return r.client.Search(ctx, query, k)
}

func (r *remoteBackend) Close() error { return nil }
