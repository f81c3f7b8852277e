package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/aiact-go/internal/llm"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

var (
	// ErrInvalidInput is returned for blank names and queries.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNothingRenamed is returned when a rename touched no conversation.
	ErrNothingRenamed = errors.New("conversation was not renamed")
	// ErrPartNotFound is returned for an unknown corpus part id.
	ErrPartNotFound = errors.New("ai act part not found")
)

const titleSystem = "Na podlagi uporabnikovega poziva, predlagaj naslov pogovora. Naslov naj bo kratek in jedrnat, ter brez robnih narekovajev."

const maxTitleRunes = 80

// PartLookup returns raw corpus records by id.
type PartLookup interface {
	Part(id string) (map[string]any, bool, error)
}

// ChatOptions configures a ChatService.
type ChatOptions struct {
	// GenerateTitles renames a new conversation after its first turn.
	GenerateTitles   bool
	TitleTemperature float64
	Logger           *slog.Logger
}

// ChatService runs turns and manages conversations.
type ChatService struct {
	engine    *workflow.Engine
	store     store.Store
	completer llm.Completer
	retriever workflow.Retriever
	parts     PartLookup
	opts      ChatOptions
	logger    *slog.Logger
}

// NewChatService creates a chat service.
func NewChatService(engine *workflow.Engine, conversations store.Store, completer llm.Completer, retriever workflow.Retriever, parts PartLookup, opts ChatOptions) *ChatService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		engine:    engine,
		store:     conversations,
		completer: completer,
		retriever: retriever,
		parts:     parts,
		opts:      opts,
		logger:    logger,
	}
}

// Ask runs one turn and waits for the persisted answer.
func (s *ChatService) Ask(ctx context.Context, conversationID, question string) (*workflow.Result, error) {
	res, err := s.engine.Invoke(ctx, conversationID, question)
	if err != nil {
		return nil, err
	}
	s.applyTitle(ctx, res)
	return res, nil
}

// AskStream runs one turn and relays its events. The title of a new
// conversation is applied before the turn_complete event is forwarded.
func (s *ChatService) AskStream(ctx context.Context, conversationID, question string) (<-chan workflow.Event, error) {
	events, err := s.engine.Stream(ctx, conversationID, question)
	if err != nil {
		return nil, err
	}
	if !s.opts.GenerateTitles {
		return events, nil
	}

	out := make(chan workflow.Event, cap(events))
	go func() {
		defer close(out)
		for ev := range events {
			if res, ok := ev.Value.(workflow.Result); ok && ev.Type == workflow.EventTurnComplete {
				s.applyTitle(ctx, &res)
				ev.Value = res
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Title asks the completion service for a short conversation title.
func (s *ChatService) Title(ctx context.Context, question string) (string, error) {
	text, err := s.completer.Complete(ctx, llm.Request{
		Op:          "title",
		System:      titleSystem,
		Prompt:      question,
		Temperature: llm.Temperature(s.opts.TitleTemperature),
	})
	if err != nil {
		return "", err
	}
	title := cleanTitle(text)
	if title == "" {
		return "", errors.New("empty title")
	}
	return title, nil
}

func (s *ChatService) applyTitle(ctx context.Context, res *workflow.Result) {
	if !s.opts.GenerateTitles || !res.Created {
		return
	}
	title, err := s.Title(ctx, res.Turn.User.Content)
	if err != nil {
		s.logger.Warn("title generation failed", "conversation", res.Conversation.ID, "error", err)
		return
	}
	if _, err := s.store.Rename(ctx, res.Conversation.ID, title); err != nil {
		s.logger.Warn("rename conversation failed", "conversation", res.Conversation.ID, "error", err)
		return
	}
	if conv, err := s.store.Get(ctx, res.Conversation.ID); err == nil {
		res.Conversation = conv
	}
}

// cleanTitle keeps the first line, strips wrapping quotes and caps the length.
func cleanTitle(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(strings.Trim(text, "\"'„“”«»`*"))
	if utf8.RuneCountInString(text) > maxTitleRunes {
		text = strings.TrimSpace(string([]rune(text)[:maxTitleRunes]))
	}
	return text
}

// Conversations lists every conversation, oldest first.
func (s *ChatService) Conversations(ctx context.Context) ([]models.Conversation, error) {
	return s.store.List(ctx)
}

// Conversation returns one conversation or store.ErrNotFound.
func (s *ChatService) Conversation(ctx context.Context, id string) (models.Conversation, error) {
	return s.store.Get(ctx, id)
}

// Rename sets a conversation name and returns the updated conversation.
func (s *ChatService) Rename(ctx context.Context, id, name string) (models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Conversation{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return models.Conversation{}, err
	}
	n, err := s.store.Rename(ctx, id, name)
	if err != nil {
		return models.Conversation{}, err
	}
	if n == 0 {
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrNothingRenamed, id)
	}
	return s.store.Get(ctx, id)
}

// Delete removes a conversation together with its history.
func (s *ChatService) Delete(ctx context.Context, id string) error {
	return s.engine.Delete(ctx, id)
}

// Turns returns the question/answer pairs of a conversation.
func (s *ChatService) Turns(ctx context.Context, id string) ([]models.Turn, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.PairTurns(history), nil
}

// ClearHistory removes all messages but keeps the conversation.
func (s *ChatService) ClearHistory(ctx context.Context, id string) error {
	return s.engine.ClearHistory(ctx, id)
}

// Part returns the raw corpus record with the given id.
func (s *ChatService) Part(ctx context.Context, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	part, ok, err := s.parts.Part(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartNotFound, id)
	}
	return part, nil
}

// Search ranks corpus passages against query without running a turn.
func (s *ChatService) Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	return s.retriever.Query(ctx, query, k)
}
