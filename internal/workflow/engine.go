// Package workflow runs one conversational turn through the answer pipeline:
// relevance classification, query rewriting, passage retrieval, grounded
// answer composition and validation, with general and fallback answers on
// the other branches.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/aiact-go/internal/llm"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/store"
)

// Retriever ranks corpus passages against a query.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]models.ScoredPassage, error)
}

// Tracer observes every stage after it runs.
type Tracer func(stage Stage, st *TurnState, err error)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	RetrieveK    int
	SelectMax    int
	StreamBuffer int
	Prompts      *Prompts
	// Graph overrides DefaultGraph.
	Graph   *Graph
	Metrics *metrics.Collector
	Logger  *slog.Logger
	Tracer  Tracer
}

const (
	defaultRetrieveK    = 10
	defaultSelectMax    = 3
	defaultStreamBuffer = 16
)

// Engine executes turns against a conversation store. It is safe for
// concurrent use; turns on the same conversation run one at a time.
type Engine struct {
	graph    *compiledGraph
	handlers map[Stage]stageFunc
	store    store.Store
	locks    *LockTable
	buffer   int
	metrics  *metrics.Collector
	logger   *slog.Logger
	tracer   Tracer
	now      func() time.Time
}

// NewEngine validates the stage graph and returns a ready engine.
func NewEngine(completer llm.Completer, retriever Retriever, conversations store.Store, opts Options) (*Engine, error) {
	if completer == nil || retriever == nil || conversations == nil {
		return nil, errors.New("workflow: completer, retriever and store are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetrieveK <= 0 {
		opts.RetrieveK = defaultRetrieveK
	}
	if opts.SelectMax <= 0 {
		opts.SelectMax = defaultSelectMax
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = defaultStreamBuffer
	}
	if opts.Prompts == nil {
		p, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		opts.Prompts = p
	}
	g := DefaultGraph()
	if opts.Graph != nil {
		g = *opts.Graph
	}

	now := func() time.Time { return time.Now().UTC() }
	s := &stages{
		completer: completer,
		retriever: retriever,
		prompts:   opts.Prompts,
		retrieveK: opts.RetrieveK,
		selectMax: opts.SelectMax,
		logger:    opts.Logger,
		now:       now,
	}
	handlers := s.handlers()
	cg, err := compile(g, handlers)
	if err != nil {
		return nil, err
	}

	return &Engine{
		graph:    cg,
		handlers: handlers,
		store:    conversations,
		locks:    NewLockTable(),
		buffer:   opts.StreamBuffer,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		now:      now,
	}, nil
}

// Invoke runs a full turn and returns once the answer is persisted. An empty
// conversationID starts a new conversation.
func (e *Engine) Invoke(ctx context.Context, conversationID, input string) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	conv, created, err := e.resolve(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, conv, created, input, discard{})
}

// Stream runs a turn in the background and reports it as events. Input
// validation and conversation lookup happen before Stream returns; later
// failures arrive as a single EventError. The channel is closed when the
// turn ends. Cancelling ctx abandons the turn without persisting it; a
// caller that stops reading must cancel ctx.
func (e *Engine) Stream(ctx context.Context, conversationID, input string) (<-chan Event, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	conv, created, err := e.resolve(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, e.buffer)
	out := channelSink{ch: ch}
	go func() {
		defer close(ch)
		if err := out.send(ctx, Event{Type: EventConversationSnapshot, Value: Snapshot{Conversation: conv, Created: created}}); err != nil {
			e.rollback(ctx, conv, created)
			return
		}
		res, err := e.run(ctx, conv, created, input, out)
		if err != nil {
			info := ErrorInfo{Message: err.Error()}
			var se *StageError
			if errors.As(err, &se) {
				info.Stage = se.Stage
			}
			_ = out.send(ctx, Event{Type: EventError, Value: info})
			return
		}
		_ = out.send(ctx, Event{Type: EventTurnComplete, Value: *res})
	}()
	return ch, nil
}

// ClearHistory removes the messages of a conversation. It waits for a running
// turn on the conversation to finish.
func (e *Engine) ClearHistory(ctx context.Context, id string) error {
	release, err := e.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if _, err := e.store.Get(ctx, id); err != nil {
		return err
	}
	return e.store.DeleteHistory(ctx, id)
}

// Delete removes a conversation and its history once no turn runs on it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	release, err := e.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	return e.store.Delete(ctx, id)
}

func (e *Engine) resolve(ctx context.Context, id string) (models.Conversation, bool, error) {
	if id == "" {
		conv, err := e.store.Create(ctx, models.DefaultConversationName)
		if err != nil {
			return models.Conversation{}, false, fmt.Errorf("create conversation: %w", err)
		}
		e.logger.Info("conversation created", "conversation", conv.ID)
		return conv, true, nil
	}
	conv, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Conversation{}, false, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err != nil {
		return models.Conversation{}, false, fmt.Errorf("get conversation: %w", err)
	}
	return conv, false, nil
}

func (e *Engine) run(ctx context.Context, conv models.Conversation, created bool, input string, out sink) (res *Result, err error) {
	start := time.Now()
	defer func() {
		e.metrics.Observe(metrics.OpTurn, start, err)
		if err != nil {
			e.rollback(ctx, conv, created)
			e.logger.Warn("turn failed", "conversation", conv.ID, "error", err)
		}
	}()

	release, err := e.locks.Acquire(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if !created {
		// The conversation may have been deleted while this turn waited.
		if _, err := e.store.Get(ctx, conv.ID); errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conv.ID)
		}
	}

	history, err := e.store.History(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	user := models.UserMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Content:        input,
		CreatedAt:      e.now(),
	}
	st := newTurnState(conv, history, user)

	if err := e.execute(ctx, st, out); err != nil {
		return nil, err
	}
	if err := e.store.Append(ctx, conv.ID, st.Input, *st.Answer); err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}

	if fresh, err := e.store.Get(ctx, conv.ID); err == nil {
		conv = fresh
	}
	e.logger.Info("turn complete",
		"conversation", conv.ID,
		"path", st.Path,
		"citations", len(st.Answer.Citations),
		"duration_ms", time.Since(start).Milliseconds())

	return &Result{
		Conversation: conv,
		Created:      created,
		Turn:         models.Turn{User: st.Input, Assistant: *st.Answer},
		Path:         st.Path,
	}, nil
}

// execute walks the graph from the entry stage to a terminal stage.
func (e *Engine) execute(ctx context.Context, st *TurnState, out sink) error {
	cur := e.graph.entry
	for step := 0; ; step++ {
		if step >= e.graph.size {
			return fmt.Errorf("workflow did not terminate after %d stages", step)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := e.handlers[cur](ctx, st, out)
		st.Path = append(st.Path, cur)
		e.metrics.Observe(metrics.StageOp(string(cur)), start, err)
		if e.tracer != nil {
			e.tracer(cur, st, err)
		}
		if err != nil {
			return &StageError{Stage: cur, Err: err}
		}
		e.logger.Debug("stage done",
			"conversation", st.Conversation.ID,
			"stage", cur,
			"duration_ms", time.Since(start).Milliseconds())

		next, err := e.graph.next(cur, st)
		if err != nil {
			return &StageError{Stage: cur, Err: err}
		}
		if next == "" {
			break
		}
		cur = next
	}
	if st.Answer == nil {
		return fmt.Errorf("terminal stage %s produced no answer", cur)
	}
	return nil
}

// rollback removes a conversation created for a turn that did not complete.
func (e *Engine) rollback(ctx context.Context, conv models.Conversation, created bool) {
	if !created {
		return
	}
	if err := e.store.Delete(context.WithoutCancel(ctx), conv.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("rollback conversation failed", "conversation", conv.ID, "error", err)
	}
}
