package workflow

import (
	"context"

	"github.com/raphaelgruber/aiact-go/internal/models"
)

// EventType discriminates stream events.
type EventType string

const (
	EventConversationSnapshot EventType = "conversation_snapshot"
	EventStageProgress        EventType = "stage_progress"
	EventAnswerChunk          EventType = "answer_chunk"
	EventTurnComplete         EventType = "turn_complete"
	EventError                EventType = "error"
)

// Event is one item of a streamed turn. Value holds a Snapshot, Progress,
// Chunk, Result or ErrorInfo depending on Type.
type Event struct {
	Type  EventType `json:"type"`
	Value any       `json:"value"`
}

// Snapshot is sent first and names the conversation the turn belongs to.
type Snapshot struct {
	Conversation models.Conversation `json:"conversation"`
	Created      bool                `json:"created"`
}

// Progress is a human readable notice emitted as stages run.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Chunk is a fragment of the final answer.
type Chunk struct {
	Text string `json:"text"`
}

// Result is the outcome of a completed turn.
type Result struct {
	Conversation models.Conversation `json:"conversation"`
	Created      bool                `json:"created"`
	Turn         models.Turn         `json:"turn"`
	Path         []Stage             `json:"path"`
}

// ErrorInfo reports a turn that failed after streaming started.
type ErrorInfo struct {
	Stage   Stage  `json:"stage,omitempty"`
	Message string `json:"message"`
}

// sink receives stage output. Invoke uses a discarding sink.
type sink interface {
	progress(ctx context.Context, stage Stage, msg string) error
	chunk(ctx context.Context, text string) error
	streaming() bool
}

type discard struct{}

func (discard) progress(context.Context, Stage, string) error { return nil }
func (discard) chunk(context.Context, string) error           { return nil }
func (discard) streaming() bool                               { return false }

// channelSink forwards events to a consumer, giving up when ctx ends.
type channelSink struct {
	ch chan<- Event
}

func (s channelSink) send(ctx context.Context, ev Event) error {
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s channelSink) progress(ctx context.Context, stage Stage, msg string) error {
	return s.send(ctx, Event{Type: EventStageProgress, Value: Progress{Stage: stage, Message: msg}})
}

func (s channelSink) chunk(ctx context.Context, text string) error {
	return s.send(ctx, Event{Type: EventAnswerChunk, Value: Chunk{Text: text}})
}

func (channelSink) streaming() bool { return true }
