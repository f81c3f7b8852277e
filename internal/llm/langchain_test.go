package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedLLM is a langchaingo model that records its last call.
type scriptedLLM struct {
	reply    string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (s *scriptedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	s.messages = messages
	s.opts = llms.CallOptions{}
	for _, opt := range options {
		opt(&s.opts)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(s.reply, " ") {
			if err := s.opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        s.reply,
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 3},
	}}}, nil
}

func (s *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func TestModelComplete(t *testing.T) {
	fake := &scriptedLLM{reply: "Uredba začne veljati dvajseti dan po objavi."}
	collector := metrics.NewCollector()
	m := NewModel(fake, "test-model", 0, Options{Metrics: collector})

	out, err := m.Complete(context.Background(), Request{Op: "general_answer", System: "sistem", Prompt: "vprašanje"})
	require.NoError(t, err)
	assert.Equal(t, fake.reply, out)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.False(t, fake.opts.JSONMode)

	snap := collector.Snapshot()
	require.NotNil(t, snap.LLMComplete)
	assert.Equal(t, int64(12), *snap.LLMComplete.TotalInputTokens)
}

func TestModelCompleteStructured(t *testing.T) {
	fake := &scriptedLLM{reply: `{"AnswerValid":"Valid","Reasoning":"ok"}`}
	m := NewModel(fake, "test-model", 0, Options{})

	_, err := m.Complete(context.Background(), Request{
		Prompt:      "preveri",
		Schema:      SchemaFor[verdictOutput]("AnswerValidation", ""),
		Temperature: Temperature(0.4),
	})
	require.NoError(t, err)
	assert.True(t, fake.opts.JSONMode)
	assert.Equal(t, 0.4, fake.opts.Temperature)

	system := fake.messages[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "JSON shemi")
}

func TestModelStream(t *testing.T) {
	fake := &scriptedLLM{reply: "Žal nimam dovolj informacij."}
	m := NewModel(fake, "test-model", 0, Options{})

	var chunks []string
	out, err := m.Stream(context.Background(), Request{Prompt: "x"}, func(_ context.Context, chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, fake.reply, out)
	assert.Equal(t, fake.reply, strings.Join(chunks, ""))
	assert.Greater(t, len(chunks), 1)
}

func TestModelWrapsFatalErrors(t *testing.T) {
	m := NewModel(&scriptedLLM{err: errors.New("HTTP 401: invalid api key")}, "test-model", 0, Options{})
	_, err := m.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrFatalAPI)
}
