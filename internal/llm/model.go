// Package llm provides the completion services used by the answer workflow:
// langchaingo providers and the OpenAI Responses API.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/config"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Request is a single completion call.
type Request struct {
	// Op names the call in logs, e.g. the workflow stage issuing it.
	Op     string
	System string
	Prompt string
	// Temperature overrides the configured default when set.
	Temperature *float64
	// Schema requests a JSON object matching the schema.
	Schema *Schema
}

// Temperature is a convenience for Request.Temperature.
func Temperature(t float64) *float64 { return &t }

// StreamFunc receives answer fragments in order. Returning an error aborts
// the completion.
type StreamFunc func(ctx context.Context, chunk string) error

// Completer is a language completion service.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request, fn StreamFunc) (string, error)
}

// Model wraps a langchaingo LLM.
type Model struct {
	llm         llms.Model
	modelName   string
	temperature float64
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// Options configures completion services built by New.
type Options struct {
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// New creates the completion service selected by cfg.LLMProvider.
func New(ctx context.Context, cfg config.Config, opts Options) (Completer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOpenAIResponses:
		return NewResponsesModel(cfg, opts)

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		model, err = newBedrock(ctx, cfg)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewModel(model, cfg.LLMModel, cfg.LLMTemperature, opts), nil
}

// NewModel wraps an already constructed langchaingo model.
func NewModel(model llms.Model, name string, temperature float64, opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Model{
		llm:         model,
		modelName:   name,
		temperature: temperature,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Complete implements Completer.
func (m *Model) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, m.messages(req), m.callOptions(req)...)
	if err != nil {
		m.metrics.RecordError(metrics.OpLLMComplete)
		m.logger.Warn("completion failed", "op", req.Op, "model", m.modelName, "error", err)
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	return m.finish(metrics.OpLLMComplete, req, start, resp)
}

// Stream implements Completer. fn receives fragments as the provider emits
// them; the full text is returned once the completion ends.
func (m *Model) Stream(ctx context.Context, req Request, fn StreamFunc) (string, error) {
	opts := append(m.callOptions(req), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return fn(ctx, string(chunk))
	}))

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, m.messages(req), opts...)
	if err != nil {
		m.metrics.RecordError(metrics.OpLLMStream)
		m.logger.Warn("streaming completion failed", "op", req.Op, "model", m.modelName, "error", err)
		return "", fmt.Errorf("generate stream: %w", wrapFatalError(err))
	}
	return m.finish(metrics.OpLLMStream, req, start, resp)
}

func (m *Model) messages(req Request) []llms.MessageContent {
	system := req.System
	if req.Schema != nil {
		system += "\n\n" + req.Schema.Instructions()
	}

	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
}

func (m *Model) callOptions(req Request) []llms.CallOption {
	temperature := m.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if req.Schema != nil {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

func (m *Model) finish(op string, req Request, start time.Time, resp *llms.ContentResponse) (string, error) {
	duration := time.Since(start)
	if len(resp.Choices) == 0 {
		m.metrics.RecordError(op)
		return "", fmt.Errorf("no response choices")
	}

	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(op, duration, in, out)
	m.logger.Debug("completion done",
		"op", req.Op,
		"model", m.modelName,
		"duration_ms", duration.Milliseconds(),
		"input_tokens", in,
		"output_tokens", out)
	return choice.Content, nil
}

// tokenUsage reads token counts from provider specific generation info.
func tokenUsage(info map[string]any) (int64, int64) {
	return intField(info, "PromptTokens", "InputTokens"), intField(info, "CompletionTokens", "OutputTokens")
}

func intField(info map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
