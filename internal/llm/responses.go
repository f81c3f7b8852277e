package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/raphaelgruber/aiact-go/internal/config"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
)

// ResponsesModel calls the OpenAI Responses API. Structured requests use
// native JSON schema output instead of prompt instructions.
type ResponsesModel struct {
	client      openai.Client
	modelName   string
	temperature float64
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// NewResponsesModel creates a Responses API client from cfg.
func NewResponsesModel(cfg config.Config, opts Options) (*ResponsesModel, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ResponsesModel{
		client:      openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey)),
		modelName:   cfg.LLMModel,
		temperature: cfg.LLMTemperature,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}, nil
}

func (m *ResponsesModel) params(req Request) responses.ResponseNewParams {
	temperature := m.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := responses.ResponseNewParams{
		Model:       m.modelName,
		Temperature: openai.Float(temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if req.Schema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        req.Schema.Name,
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
					Description: openai.String(req.Schema.Description),
					Type:        "json_schema",
				},
			},
		}
	}
	return params
}

// Complete implements Completer.
func (m *ResponsesModel) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	resp, err := m.client.Responses.New(ctx, m.params(req))
	if err != nil {
		m.metrics.RecordError(metrics.OpLLMComplete)
		m.logger.Warn("completion failed", "op", req.Op, "model", m.modelName, "error", err)
		return "", fmt.Errorf("responses: %w", wrapFatalError(err))
	}

	m.record(metrics.OpLLMComplete, req, start, resp.Usage)
	return resp.OutputText(), nil
}

// Stream implements Completer.
func (m *ResponsesModel) Stream(ctx context.Context, req Request, fn StreamFunc) (string, error) {
	start := time.Now()
	stream := m.client.Responses.NewStreaming(ctx, m.params(req))
	defer stream.Close()

	var text strings.Builder
	var usage responses.ResponseUsage
	for stream.Next() {
		ev := stream.Current()
		switch ev.Type {
		case "response.output_text.delta":
			delta := ev.AsResponseOutputTextDelta().Delta
			if delta == "" {
				continue
			}
			text.WriteString(delta)
			if err := fn(ctx, delta); err != nil {
				return "", err
			}
		case "response.completed":
			usage = ev.AsResponseCompleted().Response.Usage
		}
	}
	if err := stream.Err(); err != nil {
		m.metrics.RecordError(metrics.OpLLMStream)
		m.logger.Warn("streaming completion failed", "op", req.Op, "model", m.modelName, "error", err)
		return "", fmt.Errorf("responses stream: %w", wrapFatalError(err))
	}

	m.record(metrics.OpLLMStream, req, start, usage)
	return text.String(), nil
}

func (m *ResponsesModel) record(op string, req Request, start time.Time, usage responses.ResponseUsage) {
	duration := time.Since(start)
	m.metrics.RecordLLMUsage(op, duration, usage.InputTokens, usage.OutputTokens)
	m.logger.Debug("completion done",
		"op", req.Op,
		"model", m.modelName,
		"duration_ms", duration.Milliseconds(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens)
}
