// Package llm sends assembled page contexts to a chat model through
// langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/pagewise/internal/config"
	"github.com/raphaelgruber/pagewise/internal/metrics"
	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// ErrFatalAPI marks provider failures that retrying will not fix, such as
// bad credentials, exhausted credit or rate limits.
var ErrFatalAPI = errors.New("fatal LLM API error")

// fatalMarkers are matched case-insensitively against provider errors.
var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %v", ErrFatalAPI, err)
	}
	return err
}

const systemPreamble = `You are a browsing assistant. Answer using the page context below.
If the context does not contain the answer, say so. Be concise.`

// Model wraps a langchaingo chat model.
type Model struct {
	llm       llms.Model
	modelName string
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// NewModel creates a chat model for the configured provider.
func NewModel(cfg config.Config, logger *slog.Logger, mc *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
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

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return New(model, cfg.LLMModel, logger, mc), nil
}

// New wraps an existing langchaingo model.
func New(model llms.Model, name string, logger *slog.Logger, mc *metrics.Collector) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{llm: model, modelName: name, logger: logger, metrics: mc}
}

// Model returns the model name.
func (m *Model) Model() string {
	return m.modelName
}

// Messages builds the chat transcript: the page context as system message,
// prior turns, then the user message.
func Messages(prompt string, history []models.Message, userMessage string) []llms.MessageContent {
	system := systemPreamble
	if strings.TrimSpace(prompt) != "" {
		system += "\n\n" + prompt
	}
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, system)}
	for _, h := range history {
		switch h.Role {
		case models.RoleUser:
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, h.Content))
		case models.RoleAssistant:
			msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeAI, h.Content))
		}
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, userMessage))
}

// Complete sends prompt as system context and returns the assistant reply.
func (m *Model) Complete(ctx context.Context, prompt string, history []models.Message, userMessage string) (string, error) {
	msgs := Messages(prompt, history, userMessage)

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, msgs)
	elapsed := time.Since(start)
	if err != nil {
		m.logger.Warn("chat completion failed",
			"model", m.modelName, "duration_ms", elapsed.Milliseconds(), "error", err)
		return "", fmt.Errorf("complete: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	choice := resp.Choices[0]
	in, out := usage(choice.GenerationInfo)
	if in == 0 {
		in = int64(textutil.EstimateTokens(transcript(msgs)))
	}
	if out == 0 {
		out = int64(textutil.EstimateTokens(choice.Content))
	}
	if m.metrics != nil {
		m.metrics.RecordLLMUsage(elapsed, in, out)
	}
	m.logger.Debug("chat completion",
		"model", m.modelName, "duration_ms", elapsed.Milliseconds(),
		"input_tokens", in, "output_tokens", out)
	return choice.Content, nil
}

// usage reads token counts from provider generation info. Providers name
// the keys differently.
func usage(info map[string]any) (in, out int64) {
	for _, k := range []string{"PromptTokens", "InputTokens", "prompt_eval_count"} {
		if n, ok := toInt(info[k]); ok {
			in = n
			break
		}
	}
	for _, k := range []string{"CompletionTokens", "OutputTokens", "eval_count"} {
		if n, ok := toInt(info[k]); ok {
			out = n
			break
		}
	}
	return in, out
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func transcript(msgs []llms.MessageContent) string {
	var sb strings.Builder
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			if t, ok := part.(llms.TextContent); ok {
				sb.WriteString(t.Text)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
