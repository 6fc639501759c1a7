package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/pagewise/internal/config"
	"github.com/raphaelgruber/pagewise/internal/metrics"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// stubLLM records the transcript and answers with a fixed reply.
type stubLLM struct {
	reply string
	info  map[string]any
	err   error
	got   []llms.MessageContent
}

func (s *stubLLM) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	s.got = msgs
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.reply, GenerationInfo: s.info}}}, nil
}

func (s *stubLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, opts...)
}

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("complete: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		wrapped := wrapFatalError(errors.New("invalid api key provided"))
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		if result := wrapFatalError(err); result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		if result := wrapFatalError(nil); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

func TestMessages(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "What is this page about?"},
		{Role: models.RoleSystem, Content: "ignored"},
		{Role: models.RoleAssistant, Content: "Go generics."},
	}
	msgs := Messages("[Current Page]\nGo Generics", history, "Show an example")

	require.Len(t, msgs, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Contains(t, transcript(msgs[:1]), "[Current Page]")
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)
	assert.Contains(t, transcript(msgs[3:]), "Show an example")
}

func TestCompleteRecordsUsage(t *testing.T) {
	stub := &stubLLM{reply: "Use type parameters.", info: map[string]any{"PromptTokens": 120, "CompletionTokens": 8}}
	mc := metrics.NewCollector()
	m := New(stub, "stub", nil, mc)

	got, err := m.Complete(context.Background(), "context", nil, "How?")
	require.NoError(t, err)
	assert.Equal(t, "Use type parameters.", got)
	assert.Len(t, stub.got, 2)

	op := mc.Snapshot().Operations[metrics.OpLLMChat]
	require.NotNil(t, op)
	assert.Equal(t, int64(1), op.Count)
	require.NotNil(t, op.TotalInputTokens)
	assert.Equal(t, int64(120), *op.TotalInputTokens)
	assert.Equal(t, int64(8), *op.TotalOutputTokens)
}

func TestCompleteEstimatesMissingUsage(t *testing.T) {
	stub := &stubLLM{reply: "12345678"}
	mc := metrics.NewCollector()
	m := New(stub, "stub", nil, mc)

	_, err := m.Complete(context.Background(), "", nil, "hi")
	require.NoError(t, err)

	op := mc.Snapshot().Operations[metrics.OpLLMChat]
	require.NotNil(t, op)
	assert.Equal(t, int64(2), *op.TotalOutputTokens)
	assert.Positive(t, *op.TotalInputTokens)
}

func TestCompleteWrapsFatal(t *testing.T) {
	m := New(&stubLLM{err: errors.New("HTTP 401: invalid api key")}, "stub", nil, nil)
	_, err := m.Complete(context.Background(), "", nil, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalAPI)
}

func TestNewModelProviders(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.LLMProvider = config.ProviderOpenAI
	_, err := NewModel(cfg, nil, nil)
	assert.ErrorContains(t, err, "OpenAI API key required")

	cfg.LLMProvider = config.ProviderAnthropic
	_, err = NewModel(cfg, nil, nil)
	assert.ErrorContains(t, err, "Anthropic API key required")

	cfg.LLMProvider = "gemini"
	_, err = NewModel(cfg, nil, nil)
	assert.ErrorContains(t, err, "unsupported LLM provider")

	cfg.LLMProvider = config.ProviderOllama
	m, err := NewModel(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.LLMModel, m.Model())
}
