package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Generator turns a composed prompt into the model's raw text answer.
// Implementations are safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)

	// Describe names the backend and model for status output.
	Describe() string
}

const (
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendOllama    = "ollama"
)

// temperature keeps extraction output stable across runs.
const temperature = 0.2

type Config struct {
	Backend   string
	Timeout   time.Duration
	Gemini    GeminiConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Ollama    OllamaConfig
}

// New builds the Generator selected by cfg.Backend. An empty backend means
// gemini.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendGemini:
		return NewGemini(ctx, cfg.Gemini)
	case BackendOpenAI:
		return NewOpenAI(cfg.OpenAI)
	case BackendAnthropic:
		return NewAnthropic(cfg.Anthropic)
	case BackendOllama:
		return NewOllama(cfg.Ollama)
	default:
		return nil, fmt.Errorf("unknown engine backend %q (want gemini, openai, anthropic or ollama)", cfg.Backend)
	}
}
