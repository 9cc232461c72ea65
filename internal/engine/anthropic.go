package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/recap/internal/anthropic"
)

const DefaultAnthropicModel = "claude-3-5-sonnet-latest"

type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
}

type AnthropicGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropic(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is not set (anthropic.api_key or RECAP_ANTHROPIC_API_KEY)")
	}
	client := anthropic.NewClient(cfg.APIKey)
	if cfg.BaseURL != "" {
		client = anthropic.NewClientWithBaseURL(cfg.APIKey, cfg.BaseURL)
	}
	g := &AnthropicGenerator{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}
	if g.model == "" {
		g.model = DefaultAnthropicModel
	}
	if g.maxTokens <= 0 {
		g.maxTokens = anthropic.DefaultMaxTokens
	}
	return g, nil
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	t := temperature
	resp, err := g.client.Messages(ctx, anthropic.MessagesRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &t,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("anthropic: empty response")
	}
	return text, nil
}

func (g *AnthropicGenerator) Describe() string {
	return BackendAnthropic + " (" + g.model + ")"
}
