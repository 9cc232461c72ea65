package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/kalambet/recap/internal/extract"
	"github.com/kalambet/recap/internal/ollama"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.1"
)

type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OllamaGenerator runs extraction on a local Ollama server, constraining
// output with the record's JSON schema.
type OllamaGenerator struct {
	client *ollama.Client
	model  string
	schema map[string]any
}

func NewOllama(cfg OllamaConfig) (*OllamaGenerator, error) {
	schema, err := extract.Schema()
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaGenerator{client: ollama.New(baseURL), model: model, schema: schema}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := g.client.Chat(ctx, g.model, []ollama.Message{{Role: "user", Content: prompt}}, g.schema)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return out, nil
}

func (g *OllamaGenerator) Describe() string {
	return BackendOllama + " (" + g.model + ")"
}

// Ready verifies the server is up and pulls the model when missing.
func (g *OllamaGenerator) Ready(ctx context.Context, w io.Writer) error {
	return ollama.EnsureReady(ctx, g.client, g.model, w)
}
