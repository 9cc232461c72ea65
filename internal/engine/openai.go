package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/recap/internal/extract"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxRetries overrides the SDK retry count when positive. Negative
	// disables retries.
	MaxRetries int
}

// OpenAIGenerator uses the Responses API with a strict JSON schema derived
// from extract.Record.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	schema map[string]any
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is not set (openai.api_key or RECAP_OPENAI_API_KEY)")
	}
	schema, err := extract.Schema()
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	switch {
	case cfg.MaxRetries > 0:
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	case cfg.MaxRetries < 0:
		opts = append(opts, option.WithMaxRetries(0))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
		schema: schema,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "MeetingExtraction",
			Schema:      g.schema,
			Strict:      openai.Bool(true),
			Description: openai.String("Structured meeting summary"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:       g.model,
		Temperature: openai.Float(temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: create response: %w", err)
	}
	text := resp.OutputText()
	if text == "" {
		return "", errors.New("openai: empty response")
	}
	return text, nil
}

func (g *OpenAIGenerator) Describe() string {
	return BackendOpenAI + " (" + g.model + ")"
}
