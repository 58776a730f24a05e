package intent

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/toran-bot/engage/internal/model"
)

// AnthropicClassifier is an Anthropic-backed semantic classifier.
type AnthropicClassifier struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClassifier creates a new Anthropic semantic classifier.
func NewAnthropicClassifier(apiKey, mdl string) (*AnthropicClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if mdl == "" {
		mdl = "claude-3-5-haiku-20241022"
	}

	return &AnthropicClassifier{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  mdl,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClassifier) Name() string {
	return "anthropic"
}

// Classify sends the text for semantic classification.
func (c *AnthropicClassifier) Classify(ctx context.Context, text string) (model.IntentResult, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(c.model),
		MaxTokens: anthropic.F(int64(128)),
		System: anthropic.F([]anthropic.TextBlockParam{
			{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(classifierSystemPrompt),
			},
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			{
				Role: anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{
					anthropic.TextBlockParam{
						Type: anthropic.F(anthropic.TextBlockParamTypeText),
						Text: anthropic.F(text),
					},
				}),
			},
		}),
	})
	if err != nil {
		return model.IntentResult{}, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	return parseClassification(content)
}
