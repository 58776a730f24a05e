package intent

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/toran-bot/engage/internal/model"
)

// OpenAIClassifier is an OpenAI-backed semantic classifier.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

// NewOpenAIClassifier creates a new OpenAI semantic classifier.
func NewOpenAIClassifier(apiKey, mdl string) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if mdl == "" {
		mdl = "gpt-4o-mini"
	}

	return &OpenAIClassifier{
		client: openai.NewClient(apiKey),
		model:  mdl,
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClassifier) Name() string {
	return "openai"
}

// Classify sends the text for semantic classification.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (model.IntentResult, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   128,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return model.IntentResult{}, err
	}

	if len(resp.Choices) == 0 {
		return model.IntentResult{}, errors.New("empty classification response")
	}
	return parseClassification(resp.Choices[0].Message.Content)
}
