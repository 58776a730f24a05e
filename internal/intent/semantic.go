package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/toran-bot/engage/internal/model"
)

// SemanticClassifier is an optional external oracle that classifies a
// message by meaning rather than keywords. Implementations may be slow;
// callers bound every call with a timeout.
type SemanticClassifier interface {
	// Classify returns an intent for the given text.
	Classify(ctx context.Context, text string) (model.IntentResult, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of semantic classifier provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewSemanticClassifier creates a semantic classifier for the provider.
func NewSemanticClassifier(provider Provider, apiKey, mdl string) (SemanticClassifier, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClassifier(apiKey, mdl)
	case ProviderOpenAI:
		return NewOpenAIClassifier(apiKey, mdl)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", provider)
	}
}

const classifierSystemPrompt = `You classify chat messages. Return ONLY JSON with keys:
label (one of: question, casual, command, image_request, search_request, silence_request, other)
confidence (number between 0 and 1).
Rules:
- "question": the message asks something, explicitly or implicitly.
- "image_request": the message asks for an image to be drawn, generated, or modified.
- "search_request": the message asks for current information from the web.
- "silence_request": the message tells the bot to stop talking or stay out.
- "casual": small talk with no ask.
- "other": anything else.`

// parseClassification decodes a provider's JSON answer into an IntentResult.
func parseClassification(raw string) (model.IntentResult, error) {
	raw = strings.TrimSpace(raw)
	// Tolerate fenced output from chatty models.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return model.IntentResult{}, fmt.Errorf("failed to parse classification: %w", err)
	}

	label := model.IntentLabel(out.Label)
	if !label.Valid() {
		return model.IntentResult{}, errors.New("classification returned unknown label")
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}

	return model.IntentResult{Label: label, Confidence: out.Confidence}, nil
}
