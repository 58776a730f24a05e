// Package intent classifies inbound messages into a closed set of labels.
//
// A deterministic keyword layer always runs first; an optional semantic
// classifier backed by an LLM provider can upgrade low-confidence results
// under a bounded timeout. The semantic call is best-effort: on timeout or
// error the heuristic result stands and the message is never rejected.
package intent

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/toran-bot/engage/internal/model"
	"github.com/toran-bot/engage/pkg/logger"
	"github.com/toran-bot/engage/pkg/metrics"
)

// Keyword tables carried over from the bot's heuristic rules.
var (
	questionKeywords = []string{
		"怎么", "如何", "为啥", "为什么", "怎么办", "谁知道", "有链接吗",
		"总结", "结论", "进展",
		"how ", "why ", "what ", "where ", "when ", "anyone know",
	}

	silenceKeywords = []string{
		"啥都不用做", "你呆着就好", "别说话", "闭嘴", "安静点",
		"不用回", "不用回复", "不需要你",
		"shut up", "be quiet", "stop replying", "don't reply",
	}

	imageKeywords = []string{
		"画", "绘制", "生成图片", "生成一张", "画一张", "画个", "画出",
		"帮我画", "给我画", "改成", "变成",
		"draw ", "generate image", "create image", "make image",
	}

	searchKeywords = []string{
		"搜索", "搜一下", "查一下", "最新消息", "联网",
		"search for", "look up", "latest news",
	}
)

// upgradeThreshold is the heuristic confidence below which the semantic
// classifier is consulted.
const upgradeThreshold = 0.8

// Classifier maps a message to an intent label with a confidence score.
type Classifier struct {
	semantic SemanticClassifier
	timeout  time.Duration
	logger   *logger.Logger
}

// NewClassifier creates a classifier. semantic may be nil, in which case
// only the deterministic keyword layer runs.
func NewClassifier(semantic SemanticClassifier, timeout time.Duration, log *logger.Logger) *Classifier {
	return &Classifier{
		semantic: semantic,
		timeout:  timeout,
		logger:   log,
	}
}

// Classify returns the intent of a message. It never returns an error:
// failure of the semantic layer degrades to the heuristic result.
func (c *Classifier) Classify(ctx context.Context, msg model.InboundMessage) model.IntentResult {
	result := Heuristic(msg)

	if c.semantic == nil || result.Confidence >= upgradeThreshold {
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	upgraded, err := c.semantic.Classify(callCtx, msg.Text)
	metrics.ClassifierDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		cause := "error"
		if callCtx.Err() != nil {
			cause = "timeout"
		}
		metrics.RecordClassifierFallback(cause)
		c.logger.Warn("semantic classification failed, using heuristic result",
			zap.String("chat_id", msg.ChatID),
			zap.String("cause", cause),
			zap.Error(err),
		)
		return result
	}

	if !upgraded.Label.Valid() || upgraded.Confidence <= result.Confidence {
		return result
	}
	return upgraded
}

// Heuristic is the deterministic keyword layer. It is a pure function of
// the message content, which keeps offline tests reproducible.
func Heuristic(msg model.InboundMessage) model.IntentResult {
	if msg.IsCommand {
		return model.IntentResult{Label: model.IntentCommand, Confidence: 1.0}
	}

	text := strings.TrimSpace(msg.Text)
	lower := strings.ToLower(text)

	if text == "" {
		if len(msg.ImageRefs) > 0 {
			return model.IntentResult{Label: model.IntentCasual, Confidence: 0.4}
		}
		return model.IntentResult{Label: model.IntentOther, Confidence: 0}
	}

	if containsAny(text, lower, silenceKeywords) {
		return model.IntentResult{Label: model.IntentSilenceRequest, Confidence: 0.9}
	}
	if containsAny(text, lower, imageKeywords) {
		return model.IntentResult{Label: model.IntentImageRequest, Confidence: 0.7}
	}
	if containsAny(text, lower, searchKeywords) {
		return model.IntentResult{Label: model.IntentSearchRequest, Confidence: 0.7}
	}

	if hasQuestionMark(text) {
		return model.IntentResult{Label: model.IntentQuestion, Confidence: 0.85}
	}
	if containsAny(text, lower, questionKeywords) {
		return model.IntentResult{Label: model.IntentQuestion, Confidence: 0.6}
	}

	if len([]rune(text)) <= 40 {
		return model.IntentResult{Label: model.IntentCasual, Confidence: 0.5}
	}
	return model.IntentResult{Label: model.IntentOther, Confidence: 0.3}
}

// HasQuestionMarkers reports whether the text carries explicit question
// signals. Used by the heat scorer as well.
func HasQuestionMarkers(text string) bool {
	lower := strings.ToLower(text)
	return hasQuestionMark(text) || containsAny(text, lower, questionKeywords)
}

func hasQuestionMark(text string) bool {
	return strings.Contains(text, "?") || strings.Contains(text, "？")
}

func containsAny(text, lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) || strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
