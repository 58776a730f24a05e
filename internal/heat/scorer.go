// Package heat computes a scalar "worth responding to" signal per message.
package heat

import (
	"math"

	"github.com/toran-bot/engage/internal/intent"
	"github.com/toran-bot/engage/internal/model"
)

// Component weights of the instantaneous signal. The instantaneous signal
// and the decayed ambient heat of the chat mix into the final score.
const (
	weightIntent   = 0.55
	weightLength   = 0.25
	weightQuestion = 0.20

	weightInstant = 0.70
	weightAmbient = 0.30
)

// intentWeights ranks how much each label warrants a proactive reply.
var intentWeights = map[model.IntentLabel]float64{
	model.IntentQuestion:       0.90,
	model.IntentSearchRequest:  0.85,
	model.IntentImageRequest:   0.80,
	model.IntentOther:          0.40,
	model.IntentCasual:         0.20,
	model.IntentCommand:        0,
	model.IntentSilenceRequest: 0,
}

// Scorer computes heat scores.
type Scorer struct {
	// saturationRunes is the text length past which extra length stops
	// raising the score.
	saturationRunes int

	// decay is the factor applied to prior ambient heat before mixing in
	// each new message.
	decay float64

	// maxImages normalizes the image-count signal for text-free messages.
	maxImages int
}

// NewScorer creates a scorer. decay must be in [0,1).
func NewScorer(saturationRunes int, decay float64, maxImages int) *Scorer {
	if saturationRunes <= 0 {
		saturationRunes = 280
	}
	if maxImages <= 0 {
		maxImages = 4
	}
	return &Scorer{
		saturationRunes: saturationRunes,
		decay:           decay,
		maxImages:       maxImages,
	}
}

// Score returns the heat of a message in [0,1] and the updated ambient
// heat for the chat. ambient is the chat's prior ambient heat; the caller
// stores newAmbient back into the conversation state within the same lane.
func (s *Scorer) Score(msg model.InboundMessage, res model.IntentResult, ambient float64) (score, newAmbient float64) {
	instant := s.instant(msg, res)
	decayed := s.decay * ambient

	score = clamp(weightInstant*instant + weightAmbient*decayed)
	newAmbient = clamp(s.decay*ambient + (1-s.decay)*instant)
	return score, newAmbient
}

func (s *Scorer) instant(msg model.InboundMessage, res model.IntentResult) float64 {
	w := intentWeights[res.Label]

	var body float64
	if len(msg.Text) == 0 && len(msg.ImageRefs) > 0 {
		// Image-only messages are scored on image count, not penalized
		// for having no text.
		body = math.Min(1, float64(len(msg.ImageRefs))/float64(s.maxImages))
	} else {
		body = s.lengthCurve(len([]rune(msg.Text)))
	}

	var question float64
	if intent.HasQuestionMarkers(msg.Text) {
		question = 1
	}

	return clamp(weightIntent*w + weightLength*body + weightQuestion*question)
}

// lengthCurve is monotone non-decreasing with diminishing returns up to
// the saturation point and flat beyond it.
func (s *Scorer) lengthCurve(runes int) float64 {
	if runes <= 0 {
		return 0
	}
	if runes > s.saturationRunes {
		runes = s.saturationRunes
	}
	return math.Log1p(float64(runes)) / math.Log1p(float64(s.saturationRunes))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
