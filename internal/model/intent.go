package model

// IntentLabel is one of the closed set of message intents.
type IntentLabel string

const (
	IntentQuestion       IntentLabel = "question"
	IntentCasual         IntentLabel = "casual"
	IntentCommand        IntentLabel = "command"
	IntentImageRequest   IntentLabel = "image_request"
	IntentSearchRequest  IntentLabel = "search_request"
	IntentSilenceRequest IntentLabel = "silence_request"
	IntentOther          IntentLabel = "other"
)

// IntentResult is the classifier output for one message.
type IntentResult struct {
	Label      IntentLabel `json:"label"`
	Confidence float64     `json:"confidence"`
}

// Valid reports whether the label belongs to the closed set.
func (l IntentLabel) Valid() bool {
	switch l {
	case IntentQuestion, IntentCasual, IntentCommand, IntentImageRequest,
		IntentSearchRequest, IntentSilenceRequest, IntentOther:
		return true
	}
	return false
}
