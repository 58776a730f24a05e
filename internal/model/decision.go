package model

// DecisionKind is the top-level engagement outcome.
type DecisionKind string

const (
	DecisionRespond DecisionKind = "respond"
	DecisionSilent  DecisionKind = "silent"
)

// RespondReason explains a respond decision.
type RespondReason string

const (
	RespondMention   RespondReason = "mention"
	RespondSticky    RespondReason = "sticky"
	RespondProactive RespondReason = "proactive"
)

// SilentReason explains a silent decision.
type SilentReason string

const (
	SilentBelowThreshold SilentReason = "below_threshold"
	SilentQuietMode      SilentReason = "quiet_mode"
	SilentMutedByCommand SilentReason = "muted_by_command"
)

// EngagementDecision is the state machine's verdict for one message.
type EngagementDecision struct {
	Kind          DecisionKind  `json:"kind"`
	RespondReason RespondReason `json:"respond_reason,omitempty"`
	SilentReason  SilentReason  `json:"silent_reason,omitempty"`
	HeatScore     float64       `json:"heat_score"`
}

// Respond builds a respond decision.
func Respond(reason RespondReason, heat float64) EngagementDecision {
	return EngagementDecision{Kind: DecisionRespond, RespondReason: reason, HeatScore: heat}
}

// Silent builds a silent decision.
func Silent(reason SilentReason, heat float64) EngagementDecision {
	return EngagementDecision{Kind: DecisionSilent, SilentReason: reason, HeatScore: heat}
}

// Reason returns the reason string regardless of kind.
func (d EngagementDecision) Reason() string {
	if d.Kind == DecisionRespond {
		return string(d.RespondReason)
	}
	return string(d.SilentReason)
}

// Trigger maps a respond reason to the context-assembly trigger kind.
func (d EngagementDecision) Trigger() TriggerKind {
	switch d.RespondReason {
	case RespondMention:
		return TriggerMention
	case RespondSticky:
		return TriggerSticky
	default:
		return TriggerProactive
	}
}
