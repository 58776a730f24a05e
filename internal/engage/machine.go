// Package engage implements the per-chat engagement state machine.
package engage

import (
	"time"

	"github.com/toran-bot/engage/internal/model"
)

// Config holds the state machine's tunables.
type Config struct {
	// StickyTTL is how long the implicit-address window stays open after
	// a mention or an in-window reply.
	StickyTTL time.Duration

	// MuteDuration is how long a silence request suppresses proactive
	// engagement.
	MuteDuration time.Duration

	// ActiveModeScale scales the threshold down in active mode. Must be
	// in (0,1].
	ActiveModeScale float64
}

// Machine decides whether the bot engages with a message. Decide mutates
// the given state (sticky and mute windows, ambient bookkeeping is the
// caller's concern) and must therefore run inside the chat's lane.
type Machine struct {
	cfg Config
}

// NewMachine creates a state machine.
func NewMachine(cfg Config) *Machine {
	if cfg.ActiveModeScale <= 0 || cfg.ActiveModeScale > 1 {
		cfg.ActiveModeScale = 0.6
	}
	return &Machine{cfg: cfg}
}

// Decide evaluates the transition rules in precedence order; first match
// wins. Command messages must not reach this method.
func (m *Machine) Decide(
	state *model.ConversationState,
	msg model.InboundMessage,
	res model.IntentResult,
	heatScore float64,
	now time.Time,
) model.EngagementDecision {
	// Rule 1: direct mention always engages and opens the window.
	if msg.MentionsBot {
		state.ExtendSticky(now, m.cfg.StickyTTL)
		return model.Respond(model.RespondMention, heatScore)
	}

	// Rule 2: inside the sticky window the bot is implicitly addressed.
	// Messages that @-mention someone else are clearly not for the bot.
	if state.Sticky(now) && !msg.MentionsOthers {
		state.ExtendSticky(now, m.cfg.StickyTTL)
		return model.Respond(model.RespondSticky, heatScore)
	}

	// Rule 3: quiet mode blocks everything except mentions.
	if state.Mode == model.ModeQuiet {
		return model.Silent(model.SilentQuietMode, heatScore)
	}

	// Rule 4: an explicit silence request mutes the proactive path.
	if res.Label == model.IntentSilenceRequest {
		until := now.Add(m.cfg.MuteDuration)
		if until.After(state.MutedUntil) {
			state.MutedUntil = until
		}
		return model.Silent(model.SilentMutedByCommand, heatScore)
	}
	if state.Muted(now) {
		return model.Silent(model.SilentMutedByCommand, heatScore)
	}

	// Rule 5: proactive engagement when heat clears the mode-adjusted
	// threshold.
	if heatScore >= m.EffectiveThreshold(state) {
		return model.Respond(model.RespondProactive, heatScore)
	}
	return model.Silent(model.SilentBelowThreshold, heatScore)
}

// EffectiveThreshold returns the proactive cutoff adjusted for the chat's
// mode. Quiet mode never reaches this (rule 3 fires first).
func (m *Machine) EffectiveThreshold(state *model.ConversationState) float64 {
	if state.Mode == model.ModeActive {
		return state.Threshold * m.cfg.ActiveModeScale
	}
	return state.Threshold
}
