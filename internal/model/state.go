package model

import (
	"time"
)

// Mode controls how eager the bot is to engage in a chat.
type Mode string

const (
	ModeQuiet  Mode = "quiet"
	ModeNormal Mode = "normal"
	ModeActive Mode = "active"
)

// ValidMode reports whether m is a recognized mode.
func ValidMode(m Mode) bool {
	return m == ModeQuiet || m == ModeNormal || m == ModeActive
}

// ConversationState is the per-chat mutable state. It is owned by the
// chat's processing lane; everything outside the lane sees snapshots only.
type ConversationState struct {
	ChatID    string  `json:"chat_id"`
	Mode      Mode    `json:"mode"`
	Threshold float64 `json:"threshold"`

	// StickyUntil is the end of the implicit-address window opened by a
	// mention. Zero means no window. Never moves backward for a chat.
	StickyUntil time.Time `json:"sticky_until,omitempty"`

	// MutedUntil is the end of an explicit mute opened by a silence
	// request. Suppresses proactive engagement only.
	MutedUntil time.Time `json:"muted_until,omitempty"`

	// AmbientHeat is the decayed short-term heat of the chat.
	AmbientHeat float64 `json:"ambient_heat"`

	OptedOutUsers map[string]bool `json:"opted_out_users,omitempty"`

	LastWeeklySummaryAt  time.Time `json:"last_weekly_summary_at,omitempty"`
	LastMonthlySummaryAt time.Time `json:"last_monthly_summary_at,omitempty"`
}

// NewConversationState returns the lazily-created default state for a chat.
func NewConversationState(chatID string, threshold float64) *ConversationState {
	return &ConversationState{
		ChatID:        chatID,
		Mode:          ModeNormal,
		Threshold:     threshold,
		OptedOutUsers: make(map[string]bool),
	}
}

// Sticky reports whether the implicit-address window is open at now.
func (s *ConversationState) Sticky(now time.Time) bool {
	return !s.StickyUntil.IsZero() && now.Before(s.StickyUntil)
}

// Muted reports whether the explicit mute window is open at now.
func (s *ConversationState) Muted(now time.Time) bool {
	return !s.MutedUntil.IsZero() && now.Before(s.MutedUntil)
}

// ExtendSticky opens or refreshes the sticky window. The deadline never
// moves backward even if called with an earlier now.
func (s *ConversationState) ExtendSticky(now time.Time, ttl time.Duration) {
	until := now.Add(ttl)
	if until.After(s.StickyUntil) {
		s.StickyUntil = until
	}
}

// Snapshot returns a deep copy safe to read outside the owning lane.
func (s *ConversationState) Snapshot() ConversationState {
	cp := *s
	cp.OptedOutUsers = make(map[string]bool, len(s.OptedOutUsers))
	for u := range s.OptedOutUsers {
		cp.OptedOutUsers[u] = true
	}
	return cp
}
