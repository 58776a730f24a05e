// Package model defines data structures for the engagement engine.
package model

import (
	"time"
)

// InboundMessage is a single delivered chat message, already parsed and
// verified by the platform layer.
type InboundMessage struct {
	EventID     string    `json:"event_id"`
	ChatID      string    `json:"chat_id"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	MentionsBot bool      `json:"mentions_bot"`
	// MentionsOthers is true when the message @-mentions someone who is not
	// the bot. Such messages are not treated as implicitly addressed even
	// inside a sticky window.
	MentionsOthers bool     `json:"mentions_others,omitempty"`
	Text           string   `json:"text"`
	ImageRefs      []string `json:"image_refs,omitempty"`
	IsCommand      bool     `json:"is_command"`
}

// StoredMessage is a message as kept in conversation history.
type StoredMessage struct {
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	ImageRefs []string  `json:"image_refs,omitempty"`
}

// TriggerKind identifies why a context window is being assembled.
type TriggerKind string

const (
	TriggerMention   TriggerKind = "mention"
	TriggerSticky    TriggerKind = "sticky"
	TriggerProactive TriggerKind = "proactive"
	TriggerSummary   TriggerKind = "summary"
	TriggerWelcome   TriggerKind = "welcome"
	TriggerCommand   TriggerKind = "command"
)

// ContextWindow is the bounded prompt context handed to a responder.
type ContextWindow struct {
	ChatID    string          `json:"chat_id"`
	Trigger   TriggerKind     `json:"trigger"`
	Messages  []StoredMessage `json:"messages"`
	Truncated bool            `json:"truncated"`
}
