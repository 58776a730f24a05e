// Package assemble builds bounded context windows from conversation history.
package assemble

import (
	"context"
	"fmt"

	"github.com/toran-bot/engage/internal/history"
	"github.com/toran-bot/engage/internal/model"
)

// Config bounds the windows the assembler produces.
type Config struct {
	// RecentMessages caps the response context window.
	RecentMessages int
	// SummaryMessages caps a summary window.
	SummaryMessages int
	// ImagesPerMessage caps image refs kept per message.
	ImagesPerMessage int
	// ImagesPerWindow caps image refs kept across a whole window.
	ImagesPerWindow int
}

func (c Config) withDefaults() Config {
	if c.RecentMessages <= 0 {
		c.RecentMessages = 20
	}
	if c.SummaryMessages <= 0 {
		c.SummaryMessages = 400
	}
	if c.ImagesPerMessage <= 0 {
		c.ImagesPerMessage = 4
	}
	if c.ImagesPerWindow <= 0 {
		c.ImagesPerWindow = 12
	}
	return c
}

// Assembler reads history and produces context windows. It never writes
// history and never mutates stored messages.
type Assembler struct {
	store history.Store
	cfg   Config
}

// New creates an assembler over the given history store.
func New(store history.Store, cfg Config) *Assembler {
	return &Assembler{store: store, cfg: cfg.withDefaults()}
}

// Recent assembles the response context for a chat: the most recent
// messages in chronological order, bounded by RecentMessages and the
// image budgets. Truncated is set whenever older context or image refs
// were dropped to fit the bounds.
func (a *Assembler) Recent(ctx context.Context, chatID string, trigger model.TriggerKind) (model.ContextWindow, error) {
	msgs, truncated, err := a.store.Recent(ctx, chatID, a.cfg.RecentMessages)
	if err != nil {
		return model.ContextWindow{}, fmt.Errorf("failed to read recent history: %w", err)
	}

	window := model.ContextWindow{
		ChatID:    chatID,
		Trigger:   trigger,
		Messages:  msgs,
		Truncated: truncated,
	}
	if a.capImages(window.Messages) {
		window.Truncated = true
	}
	return window, nil
}

// SummaryWindow assembles the context for a summary job: the job's time
// window, bounded by SummaryMessages, with opted-out users' messages
// removed entirely.
func (a *Assembler) SummaryWindow(ctx context.Context, job model.SummaryJob) (model.ContextWindow, error) {
	msgs, truncated, err := a.store.Range(ctx, job.ChatID, job.WindowStart, job.WindowEnd, a.cfg.SummaryMessages)
	if err != nil {
		return model.ContextWindow{}, fmt.Errorf("failed to read summary window: %w", err)
	}

	if len(job.ExcludedUsers) > 0 {
		excluded := make(map[string]bool, len(job.ExcludedUsers))
		for _, u := range job.ExcludedUsers {
			excluded[u] = true
		}
		kept := msgs[:0]
		for _, msg := range msgs {
			if !excluded[msg.UserID] {
				kept = append(kept, msg)
			}
		}
		msgs = kept
	}

	window := model.ContextWindow{
		ChatID:    job.ChatID,
		Trigger:   model.TriggerSummary,
		Messages:  msgs,
		Truncated: truncated,
	}
	if a.capImages(window.Messages) {
		window.Truncated = true
	}
	return window, nil
}

// capImages enforces the per-message and per-window image budgets,
// spending the window budget on the newest messages first. Reports
// whether any refs were dropped.
func (a *Assembler) capImages(msgs []model.StoredMessage) bool {
	dropped := false
	budget := a.cfg.ImagesPerWindow

	for i := len(msgs) - 1; i >= 0; i-- {
		refs := msgs[i].ImageRefs
		if len(refs) == 0 {
			continue
		}

		keep := len(refs)
		if keep > a.cfg.ImagesPerMessage {
			keep = a.cfg.ImagesPerMessage
		}
		if keep > budget {
			keep = budget
		}
		if keep < len(refs) {
			dropped = true
			if keep == 0 {
				msgs[i].ImageRefs = nil
				continue
			}
			trimmed := make([]string, keep)
			copy(trimmed, refs[:keep])
			msgs[i].ImageRefs = trimmed
		}
		budget -= keep
	}
	return dropped
}
