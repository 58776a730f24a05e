package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/toran-bot/engage/internal/model"
	natsclient "github.com/toran-bot/engage/internal/platform/nats"
)

// Dispatch is one unit of outbound work for a responder: an assembled
// context window plus whatever triggered it. Exactly one of Decision, Job,
// Text, or JoinedUserID is meaningful depending on the window's trigger.
type Dispatch struct {
	Window       model.ContextWindow       `json:"window"`
	Decision     *model.EngagementDecision `json:"decision,omitempty"`
	Message      *model.InboundMessage     `json:"message,omitempty"`
	Job          *model.SummaryJob         `json:"job,omitempty"`
	Text         string                    `json:"text,omitempty"`
	JoinedUserID string                    `json:"joined_user_id,omitempty"`
}

// Responder consumes dispatches. Response generation itself lives
// downstream; the engine only decides and assembles.
type Responder interface {
	Dispatch(ctx context.Context, d Dispatch) error
}

const (
	// DispatchStreamName is the JetStream stream carrying outbound work.
	DispatchStreamName = "ENGAGE_DISPATCH"

	// DispatchSubjectPrefix prefixes per-chat dispatch subjects.
	DispatchSubjectPrefix = "dispatch"
)

// DispatchSubject returns the subject carrying one chat's dispatches.
func DispatchSubject(chatID string) string {
	return fmt.Sprintf("%s.%s", DispatchSubjectPrefix, chatID)
}

// NATSResponder publishes dispatches to a JetStream stream, one subject
// per chat, for downstream responder workers.
type NATSResponder struct {
	client *natsclient.Client
	maxAge time.Duration
}

// NewNATSResponder creates a JetStream-backed responder.
func NewNATSResponder(client *natsclient.Client, maxAge time.Duration) *NATSResponder {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &NATSResponder{client: client, maxAge: maxAge}
}

// EnsureStream ensures the dispatch stream exists.
func (r *NATSResponder) EnsureStream(ctx context.Context) error {
	js := r.client.JetStream()

	if _, err := js.Stream(ctx, DispatchStreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        DispatchStreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", DispatchSubjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      r.maxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Outbound responder work",
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatch stream: %w", err)
	}
	return nil
}

// Dispatch implements Responder.
func (r *NATSResponder) Dispatch(ctx context.Context, d Dispatch) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch: %w", err)
	}
	if _, err := r.client.JetStream().Publish(ctx, DispatchSubject(d.Window.ChatID), data); err != nil {
		return fmt.Errorf("failed to publish dispatch: %w", err)
	}
	return nil
}

// MemoryResponder records dispatches in memory. Test and diagnostic use.
type MemoryResponder struct {
	mu         sync.Mutex
	dispatches []Dispatch
}

// NewMemoryResponder creates an in-process responder.
func NewMemoryResponder() *MemoryResponder {
	return &MemoryResponder{}
}

// Dispatch implements Responder.
func (r *MemoryResponder) Dispatch(ctx context.Context, d Dispatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches = append(r.dispatches, d)
	return nil
}

// Dispatches returns a copy of everything dispatched so far.
func (r *MemoryResponder) Dispatches() []Dispatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Dispatch, len(r.dispatches))
	copy(out, r.dispatches)
	return out
}
