package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/toran-bot/engage/internal/model"
	natsclient "github.com/toran-bot/engage/internal/platform/nats"
)

const (
	// StreamName is the name of the message history stream.
	StreamName = "CHAT_HISTORY"

	// SubjectPrefix is the prefix for all history subjects.
	SubjectPrefix = "hist"
)

// NATS is a history store backed by a JetStream stream with one subject
// per chat. Retention is delegated to the stream's MaxAge.
type NATS struct {
	client *natsclient.Client
	maxAge time.Duration
}

// NewNATS creates a JetStream-backed history store.
func NewNATS(client *natsclient.Client, maxAge time.Duration) *NATS {
	if maxAge <= 0 {
		maxAge = 90 * 24 * time.Hour
	}
	return &NATS{client: client, maxAge: maxAge}
}

// EnsureStream ensures the history stream exists with proper configuration.
func (s *NATS) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      s.maxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation message history",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// ChatSubject returns the subject carrying one chat's history.
func ChatSubject(chatID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, chatID)
}

// Append implements Store.
func (s *NATS) Append(ctx context.Context, msg model.StoredMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := s.client.JetStream().Publish(ctx, ChatSubject(msg.ChatID), data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Recent implements Store.
func (s *NATS) Recent(ctx context.Context, chatID string, limit int) ([]model.StoredMessage, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	total, err := s.chatStreamInfo(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	if total == 0 {
		return nil, false, nil
	}

	// The subject count positions the tail: everything before it is
	// skipped without decoding, so assembly cost tracks the window size
	// rather than the chat's full history.
	skip := 0
	if total > uint64(limit) {
		skip = int(total - uint64(limit))
	}

	msgs, _, err := s.fetch(ctx, jetstream.ConsumerConfig{
		FilterSubject: ChatSubject(chatID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}, skip, 0, time.Time{}, time.Time{})
	if err != nil {
		return nil, false, err
	}

	// Appends racing the info call can push the tail past the limit.
	truncated := skip > 0
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
		truncated = true
	}
	return msgs, truncated, nil
}

// Range implements Store.
func (s *NATS) Range(ctx context.Context, chatID string, start, end time.Time, limit int) ([]model.StoredMessage, bool, error) {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: ChatSubject(chatID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverByStartTimePolicy,
		OptStartTime:  &start,
	}

	msgs, truncated, err := s.fetch(ctx, cfg, 0, limit, start, end)
	if err != nil {
		return nil, false, err
	}
	return msgs, truncated, nil
}

// chatStreamInfo returns the number of messages on the chat's subject.
func (s *NATS) chatStreamInfo(ctx context.Context, chatID string) (uint64, error) {
	stream, err := s.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	info, err := stream.Info(ctx, jetstream.WithSubjectFilter(ChatSubject(chatID)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return info.State.Msgs, nil
}

// fetch drains the filtered subject through an ephemeral consumer. The
// first skip messages are counted past without decoding. When limit is
// positive it stops there and reports truncation; when start/end are set,
// messages outside [start, end) are filtered out.
func (s *NATS) fetch(
	ctx context.Context,
	cfg jetstream.ConsumerConfig,
	skip, limit int,
	start, end time.Time,
) ([]model.StoredMessage, bool, error) {
	js := s.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out []model.StoredMessage
	truncated := false

	for {
		batchSize := 100
		batch, err := consumer.Fetch(batchSize, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		count := 0
		for raw := range batch.Messages() {
			count++

			if skip > 0 {
				skip--
				continue
			}

			var msg model.StoredMessage
			if err := json.Unmarshal(raw.Data(), &msg); err != nil {
				continue
			}
			if !start.IsZero() && msg.Timestamp.Before(start) {
				continue
			}
			if !end.IsZero() && !msg.Timestamp.Before(end) {
				continue
			}

			if limit > 0 && len(out) == limit {
				truncated = true
				break
			}
			out = append(out, msg)
		}

		if truncated || count < batchSize {
			break
		}
	}
	return out, truncated, nil
}
