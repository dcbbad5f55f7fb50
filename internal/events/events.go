// Package events defines the state-change and reset-command payloads exchanged over Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types carried in the event_type header.
const (
	TypeStateChanged   = "userstate.state_changed"
	TypeResetRequested = "userstate.reset_requested"
)

const headerEventType = "event_type"

// StateChanged is published after an acknowledged write or a detected external change.
type StateChanged struct {
	Domain     string    `json:"domain"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ResetRequested asks the consumer to restore a user's record in one domain to its defaults.
type ResetRequested struct {
	Domain      string    `json:"domain"`
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher emits state-change notifications.
type Publisher interface {
	Publish(ctx context.Context, evt StateChanged) error
}

// NoopPublisher discards events. It backs deployments without Kafka.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, StateChanged) error { return nil }

// NewMessage encodes payload as a Kafka message keyed by key and tagged with eventType.
func NewMessage(eventType, key string, payload any) (kafka.Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
		},
	}, nil
}

// EventType returns the event_type header of msg.
func EventType(msg kafka.Message) (string, error) {
	for _, header := range msg.Headers {
		if header.Key == headerEventType {
			return string(header.Value), nil
		}
	}
	return "", errors.New("missing event_type header")
}
