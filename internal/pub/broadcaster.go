// Package pub is the outbound notification boundary. Nothing in here may
// fail a fund movement: callers dispatch only after commit and ignore errors.
package pub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Broadcaster delivers user notifications and topic broadcasts.
type Broadcaster interface {
	Notify(ctx context.Context, recipientID, kind string, payload any) error
	Broadcast(ctx context.Context, topic, kind string, payload any) error
}

const (
	ChannelNotify    = "notify"
	ChannelBroadcast = "broadcast"
)

// Envelope is the wire form shared by the Redis and Kafka sinks and the
// websocket relay.
type Envelope struct {
	Channel   string          `json:"channel"`
	Recipient string          `json:"recipient,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals payload into the shared wire form.
func NewEnvelope(channel, recipient, topic, kind string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return &Envelope{
		Channel:   channel,
		Recipient: recipient,
		Topic:     topic,
		Kind:      kind,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Multi fans every call out to all sinks and joins their errors.
type Multi []Broadcaster

func (m Multi) Notify(ctx context.Context, recipientID, kind string, payload any) error {
	var errs []error
	for _, b := range m {
		if err := b.Notify(ctx, recipientID, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Broadcast(ctx context.Context, topic, kind string, payload any) error {
	var errs []error
	for _, b := range m {
		if err := b.Broadcast(ctx, topic, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, any) error    { return nil }
func (Nop) Broadcast(context.Context, string, string, any) error { return nil }
