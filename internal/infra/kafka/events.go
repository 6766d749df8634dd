package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types. The producer prefixes them with the configured topic prefix.
const (
	EventAccountRegistered      = "account.registered"
	EventEmailConfirmed         = "account.email_confirmed"
	EventAccountLockedOut       = "account.locked_out"
	EventPasswordResetRequested = "account.password_reset_requested"
	EventPasswordChanged        = "account.password_changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(eventType)
	envelope := eventEnvelope{
		EventID:   id,
		EventType: topic,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(accountID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID              string    `json:"account_id"`
		Email                  string    `json:"email"`
		RegisteredAt           time.Time `json:"registered_at"`
		ConfirmationDispatched bool      `json:"confirmation_dispatched"`
	}{
		AccountID:              event.AccountID,
		Email:                  event.Email,
		RegisteredAt:           event.RegisteredAt.UTC(),
		ConfirmationDispatched: event.ConfirmationDispatched,
	}

	return p.publish(ctx, event.EventID, EventAccountRegistered, event.AccountID, event.RegisteredAt, payload)
}

// PublishEmailConfirmed publishes account.email_confirmed events.
func (p *EventPublisher) PublishEmailConfirmed(ctx context.Context, event domain.EmailConfirmedEvent) error {
	payload := struct {
		AccountID   string    `json:"account_id"`
		Email       string    `json:"email"`
		ConfirmedAt time.Time `json:"confirmed_at"`
	}{
		AccountID:   event.AccountID,
		Email:       event.Email,
		ConfirmedAt: event.ConfirmedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventEmailConfirmed, event.AccountID, event.ConfirmedAt, payload)
}

// PublishAccountLockedOut publishes account.locked_out events.
func (p *EventPublisher) PublishAccountLockedOut(ctx context.Context, event domain.AccountLockedOutEvent) error {
	payload := struct {
		AccountID      string    `json:"account_id"`
		LockedAt       time.Time `json:"locked_at"`
		LockoutEnd     time.Time `json:"lockout_end"`
		LockoutMinutes int       `json:"lockout_minutes"`
		NextMultiplier int       `json:"next_multiplier"`
	}{
		AccountID:      event.AccountID,
		LockedAt:       event.LockedAt.UTC(),
		LockoutEnd:     event.LockoutEnd.UTC(),
		LockoutMinutes: event.LockoutMinutes,
		NextMultiplier: event.NextMultiplier,
	}

	return p.publish(ctx, event.EventID, EventAccountLockedOut, event.AccountID, event.LockedAt, payload)
}

// PublishPasswordResetRequested publishes account.password_reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		AccountID         string    `json:"account_id"`
		RequestedAt       time.Time `json:"requested_at"`
		MaskedDestination string    `json:"masked_destination,omitempty"`
		ExpiresAt         time.Time `json:"expires_at"`
		Delivered         bool      `json:"delivered"`
	}{
		AccountID:         event.AccountID,
		RequestedAt:       event.RequestedAt.UTC(),
		MaskedDestination: event.MaskedDestination,
		ExpiresAt:         event.ExpiresAt.UTC(),
		Delivered:         event.Delivered,
	}

	timestamp := event.RequestedAt
	if timestamp.IsZero() {
		timestamp = event.ExpiresAt
	}

	return p.publish(ctx, event.EventID, EventPasswordResetRequested, event.AccountID, timestamp, payload)
}

// PublishPasswordChanged publishes account.password_changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID string    `json:"account_id"`
		ChangedAt time.Time `json:"changed_at"`
		Reason    string    `json:"reason"`
	}{
		AccountID: event.AccountID,
		ChangedAt: event.ChangedAt.UTC(),
		Reason:    event.Reason,
	}

	return p.publish(ctx, event.EventID, EventPasswordChanged, event.AccountID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
