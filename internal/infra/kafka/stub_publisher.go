package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Selected when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a log-only event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

// PublishAccountRegistered logs account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(EventAccountRegistered, event.AccountID, event.RegisteredAt,
		zap.Bool("confirmation_dispatched", event.ConfirmationDispatched),
	)
	return nil
}

// PublishEmailConfirmed logs account.email_confirmed events.
func (p *StubPublisher) PublishEmailConfirmed(_ context.Context, event domain.EmailConfirmedEvent) error {
	p.logEvent(EventEmailConfirmed, event.AccountID, event.ConfirmedAt)
	return nil
}

// PublishAccountLockedOut logs account.locked_out events.
func (p *StubPublisher) PublishAccountLockedOut(_ context.Context, event domain.AccountLockedOutEvent) error {
	p.logEvent(EventAccountLockedOut, event.AccountID, event.LockedAt,
		zap.Int("lockout_minutes", event.LockoutMinutes),
		zap.Int("next_multiplier", event.NextMultiplier),
	)
	return nil
}

// PublishPasswordResetRequested logs account.password_reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent(EventPasswordResetRequested, event.AccountID, event.RequestedAt,
		zap.String("masked_destination", event.MaskedDestination),
		zap.Bool("delivered", event.Delivered),
	)
	return nil
}

// PublishPasswordChanged logs account.password_changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(EventPasswordChanged, event.AccountID, event.ChangedAt, zap.String("reason", event.Reason))
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
