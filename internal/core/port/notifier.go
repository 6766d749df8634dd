package port

import "context"

// ConfirmationMessage carries the data rendered into the confirm-email message.
type ConfirmationMessage struct {
	To        string
	FirstName string
	Link      string
}

// PasswordResetMessage carries the data rendered into the password reset message.
type PasswordResetMessage struct {
	To        string
	FirstName string
	Link      string
}

// Notifier delivers account lifecycle messages to end users.
type Notifier interface {
	SendEmailConfirmation(ctx context.Context, msg ConfirmationMessage) error
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}
