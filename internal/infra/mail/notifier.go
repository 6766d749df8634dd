package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/infra/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	confirmEmailSubject  = "Confirm your Promptino account"
	resetPasswordSubject = "Reset your Promptino password"
)

type templateData struct {
	FirstName string
	Link      string
}

// Notifier renders the account lifecycle templates and hands them to a Mailer.
type Notifier struct {
	mailer    Mailer
	templates *template.Template
	logger    *zap.Logger
}

// NewNotifier parses the embedded templates.
func NewNotifier(mailer Mailer, log *zap.Logger) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Notifier{mailer: mailer, templates: tmpl, logger: log}, nil
}

// SendEmailConfirmation sends the confirm-email link.
func (n *Notifier) SendEmailConfirmation(ctx context.Context, msg port.ConfirmationMessage) error {
	return n.send(ctx, msg.To, confirmEmailSubject, "confirm_email.html", templateData{FirstName: msg.FirstName, Link: msg.Link})
}

// SendPasswordReset sends the password reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, msg port.PasswordResetMessage) error {
	return n.send(ctx, msg.To, resetPasswordSubject, "reset_password.html", templateData{FirstName: msg.FirstName, Link: msg.Link})
}

func (n *Notifier) send(ctx context.Context, to, subject, name string, data templateData) error {
	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	if err := n.mailer.Send(ctx, to, subject, body.String()); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}

	logger.WithContext(ctx, n.logger).Debug("mail sent",
		zap.String("template", name),
		zap.String("to", logger.MaskEmail(to)),
	)
	return nil
}

// LogNotifier writes links to the log instead of sending mail.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{logger: log}
}

// SendEmailConfirmation logs the confirmation link.
func (n *LogNotifier) SendEmailConfirmation(ctx context.Context, msg port.ConfirmationMessage) error {
	logger.WithContext(ctx, n.logger).Info("confirmation link", zap.String("to", msg.To), zap.String("link", msg.Link))
	return nil
}

// SendPasswordReset logs the password reset link.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, msg port.PasswordResetMessage) error {
	logger.WithContext(ctx, n.logger).Info("password reset link", zap.String("to", msg.To), zap.String("link", msg.Link))
	return nil
}

var (
	_ port.Notifier = (*Notifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)
