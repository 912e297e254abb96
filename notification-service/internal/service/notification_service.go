package service

import (
	"context"

	"github.com/eaglebank/usersync/notification-service/internal/mail"
	"github.com/eaglebank/usersync/shared/cqrs"
	"github.com/eaglebank/usersync/shared/events"
	"github.com/eaglebank/usersync/shared/models"
	"github.com/rs/zerolog"
)

// NotificationService turns lifecycle events and ad-hoc requests into emails.
type NotificationService struct {
	sender    mail.Sender
	templates *Templates
	logger    zerolog.Logger
}

func NewNotificationService(sender mail.Sender, templates *Templates, logger zerolog.Logger) *NotificationService {
	return &NotificationService{sender: sender, templates: templates, logger: logger}
}

// SendAccountCreated emails the "account created" notice.
func (s *NotificationService) SendAccountCreated(ctx context.Context, email, name string) error {
	return s.sendLifecycle(ctx, events.UserCreated, email, name)
}

// SendAccountDeleted emails the "account deleted" notice.
func (s *NotificationService) SendAccountDeleted(ctx context.Context, email, name string) error {
	return s.sendLifecycle(ctx, events.UserDeleted, email, name)
}

func (s *NotificationService) sendLifecycle(ctx context.Context, eventType events.EventType, email, name string) error {
	subject, body, err := s.templates.Render(eventType, name, email)
	if err != nil {
		return err
	}
	return s.send(ctx, models.EmailMessage{To: email, Subject: subject, Body: body})
}

// SendCustomEmail sends an ad-hoc message as given.
func (s *NotificationService) SendCustomEmail(ctx context.Context, cmd cqrs.SendEmailCommand) error {
	return s.send(ctx, models.EmailMessage{To: cmd.To, Subject: cmd.Subject, Body: cmd.Message})
}

func (s *NotificationService) send(ctx context.Context, msg models.EmailMessage) error {
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("failed to send email")
		return err
	}
	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}
