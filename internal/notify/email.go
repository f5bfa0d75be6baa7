package notify

import (
	"context"
	"fmt"

	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/resend/resend-go/v2"
)

// EmailNotifier sends reminders by email through Resend. In dev mode the
// message is logged instead of sent.
type EmailNotifier struct {
	client    *resend.Client
	fromEmail string
	appName   string
	isDev     bool
}

func NewEmailNotifier(apiKey, fromEmail, appName string, isDev bool) *EmailNotifier {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}
	return &EmailNotifier{client: client, fromEmail: fromEmail, appName: appName, isDev: isDev}
}

func (e *EmailNotifier) Permitted(ctx context.Context, u *models.User) bool {
	return u != nil && u.Email != "" && (e.isDev || e.client != nil)
}

func (e *EmailNotifier) Notify(ctx context.Context, u *models.User, title, body string) error {
	subject := fmt.Sprintf("[%s] %s", e.appName, title)
	if e.isDev {
		logger.Infow("email sent (dev mode)", "type", "reminder", "to", u.Email, "subject", subject)
		return nil
	}
	if e.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}
	params := &resend.SendEmailRequest{
		From:    e.fromEmail,
		To:      []string{u.Email},
		Subject: subject,
		Text:    body,
	}
	if _, err := e.client.Emails.SendWithContext(ctx, params); err != nil {
		return err
	}
	logger.Infow("email sent", "type", "reminder", "to", u.Email)
	return nil
}
