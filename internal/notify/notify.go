package notify

import (
	"context"

	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
)

// Toast variants understood by the dashboard.
const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Toast is an in-app message shown by the dashboard.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Variant     string `json:"variant,omitempty"`
}

// Toaster delivers in-app toasts to a user's open sessions.
type Toaster interface {
	Toast(userID string, t Toast)
}

// Notifier is the system notification facility. Notify is only attempted
// when Permitted reports true.
type Notifier interface {
	Permitted(ctx context.Context, u *models.User) bool
	Notify(ctx context.Context, u *models.User, title, body string) error
}

// LogToaster writes toasts to the log; used when no hub is wired.
type LogToaster struct{}

func (LogToaster) Toast(userID string, t Toast) {
	logger.Infow("toast", "user", userID, "title", t.Title, "description", t.Description, "variant", t.Variant)
}

// NoopNotifier never has permission, so every notification falls back to a toast.
type NoopNotifier struct{}

func (NoopNotifier) Permitted(context.Context, *models.User) bool { return false }

func (NoopNotifier) Notify(context.Context, *models.User, string, string) error { return nil }
