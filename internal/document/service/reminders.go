package service

import (
	"context"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/docvault/docvault/backend/go-services/pkg/metrics"
)

const reminderBody = "This is a reminder for your document."

// runReminders scans the mirror every ReminderInterval until ctx ends.
func (m *Manager) runReminders(ctx context.Context) {
	defer m.wg.Done()
	t := time.NewTicker(m.opts.ReminderInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.CheckReminders(ctx, m.now())
		}
	}
}

// CheckReminders delivers every reminder that fell due within the last
// ReminderWindow before now and clears it. Reminders older than the window
// are skipped, never caught up. It returns how many fired.
func (m *Manager) CheckReminders(ctx context.Context, now time.Time) int {
	m.mu.RLock()
	docs := m.docs
	var u *models.User
	if m.user != nil {
		cp := *m.user
		u = &cp
	}
	m.mu.RUnlock()
	if u == nil {
		return 0
	}

	fired := 0
	for _, d := range docs {
		if !m.due(d, now) {
			continue
		}
		m.deliver(ctx, u, d)
		fired++
		if err := m.Update(ctx, d.ID, document.Patch{ClearReminder: true}); err != nil {
			// already toasted; the reminder leaves the window on its own
			logger.Warnf("clear reminder on %s: %v", d.ID, err)
		}
	}
	return fired
}

func (m *Manager) due(d *document.Document, now time.Time) bool {
	if d.Status != document.StatusActive || d.ReminderDate == nil {
		return false
	}
	at := *d.ReminderDate
	return !now.Before(at) && now.Sub(at) < m.opts.ReminderWindow
}

func (m *Manager) deliver(ctx context.Context, u *models.User, d *document.Document) {
	title := "Reminder: " + d.Title
	if m.notifier.Permitted(ctx, u) {
		err := m.notifier.Notify(ctx, u, title, reminderBody)
		if err == nil {
			metrics.RemindersFired.WithLabelValues("system").Inc()
			return
		}
		logger.Warnf("system notification for %s failed, falling back to toast: %v", d.ID, err)
	}
	metrics.RemindersFired.WithLabelValues("toast").Inc()
	m.toaster.Toast(u.Sub, notify.Toast{Title: title, Description: reminderBody, Variant: notify.VariantDefault})
}
