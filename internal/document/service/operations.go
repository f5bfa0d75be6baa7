package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/docvault/docvault/backend/go-services/pkg/metrics"
)

// requireUser returns the signed-in identity or surfaces ErrNotAuthenticated.
func (m *Manager) requireUser(op string) (*models.User, error) {
	u := m.User()
	if u == nil {
		return nil, m.fail(op, "You are not signed in", ErrNotAuthenticated)
	}
	return u, nil
}

// Add creates a document owned by the signed-in user. Title and category are
// taken as given; validating them is the caller's job.
func (m *Manager) Add(ctx context.Context, draft document.Draft) (*document.Document, error) {
	u, err := m.requireUser("add")
	if err != nil {
		return nil, err
	}
	now := m.now()
	tags := append([]string{}, draft.Tags...)
	typ := draft.Type
	if typ == "" {
		typ = document.TypeFromMIME(draft.FileType)
	}
	d := &document.Document{
		Title:        draft.Title,
		Description:  draft.Description,
		Category:     draft.Category,
		Tags:         tags,
		Type:         typ,
		Status:       document.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
		ReminderDate: draft.ReminderDate,
		IsFavorite:   false,
		Content:      draft.Content,
		FileType:     draft.FileType,
		StoragePath:  draft.StoragePath,
		OwnerID:      u.Sub,
		Members: document.Members{
			u.Sub: {Role: document.RoleOwner, Name: u.DisplayName(), Avatar: u.Avatar},
		},
	}
	id, err := m.store.Create(ctx, d)
	if err != nil {
		return nil, m.fail("add", "Could not add document", err)
	}
	d.ID = id
	ok("add")
	logger.Infof("document %s created by %s", id, u.Sub)
	return d, nil
}

// Update merges p into the stored document. The store refreshes updatedAt.
func (m *Manager) Update(ctx context.Context, id string, p document.Patch) error {
	if _, err := m.requireUser("update"); err != nil {
		return err
	}
	if err := m.store.Patch(ctx, id, p); err != nil {
		return m.fail("update", "Could not update document", err)
	}
	ok("update")
	return nil
}

// SoftDelete moves a document to the trash.
func (m *Manager) SoftDelete(ctx context.Context, id string) error {
	if _, err := m.requireUser("trash"); err != nil {
		return err
	}
	status := document.StatusTrashed
	now := m.now()
	if err := m.store.Patch(ctx, id, document.Patch{Status: &status, TrashedAt: &now}); err != nil {
		return m.fail("trash", "Could not move document to trash", err)
	}
	ok("trash")
	return nil
}

// Restore brings a trashed document back. A document the mirror already
// shows as active is left untouched.
func (m *Manager) Restore(ctx context.Context, id string) error {
	if _, err := m.requireUser("restore"); err != nil {
		return err
	}
	if d, found := m.Get(id); found && d.Status == document.StatusActive {
		return nil
	}
	status := document.StatusActive
	if err := m.store.Patch(ctx, id, document.Patch{Status: &status, ClearTrashedAt: true}); err != nil {
		return m.fail("restore", "Could not restore document", err)
	}
	ok("restore")
	return nil
}

// PermanentlyDelete removes the stored file, then the record. A file that is
// already gone is ignored; any other file error is reported but the record is
// still deleted, and the returned error wraps ErrBlobDeleteFailed.
func (m *Manager) PermanentlyDelete(ctx context.Context, id string) error {
	if _, err := m.requireUser("delete"); err != nil {
		return err
	}
	d, err := m.store.Get(ctx, id)
	if err != nil {
		return m.fail("delete", "Could not delete document", err)
	}

	var blobErr error
	if d.StoragePath != "" {
		blobErr = m.deleteBlob(ctx, d.StoragePath)
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return m.fail("delete", "Could not delete document", err)
	}
	ok("delete")
	logger.Infof("document %s permanently deleted", id)
	return blobErr
}

func (m *Manager) deleteBlob(ctx context.Context, path string) error {
	if m.blobs == nil {
		logger.Warnf("no blob store configured, leaving %s in place", path)
		return nil
	}
	err := m.blobs.DeleteByPath(ctx, path)
	switch {
	case err == nil:
		metrics.BlobDeletes.WithLabelValues("deleted").Inc()
		return nil
	case errors.Is(err, storage.ErrBlobNotFound):
		metrics.BlobDeletes.WithLabelValues("not_found").Inc()
		logger.Debugf("blob %s already absent", path)
		return nil
	default:
		metrics.BlobDeletes.WithLabelValues("failed").Inc()
		logger.Errorf("delete blob %s: %v", path, err)
		m.toast(notify.Toast{Title: "Could not delete stored file", Description: err.Error(), Variant: notify.VariantDestructive})
		return fmt.Errorf("%w: %v", ErrBlobDeleteFailed, err)
	}
}

// UpdateMembers replaces the member map wholesale.
func (m *Manager) UpdateMembers(ctx context.Context, id string, members document.Members) error {
	if _, err := m.requireUser("members"); err != nil {
		return err
	}
	cp := members.Clone()
	if err := m.store.Patch(ctx, id, document.Patch{Members: &cp}); err != nil {
		return m.fail("members", "Could not update sharing", err)
	}
	ok("members")
	return nil
}

// FindUserByEmail looks up a user by email. (nil, nil) means no such user.
func (m *Manager) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.users == nil {
		return nil, nil
	}
	u, err := m.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, m.fail("lookup", "Could not look up user", err)
	}
	return u, nil
}

// ToggleFavorite flips isFavorite and returns the new value.
func (m *Manager) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	if _, err := m.requireUser("favorite"); err != nil {
		return false, err
	}
	d, found := m.Get(id)
	if !found {
		var err error
		if d, err = m.store.Get(ctx, id); err != nil {
			return false, m.fail("favorite", "Could not update document", err)
		}
	}
	fav := !d.IsFavorite
	if err := m.store.Patch(ctx, id, document.Patch{IsFavorite: &fav}); err != nil {
		return false, m.fail("favorite", "Could not update document", err)
	}
	ok("favorite")
	return fav, nil
}

// SetReminder schedules a reminder, or clears it when at is nil.
func (m *Manager) SetReminder(ctx context.Context, id string, at *time.Time) error {
	p := document.Patch{ReminderDate: at}
	if at == nil {
		p.ClearReminder = true
	}
	return m.Update(ctx, id, p)
}
