package document

import "time"

// Patch is a partial record. Nil pointers leave the stored field untouched;
// the Clear flags unset nullable fields. UpdatedAt is stamped by whoever
// applies the patch, never taken from the caller.
type Patch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Category     *Category  `json:"category,omitempty"`
	Tags         *[]string  `json:"tags,omitempty"`
	Type         *string    `json:"type,omitempty"`
	IsFavorite   *bool      `json:"isFavorite,omitempty"`
	ReminderDate *time.Time `json:"reminderDate,omitempty"`
	Content      *string    `json:"content,omitempty"`
	FileType     *string    `json:"fileType,omitempty"`
	StoragePath  *string    `json:"storagePath,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	TrashedAt    *time.Time `json:"trashedAt,omitempty"`
	Members      *Members   `json:"members,omitempty"`

	ClearReminder  bool `json:"-"`
	ClearTrashedAt bool `json:"-"`
}

// IsEmpty reports whether the patch would change nothing but updatedAt.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Tags == nil &&
		p.Type == nil && p.IsFavorite == nil && p.ReminderDate == nil && p.Content == nil &&
		p.FileType == nil && p.StoragePath == nil && p.Status == nil && p.TrashedAt == nil &&
		p.Members == nil && !p.ClearReminder && !p.ClearTrashedAt
}

// Apply merges p into d and stamps UpdatedAt. Fields are copied so d never
// aliases the patch.
func (p Patch) Apply(d *Document, now time.Time) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Tags != nil {
		d.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.IsFavorite != nil {
		d.IsFavorite = *p.IsFavorite
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.FileType != nil {
		d.FileType = *p.FileType
	}
	if p.StoragePath != nil {
		d.StoragePath = *p.StoragePath
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Members != nil {
		d.Members = p.Members.Clone()
	}
	if p.ReminderDate != nil {
		t := *p.ReminderDate
		d.ReminderDate = &t
	}
	if p.ClearReminder {
		d.ReminderDate = nil
	}
	if p.TrashedAt != nil {
		t := *p.TrashedAt
		d.TrashedAt = &t
	}
	if p.ClearTrashedAt {
		d.TrashedAt = nil
	}
	if now.Before(d.CreatedAt) {
		now = d.CreatedAt
	}
	d.UpdatedAt = now
}
