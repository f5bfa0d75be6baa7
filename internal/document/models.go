package document

import (
	"strings"
	"time"
)

// Category groups documents on the dashboard.
type Category string

const (
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
	CategoryFinance  Category = "Finance"
	CategoryLegal    Category = "Legal"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryWork, CategoryPersonal, CategoryFinance, CategoryLegal}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Status is the persisted visibility state of a document.
type Status string

const (
	StatusActive  Status = "active"
	StatusTrashed Status = "trashed"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusTrashed }

// Role is a member's access level on a shared document.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool { return r == RoleOwner || r == RoleEditor || r == RoleViewer }

// Member is a user granted access to a document.
type Member struct {
	Role   Role   `json:"role" bson:"role"`
	Name   string `json:"name" bson:"name"`
	Avatar string `json:"avatar,omitempty" bson:"avatar,omitempty"`
}

// Members maps user id to membership.
type Members map[string]Member

// Owner returns the id of the first member holding RoleOwner.
func (m Members) Owner() (string, bool) {
	for id, mem := range m {
		if mem.Role == RoleOwner {
			return id, true
		}
	}
	return "", false
}

// OwnerCount reports how many members hold RoleOwner.
func (m Members) OwnerCount() int {
	n := 0
	for _, mem := range m {
		if mem.Role == RoleOwner {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (m Members) Clone() Members {
	if m == nil {
		return nil
	}
	out := make(Members, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is the single persisted entity of the vault.
type Document struct {
	ID          string   `json:"id" bson:"_id,omitempty"`
	Title       string   `json:"title" bson:"title"`
	Description string   `json:"description" bson:"description"`
	Category    Category `json:"category" bson:"category"`
	Tags        []string `json:"tags" bson:"tags"`
	// Type is the display kind shown on cards (PDF, Word, Image, ...).
	Type string `json:"type,omitempty" bson:"type,omitempty"`

	Status    Status     `json:"status" bson:"status"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
	Version   int        `json:"version" bson:"version"`
	TrashedAt *time.Time `json:"trashedAt,omitempty" bson:"trashedAt,omitempty"`

	ReminderDate *time.Time `json:"reminderDate,omitempty" bson:"reminderDate,omitempty"`
	IsFavorite   bool       `json:"isFavorite" bson:"isFavorite"`
	Content      string     `json:"content,omitempty" bson:"content,omitempty"`
	FileType     string     `json:"fileType,omitempty" bson:"fileType,omitempty"`
	StoragePath  string     `json:"storagePath,omitempty" bson:"storagePath,omitempty"`

	OwnerID string  `json:"ownerId" bson:"ownerId"`
	Members Members `json:"members,omitempty" bson:"members,omitempty"`
}

// Clone returns a deep copy so callers can never alias the mirror's records.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	if d.TrashedAt != nil {
		t := *d.TrashedAt
		c.TrashedAt = &t
	}
	if d.ReminderDate != nil {
		t := *d.ReminderDate
		c.ReminderDate = &t
	}
	c.Members = d.Members.Clone()
	return &c
}

// HasMember reports whether userID may see the document.
func (d *Document) HasMember(userID string) bool {
	if d.OwnerID == userID {
		return true
	}
	_, ok := d.Members[userID]
	return ok
}

// Draft holds the caller-supplied fields of a new document. Identity,
// timestamps, version, status, favorite flag and membership are assigned by add.
type Draft struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     Category   `json:"category"`
	Tags         []string   `json:"tags"`
	Type         string     `json:"type,omitempty"`
	ReminderDate *time.Time `json:"reminderDate,omitempty"`
	Content      string     `json:"content,omitempty"`
	FileType     string     `json:"fileType,omitempty"`
	StoragePath  string     `json:"storagePath,omitempty"`
}

// TypeFromMIME maps a MIME type to the display kind used on document cards.
func TypeFromMIME(mime string) string {
	m := strings.ToLower(mime)
	switch {
	case m == "":
		return "OTHER"
	case strings.Contains(m, "pdf"):
		return "PDF"
	case strings.Contains(m, "sheet") || strings.Contains(m, "excel") || strings.Contains(m, "csv"):
		return "Spreadsheet"
	case strings.Contains(m, "presentation") || strings.Contains(m, "powerpoint"):
		return "Presentation"
	case strings.HasPrefix(m, "image/"):
		return "Image"
	case strings.Contains(m, "word") || strings.Contains(m, "document"):
		return "Word"
	case strings.HasPrefix(m, "text/plain"):
		return "TXT"
	}
	return "OTHER"
}
