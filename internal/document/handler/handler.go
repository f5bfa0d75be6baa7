package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/document/repository"
	"github.com/docvault/docvault/backend/go-services/internal/document/service"
	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Identity resolves the stored profile for a token subject.
type Identity interface {
	GetBySub(ctx context.Context, sub string) (*models.User, error)
}

// PermissionStore records whether a user allows system notifications.
type PermissionStore interface {
	SetPermission(ctx context.Context, sub string, granted bool) error
}

// Deps wires the document routes.
type Deps struct {
	Registry    *service.Registry
	Users       Identity
	Store       repository.Store
	Blobs       storage.BlobStore
	Hub         *notify.Hub
	Permissions PermissionStore
	// ReadyTimeout bounds how long a request waits for the first snapshot.
	ReadyTimeout time.Duration
}

type documentHandler struct {
	Deps
}

// RegisterDocumentRoutes mounts the authenticated vault API on r. r must
// already run the auth middleware so "claims" is set.
func RegisterDocumentRoutes(r gin.IRouter, deps Deps) {
	if deps.ReadyTimeout <= 0 {
		deps.ReadyTimeout = 5 * time.Second
	}
	h := &documentHandler{Deps: deps}

	r.GET("/api/documents", h.list)
	r.GET("/api/documents/summary", h.summary)
	r.GET("/api/documents/timeline", h.timeline)
	r.POST("/api/documents", h.create)
	r.POST("/api/documents/upload", h.upload)
	r.GET("/api/documents/:id", h.get)
	r.PATCH("/api/documents/:id", h.patch)
	r.POST("/api/documents/:id/favorite", h.favorite)
	r.PUT("/api/documents/:id/reminder", h.reminder)
	r.POST("/api/documents/:id/trash", h.trash)
	r.POST("/api/documents/:id/restore", h.restore)
	r.DELETE("/api/documents/:id", h.destroy)
	r.PUT("/api/documents/:id/members", h.replaceMembers)
	r.POST("/api/documents/:id/members", h.inviteMember)
	r.PATCH("/api/documents/:id/members/:uid", h.changeRole)
	r.DELETE("/api/documents/:id/members/:uid", h.removeMember)
	r.GET("/api/users/lookup", h.lookupUser)
	r.POST("/api/notifications/permission", h.setPermission)
	r.GET("/api/ws", h.socket)
}

// RegisterShareRoutes mounts the unauthenticated share page API.
func RegisterShareRoutes(r gin.IRouter, store repository.Store) {
	r.GET("/api/share/:id", func(c *gin.Context) {
		d, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil || d.Status != document.StatusActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":          d.ID,
			"title":       d.Title,
			"description": d.Description,
			"category":    d.Category,
			"tags":        d.Tags,
			"members":     d.Members,
			"type":        d.Type,
			"fileType":    d.FileType,
			"content":     d.Content,
			"createdAt":   d.CreatedAt,
		})
	})
}

// currentUser maps the verified claims to a user, preferring the stored profile.
func (h *documentHandler) currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get("claims")
	if !ok {
		return nil, false
	}
	claims, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, false
	}
	if h.Users != nil {
		if u, err := h.Users.GetBySub(c.Request.Context(), sub); err == nil && u != nil {
			return u, true
		}
	}
	u := &models.User{Sub: sub}
	u.Email, _ = claims["email"].(string)
	u.Name, _ = claims["name"].(string)
	u.Avatar, _ = claims["picture"].(string)
	return u, true
}

// withManager acquires the caller's manager, waits for its first snapshot
// and runs fn. It writes the error response itself when that fails.
func (h *documentHandler) withManager(c *gin.Context, fn func(m *service.Manager, u *models.User)) {
	u, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	m, release := h.Registry.Acquire(u)
	defer release()
	select {
	case <-m.Ready():
	case <-time.After(h.ReadyTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "documents still loading"})
		return
	case <-c.Request.Context().Done():
		return
	}
	fn(m, u)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	default:
		logger.Errorf("document request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// visible returns the mirrored document or writes 404. Documents outside
// the caller's mirror are treated as absent.
func visible(c *gin.Context, m *service.Manager) (*document.Document, bool) {
	d, ok := m.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	return d, true
}

func (h *documentHandler) list(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		docs := m.Documents()
		switch c.DefaultQuery("view", "active") {
		case "active":
			docs = document.Active(docs)
		case "trashed":
			docs = document.Trashed(docs)
		case "favorites":
			docs = document.Favorites(docs)
		case "all":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown view"})
			return
		}
		if cat := c.Query("category"); cat != "" {
			if !document.Category(cat).Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
				return
			}
			docs = document.ByCategory(docs, document.Category(cat))
		}
		if q := c.Query("q"); q != "" {
			docs = document.Match(docs, q)
		}
		if docs == nil {
			docs = []*document.Document{}
		}
		c.JSON(http.StatusOK, docs)
	})
}

func (h *documentHandler) summary(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		c.JSON(http.StatusOK, document.Summarize(document.Active(m.Documents()), time.Now()))
	})
}

func (h *documentHandler) timeline(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		c.JSON(http.StatusOK, document.Timeline(m.Documents()))
	})
}

type createRequest struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Category     document.Category `json:"category"`
	Tags         []string          `json:"tags"`
	Type         string            `json:"type"`
	ReminderDate *time.Time        `json:"reminderDate"`
	Content      string            `json:"content"`
	FileType     string            `json:"fileType"`
}

func (h *documentHandler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if !req.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		d, err := m.Add(c.Request.Context(), document.Draft{
			Title:        strings.TrimSpace(req.Title),
			Description:  req.Description,
			Category:     req.Category,
			Tags:         req.Tags,
			Type:         req.Type,
			ReminderDate: req.ReminderDate,
			Content:      req.Content,
			FileType:     req.FileType,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	})
}

func (h *documentHandler) get(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		if d, ok := visible(c, m); ok {
			c.JSON(http.StatusOK, d)
		}
	})
}

type patchRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Category    *document.Category `json:"category"`
	Tags        *[]string          `json:"tags"`
	Type        *string            `json:"type"`
	IsFavorite  *bool              `json:"isFavorite"`
	Content     *string            `json:"content"`
	// absent leaves the reminder alone, null clears it
	ReminderDate json.RawMessage `json:"reminderDate"`
}

func (r patchRequest) toPatch() (document.Patch, error) {
	p := document.Patch{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Tags:        r.Tags,
		Type:        r.Type,
		IsFavorite:  r.IsFavorite,
		Content:     r.Content,
	}
	if r.Category != nil && !r.Category.Valid() {
		return p, errors.New("unknown category")
	}
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return p, errors.New("title cannot be empty")
	}
	switch raw := strings.TrimSpace(string(r.ReminderDate)); raw {
	case "":
	case "null":
		p.ClearReminder = true
	default:
		var at time.Time
		if err := json.Unmarshal(r.ReminderDate, &at); err != nil {
			return p, errors.New("reminderDate must be an RFC 3339 timestamp or null")
		}
		p.ReminderDate = &at
	}
	return p, nil
}

func (h *documentHandler) patch(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := req.toPatch()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		if _, ok := visible(c, m); !ok {
			return
		}
		if err := m.Update(c.Request.Context(), c.Param("id"), p); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
}

func (h *documentHandler) favorite(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		if _, ok := visible(c, m); !ok {
			return
		}
		fav, err := m.ToggleFavorite(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "isFavorite": fav})
	})
}

func (h *documentHandler) reminder(c *gin.Context) {
	var req struct {
		ReminderDate *time.Time `json:"reminderDate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		if _, ok := visible(c, m); !ok {
			return
		}
		if err := m.SetReminder(c.Request.Context(), c.Param("id"), req.ReminderDate); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "reminderDate": req.ReminderDate})
	})
}

func (h *documentHandler) trash(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		if _, ok := visible(c, m); !ok {
			return
		}
		if err := m.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": document.StatusTrashed})
	})
}

func (h *documentHandler) restore(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		if _, ok := visible(c, m); !ok {
			return
		}
		if err := m.Restore(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": document.StatusActive})
	})
}

func (h *documentHandler) destroy(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		if _, ok := visible(c, m); !ok {
			return
		}
		err := m.PermanentlyDelete(c.Request.Context(), c.Param("id"))
		switch {
		case err == nil:
			c.Status(http.StatusNoContent)
		case errors.Is(err, service.ErrBlobDeleteFailed):
			// the record is gone; the stored file is reported as left behind
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "warning": err.Error()})
		default:
			writeError(c, err)
		}
	})
}

func (h *documentHandler) lookupUser(c *gin.Context) {
	email := c.Query("email")
	if strings.TrimSpace(email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	h.withManager(c, func(m *service.Manager, _ *models.User) {
		u, err := m.FindUserByEmail(c.Request.Context(), email)
		if err != nil {
			writeError(c, err)
			return
		}
		if u == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": u.Sub, "email": u.Email, "name": u.Name, "avatar": u.Avatar})
	})
}

func (h *documentHandler) setPermission(c *gin.Context) {
	if h.Permissions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "system notifications are not configured"})
		return
	}
	u, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req struct {
		Granted bool `json:"granted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Permissions.SetPermission(c.Request.Context(), u.Sub, req.Granted); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": req.Granted})
}
