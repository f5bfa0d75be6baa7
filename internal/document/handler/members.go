package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/document/service"
	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/gin-gonic/gin"
)

// validateMembers enforces the sharing rules: known roles and exactly one
// owner, who must stay the document's owner.
func validateMembers(members document.Members, owner string) error {
	if len(members) == 0 {
		return errors.New("members cannot be empty")
	}
	for uid, mem := range members {
		if uid == "" {
			return errors.New("member id cannot be empty")
		}
		if !mem.Role.Valid() {
			return errors.New("unknown role " + string(mem.Role))
		}
	}
	if members.OwnerCount() != 1 {
		return errors.New("a document must have exactly one owner")
	}
	if members[owner].Role != document.RoleOwner {
		return errors.New("ownership cannot be transferred")
	}
	return nil
}

// ownerOf prefers OwnerID and falls back to the owner member.
func ownerOf(d *document.Document) string {
	if d.OwnerID != "" {
		return d.OwnerID
	}
	owner, _ := d.Members.Owner()
	return owner
}

// ownedBy writes 403 unless u owns d.
func ownedBy(c *gin.Context, d *document.Document, u *models.User) bool {
	if ownerOf(d) != u.Sub {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can change sharing"})
		return false
	}
	return true
}

func (h *documentHandler) replaceMembers(c *gin.Context) {
	var req struct {
		Members document.Members `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Members) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "members cannot be empty"})
		return
	}
	h.withManager(c, func(m *service.Manager, u *models.User) {
		d, ok := visible(c, m)
		if !ok || !ownedBy(c, d, u) {
			return
		}
		if err := validateMembers(req.Members, ownerOf(d)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.saveMembers(c, m, req.Members)
	})
}

func (h *documentHandler) inviteMember(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	h.withManager(c, func(m *service.Manager, u *models.User) {
		d, ok := visible(c, m)
		if !ok || !ownedBy(c, d, u) {
			return
		}
		invitee, err := m.FindUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			writeError(c, err)
			return
		}
		if invitee == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if _, exists := d.Members[invitee.Sub]; exists {
			c.JSON(http.StatusConflict, gin.H{"error": "user is already a member"})
			return
		}
		members := d.Members.Clone()
		members[invitee.Sub] = document.Member{Role: document.RoleViewer, Name: invitee.DisplayName(), Avatar: invitee.Avatar}
		h.saveMembers(c, m, members)
	})
}

func (h *documentHandler) changeRole(c *gin.Context) {
	var req struct {
		Role document.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != document.RoleEditor && req.Role != document.RoleViewer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be editor or viewer"})
		return
	}
	h.withManager(c, func(m *service.Manager, u *models.User) {
		d, ok := visible(c, m)
		if !ok || !ownedBy(c, d, u) {
			return
		}
		members, ok := editableMember(c, d)
		if !ok {
			return
		}
		mem := members[c.Param("uid")]
		mem.Role = req.Role
		members[c.Param("uid")] = mem
		h.saveMembers(c, m, members)
	})
}

func (h *documentHandler) removeMember(c *gin.Context) {
	h.withManager(c, func(m *service.Manager, u *models.User) {
		d, ok := visible(c, m)
		if !ok || !ownedBy(c, d, u) {
			return
		}
		members, ok := editableMember(c, d)
		if !ok {
			return
		}
		delete(members, c.Param("uid"))
		h.saveMembers(c, m, members)
	})
}

// editableMember returns a copy of d's members after checking that the :uid
// member exists and is not the owner.
func editableMember(c *gin.Context, d *document.Document) (document.Members, bool) {
	uid := c.Param("uid")
	mem, exists := d.Members[uid]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		return nil, false
	}
	if mem.Role == document.RoleOwner || uid == ownerOf(d) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "the owner cannot be changed or removed"})
		return nil, false
	}
	return d.Members.Clone(), true
}

func (h *documentHandler) saveMembers(c *gin.Context, m *service.Manager, members document.Members) {
	if err := m.UpdateMembers(c.Request.Context(), c.Param("id"), members); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "members": members})
}
