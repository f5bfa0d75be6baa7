package handler

import (
	"net/http"
	"path"
	"strings"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/document/service"
	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 25 << 20

// blobKey namespaces uploads per user and keeps the original file name.
func blobKey(userID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "file"
	}
	return userID + "/" + uuid.NewString() + "-" + name
}

func splitTags(raw string) []string {
	out := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// upload stores the file, then creates a document pointing at it. The
// document content is a presigned download URL.
func (h *documentHandler) upload(c *gin.Context) {
	if h.Blobs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "file storage is not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	category := document.Category(c.PostForm("category"))
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = fh.Filename
	}

	h.withManager(c, func(m *service.Manager, u *models.User) {
		ctx := c.Request.Context()
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key := blobKey(u.Sub, fh.Filename)
		if err := h.Blobs.UploadFile(ctx, key, f, fh.Size, contentType); err != nil {
			writeError(c, err)
			return
		}
		url, err := h.Blobs.PresignedURL(ctx, key, storage.PresignExpiry)
		if err != nil {
			_ = h.Blobs.DeleteByPath(ctx, key)
			writeError(c, err)
			return
		}
		d, err := m.Add(ctx, document.Draft{
			Title:       title,
			Description: c.PostForm("description"),
			Category:    category,
			Tags:        splitTags(c.PostForm("tags")),
			Content:     url,
			FileType:    contentType,
			StoragePath: key,
		})
		if err != nil {
			_ = h.Blobs.DeleteByPath(ctx, key)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	})
}
