package handler

import (
	"net/http"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// socket keeps the caller's manager alive for as long as the dashboard is
// connected and streams every mirror change as a SNAPSHOT frame. Toasts for
// the user reach the same socket through the hub.
func (h *documentHandler) socket(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "live updates are not configured"})
		return
	}
	u, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	client, err := h.Hub.Serve(c.Writer, c.Request, u.Sub)
	if err != nil {
		// the upgrader already wrote the response
		logger.Warnf("websocket upgrade for %s: %v", u.Sub, err)
		return
	}

	m, release := h.Registry.Acquire(u)
	publish := func(docs []*document.Document) {
		if docs == nil {
			docs = []*document.Document{}
		}
		h.Hub.Publish(u.Sub, notify.SnapshotType, docs)
	}
	stop := m.OnChange(publish)
	go func() {
		<-m.Ready()
		if !m.Loading() {
			publish(m.Documents())
		}
	}()

	go func() {
		<-client.Done()
		stop()
		release()
		logger.Debugf("websocket closed for %s", u.Sub)
	}()
}
