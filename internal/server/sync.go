package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ansiblecluster/core/internal/apierr"
	"github.com/ansiblecluster/core/internal/contentstore"
)

type SyncHandler struct {
	store *contentstore.Store
}

func NewSyncHandler(store *contentstore.Store) *SyncHandler {
	return &SyncHandler{store: store}
}

// GET /api/sync/revision
func (h *SyncHandler) Revision(c *gin.Context) {
	rev := h.store.CurrentRevision()
	respondOK(c, gin.H{"revision": rev, "short_revision": contentstore.ShortRevision(rev)})
}

// GET /api/sync/manifest
func (h *SyncHandler) Manifest(c *gin.Context) {
	manifest, err := h.store.Manifest(c.Request.Context())
	if err != nil {
		respondErr(c, apierr.Internal(err))
		return
	}
	respondOK(c, gin.H{"revision": h.store.CurrentRevision(), "manifest": manifest})
}

// GET /api/sync/archive — streams the full bundle as a gzip'd tar.
func (h *SyncHandler) Archive(c *gin.Context) {
	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", `attachment; filename="bundle.tar.gz"`)
	c.Status(http.StatusOK)
	if err := h.store.Archive(c.Request.Context(), c.Writer); err != nil {
		c.Error(err)
	}
}

// GET /api/sync/file/*path — streams a single bundle-relative file;
// safeJoin inside the store rejects any path that escapes the bundle root.
func (h *SyncHandler) File(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	f, err := h.store.File(c.Request.Context(), rel)
	if err != nil {
		respondErr(c, apierr.NotFound(err))
		return
	}
	defer f.Close()
	c.Status(http.StatusOK)
	io.Copy(c.Writer, f)
}
