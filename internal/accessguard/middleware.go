package accessguard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ansiblecluster/core/internal/apierr"
	"github.com/ansiblecluster/core/internal/model"
)

const principalContextKey = "accessguard.principal"

// extractCredentials reads the three supported auth channels from a gin
// request: session cookie, X-API-Token header, and worker identity (header
// or body field), matching spec §6's "Authentication headers".
func extractCredentials(c *gin.Context) Credentials {
	var creds Credentials

	if cookie, err := c.Cookie("ansible_session"); err == nil {
		creds.SessionID = cookie
	}
	if token := c.GetHeader("X-API-Token"); token != "" {
		creds.APIToken = token
	}
	if workerID := c.GetHeader("X-Worker-Id"); workerID != "" {
		creds.WorkerID = workerID
	} else if workerID := peekBodyWorkerID(c); workerID != "" {
		creds.WorkerID = workerID
	}
	return creds
}

type workerIDBody struct {
	WorkerID string `json:"worker_id"`
}

// peekBodyWorkerID reads worker_id out of a JSON request body, then restores
// the body so the handler's own ShouldBindJSON still sees every byte. This
// lets a worker authenticate via the body field spec §6 documents as an
// alternative to X-Worker-Id, since RequireWorker runs before any handler
// gets a chance to parse the body itself.
func peekBodyWorkerID(c *gin.Context) string {
	if c.Request == nil || c.Request.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var body workerIDBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.WorkerID
}

// RequirePermission resolves the principal and requires it to hold the
// given permission, writing 401/403/423 per spec §4.2 and stashing the
// resolved principal for handlers to read via PrincipalFrom.
func (g *Guard) RequirePermission(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := extractCredentials(c)
		principal, err := g.ResolvePrincipal(c.Request.Context(), creds)
		if err != nil {
			apiErr := apierr.Unauthenticated(err)
			c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr.Code})
			return
		}
		if err := g.CheckAccess(c.Request.Context(), principal, required); err != nil {
			apiErr := apierr.As(err)
			c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr.Code})
			return
		}
		c.Set(principalContextKey, principal)
		c.Next()
	}
}

// RequireWorker accepts only a resolved worker principal, for the
// worker-only endpoints named in spec §6 (start/log-stream/complete).
func (g *Guard) RequireWorker() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := extractCredentials(c)
		if creds.WorkerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if g.workers == nil || !g.workers.WorkerExists(c.Request.Context(), creds.WorkerID) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Set(principalContextKey, model.Principal{Kind: model.PrincipalWorker, WorkerID: creds.WorkerID})
		c.Next()
	}
}

// PrincipalFrom reads the principal a prior middleware stashed on the gin
// context; ok is false if no guard middleware ran.
func PrincipalFrom(c *gin.Context) (model.Principal, bool) {
	v, exists := c.Get(principalContextKey)
	if !exists {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

// IsPublicPath reports whether path is on the fixed public allow-list
// (login, session probe, health) that bypasses RequirePermission entirely,
// per spec §4.2.
func IsPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

var publicPaths = []string{
	"/api/auth/login",
	"/api/auth/session",
	"/healthz",
}
