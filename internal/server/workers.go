package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ansiblecluster/core/internal/accessguard"
	"github.com/ansiblecluster/core/internal/apierr"
	"github.com/ansiblecluster/core/internal/audit"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/registry"
)

// JobLister is the slice of internal/queue the worker-jobs endpoint needs.
type JobLister interface {
	ByWorker(ctx context.Context, workerID string, statuses []model.JobStatus) ([]*model.Job, error)
}

type WorkerHandler struct {
	registry *registry.Registry
	jobs     JobLister
	revision func() string
	audit    *audit.Emitter
}

func NewWorkerHandler(reg *registry.Registry, jobs JobLister, revision func() string, auditor *audit.Emitter) *WorkerHandler {
	return &WorkerHandler{registry: reg, jobs: jobs, revision: revision, audit: auditor}
}

type registerRequest struct {
	Name  string   `json:"name"`
	Tags  []string `json:"tags"`
	Token string   `json:"token"`
}

// POST /api/workers/register
func (h *WorkerHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Invalid(err))
		return
	}
	res, err := h.registry.Register(c.Request.Context(), registry.RegisterRequest{
		Name: strings.TrimSpace(req.Name), Tags: req.Tags, Token: req.Token,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"worker_id": res.WorkerID, "checkin_interval": res.CheckinInterval})
}

type checkinRequest struct {
	SyncRevision *string            `json:"sync_revision"`
	Stats        *model.WorkerStats `json:"stats"`
	Status       *string            `json:"status"`
	ActiveJobs   []string           `json:"active_jobs"`
}

// POST /api/workers/:id/checkin
func (h *WorkerHandler) Checkin(c *gin.Context) {
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Invalid(err))
		return
	}
	creq := registry.CheckinRequest{
		WorkerID:     c.Param("id"),
		SyncRevision: req.SyncRevision,
		Stats:        req.Stats,
		ActiveJobs:   req.ActiveJobs,
	}
	if req.Status != nil {
		s := model.WorkerStatus(*req.Status)
		creq.Status = &s
	}
	res, err := h.registry.Checkin(c.Request.Context(), creq, h.revision)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{
		"next_checkin_seconds": res.NextCheckinSeconds,
		"sync_needed":          res.SyncNeeded,
		"current_revision":     res.CurrentRevision,
	})
}

// GET /api/workers/:id/jobs?status=assigned
func (h *WorkerHandler) Jobs(c *gin.Context) {
	statusParam := c.Query("status")
	var statuses []model.JobStatus
	if statusParam != "" {
		for _, s := range strings.Split(statusParam, ",") {
			statuses = append(statuses, model.JobStatus(strings.TrimSpace(s)))
		}
	}
	jobs, err := h.jobs.ByWorker(c.Request.Context(), c.Param("id"), statuses)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"jobs": jobs})
}

// GET /api/workers
func (h *WorkerHandler) List(c *gin.Context) {
	workers, err := h.registry.List(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"workers": workers})
}

// GET /api/workers/:id
func (h *WorkerHandler) Get(c *gin.Context) {
	w, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"worker": w})
}

// DELETE /api/workers/:id
func (h *WorkerHandler) Delete(c *gin.Context) {
	err := h.registry.Delete(c.Request.Context(), c.Param("id"))
	if h.audit != nil {
		principal, _ := accessguard.PrincipalFrom(c)
		h.audit.Record(c.Request.Context(), principal.Username, "workers:delete", c.Param("id"), err == nil)
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
