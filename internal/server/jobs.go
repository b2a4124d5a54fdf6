package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ansiblecluster/core/internal/accessguard"
	"github.com/ansiblecluster/core/internal/apierr"
	"github.com/ansiblecluster/core/internal/audit"
	"github.com/ansiblecluster/core/internal/authz"
	"github.com/ansiblecluster/core/internal/cmdb"
	"github.com/ansiblecluster/core/internal/completion"
	"github.com/ansiblecluster/core/internal/logbroker"
	"github.com/ansiblecluster/core/internal/metrics"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/queue"
)

type JobHandler struct {
	queue    *queue.Queue
	pipeline *completion.Pipeline
	logs     *logbroker.Broker
	metrics  *metrics.Metrics
	audit    *audit.Emitter
}

func NewJobHandler(q *queue.Queue, pipeline *completion.Pipeline, logs *logbroker.Broker, m *metrics.Metrics, auditor *audit.Emitter) *JobHandler {
	return &JobHandler{queue: q, pipeline: pipeline, logs: logs, metrics: m, audit: auditor}
}

type submitRequest struct {
	Playbook      string          `json:"playbook"`
	Target        string          `json:"target"`
	RequiredTags  []string        `json:"required_tags"`
	PreferredTags []string        `json:"preferred_tags"`
	Priority      int             `json:"priority"`
	JobType       model.JobType   `json:"job_type"`
	ExtraVars     model.ExtraVars `json:"extra_vars"`
}

// POST /api/jobs — requires jobs:submit.
func (h *JobHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Invalid(err))
		return
	}
	principal, _ := accessguard.PrincipalFrom(c)
	job, err := h.queue.Submit(c.Request.Context(), model.JobSpec{
		Playbook:      req.Playbook,
		Target:        req.Target,
		RequiredTags:  model.NewStringSet(req.RequiredTags...),
		PreferredTags: model.NewStringSet(req.PreferredTags...),
		Priority:      req.Priority,
		JobType:       req.JobType,
		ExtraVars:     req.ExtraVars,
	}, principal.Username)
	if err != nil {
		respondErr(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.JobsSubmitted.WithLabelValues(string(job.JobType)).Inc()
	}
	respondOK(c, gin.H{"job": job})
}

// GET /api/jobs — holders of jobs.all:view see all jobs, everyone else only
// the jobs they submitted. Matching is bidirectional, so jobs:view also
// satisfies jobs.all:view and its holders see all jobs too.
func (h *JobHandler) List(c *gin.Context) {
	principal, _ := accessguard.PrincipalFrom(c)
	filter := model.JobFilter{
		Status:         model.JobStatus(c.Query("status")),
		Playbook:       c.Query("playbook"),
		AssignedWorker: c.Query("worker_id"),
	}
	restrict := ""
	if !authz.HasPermission(principal.Permissions, "jobs.all:view") {
		restrict = principal.Username
	}
	jobs, err := h.queue.List(c.Request.Context(), filter, restrict)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"jobs": jobs})
}

// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/cancel — owner needs jobs:cancel, anyone else needs
// jobs.all:cancel.
func (h *JobHandler) Cancel(c *gin.Context) {
	principal, _ := accessguard.PrincipalFrom(c)
	allJobs := authz.HasPermission(principal.Permissions, "jobs.all:cancel")
	job, err := h.queue.Cancel(c.Request.Context(), c.Param("id"), principal.Username, allJobs)
	if h.audit != nil && allJobs {
		h.audit.Record(c.Request.Context(), principal.Username, "jobs:cancel", c.Param("id"), err == nil)
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"job": job})
}

type startRequest struct {
	LogFile string `json:"log_file"`
}

// POST /api/jobs/:id/start — worker-only.
func (h *JobHandler) Start(c *gin.Context) {
	principal, _ := accessguard.PrincipalFrom(c)
	var req startRequest
	_ = c.ShouldBindJSON(&req)
	job, err := h.queue.Start(c.Request.Context(), c.Param("id"), principal.WorkerID, req.LogFile)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{"job": job})
}

type logChunkRequest struct {
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// POST /api/jobs/:id/log/stream — worker-only, appends to the job's
// partial log and fans the chunk out to any subscribers (spec §4.7).
func (h *JobHandler) LogStream(c *gin.Context) {
	var req logChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Invalid(err))
		return
	}
	if err := h.logs.StreamChunk(c.Param("id"), []byte(req.Content), req.Append); err != nil {
		respondErr(c, apierr.Internal(err))
		return
	}
	respondOK(c, gin.H{"ok": true})
}

// GET /api/jobs/:id/log — subscribes to the live/backlog log stream over a
// chunked HTTP response; used by the UI to tail a running job.
func (h *JobHandler) LogFollow(c *gin.Context) {
	sub, backlog, err := h.logs.Subscribe(c.Param("id"), c.Query("final_filename"))
	if err != nil {
		respondErr(c, apierr.Internal(err))
		return
	}
	defer h.logs.Unsubscribe(sub)

	c.Status(http.StatusOK)
	c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.Write(backlog)
	c.Writer.Flush()

	flusher, canFlush := c.Writer.(http.Flusher)
	for {
		select {
		case ev, ok := <-sub.Outbound:
			if !ok {
				return
			}
			c.Writer.Write(ev.Content)
			if canFlush {
				flusher.Flush()
			}
			if ev.Final {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

type completeRequest struct {
	ExitCode        int                       `json:"exit_code"`
	LogFile         string                    `json:"log_file"`
	LogContent      string                    `json:"log_content"`
	ErrorMessage    string                    `json:"error_message"`
	DurationSeconds float64                   `json:"duration_seconds"`
	CMDBFacts       map[string]cmdb.HostFacts `json:"cmdb_facts"`
}

// POST /api/jobs/:id/complete — worker-only, runs the full completion
// pipeline (spec §4.10).
func (h *JobHandler) Complete(c *gin.Context) {
	principal, _ := accessguard.PrincipalFrom(c)
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apierr.Invalid(err))
		return
	}
	result, err := h.pipeline.Complete(c.Request.Context(), completion.Request{
		JobID:           c.Param("id"),
		WorkerID:        principal.WorkerID,
		ExitCode:        req.ExitCode,
		LogFile:         req.LogFile,
		LogContent:      []byte(req.LogContent),
		ErrorMessage:    req.ErrorMessage,
		DurationSeconds: req.DurationSeconds,
		CMDBFacts:       req.CMDBFacts,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.JobsCompleted.WithLabelValues(string(result.Status)).Inc()
	}
	respondOK(c, gin.H{"result": result})
}
