// Package model holds the persisted record shapes shared across the
// registry, queue, dispatcher, content store, and HTTP layer.
package model

import "time"

// LocalWorkerID is the reserved id for the primary's co-located executor.
const LocalWorkerID = "__local__"

// LocalWorkerPriorityBoost keeps the local worker last in line whenever any
// remote worker is eligible for a job.
const LocalWorkerPriorityBoost = -1000

type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "online"
	WorkerBusy    WorkerStatus = "busy"
	WorkerOffline WorkerStatus = "offline"
	WorkerStale   WorkerStatus = "stale"
)

// WorkerStats are the gauges and counters a worker reports on check-in and
// that the completion pipeline updates after each job finishes.
type WorkerStats struct {
	Load1m           float64    `json:"load_1m" gorm:"column:load_1m"`
	MemoryPercent    float64    `json:"memory_percent"`
	CPUPercent       float64    `json:"cpu_percent"`
	JobsCompleted    int        `json:"jobs_completed"`
	JobsFailed       int        `json:"jobs_failed"`
	AvgJobDuration   float64    `json:"avg_job_duration"`
	LastJobCompleted *time.Time `json:"last_job_completed"`
	MaxConcurrent    int        `json:"max_concurrent" gorm:"column:max_concurrent"`
}

// Worker is the registry's record for one execution node, remote or the
// reserved local executor.
type Worker struct {
	ID            string       `json:"id" gorm:"primaryKey"`
	Name          string       `json:"name" gorm:"uniqueIndex"`
	Tags          StringSet    `json:"tags" gorm:"serializer:json"`
	PriorityBoost int          `json:"priority_boost"`
	Status        WorkerStatus `json:"status"`
	IsLocal       bool         `json:"is_local"`
	SyncRevision  *string      `json:"sync_revision"`
	CurrentJobs   StringSet    `json:"current_jobs" gorm:"serializer:json"`
	Stats         WorkerStats  `json:"stats" gorm:"embedded;embeddedPrefix:stats_"`
	RegisteredAt  time.Time    `json:"registered_at"`
	LastCheckin   time.Time    `json:"last_checkin"`
}

func (Worker) TableName() string { return "workers" }

// MaxConcurrentOrDefault returns the worker's reported capacity, defaulting to 1 when
// unreported, per spec §4.6's eligibility rule.
func (w *Worker) MaxConcurrentOrDefault() int {
	if w.Stats.MaxConcurrent <= 0 {
		return 1
	}
	return w.Stats.MaxConcurrent
}

func (w *Worker) HasCapacity() bool {
	return len(w.CurrentJobs) < w.MaxConcurrentOrDefault()
}

// HasActiveJobs reports whether the worker currently owns any job id at all,
// used by the registry to refuse deletion.
func (w *Worker) HasActiveJobs() bool {
	return len(w.CurrentJobs) > 0
}
