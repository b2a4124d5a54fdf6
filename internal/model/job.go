package model

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobAssigned  JobStatus = "assigned"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

type JobType string

const (
	JobNormal      JobType = "normal"
	JobLongRunning JobType = "long_running"
)

// ExtraVars is a string-keyed map passed through to the playbook invocation.
type ExtraVars map[string]interface{}

// Job is one playbook-execution request moving through the queue's state
// machine: queued -> assigned -> running -> {completed, failed}, with
// requeue edges back to queued and cancellation from any non-terminal state.
type Job struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Playbook        string     `json:"playbook"`
	Target          string     `json:"target"`
	RequiredTags    StringSet  `json:"required_tags" gorm:"serializer:json"`
	PreferredTags   StringSet  `json:"preferred_tags" gorm:"serializer:json"`
	Priority        int        `json:"priority"`
	JobType         JobType    `json:"job_type"`
	ExtraVars       ExtraVars  `json:"extra_vars" gorm:"serializer:json"`
	Status          JobStatus  `json:"status"`
	AssignedWorker  *string    `json:"assigned_worker"`
	SubmittedBy     string     `json:"submitted_by"`
	LogFile         string     `json:"log_file"`
	ExitCode        *int       `json:"exit_code"`
	ErrorMessage    string     `json:"error_message"`
	DurationSeconds *float64   `json:"duration_seconds"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	AssignedAt      *time.Time `json:"assigned_at"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

func (Job) TableName() string { return "jobs" }

func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

func (j *Job) IsPending() bool {
	return j.Status == JobQueued
}

// JobSpec is the caller-supplied shape for submitting a new job; Submit
// fills in id/status/submitted_by/submitted_at.
type JobSpec struct {
	Playbook      string    `json:"playbook"`
	Target        string    `json:"target"`
	RequiredTags  StringSet `json:"required_tags"`
	PreferredTags StringSet `json:"preferred_tags"`
	Priority      int       `json:"priority"`
	JobType       JobType   `json:"job_type"`
	ExtraVars     ExtraVars `json:"extra_vars"`
}

// JobFilter narrows List results; zero values mean "don't filter on this
// field".
type JobFilter struct {
	Status         JobStatus
	Playbook       string
	AssignedWorker string
}
