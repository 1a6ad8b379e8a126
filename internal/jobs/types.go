package jobs

import (
	"strings"
	"time"

	"github.com/JonMunkholm/ListingImport/internal/core"
)

// JobStatus is a step in the job lifecycle:
//
//	PENDING -> PROCESSING -> COMPLETED | FAILED
//	PENDING | PROCESSING -> CANCELLED
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []JobStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether no further transition can happen.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus converts a case-insensitive status name.
func ParseStatus(s string) (JobStatus, bool) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Progress holds live counters while a job is PROCESSING.
type Progress struct {
	TotalRecords     int `json:"total_records"`
	ProcessedRecords int `json:"processed_records"`
	Created          int `json:"created"`
	Updated          int `json:"updated"`
	Skipped          int `json:"skipped"`
	Errors           int `json:"errors"`
}

// ImportJobResult is set once a job reaches a terminal state.
type ImportJobResult struct {
	Success               bool     `json:"success"`
	CreatedCount          int      `json:"created_count"`
	UpdatedCount          int      `json:"updated_count"`
	SkippedCount          int      `json:"skipped_count"`
	ErrorCount            int      `json:"error_count"`
	Errors                []string `json:"errors"`
	Warnings              []string `json:"warnings"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
}

// ImportJob is one import request and its lifecycle state.
// Only the Manager mutates jobs; callers get copies.
type ImportJob struct {
	ID              string           `json:"job_id"`
	AccountID       string           `json:"account_id"`
	Filename        string           `json:"filename"`
	CreatedAt       time.Time        `json:"created_at"`
	Content         string           `json:"csv_content,omitempty"`
	RequestedFormat core.Format      `json:"requested_format,omitempty"`
	Status          JobStatus        `json:"status"`
	DetectedFormat  core.Format      `json:"detected_format"`
	Confidence      float64          `json:"confidence"`
	Warnings        []string         `json:"warnings,omitempty"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Progress        Progress         `json:"progress"`
	Error           string           `json:"error,omitempty"`
	Result          *ImportJobResult `json:"result,omitempty"`
}

// clone returns a deep copy so callers cannot mutate stored state.
func (j ImportJob) clone() ImportJob {
	c := j
	c.Warnings = append([]string(nil), j.Warnings...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.Errors = append([]string(nil), j.Result.Errors...)
		r.Warnings = append([]string(nil), j.Result.Warnings...)
		c.Result = &r
	}
	return c
}

// CreateJobRequest is the input to Manager.CreateJob.
// FormatHint is optional; empty or UNKNOWN means detect.
type CreateJobRequest struct {
	AccountID  string
	Filename   string
	Content    string
	FormatHint core.Format
}

// JobFilter narrows ListJobs. Zero values match everything; Limit <= 0 means no limit.
type JobFilter struct {
	AccountID string
	Status    JobStatus
	Limit     int
}

// Statistics summarizes the registry.
type Statistics struct {
	Total             int               `json:"total"`
	ByStatus          map[JobStatus]int `json:"by_status"`
	MaxConcurrentJobs int               `json:"max_concurrent_jobs"`
	ActiveWorkers     int               `json:"active_workers"`
	Queued            int               `json:"queued"`
}
