package model

import "time"

// UploadPhase is the state of one upload cycle.
type UploadPhase string

const (
	PhaseIdle         UploadPhase = "idle"
	PhaseFileSelected UploadPhase = "file_selected"
	PhaseSubmitting   UploadPhase = "submitting"
	PhaseAnalyzing    UploadPhase = "analyzing"
	PhaseResultsReady UploadPhase = "results_ready"
	PhaseFailed       UploadPhase = "failed"
	PhaseCancelled    UploadPhase = "cancelled"
)

// InFlight reports whether an analysis job may still be running for this phase.
func (p UploadPhase) InFlight() bool {
	return p == PhaseSubmitting || p == PhaseAnalyzing
}

// JobStatus is the state of a server-side analysis job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether polling can stop.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	return s == JobPending || s.Terminal()
}

// Upload is the recoverable state of the current upload for one session.
type Upload struct {
	SessionID     string              `json:"session_id"`
	OwnerID       string              `json:"owner_id"`
	Phase         UploadPhase         `json:"phase"`
	Halting       bool                `json:"halting"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Filename      string              `json:"filename,omitempty"`
	ContentType   string              `json:"content_type,omitempty"`
	Size          int64               `json:"size,omitempty"`
	StoragePath   string              `json:"storage_path,omitempty"`
	Error         string              `json:"error,omitempty"`
	Resources     []ExtractedResource `json:"resources,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
