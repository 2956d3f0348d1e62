package progress

import "time"

type EventType string

const (
	EventJobStarted    EventType = "job_started"
	EventJobWarning    EventType = "job_warning"
	EventJobFinished   EventType = "job_finished"
	EventPhaseStarted  EventType = "phase_started"
	EventPhaseFinished EventType = "phase_finished"
	EventFileScanned   EventType = "file_scanned"
)

const (
	PhaseDetection   = "detection"
	PhaseEnhancement = "enhancement"
)

type Event struct {
	Type         EventType `json:"type"`
	At           time.Time `json:"at"`
	JobID        string    `json:"job_id,omitempty"`
	Phase        string    `json:"phase,omitempty"`
	File         string    `json:"file,omitempty"`
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	FindingCount int       `json:"finding_count,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
}
