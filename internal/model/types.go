package model

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// KnownSeverities is ordered most to least severe.
var KnownSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// RiskScore maps severity to the fixed base risk score assigned at synthesis time.
var RiskScore = map[Severity]float64{
	SeverityCritical: 9.5,
	SeverityHigh:     7.5,
	SeverityMedium:   5.0,
	SeverityLow:      2.5,
}

type FindingStatus string

const (
	FindingOpen FindingStatus = "open"
)

type Finding struct {
	ID             string        `json:"id"`
	RuleID         string        `json:"rule_id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Severity       Severity      `json:"severity"`
	Category       string        `json:"category"`
	CWEID          string        `json:"cwe_id,omitempty"`
	OWASPCategory  string        `json:"owasp_category,omitempty"`
	FilePath       string        `json:"file_path"`
	LineStart      int           `json:"line_start"`
	LineEnd        int           `json:"line_end"`
	CodeSnippet    string        `json:"code_snippet,omitempty"`
	Recommendation string        `json:"recommendation,omitempty"`
	FixSuggestion  string        `json:"fix_suggestion,omitempty"`
	RiskScore      float64       `json:"risk_score"`
	Exploitability string        `json:"exploitability,omitempty"`
	Impact         string        `json:"impact,omitempty"`
	Confidence     float64       `json:"confidence"`
	Status         FindingStatus `json:"status"`
	Enhanced       bool          `json:"enhanced"`
	DetectedAt     time.Time     `json:"detected_at"`
}

type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileScanned    FileStatus = "scanned"
	FileVulnerable FileStatus = "vulnerable"
	FileSkipped    FileStatus = "skipped"
	FileError      FileStatus = "error"
)

// FileCandidate is one entry of the prioritized scan set produced by the
// file selector. Status is mutated by the per-file scan step only.
type FileCandidate struct {
	Path     string     `json:"path"`
	Size     int64      `json:"size"`
	Priority int        `json:"priority"`
	Status   FileStatus `json:"status"`
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether a job status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type ScanJob struct {
	ID             string            `json:"id"`
	Repository     string            `json:"repository"`
	Status         JobStatus         `json:"status"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	DetectionEndAt *time.Time        `json:"detection_end_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	SeverityCounts map[string]int    `json:"severity_counts,omitempty"`
	SecurityScore  float64           `json:"security_score"`
	CodeCoverage   float64           `json:"code_coverage"`
	FilesSelected  int               `json:"files_selected"`
	FilesScanned   int               `json:"files_scanned"`
	FilesSkipped   int               `json:"files_skipped"`
	FilesErrored   int               `json:"files_errored"`
	DurationMS     int64             `json:"duration_ms"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// JobUpdate carries a partial job mutation. Nil fields mean "leave unchanged",
// mirroring the layered-config merge convention.
type JobUpdate struct {
	Status         *JobStatus
	Error          *string
	StartedAt      *time.Time
	DetectionEndAt *time.Time
	CompletedAt    *time.Time
	SeverityCounts map[string]int
	SecurityScore  *float64
	CodeCoverage   *float64
	FilesSelected  *int
	FilesScanned   *int
	FilesSkipped   *int
	FilesErrored   *int
	DurationMS     *int64
}

// CountBySeverity groups findings into per-severity totals.
func CountBySeverity(findings []Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[string(f.Severity)]++
	}
	return counts
}
