package job

import (
	"context"
	"errors"

	"securethread/internal/model"
)

// ErrScanAlreadyRunning is returned when a repository already has a job in a
// non-terminal state. Rejected synchronously at start.
var ErrScanAlreadyRunning = errors.New("a scan is already pending or running for this repository")

// ErrJobNotFound is returned for lookups and updates against unknown job ids.
var ErrJobNotFound = errors.New("scan job not found")

// Store is the persistence collaborator. CreateJob enforces the
// single-flight-per-repository invariant; SaveFindings replaces the job's
// finding set transactionally (it is called once per phase).
type Store interface {
	CreateJob(ctx context.Context, repo string) (model.ScanJob, error)
	GetJob(ctx context.Context, id string) (model.ScanJob, error)
	UpdateJob(ctx context.Context, id string, update model.JobUpdate) error
	SaveFindings(ctx context.Context, jobID string, findings []model.Finding) error
	ListFindings(ctx context.Context, jobID string) ([]model.Finding, error)
	// ListActiveJobs supports external reapers that inspect stale running
	// jobs and mark them failed.
	ListActiveJobs(ctx context.Context) ([]model.ScanJob, error)
}
