package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"securethread/internal/model"
)

// MemStore is a process-local Store used by the CLI for one-shot scans and by
// tests. It enforces the same invariants as the database-backed store.
type MemStore struct {
	mu       sync.Mutex
	jobs     map[string]model.ScanJob
	findings map[string][]model.Finding
}

func NewMemStore() *MemStore {
	return &MemStore{
		jobs:     make(map[string]model.ScanJob),
		findings: make(map[string][]model.Finding),
	}
}

func (s *MemStore) CreateJob(ctx context.Context, repo string) (model.ScanJob, error) {
	if err := ctx.Err(); err != nil {
		return model.ScanJob{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.Repository == repo && !j.Status.Terminal() {
			return model.ScanJob{}, ErrScanAlreadyRunning
		}
	}
	j := model.ScanJob{
		ID:         uuid.NewString(),
		Repository: repo,
		Status:     model.JobPending,
		CreatedAt:  time.Now().UTC(),
	}
	s.jobs[j.ID] = j
	return j, nil
}

func (s *MemStore) GetJob(ctx context.Context, id string) (model.ScanJob, error) {
	if err := ctx.Err(); err != nil {
		return model.ScanJob{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.ScanJob{}, ErrJobNotFound
	}
	return j, nil
}

func (s *MemStore) UpdateJob(ctx context.Context, id string, update model.JobUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	applyUpdate(&j, update)
	s.jobs[id] = j
	return nil
}

func (s *MemStore) SaveFindings(ctx context.Context, jobID string, findings []model.Finding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	copied := make([]model.Finding, len(findings))
	copy(copied, findings)
	s.findings[jobID] = copied
	return nil
}

func (s *MemStore) ListFindings(ctx context.Context, jobID string) ([]model.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Finding, len(s.findings[jobID]))
	copy(out, s.findings[jobID])
	return out, nil
}

func (s *MemStore) ListActiveJobs(ctx context.Context) ([]model.ScanJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ScanJob
	for _, j := range s.jobs {
		if !j.Status.Terminal() {
			out = append(out, j)
		}
	}
	return out, nil
}

// applyUpdate copies the set fields of a partial update onto a job. Status
// transitions are monotonic: a terminal job never changes again.
func applyUpdate(j *model.ScanJob, u model.JobUpdate) {
	if j.Status.Terminal() {
		return
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	if u.StartedAt != nil {
		j.StartedAt = u.StartedAt
	}
	if u.DetectionEndAt != nil {
		j.DetectionEndAt = u.DetectionEndAt
	}
	if u.CompletedAt != nil {
		j.CompletedAt = u.CompletedAt
	}
	if u.SeverityCounts != nil {
		j.SeverityCounts = u.SeverityCounts
	}
	if u.SecurityScore != nil {
		j.SecurityScore = *u.SecurityScore
	}
	if u.CodeCoverage != nil {
		j.CodeCoverage = *u.CodeCoverage
	}
	if u.FilesSelected != nil {
		j.FilesSelected = *u.FilesSelected
	}
	if u.FilesScanned != nil {
		j.FilesScanned = *u.FilesScanned
	}
	if u.FilesSkipped != nil {
		j.FilesSkipped = *u.FilesSkipped
	}
	if u.FilesErrored != nil {
		j.FilesErrored = *u.FilesErrored
	}
	if u.DurationMS != nil {
		j.DurationMS = *u.DurationMS
	}
}
