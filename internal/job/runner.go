package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"securethread/internal/enhance"
	"securethread/internal/model"
	"securethread/internal/progress"
	"securethread/internal/rules"
	"securethread/internal/scan"
	"securethread/internal/source"
)

const DefaultBatchSize = 8

// Config bounds one scan run. Phase 1's fetch batch size and phase 2's
// enhancement concurrency are independent knobs.
type Config struct {
	Selector           scan.SelectorConfig
	MaxGap             int
	BatchSize          int
	EnhanceConcurrency int
	ExcerptLimit       int
}

// Runner drives a scan job through its state machine:
// pending -> running -> {completed, failed}. A nil Enhancer disables phase 2.
type Runner struct {
	Store    Store
	Source   source.Provider
	Enhancer enhance.Enhancer
	Rules    []rules.Rule
	Config   Config
	Log      *zap.SugaredLogger
	Sink     progress.Sink
}

type fileResult struct {
	idx      int
	status   model.FileStatus
	findings []model.Finding
	err      error
}

// Run executes a full scan for one repository reference and always leaves the
// job in a terminal state, unless persistence itself is unreachable.
func (r *Runner) Run(ctx context.Context, repo string) (model.ScanJob, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	sink := r.Sink
	if sink == nil {
		sink = progress.NoopSink{}
	}

	j, err := r.Store.CreateJob(ctx, repo)
	if err != nil {
		return model.ScanJob{}, err
	}
	started := time.Now().UTC()
	sink.Emit(progress.Event{Type: progress.EventJobStarted, At: started, JobID: j.ID, Message: repo})

	// Persist running before any work so a killed worker is observable as
	// running-but-stale rather than silently lost.
	running := model.JobRunning
	if err := r.Store.UpdateJob(ctx, j.ID, model.JobUpdate{Status: &running, StartedAt: &started}); err != nil {
		return r.fail(ctx, j, started, sink, log, fmt.Errorf("persist running state: %w", err), nil, nil)
	}

	sink.Emit(progress.Event{Type: progress.EventPhaseStarted, JobID: j.ID, Phase: progress.PhaseDetection})
	detectStart := time.Now().UTC()

	listing, err := r.Source.ListFiles(ctx, repo)
	if err != nil {
		return r.fail(ctx, j, started, sink, log, fmt.Errorf("list repository files: %w", err), nil, nil)
	}
	selected := scan.SelectFiles(listing, r.Config.Selector)

	findings, counts, err := r.runDetection(ctx, repo, selected, sink, log)
	if err != nil {
		return r.fail(ctx, j, started, sink, log, err, selected, counts)
	}

	if err := r.Store.SaveFindings(ctx, j.ID, findings); err != nil {
		return r.fail(ctx, j, started, sink, log, fmt.Errorf("save findings: %w", err), selected, counts)
	}

	detectEnd := time.Now().UTC()
	score := scan.SecurityScore(findings)
	coverage := codeCoverage(counts, len(selected))
	update := countsUpdate(counts, len(selected))
	update.DetectionEndAt = &detectEnd
	update.SeverityCounts = model.CountBySeverity(findings)
	update.SecurityScore = &score
	update.CodeCoverage = &coverage
	if err := r.Store.UpdateJob(ctx, j.ID, update); err != nil {
		return r.fail(ctx, j, started, sink, log, fmt.Errorf("persist detection results: %w", err), selected, counts)
	}
	sink.Emit(progress.Event{
		Type: progress.EventPhaseFinished, JobID: j.ID, Phase: progress.PhaseDetection,
		FindingCount: len(findings), DurationMS: detectEnd.Sub(detectStart).Milliseconds(),
	})

	// Phase 2 degrades gracefully: enhancement problems never fail the job.
	// Persistence problems still do.
	if r.Enhancer != nil && len(findings) > 0 {
		sink.Emit(progress.Event{Type: progress.EventPhaseStarted, JobID: j.ID, Phase: progress.PhaseEnhancement})
		enhanceStart := time.Now().UTC()

		orch := enhance.Orchestrator{
			Enhancer:     r.Enhancer,
			Fetch:        r.fetchExcerpt(repo),
			Concurrency:  r.Config.EnhanceConcurrency,
			ExcerptLimit: r.Config.ExcerptLimit,
			Log:          log,
		}
		orch.Run(ctx, findings)

		if err := r.Store.SaveFindings(ctx, j.ID, findings); err != nil {
			return r.fail(ctx, j, started, sink, log, fmt.Errorf("save enhanced findings: %w", err), selected, counts)
		}
		sink.Emit(progress.Event{
			Type: progress.EventPhaseFinished, JobID: j.ID, Phase: progress.PhaseEnhancement,
			FindingCount: len(findings), DurationMS: time.Since(enhanceStart).Milliseconds(),
		})
	}

	completed := time.Now().UTC()
	total := completed.Sub(started).Milliseconds()
	finalScore := scan.SecurityScore(findings)
	done := model.JobCompleted
	finalUpdate := model.JobUpdate{
		Status:         &done,
		CompletedAt:    &completed,
		DurationMS:     &total,
		SeverityCounts: model.CountBySeverity(findings),
		SecurityScore:  &finalScore,
	}
	if err := r.Store.UpdateJob(ctx, j.ID, finalUpdate); err != nil {
		return r.fail(ctx, j, started, sink, log, fmt.Errorf("persist completion: %w", err), selected, counts)
	}

	sink.Emit(progress.Event{
		Type: progress.EventJobFinished, JobID: j.ID, Status: string(model.JobCompleted),
		FindingCount: len(findings), DurationMS: total,
	})
	return r.Store.GetJob(ctx, j.ID)
}

type detectionCounts struct {
	scanned int
	skipped int
	errored int
}

// runDetection processes selected files in fixed-size batches to bound peak
// concurrent fetches. Per-file errors are recorded, never propagated; only a
// cancelled context aborts the phase.
func (r *Runner) runDetection(ctx context.Context, repo string, selected []model.FileCandidate, sink progress.Sink, log *zap.SugaredLogger) ([]model.Finding, *detectionCounts, error) {
	batchSize := r.Config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	counts := &detectionCounts{}
	var findings []model.Finding

	for start := 0; start < len(selected); start += batchSize {
		if err := ctx.Err(); err != nil {
			return findings, counts, fmt.Errorf("detection interrupted: %w", err)
		}
		end := start + batchSize
		if end > len(selected) {
			end = len(selected)
		}

		results := make(chan fileResult, end-start)
		var wg sync.WaitGroup
		for idx := start; idx < end; idx++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results <- r.scanOne(ctx, repo, idx, selected[idx])
			}(idx)
		}
		wg.Wait()
		close(results)

		for res := range results {
			cand := &selected[res.idx]
			cand.Status = res.status
			switch res.status {
			case model.FileError:
				counts.errored++
				log.Warnw("file scan failed", "file", cand.Path, "error", res.err)
			case model.FileSkipped:
				counts.skipped++
			default:
				counts.scanned++
			}
			findings = append(findings, res.findings...)
			sink.Emit(progress.Event{
				Type: progress.EventFileScanned, File: cand.Path,
				Status: string(res.status), FindingCount: len(res.findings),
			})
		}
	}
	return findings, counts, nil
}

func (r *Runner) scanOne(ctx context.Context, repo string, idx int, cand model.FileCandidate) fileResult {
	content, isBinary, err := r.Source.GetFileContent(ctx, repo, cand.Path)
	if err != nil {
		return fileResult{idx: idx, status: model.FileError, err: err}
	}
	if isBinary {
		return fileResult{idx: idx, status: model.FileSkipped}
	}
	found := scan.ScanFile(cand.Path, content, r.Rules, r.Config.MaxGap, r.Log)
	status := model.FileScanned
	if len(found) > 0 {
		status = model.FileVulnerable
	}
	return fileResult{idx: idx, status: status, findings: found}
}

func (r *Runner) fetchExcerpt(repo string) enhance.ContentFetcher {
	return func(ctx context.Context, path string) (string, error) {
		content, isBinary, err := r.Source.GetFileContent(ctx, repo, path)
		if err != nil {
			return "", err
		}
		if isBinary {
			return "", nil
		}
		return content, nil
	}
}

// fail transitions the job to its failed terminal state, keeping whatever
// counts were gathered before the error.
func (r *Runner) fail(ctx context.Context, j model.ScanJob, started time.Time, sink progress.Sink, log *zap.SugaredLogger, cause error, selected []model.FileCandidate, counts *detectionCounts) (model.ScanJob, error) {
	failed := model.JobFailed
	msg := cause.Error()
	completed := time.Now().UTC()
	total := completed.Sub(started).Milliseconds()

	update := model.JobUpdate{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &completed,
		DurationMS:  &total,
	}
	if counts != nil {
		cu := countsUpdate(counts, len(selected))
		update.FilesSelected = cu.FilesSelected
		update.FilesScanned = cu.FilesScanned
		update.FilesSkipped = cu.FilesSkipped
		update.FilesErrored = cu.FilesErrored
	}
	// Terminal persistence must survive a cancelled run context.
	persistCtx := context.WithoutCancel(ctx)
	if updateErr := r.Store.UpdateJob(persistCtx, j.ID, update); updateErr != nil {
		// The job is now stuck in running; a reaper querying active jobs is
		// the remaining path to a terminal state.
		log.Errorw("failed to persist terminal job state", "job", j.ID, "cause", cause, "error", updateErr)
	}
	sink.Emit(progress.Event{
		Type: progress.EventJobFinished, JobID: j.ID,
		Status: string(model.JobFailed), Error: msg, DurationMS: total,
	})

	if final, err := r.Store.GetJob(persistCtx, j.ID); err == nil {
		return final, cause
	}
	j.Status = model.JobFailed
	j.Error = msg
	return j, cause
}

func countsUpdate(counts *detectionCounts, selected int) model.JobUpdate {
	sel := selected
	scanned := counts.scanned
	skipped := counts.skipped
	errored := counts.errored
	return model.JobUpdate{
		FilesSelected: &sel,
		FilesScanned:  &scanned,
		FilesSkipped:  &skipped,
		FilesErrored:  &errored,
	}
}

func codeCoverage(counts *detectionCounts, selected int) float64 {
	if selected == 0 {
		return 0
	}
	return float64(counts.scanned) / float64(selected)
}
