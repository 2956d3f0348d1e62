// Package store persists scan jobs and findings in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"securethread/internal/job"
	"securethread/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_jobs (
	id               UUID PRIMARY KEY,
	repository       TEXT NOT NULL,
	status           TEXT NOT NULL,
	error            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	detection_end_at TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	severity_counts  JSONB,
	security_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	code_coverage    DOUBLE PRECISION NOT NULL DEFAULT 0,
	files_selected   INTEGER NOT NULL DEFAULT 0,
	files_scanned    INTEGER NOT NULL DEFAULT 0,
	files_skipped    INTEGER NOT NULL DEFAULT 0,
	files_errored    INTEGER NOT NULL DEFAULT 0,
	duration_ms      BIGINT NOT NULL DEFAULT 0
);

-- Single-flight guard: at most one non-terminal job per repository.
CREATE UNIQUE INDEX IF NOT EXISTS idx_scan_jobs_active
	ON scan_jobs (repository)
	WHERE status IN ('pending', 'running');

CREATE TABLE IF NOT EXISTS scan_findings (
	id             UUID PRIMARY KEY,
	job_id         UUID NOT NULL REFERENCES scan_jobs (id) ON DELETE CASCADE,
	rule_id        TEXT NOT NULL,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	cwe_id         TEXT NOT NULL DEFAULT '',
	owasp_category TEXT NOT NULL DEFAULT '',
	file_path      TEXT NOT NULL,
	line_start     INTEGER NOT NULL,
	line_end       INTEGER NOT NULL,
	code_snippet   TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	fix_suggestion TEXT NOT NULL DEFAULT '',
	risk_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	exploitability TEXT NOT NULL DEFAULT '',
	impact         TEXT NOT NULL DEFAULT '',
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'open',
	enhanced       BOOLEAN NOT NULL DEFAULT FALSE,
	detected_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_findings_job ON scan_findings (job_id);
CREATE INDEX IF NOT EXISTS idx_scan_findings_severity ON scan_findings (severity);
`

// uniqueViolation is the Postgres error code raised when the active-job
// partial index rejects a second concurrent scan.
const uniqueViolation = "23505"

type Postgres struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

var _ job.Store = (*Postgres)(nil)

// Open connects, verifies the connection, and applies the schema.
func Open(dsn string, log *zap.SugaredLogger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

func (s *Postgres) Close() error { return s.db.Close() }

type jobRow struct {
	ID             string         `db:"id"`
	Repository     string         `db:"repository"`
	Status         string         `db:"status"`
	Error          string         `db:"error"`
	CreatedAt      time.Time      `db:"created_at"`
	StartedAt      sql.NullTime   `db:"started_at"`
	DetectionEndAt sql.NullTime   `db:"detection_end_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
	SeverityCounts sql.NullString `db:"severity_counts"`
	SecurityScore  float64        `db:"security_score"`
	CodeCoverage   float64        `db:"code_coverage"`
	FilesSelected  int            `db:"files_selected"`
	FilesScanned   int            `db:"files_scanned"`
	FilesSkipped   int            `db:"files_skipped"`
	FilesErrored   int            `db:"files_errored"`
	DurationMS     int64          `db:"duration_ms"`
}

func (r jobRow) toModel() model.ScanJob {
	j := model.ScanJob{
		ID:            r.ID,
		Repository:    r.Repository,
		Status:        model.JobStatus(r.Status),
		Error:         r.Error,
		CreatedAt:     r.CreatedAt,
		SecurityScore: r.SecurityScore,
		CodeCoverage:  r.CodeCoverage,
		FilesSelected: r.FilesSelected,
		FilesScanned:  r.FilesScanned,
		FilesSkipped:  r.FilesSkipped,
		FilesErrored:  r.FilesErrored,
		DurationMS:    r.DurationMS,
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		j.StartedAt = &t
	}
	if r.DetectionEndAt.Valid {
		t := r.DetectionEndAt.Time
		j.DetectionEndAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		j.CompletedAt = &t
	}
	if r.SeverityCounts.Valid && r.SeverityCounts.String != "" {
		counts := map[string]int{}
		if err := json.Unmarshal([]byte(r.SeverityCounts.String), &counts); err == nil {
			j.SeverityCounts = counts
		}
	}
	return j
}

func (s *Postgres) CreateJob(ctx context.Context, repo string) (model.ScanJob, error) {
	j := model.ScanJob{
		ID:         uuid.NewString(),
		Repository: repo,
		Status:     model.JobPending,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_jobs (id, repository, status, created_at) VALUES ($1, $2, $3, $4)`,
		j.ID, j.Repository, j.Status, j.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return model.ScanJob{}, job.ErrScanAlreadyRunning
		}
		return model.ScanJob{}, fmt.Errorf("insert scan job: %w", err)
	}
	return j, nil
}

func (s *Postgres) GetJob(ctx context.Context, id string) (model.ScanJob, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM scan_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScanJob{}, job.ErrJobNotFound
	}
	if err != nil {
		return model.ScanJob{}, fmt.Errorf("select scan job: %w", err)
	}
	return row.toModel(), nil
}

// UpdateJob applies a partial update. Terminal jobs are never modified, which
// keeps status transitions monotonic even under racing writers.
func (s *Postgres) UpdateJob(ctx context.Context, id string, u model.JobUpdate) error {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Error != nil {
		add("error", *u.Error)
	}
	if u.StartedAt != nil {
		add("started_at", *u.StartedAt)
	}
	if u.DetectionEndAt != nil {
		add("detection_end_at", *u.DetectionEndAt)
	}
	if u.CompletedAt != nil {
		add("completed_at", *u.CompletedAt)
	}
	if u.SeverityCounts != nil {
		data, err := json.Marshal(u.SeverityCounts)
		if err != nil {
			return fmt.Errorf("marshal severity counts: %w", err)
		}
		add("severity_counts", string(data))
	}
	if u.SecurityScore != nil {
		add("security_score", *u.SecurityScore)
	}
	if u.CodeCoverage != nil {
		add("code_coverage", *u.CodeCoverage)
	}
	if u.FilesSelected != nil {
		add("files_selected", *u.FilesSelected)
	}
	if u.FilesScanned != nil {
		add("files_scanned", *u.FilesScanned)
	}
	if u.FilesSkipped != nil {
		add("files_skipped", *u.FilesSkipped)
	}
	if u.FilesErrored != nil {
		add("files_errored", *u.FilesErrored)
	}
	if u.DurationMS != nil {
		add("duration_ms", *u.DurationMS)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE scan_jobs SET %s WHERE id = $%d AND status NOT IN ('completed', 'failed')`,
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update scan job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the job does not exist or it already reached a terminal
		// state; only the former is an error.
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM scan_jobs WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("check scan job existence: %w", err)
		}
		if !exists {
			return job.ErrJobNotFound
		}
	}
	return nil
}

// SaveFindings replaces the job's finding set in one transaction, so each
// phase's bulk write is all-or-nothing.
func (s *Postgres) SaveFindings(ctx context.Context, jobID string, findings []model.Finding) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin findings tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_findings WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("clear previous findings: %w", err)
	}

	const insert = `
		INSERT INTO scan_findings (
			id, job_id, rule_id, title, description, severity, category,
			cwe_id, owasp_category, file_path, line_start, line_end,
			code_snippet, recommendation, fix_suggestion, risk_score,
			exploitability, impact, confidence, status, enhanced, detected_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22
		)`
	for _, f := range findings {
		id := f.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, insert,
			id, jobID, f.RuleID, f.Title, f.Description, string(f.Severity), f.Category,
			f.CWEID, f.OWASPCategory, f.FilePath, f.LineStart, f.LineEnd,
			f.CodeSnippet, f.Recommendation, f.FixSuggestion, f.RiskScore,
			f.Exploitability, f.Impact, f.Confidence, string(f.Status), f.Enhanced, f.DetectedAt,
		); err != nil {
			return fmt.Errorf("insert finding %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit findings: %w", err)
	}
	return nil
}

type findingRow struct {
	ID             string    `db:"id"`
	JobID          string    `db:"job_id"`
	RuleID         string    `db:"rule_id"`
	Title          string    `db:"title"`
	Description    string    `db:"description"`
	Severity       string    `db:"severity"`
	Category       string    `db:"category"`
	CWEID          string    `db:"cwe_id"`
	OWASPCategory  string    `db:"owasp_category"`
	FilePath       string    `db:"file_path"`
	LineStart      int       `db:"line_start"`
	LineEnd        int       `db:"line_end"`
	CodeSnippet    string    `db:"code_snippet"`
	Recommendation string    `db:"recommendation"`
	FixSuggestion  string    `db:"fix_suggestion"`
	RiskScore      float64   `db:"risk_score"`
	Exploitability string    `db:"exploitability"`
	Impact         string    `db:"impact"`
	Confidence     float64   `db:"confidence"`
	Status         string    `db:"status"`
	Enhanced       bool      `db:"enhanced"`
	DetectedAt     time.Time `db:"detected_at"`
}

func (s *Postgres) ListFindings(ctx context.Context, jobID string) ([]model.Finding, error) {
	var rows []findingRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM scan_findings WHERE job_id = $1 ORDER BY file_path, line_start`, jobID)
	if err != nil {
		return nil, fmt.Errorf("select findings: %w", err)
	}
	out := make([]model.Finding, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Finding{
			ID:             r.ID,
			RuleID:         r.RuleID,
			Title:          r.Title,
			Description:    r.Description,
			Severity:       model.Severity(r.Severity),
			Category:       r.Category,
			CWEID:          r.CWEID,
			OWASPCategory:  r.OWASPCategory,
			FilePath:       r.FilePath,
			LineStart:      r.LineStart,
			LineEnd:        r.LineEnd,
			CodeSnippet:    r.CodeSnippet,
			Recommendation: r.Recommendation,
			FixSuggestion:  r.FixSuggestion,
			RiskScore:      r.RiskScore,
			Exploitability: r.Exploitability,
			Impact:         r.Impact,
			Confidence:     r.Confidence,
			Status:         model.FindingStatus(r.Status),
			Enhanced:       r.Enhanced,
			DetectedAt:     r.DetectedAt,
		})
	}
	return out, nil
}

func (s *Postgres) ListActiveJobs(ctx context.Context) ([]model.ScanJob, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM scan_jobs WHERE status IN ('pending', 'running') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select active jobs: %w", err)
	}
	out := make([]model.ScanJob, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
