// Package report renders a finished scan job into artifacts: JSON for
// machines, Markdown for humans, SARIF for code-scanning uploads.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"securethread/internal/model"
	"securethread/internal/safefile"
	"securethread/internal/scan"
	"securethread/internal/version"
)

// Report is the serialized outcome of one scan job.
type Report struct {
	Tool        string          `json:"tool"`
	Version     string          `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Grade       string          `json:"grade"`
	Job         model.ScanJob   `json:"job"`
	Findings    []model.Finding `json:"findings"`
}

// Build assembles the report for a terminal job. Findings are ordered by
// severity, then file, then line so diffs between runs stay readable.
func Build(j model.ScanJob, findings []model.Finding) Report {
	ordered := make([]model.Finding, len(findings))
	copy(ordered, findings)
	sort.SliceStable(ordered, func(i, k int) bool {
		a, b := ordered[i], ordered[k]
		if ra, rb := severityRank(a.Severity), severityRank(b.Severity); ra != rb {
			return ra < rb
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.LineStart < b.LineStart
	})

	return Report{
		Tool:        "securethread",
		Version:     version.Version,
		GeneratedAt: time.Now().UTC(),
		Grade:       scan.Grade(j.SeverityCounts),
		Job:         j,
		Findings:    ordered,
	}
}

func severityRank(s model.Severity) int {
	for i, known := range model.KnownSeverities {
		if s == known {
			return i
		}
	}
	return len(model.KnownSeverities)
}

func WriteJSON(path string, r Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scan report: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("write scan report: %w", err)
	}
	return nil
}

func WriteMarkdown(path string, r Report) error {
	if err := safefile.WriteFileAtomic(path, []byte(RenderMarkdown(r)), 0o600); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

func RenderMarkdown(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Security Scan Report\n\n")
	fmt.Fprintf(&b, "- Repository: %s\n", r.Job.Repository)
	fmt.Fprintf(&b, "- Status: %s\n", r.Job.Status)
	fmt.Fprintf(&b, "- Security score: %.1f (%s)\n", r.Job.SecurityScore, r.Grade)
	fmt.Fprintf(&b, "- Coverage: %.0f%% of %d selected files\n", r.Job.CodeCoverage*100, r.Job.FilesSelected)
	fmt.Fprintf(&b, "- Duration: %dms\n", r.Job.DurationMS)
	if r.Job.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", r.Job.Error)
	}

	b.WriteString("\n## Findings by severity\n\n")
	b.WriteString("| Severity | Count |\n|---|---|\n")
	for _, sev := range model.KnownSeverities {
		fmt.Fprintf(&b, "| %s | %d |\n", sev, r.Job.SeverityCounts[string(sev)])
	}

	if len(r.Findings) == 0 {
		b.WriteString("\nNo findings.\n")
		return b.String()
	}

	b.WriteString("\n## Findings\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "\n### [%s] %s\n\n", strings.ToUpper(string(f.Severity)), f.Title)
		fmt.Fprintf(&b, "- Rule: %s\n", f.RuleID)
		fmt.Fprintf(&b, "- Location: %s:%d-%d\n", f.FilePath, f.LineStart, f.LineEnd)
		fmt.Fprintf(&b, "- Risk: %.1f, confidence %.2f\n", f.RiskScore, f.Confidence)
		if f.CWEID != "" {
			fmt.Fprintf(&b, "- CWE: %s\n", f.CWEID)
		}
		if f.OWASPCategory != "" {
			fmt.Fprintf(&b, "- OWASP: %s\n", f.OWASPCategory)
		}
		if f.Description != "" {
			fmt.Fprintf(&b, "\n%s\n", f.Description)
		}
		if f.CodeSnippet != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", strings.TrimRight(f.CodeSnippet, "\n"))
		}
		if f.Recommendation != "" {
			fmt.Fprintf(&b, "\nRecommendation: %s\n", f.Recommendation)
		}
		if f.FixSuggestion != "" {
			fmt.Fprintf(&b, "\nSuggested fix: %s\n", f.FixSuggestion)
		}
	}
	return b.String()
}
