// Package enhance runs the second scan phase: sending grouped findings to an
// external inference collaborator and merging the enriched fields back.
package enhance

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"securethread/internal/model"
)

// Fields carries the enriched values for one finding. Empty fields leave the
// original finding value untouched on merge.
type Fields struct {
	Description    string  `json:"description,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
	FixSuggestion  string  `json:"fix_suggestion,omitempty"`
	RiskScore      float64 `json:"risk_score,omitempty"`
	Exploitability string  `json:"exploitability,omitempty"`
	Impact         string  `json:"impact,omitempty"`
	CWEID          string  `json:"cwe_id,omitempty"`
	OWASPCategory  string  `json:"owasp_category,omitempty"`
}

// Enhancer is the external inference collaborator. Implementations must be
// idempotent-safe to retry; the orchestrator itself never retries.
type Enhancer interface {
	Enhance(ctx context.Context, filePath string, contentExcerpt string, findings []model.Finding) ([]Fields, error)
}

// ContentFetcher supplies the file excerpt that accompanies a batch.
type ContentFetcher func(ctx context.Context, path string) (string, error)

const (
	DefaultConcurrency  = 4
	DefaultExcerptLimit = 4 * 1024
)

type Orchestrator struct {
	Enhancer     Enhancer
	Fetch        ContentFetcher
	Concurrency  int
	ExcerptLimit int
	Log          *zap.SugaredLogger
}

// Run enhances the findings in place, one batch per file path, bounded by the
// phase-2 concurrency cap. A failed batch leaves that file's findings exactly
// as produced by phase 1 (enhanced=false) and never aborts the rest.
func (o *Orchestrator) Run(ctx context.Context, findings []model.Finding) {
	if o.Enhancer == nil || len(findings) == 0 {
		return
	}
	log := o.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	concurrency := o.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	limit := o.ExcerptLimit
	if limit <= 0 {
		limit = DefaultExcerptLimit
	}

	byFile := make(map[string][]int)
	for i, f := range findings {
		byFile[f.FilePath] = append(byFile[f.FilePath], i)
	}
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, path := range paths {
		wg.Add(1)
		go func(path string, idxs []int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			batch := make([]model.Finding, len(idxs))
			for i, idx := range idxs {
				batch[i] = findings[idx]
			}

			excerpt := ""
			if o.Fetch != nil {
				content, fetchErr := o.Fetch(ctx, path)
				if fetchErr != nil {
					log.Warnw("enhancement excerpt fetch failed, sending findings without context",
						"file", path, "error", fetchErr)
				} else {
					excerpt = truncate(content, limit)
				}
			}

			enriched, err := o.Enhancer.Enhance(ctx, path, excerpt, batch)
			if err != nil {
				log.Warnw("enhancement failed, keeping original findings",
					"file", path, "findings", len(batch), "error", err)
				return
			}
			if len(enriched) != len(batch) {
				log.Warnw("enhancement returned mismatched batch size, keeping original findings",
					"file", path, "want", len(batch), "got", len(enriched))
				return
			}

			mu.Lock()
			for i, idx := range idxs {
				Merge(&findings[idx], enriched[i])
			}
			mu.Unlock()
		}(path, byFile[path])
	}
	wg.Wait()
}

// Merge applies non-empty enriched fields onto a finding and marks it
// enhanced. Identity and location fields are never touched.
func Merge(f *model.Finding, e Fields) {
	if v := strings.TrimSpace(e.Description); v != "" {
		f.Description = v
	}
	if v := strings.TrimSpace(e.Recommendation); v != "" {
		f.Recommendation = v
	}
	if v := strings.TrimSpace(e.FixSuggestion); v != "" {
		f.FixSuggestion = v
	}
	if e.RiskScore > 0 {
		f.RiskScore = e.RiskScore
	}
	if v := strings.TrimSpace(e.Exploitability); v != "" {
		f.Exploitability = v
	}
	if v := strings.TrimSpace(e.Impact); v != "" {
		f.Impact = v
	}
	if v := strings.TrimSpace(e.CWEID); v != "" {
		f.CWEID = v
	}
	if v := strings.TrimSpace(e.OWASPCategory); v != "" {
		f.OWASPCategory = v
	}
	f.Enhanced = true
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
