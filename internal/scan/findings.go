package scan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"securethread/internal/model"
	"securethread/internal/rules"
)

// ScanFile runs the full per-file phase-1 pipeline for one rule set: match,
// group, evaluate, synthesize. Line ranges of every finding are guaranteed to
// lie within [1, lineCount] of the scanned content.
func ScanFile(filePath string, content string, ruleSet []rules.Rule, maxGap int, log *zap.SugaredLogger) []model.Finding {
	var out []model.Finding
	for i := range ruleSet {
		rule := &ruleSet[i]
		byVar := MatchAll(filePath, content, rule)
		if len(byVar) == 0 {
			continue
		}
		if !EvaluateCondition(rule, byVar, log) {
			continue
		}
		groups := GroupByProximity(flattenByVar(byVar), maxGap)
		for _, g := range groups {
			out = append(out, Synthesize(rule, filePath, g))
		}
	}
	return out
}

// Synthesize builds one finding from a firing rule and a proximity group.
func Synthesize(rule *rules.Rule, filePath string, group Group) model.Finding {
	recommendation := rule.Recommendation
	if recommendation == "" {
		recommendation = fmt.Sprintf("Review the flagged code and remediate the issue described by rule %q.", rule.Name)
	}
	description := rule.Description
	if description == "" {
		description = fmt.Sprintf("Rule %q matched %d pattern instance(s) in close proximity.", rule.Name, len(group.Matches))
	}

	return model.Finding{
		ID:             uuid.NewString(),
		RuleID:         rule.ID,
		Title:          rule.Name,
		Description:    description,
		Severity:       rule.Severity,
		Category:       rule.Category,
		CWEID:          rule.CWEID,
		OWASPCategory:  rule.OWASPCategory,
		FilePath:       filePath,
		LineStart:      group.LineStart,
		LineEnd:        group.LineEnd,
		CodeSnippet:    groupSnippet(group),
		Recommendation: recommendation,
		RiskScore:      model.RiskScore[rule.Severity],
		Confidence:     groupConfidence(group),
		Status:         model.FindingOpen,
		DetectedAt:     time.Now().UTC(),
	}
}

func flattenByVar(byVar map[string][]Match) []Match {
	var out []Match
	for _, ms := range byVar {
		out = append(out, ms...)
	}
	return out
}

func groupSnippet(group Group) string {
	if len(group.Matches) == 0 {
		return ""
	}
	return group.Matches[0].Context
}

// groupConfidence is the maximum member confidence: one strong indicator is
// enough to make the cluster credible.
func groupConfidence(group Group) float64 {
	best := 0.0
	for _, m := range group.Matches {
		if m.Confidence > best {
			best = m.Confidence
		}
	}
	return best
}
