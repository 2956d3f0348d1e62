package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"securethread/internal/model"
	"securethread/internal/safefile"
)

// SARIF v2.1.0 types, the minimal subset GitHub Code Scanning accepts.

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name,omitempty"`
	ShortDescription sarifMessage        `json:"shortDescription,omitempty"`
	DefaultConfig    *sarifDefaultConfig `json:"defaultConfiguration,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID     string           `json:"ruleId"`
	Level      string           `json:"level"`
	Message    sarifMessage     `json:"message"`
	Locations  []sarifLocation  `json:"locations,omitempty"`
	Properties *sarifProperties `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

type sarifProperties struct {
	Severity   string  `json:"severity,omitempty"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	RiskScore  float64 `json:"riskScore,omitempty"`
	CWE        string  `json:"cwe,omitempty"`
	OWASP      string  `json:"owasp,omitempty"`
}

func WriteSARIF(path string, r Report) error {
	log := buildSARIF(r)
	b, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sarif report: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("write sarif report: %w", err)
	}
	return nil
}

func buildSARIF(r Report) sarifLog {
	ruleIndex := map[string]int{}
	var rules []sarifRule
	var results []sarifResult

	for _, f := range r.Findings {
		ruleID := f.RuleID
		if ruleID == "" {
			ruleID = "securethread-finding"
		}

		if _, seen := ruleIndex[ruleID]; !seen {
			ruleIndex[ruleID] = len(rules)
			rules = append(rules, sarifRule{
				ID:               ruleID,
				Name:             f.Title,
				ShortDescription: sarifMessage{Text: f.Title},
				DefaultConfig:    &sarifDefaultConfig{Level: mapSeverityToSARIF(f.Severity)},
			})
		}

		messageText := f.Description
		if messageText == "" {
			messageText = f.Title
		}

		var locations []sarifLocation
		if strings.TrimSpace(f.FilePath) != "" {
			loc := sarifLocation{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: f.FilePath},
				},
			}
			if f.LineStart > 0 {
				loc.PhysicalLocation.Region = &sarifRegion{StartLine: f.LineStart, EndLine: f.LineEnd}
			}
			locations = append(locations, loc)
		}

		results = append(results, sarifResult{
			RuleID:    ruleID,
			Level:     mapSeverityToSARIF(f.Severity),
			Message:   sarifMessage{Text: messageText},
			Locations: locations,
			Properties: &sarifProperties{
				Severity:   string(f.Severity),
				Category:   f.Category,
				Confidence: f.Confidence,
				RiskScore:  f.RiskScore,
				CWE:        f.CWEID,
				OWASP:      f.OWASPCategory,
			},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:    r.Tool,
					Version: r.Version,
					Rules:   rules,
				},
			},
			Results: results,
		}},
	}
}

func mapSeverityToSARIF(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	case model.SeverityLow:
		return "note"
	default:
		return "note"
	}
}
