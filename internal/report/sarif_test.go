package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"securethread/internal/model"
)

func TestBuildSARIF(t *testing.T) {
	rep := Build(sampleJob(), sampleFindings())
	log := buildSARIF(rep)

	if log.Version != "2.1.0" {
		t.Errorf("Version = %q", log.Version)
	}
	if len(log.Runs) != 1 {
		t.Fatalf("got %d runs", len(log.Runs))
	}
	run := log.Runs[0]
	if run.Tool.Driver.Name != "securethread" {
		t.Errorf("driver = %q", run.Tool.Driver.Name)
	}
	if len(run.Results) != 2 {
		t.Fatalf("got %d results", len(run.Results))
	}
	if len(run.Tool.Driver.Rules) != 2 {
		t.Errorf("got %d rules", len(run.Tool.Driver.Rules))
	}

	crit := run.Results[0]
	if crit.RuleID != "sqli" || crit.Level != "error" {
		t.Errorf("critical result = %q/%q", crit.RuleID, crit.Level)
	}
	if len(crit.Locations) != 1 {
		t.Fatalf("got %d locations", len(crit.Locations))
	}
	loc := crit.Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI != "a.py" {
		t.Errorf("URI = %q", loc.ArtifactLocation.URI)
	}
	if loc.Region == nil || loc.Region.StartLine != 10 || loc.Region.EndLine != 12 {
		t.Errorf("Region = %+v", loc.Region)
	}
	if crit.Properties == nil || crit.Properties.CWE != "CWE-89" {
		t.Errorf("Properties = %+v", crit.Properties)
	}
}

func TestBuildSARIFDedupesRules(t *testing.T) {
	findings := []model.Finding{
		{RuleID: "r1", Title: "x", Severity: model.SeverityHigh, FilePath: "a.py", LineStart: 1},
		{RuleID: "r1", Title: "x", Severity: model.SeverityHigh, FilePath: "b.py", LineStart: 2},
	}
	log := buildSARIF(Build(sampleJob(), findings))
	if got := len(log.Runs[0].Tool.Driver.Rules); got != 1 {
		t.Errorf("got %d driver rules, want 1", got)
	}
	if got := len(log.Runs[0].Results); got != 2 {
		t.Errorf("got %d results, want 2", got)
	}
}

func TestMapSeverityToSARIF(t *testing.T) {
	tests := []struct {
		sev  model.Severity
		want string
	}{
		{model.SeverityCritical, "error"},
		{model.SeverityHigh, "error"},
		{model.SeverityMedium, "warning"},
		{model.SeverityLow, "note"},
		{model.Severity("unknown"), "note"},
	}
	for _, tt := range tests {
		if got := mapSeverityToSARIF(tt.sev); got != tt.want {
			t.Errorf("mapSeverityToSARIF(%q) = %q, want %q", tt.sev, got, tt.want)
		}
	}
}

func TestWriteSARIF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.sarif")
	if err := WriteSARIF(path, Build(sampleJob(), sampleFindings())); err != nil {
		t.Fatalf("WriteSARIF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal(data, &log); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if log.Schema == "" || len(log.Runs) != 1 {
		t.Errorf("log = %+v", log)
	}
}
