package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRuleFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, filepath.Join(dir, "injection.rule"),
		"rule sql_injection {\nmeta:\n  severity = \"critical\"\npatterns:\n  $q = /SELECT.*FROM/ nocase\ncondition:\n  $q\n}\n")
	writeRuleFile(t, filepath.Join(dir, "nested", "secrets.rule"),
		"rule hardcoded_key {\npatterns:\n  $k = \"BEGIN RSA PRIVATE KEY\"\ncondition:\n  $k\n}\n")
	writeRuleFile(t, filepath.Join(dir, "notes.txt"), "not a rule file")

	loaded, diags, err := LoadDir(dir, NewCache())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %v", diags)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d rules, want 2", len(loaded))
	}
	// Files are walked in sorted path order.
	if loaded[0].ID != "sql_injection" || loaded[1].ID != "hardcoded_key" {
		t.Errorf("rule order = %q, %q", loaded[0].ID, loaded[1].ID)
	}
}

func TestLoadDirMultipleBlocksPerFile(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, filepath.Join(dir, "combo.rule"),
		"rule a {\npatterns:\n  $x = \"1\"\ncondition:\n  $x\n}\n"+
			"rule b {\npatterns:\n  $y = \"2\"\ncondition:\n  $y\n}\n")

	loaded, diags, err := LoadDir(dir, NewCache())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %v", diags)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d rules, want 2", len(loaded))
	}
}

func TestLoadDirDuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, filepath.Join(dir, "a.rule"),
		"rule dup {\npatterns:\n  $x = \"1\"\ncondition:\n  $x\n}\n")
	writeRuleFile(t, filepath.Join(dir, "b.rule"),
		"rule dup {\npatterns:\n  $y = \"2\"\ncondition:\n  $y\n}\n")

	loaded, diags, err := LoadDir(dir, NewCache())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d rules, want 1 (duplicate dropped)", len(loaded))
	}
	if len(diags) != 1 || diags[0].RuleID != "dup" {
		t.Errorf("diags = %v, want one duplicate-id diagnostic", diags)
	}
}

func TestLoadDirBrokenFileDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, filepath.Join(dir, "broken.rule"), "patterns:\n  $x = \"1\"\n")
	writeRuleFile(t, filepath.Join(dir, "good.rule"),
		"rule good {\npatterns:\n  $y = \"2\"\ncondition:\n  $y\n}\n")

	loaded, diags, err := LoadDir(dir, NewCache())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "good" {
		t.Fatalf("loaded = %+v, want only good", loaded)
	}
	if len(diags) == 0 {
		t.Error("expected diagnostics for the broken file")
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, _, err := LoadDir(filepath.Join(t.TempDir(), "absent"), NewCache()); err == nil {
		t.Error("LoadDir on a missing directory must fail")
	}
}
