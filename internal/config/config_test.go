package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
rules_dir: /etc/securethread/rules
max_file_size: 102400
scan_budget: 50
enhance: true
ai_model: llama3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := loadFile(path)
	if err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if cfg.RulesDir != "/etc/securethread/rules" {
		t.Errorf("RulesDir = %q", cfg.RulesDir)
	}
	if cfg.MaxFileSize == nil || *cfg.MaxFileSize != 102400 {
		t.Errorf("MaxFileSize = %v", cfg.MaxFileSize)
	}
	if cfg.ScanBudget == nil || *cfg.ScanBudget != 50 {
		t.Errorf("ScanBudget = %v", cfg.ScanBudget)
	}
	if cfg.Enhance == nil || !*cfg.Enhance {
		t.Errorf("Enhance = %v", cfg.Enhance)
	}
	if cfg.AIModel != "llama3" {
		t.Errorf("AIModel = %q", cfg.AIModel)
	}
	// Unset fields stay nil/zero so merge can tell them apart.
	if cfg.MaxGap != nil || cfg.Verbose != nil || cfg.DatabaseDSN != "" {
		t.Errorf("unset fields populated: %+v", cfg)
	}
}

func TestLoadFileMissingOrEmpty(t *testing.T) {
	if cfg, err := loadFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil || cfg != (Config{}) {
		t.Errorf("missing file: cfg=%+v err=%v", cfg, err)
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("\n  \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if cfg, err := loadFile(empty); err != nil || cfg != (Config{}) {
		t.Errorf("empty file: cfg=%+v err=%v", cfg, err)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("rules_dir: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadFile(path); err == nil {
		t.Error("malformed yaml should fail")
	}
}

func TestLoadLayered(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	if err := os.MkdirAll(filepath.Join(home, ".securethread"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	globalYAML := "rules_dir: /global/rules\nai_model: gpt-4o-mini\n"
	if err := os.WriteFile(filepath.Join(home, ".securethread", "config.yaml"), []byte(globalYAML), 0o644); err != nil {
		t.Fatalf("write global: %v", err)
	}

	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, ".securethread"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	localYAML := "rules_dir: /repo/rules\nscan_budget: 25\n"
	if err := os.WriteFile(filepath.Join(repo, ".securethread", "config.yaml"), []byte(localYAML), 0o644); err != nil {
		t.Fatalf("write local: %v", err)
	}
	chdir(t, repo)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RulesDir != "/repo/rules" {
		t.Errorf("RulesDir = %q, repo-local layer must win", cfg.RulesDir)
	}
	if cfg.AIModel != "gpt-4o-mini" {
		t.Errorf("AIModel = %q, global-only value must survive", cfg.AIModel)
	}
	if cfg.ScanBudget == nil || *cfg.ScanBudget != 25 {
		t.Errorf("ScanBudget = %v", cfg.ScanBudget)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestMergePrecedence(t *testing.T) {
	budgetA, budgetB := 100, 25
	verboseTrue := true

	global := Config{
		RulesDir:   "/global/rules",
		ScanBudget: &budgetA,
		AIModel:    "gpt-4o-mini",
	}
	local := Config{
		RulesDir:   "/repo/rules",
		ScanBudget: &budgetB,
		Verbose:    &verboseTrue,
	}

	got := merge(global, local)
	if got.RulesDir != "/repo/rules" {
		t.Errorf("RulesDir = %q, local must win", got.RulesDir)
	}
	if got.ScanBudget == nil || *got.ScanBudget != 25 {
		t.Errorf("ScanBudget = %v", got.ScanBudget)
	}
	// Fields the local layer leaves unset keep the global value.
	if got.AIModel != "gpt-4o-mini" {
		t.Errorf("AIModel = %q", got.AIModel)
	}
	if got.Verbose == nil || !*got.Verbose {
		t.Errorf("Verbose = %v", got.Verbose)
	}
}

func TestMergeZeroOverlay(t *testing.T) {
	budget := 42
	base := Config{RulesDir: "/rules", ScanBudget: &budget}
	got := merge(base, Config{})
	if got.RulesDir != "/rules" || got.ScanBudget == nil || *got.ScanBudget != 42 {
		t.Errorf("empty overlay changed config: %+v", got)
	}
}
