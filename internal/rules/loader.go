package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadDir compiles every .rule file under dir (recursively). Files may hold
// multiple rule blocks. Per-rule failures become diagnostics; only an
// unreadable directory is an error.
func LoadDir(dir string, cache *Cache) ([]Rule, []Diagnostic, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("stat rules dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("rules path is not a directory: %s", dir)
	}

	var paths []string
	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".rule") {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walk rules dir: %w", walkErr)
	}
	sort.Strings(paths)

	var out []Rule
	var diags []Diagnostic
	seen := make(map[string]string)

	for _, path := range paths {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			diags = append(diags, Diagnostic{Message: fmt.Sprintf("read %s: %v", path, readErr)})
			continue
		}
		blocks, parseErr := parseSource(string(data))
		if parseErr != nil {
			diags = append(diags, Diagnostic{Message: fmt.Sprintf("parse %s: %v", path, parseErr)})
			continue
		}
		for _, block := range blocks {
			rule, blockDiags := compileBlock(Spec{}, block, cache)
			diags = append(diags, blockDiags...)
			if rule == nil {
				continue
			}
			if prev, dup := seen[rule.ID]; dup {
				diags = append(diags, Diagnostic{
					RuleID:  rule.ID,
					Message: fmt.Sprintf("duplicate rule id (first defined in %s), dropping duplicate from %s", prev, path),
				})
				continue
			}
			seen[rule.ID] = path
			out = append(out, *rule)
		}
	}
	return out, diags, nil
}
