package scan

import (
	"path"
	"sort"
	"strings"

	"securethread/internal/model"
)

// SelectorConfig bounds which files enter a scan and how many.
type SelectorConfig struct {
	// ExcludedPathParts are substrings that disqualify a path unless its
	// basename is always-relevant.
	ExcludedPathParts []string
	MaxFileSize       int64
	// Budget caps the number of candidates returned.
	Budget int
}

const (
	DefaultMaxFileSize = 200 * 1024
	DefaultScanBudget  = 200

	alwaysRelevantWeight = 90
)

var defaultExcludedParts = []string{
	"node_modules/", "vendor/", ".git/", "dist/", "build/", "target/",
	"coverage/", "__pycache__/", ".idea/", ".vscode/", "min.js", "min.css",
	".lock", ".map",
}

// extensionWeight prioritizes interpreted/dynamic languages and query
// languages, where string-pattern rules have the highest yield.
var extensionWeight = map[string]int{
	".py": 80, ".php": 80, ".rb": 75, ".js": 75, ".ts": 75, ".jsx": 70, ".tsx": 70,
	".sql": 80, ".sh": 70, ".bash": 70, ".pl": 65,
	".java": 60, ".go": 60, ".cs": 60, ".kt": 55, ".scala": 55,
	".c": 50, ".cpp": 50, ".h": 45, ".rs": 45, ".swift": 45,
	".yaml": 40, ".yml": 40, ".json": 35, ".xml": 35, ".toml": 35,
	".html": 30, ".htm": 30, ".vue": 55, ".env": 85, ".ini": 40, ".cfg": 40,
	".conf": 40, ".properties": 40, ".tf": 50, ".gradle": 40,
}

// alwaysRelevant filenames bypass path exclusion: manifests, dockerfiles,
// and dotfiles routinely carry security-sensitive configuration.
func alwaysRelevant(name string) bool {
	lower := strings.ToLower(name)
	switch lower {
	case "dockerfile", "makefile", "package.json", "requirements.txt",
		"pipfile", "go.mod", "pom.xml", "build.gradle", "gemfile",
		"composer.json", "cargo.toml", "docker-compose.yml", "docker-compose.yaml":
		return true
	}
	return strings.HasPrefix(lower, ".") || strings.HasPrefix(lower, "dockerfile")
}

func (c SelectorConfig) withDefaults() SelectorConfig {
	if len(c.ExcludedPathParts) == 0 {
		c.ExcludedPathParts = defaultExcludedParts
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.Budget <= 0 {
		c.Budget = DefaultScanBudget
	}
	return c
}

// SelectFiles filters and prioritizes a raw file listing into the bounded
// candidate set for phase 1. Output ordering: priority descending, then size
// ascending so more small files fit in the budget, then path for stability.
func SelectFiles(listing []model.FileCandidate, cfg SelectorConfig) []model.FileCandidate {
	cfg = cfg.withDefaults()

	out := make([]model.FileCandidate, 0, len(listing))
	for _, f := range listing {
		name := path.Base(f.Path)
		relevant := alwaysRelevant(name)
		if !relevant && excludedPath(f.Path, cfg.ExcludedPathParts) {
			continue
		}
		if f.Size > cfg.MaxFileSize {
			continue
		}
		f.Priority = priorityFor(f.Path, relevant)
		if f.Priority == 0 {
			continue
		}
		f.Status = model.FilePending
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].Size != out[j].Size {
			return out[i].Size < out[j].Size
		}
		return out[i].Path < out[j].Path
	})

	if len(out) > cfg.Budget {
		out = out[:cfg.Budget]
	}
	return out
}

func excludedPath(p string, parts []string) bool {
	lower := strings.ToLower(p)
	for _, part := range parts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func priorityFor(p string, relevant bool) int {
	if relevant {
		return alwaysRelevantWeight
	}
	ext := strings.ToLower(path.Ext(p))
	return extensionWeight[ext]
}
