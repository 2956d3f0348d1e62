package scan

import (
	"strings"

	"securethread/internal/rules"
)

// Match is one pattern hit inside a file: ephemeral, produced per
// (file, pattern) pair and consumed by the proximity grouper.
type Match struct {
	Var        string
	Line       int
	Column     int
	Start      int
	End        int
	Text       string
	Context    string
	Confidence float64
}

const (
	contextWindow = 80

	confidenceBase        = 0.5
	confidenceLongMatch   = 0.1
	confidencePathKeyword = 0.2
	confidenceTextKeyword = 0.2
	longMatchThreshold    = 20
)

var pathKeywords = []string{"auth", "token", "secret", "config", "admin"}
var textKeywords = []string{"password", "exec", "eval", "query"}

// MatchPattern finds all non-overlapping matches of one compiled pattern in a
// file's content. Line numbers are 1-indexed; columns are 1-indexed bytes from
// the preceding newline.
func MatchPattern(filePath string, content string, def rules.PatternDef) []Match {
	raw := def.Regex.FindAllStringIndex(content, -1)
	if len(raw) == 0 {
		return nil
	}

	out := make([]Match, 0, len(raw))
	line := 1
	scanned := 0
	lineStart := 0
	for _, pair := range raw {
		start, end := pair[0], pair[1]
		// Matches come back ordered, so newline counting resumes where the
		// previous match left off.
		for i := scanned; i < start; i++ {
			if content[i] == '\n' {
				line++
				lineStart = i + 1
			}
		}
		scanned = start

		out = append(out, Match{
			Var:        def.Name,
			Line:       line,
			Column:     start - lineStart + 1,
			Start:      start,
			End:        end,
			Text:       content[start:end],
			Context:    contextSnippet(content, start, end),
			Confidence: matchConfidence(filePath, content[start:end]),
		})
	}
	return out
}

// MatchAll runs every pattern of a rule over the file and returns matches
// keyed by pattern variable.
func MatchAll(filePath string, content string, rule *rules.Rule) map[string][]Match {
	byVar := make(map[string][]Match, len(rule.Patterns))
	for _, def := range rule.Patterns {
		if ms := MatchPattern(filePath, content, def); len(ms) > 0 {
			byVar[def.Name] = ms
		}
	}
	return byVar
}

func matchConfidence(filePath string, text string) float64 {
	score := confidenceBase
	if len(text) > longMatchThreshold {
		score += confidenceLongMatch
	}
	lowerPath := strings.ToLower(filePath)
	for _, kw := range pathKeywords {
		if strings.Contains(lowerPath, kw) {
			score += confidencePathKeyword
			break
		}
	}
	lowerText := strings.ToLower(text)
	for _, kw := range textKeywords {
		if strings.Contains(lowerText, kw) {
			score += confidenceTextKeyword
			break
		}
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// contextSnippet returns a flattened window around the match.
func contextSnippet(content string, start, end int) string {
	left := start - contextWindow
	right := end + contextWindow
	if left < 0 {
		left = 0
	}
	if right > len(content) {
		right = len(content)
	}
	snippet := strings.TrimSpace(content[left:right])
	snippet = strings.ReplaceAll(snippet, "\r", " ")
	snippet = strings.ReplaceAll(snippet, "\n", " ")
	snippet = strings.ReplaceAll(snippet, "\t", " ")
	if left > 0 {
		snippet = "..." + snippet
	}
	if right < len(content) {
		snippet = snippet + "..."
	}
	return strings.TrimSpace(snippet)
}

// countLines reports the number of lines in content, counting a trailing
// partial line.
func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
