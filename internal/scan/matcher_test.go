package scan

import (
	"strings"
	"testing"

	"securethread/internal/rules"
)

func mustPattern(t *testing.T, name string, kind rules.PatternKind, source string, mods rules.Modifiers) rules.PatternDef {
	t.Helper()
	re, err := rules.NewCache().Compile(kind, source, mods)
	if err != nil {
		t.Fatalf("compile pattern %q: %v", source, err)
	}
	return rules.PatternDef{Name: name, Kind: kind, Source: source, Modifiers: mods, Regex: re}
}

func TestMatchPatternPositions(t *testing.T) {
	content := strings.Repeat("// filler line\n", 9) + `db.query("password=" + input)` + "\n"
	def := mustPattern(t, "pw", rules.PatternLiteral, "password=", rules.Modifiers{})

	matches := MatchPattern("src/db.js", content, def)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	m := matches[0]
	if m.Line != 10 {
		t.Errorf("Line = %d, want 10", m.Line)
	}
	if m.Column != 11 {
		t.Errorf("Column = %d, want 11", m.Column)
	}
	if m.Text != "password=" {
		t.Errorf("Text = %q", m.Text)
	}
	if m.Var != "pw" {
		t.Errorf("Var = %q", m.Var)
	}
	if content[m.Start:m.End] != m.Text {
		t.Errorf("offsets [%d:%d] do not bound the match text", m.Start, m.End)
	}
}

func TestMatchPatternMultipleLines(t *testing.T) {
	content := "eval(a)\nsafe()\neval(b)\nsafe()\neval(c)\n"
	def := mustPattern(t, "e", rules.PatternLiteral, "eval(", rules.Modifiers{})

	matches := MatchPattern("x.js", content, def)
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	wantLines := []int{1, 3, 5}
	for i, m := range matches {
		if m.Line != wantLines[i] {
			t.Errorf("match %d Line = %d, want %d", i, m.Line, wantLines[i])
		}
		if m.Column != 1 {
			t.Errorf("match %d Column = %d, want 1", i, m.Column)
		}
	}
}

func TestMatchPatternNoMatch(t *testing.T) {
	def := mustPattern(t, "e", rules.PatternLiteral, "eval(", rules.Modifiers{})
	if got := MatchPattern("x.js", "nothing here", def); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestMatchConfidence(t *testing.T) {
	tests := []struct {
		name string
		path string
		text string
		want float64
	}{
		{"base", "src/app.js", "eval(", 0.7}, // text keyword eval
		{"plain text", "src/app.js", "foo(", 0.5},
		{"long match", "src/app.js", "some_long_harmless_identifier", 0.6},
		{"path keyword", "internal/auth/login.js", "foo(", 0.7},
		{"path and text keywords", "config/db.js", "query(", 0.9},
		{"capped at one", "auth/config.js", "password_and_exec_query_together", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchConfidence(tt.path, tt.text)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("matchConfidence(%q, %q) = %v, want %v", tt.path, tt.text, got, tt.want)
			}
		})
	}
}

func TestContextSnippet(t *testing.T) {
	content := strings.Repeat("a", 200) + "NEEDLE" + strings.Repeat("b", 200)
	snippet := contextSnippet(content, 200, 206)
	if !strings.Contains(snippet, "NEEDLE") {
		t.Fatalf("snippet %q does not contain the match", snippet)
	}
	if !strings.HasPrefix(snippet, "...") || !strings.HasSuffix(snippet, "...") {
		t.Errorf("snippet should be ellipsized on both sides: %q", snippet)
	}
	if strings.ContainsAny(snippet, "\n\r\t") {
		t.Errorf("snippet should be flattened: %q", snippet)
	}

	short := "x = eval(y)"
	if got := contextSnippet(short, 4, 9); got != short {
		t.Errorf("short content snippet = %q, want whole content", got)
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"one line", 1},
		{"one line\n", 1},
		{"a\nb\nc", 3},
		{"a\nb\nc\n", 3},
	}
	for _, tt := range tests {
		if got := countLines(tt.content); got != tt.want {
			t.Errorf("countLines(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
