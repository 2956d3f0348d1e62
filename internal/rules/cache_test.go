package rules

import "testing"

func TestCacheReuse(t *testing.T) {
	c := NewCache()

	a, err := c.Compile(PatternLiteral, "password", Modifiers{NoCase: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, err := c.Compile(PatternLiteral, "password", Modifiers{NoCase: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if a != b {
		t.Error("identical (kind, modifiers, source) must share one entry")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	// Different modifiers are distinct entries.
	if _, err := c.Compile(PatternLiteral, "password", Modifiers{}); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// Same source, different kind: the literal is quoted, the regex is not.
	if _, err := c.Compile(PatternRegex, "password", Modifiers{}); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestCacheReset(t *testing.T) {
	c := NewCache()
	if _, err := c.Compile(PatternLiteral, "eval(", Modifiers{}); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if v := c.Version(); v != 0 {
		t.Errorf("initial Version = %d, want 0", v)
	}

	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", c.Len())
	}
	if v := c.Version(); v != 1 {
		t.Errorf("Version after Reset = %d, want 1", v)
	}
}

func TestBuildRegexSemantics(t *testing.T) {
	tests := []struct {
		name    string
		kind    PatternKind
		source  string
		mods    Modifiers
		match   []string
		noMatch []string
	}{
		{
			name:    "literal quotes metacharacters",
			kind:    PatternLiteral,
			source:  "exec(",
			match:   []string{"os.exec(cmd)"},
			noMatch: []string{"executed"},
		},
		{
			name:    "nocase literal",
			kind:    PatternLiteral,
			source:  "password",
			mods:    Modifiers{NoCase: true},
			match:   []string{"PASSWORD", "PassWord=1"},
			noMatch: []string{"passwd"},
		},
		{
			name:    "fullword literal",
			kind:    PatternLiteral,
			source:  "eval",
			mods:    Modifiers{FullWord: true},
			match:   []string{"x = eval(y)", "eval"},
			noMatch: []string{"medieval", "evaluate"},
		},
		{
			name:    "multiline regex spans lines",
			kind:    PatternRegex,
			source:  `SELECT.*FROM`,
			mods:    Modifiers{Multiline: true},
			match:   []string{"SELECT a,\n b FROM t"},
			noMatch: []string{"INSERT INTO t"},
		},
		{
			name:    "regex without multiline stops at newline",
			kind:    PatternRegex,
			source:  `SELECT.*FROM`,
			match:   []string{"SELECT a, b FROM t"},
			noMatch: []string{"SELECT a,\n b FROM t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := buildRegex(tt.kind, tt.source, tt.mods)
			if err != nil {
				t.Fatalf("buildRegex: %v", err)
			}
			for _, s := range tt.match {
				if !re.MatchString(s) {
					t.Errorf("pattern %q should match %q", tt.source, s)
				}
			}
			for _, s := range tt.noMatch {
				if re.MatchString(s) {
					t.Errorf("pattern %q should not match %q", tt.source, s)
				}
			}
		})
	}
}

func TestModifiersCanonical(t *testing.T) {
	tests := []struct {
		mods Modifiers
		want string
	}{
		{Modifiers{}, ""},
		{Modifiers{NoCase: true}, "i"},
		{Modifiers{Multiline: true}, "m"},
		{Modifiers{FullWord: true}, "w"},
		{Modifiers{NoCase: true, Multiline: true, FullWord: true}, "imw"},
	}
	for _, tt := range tests {
		if got := tt.mods.Canonical(); got != tt.want {
			t.Errorf("Canonical(%+v) = %q, want %q", tt.mods, got, tt.want)
		}
	}
}
