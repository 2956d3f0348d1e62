package rules

import (
	"fmt"
	"regexp"

	"securethread/internal/model"
)

// Spec is the caller-supplied rule input: identity and classification plus the
// raw DSL source. Rule storage and versioning live outside the engine.
type Spec struct {
	ID       string
	Name     string
	Category string
	Severity model.Severity
	Source   string
}

// Modifiers alter how a pattern is compiled and matched.
type Modifiers struct {
	NoCase    bool
	Multiline bool
	FullWord  bool
}

// Canonical renders modifiers as a stable cache-key fragment.
func (m Modifiers) Canonical() string {
	key := ""
	if m.NoCase {
		key += "i"
	}
	if m.Multiline {
		key += "m"
	}
	if m.FullWord {
		key += "w"
	}
	return key
}

type PatternKind string

const (
	PatternLiteral PatternKind = "literal"
	PatternRegex   PatternKind = "regex"
)

// PatternDef is one named pattern variable inside a rule. The compiled regex
// is owned by the process-wide cache; the def only references it.
type PatternDef struct {
	Name      string
	Kind      PatternKind
	Source    string
	Modifiers Modifiers
	Regex     *regexp.Regexp
}

// Rule is a compiled, immutable rule: validated pattern set plus condition AST.
type Rule struct {
	ID             string
	Name           string
	Category       string
	Severity       model.Severity
	Description    string
	CWEID          string
	OWASPCategory  string
	Recommendation string
	Patterns       []PatternDef
	Condition      Condition
}

// Pattern returns the pattern definition for a variable name, if declared.
func (r *Rule) Pattern(name string) (PatternDef, bool) {
	for _, p := range r.Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return PatternDef{}, false
}

// Diagnostic is a single compilation problem, scoped to a rule and optionally
// to one pattern variable within it.
type Diagnostic struct {
	RuleID  string
	Var     string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	switch {
	case d.Var != "" && d.Line > 0:
		return fmt.Sprintf("%s: $%s (line %d): %s", d.RuleID, d.Var, d.Line, d.Message)
	case d.Var != "":
		return fmt.Sprintf("%s: $%s: %s", d.RuleID, d.Var, d.Message)
	case d.Line > 0:
		return fmt.Sprintf("%s (line %d): %s", d.RuleID, d.Line, d.Message)
	default:
		return fmt.Sprintf("%s: %s", d.RuleID, d.Message)
	}
}
