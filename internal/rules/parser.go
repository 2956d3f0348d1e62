package rules

import (
	"fmt"
	"strings"
)

// ruleBlock is the raw, unvalidated output of the DSL section parser for one
// `rule <id> { ... }` block.
type ruleBlock struct {
	ID       string
	Line     int
	Meta     map[string]string
	Patterns []patternLine
	CondText string
	CondLine int
}

type patternLine struct {
	Name      string
	Kind      PatternKind
	Source    string
	Modifiers Modifiers
	Line      int
	Err       string
}

type section int

const (
	sectionNone section = iota
	sectionMeta
	sectionPatterns
	sectionCondition
)

// parseSource splits DSL text into rule blocks. Sources without a
// `rule <id> { ... }` wrapper are treated as a single anonymous block, which
// suits callers that supply identity out of band.
func parseSource(src string) ([]ruleBlock, error) {
	lines := strings.Split(src, "\n")

	var blocks []ruleBlock
	var cur *ruleBlock
	sec := sectionNone
	wrapped := false
	var condParts []string

	flushCond := func() {
		if cur != nil && len(condParts) > 0 {
			cur.CondText = strings.TrimSpace(strings.Join(condParts, " "))
			condParts = nil
		}
	}
	closeBlock := func() {
		if cur == nil {
			return
		}
		flushCond()
		blocks = append(blocks, *cur)
		cur = nil
		sec = sectionNone
	}

	for idx, raw := range lines {
		lineNo := idx + 1
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if id, ok := ruleHeader(line); ok {
			closeBlock()
			wrapped = true
			cur = &ruleBlock{ID: id, Line: lineNo, Meta: map[string]string{}}
			continue
		}
		if wrapped && line == "}" {
			closeBlock()
			continue
		}

		if cur == nil {
			if wrapped {
				return nil, fmt.Errorf("line %d: content outside rule block", lineNo)
			}
			cur = &ruleBlock{Line: lineNo, Meta: map[string]string{}}
		}

		switch strings.ToLower(line) {
		case "meta:":
			flushCond()
			sec = sectionMeta
			continue
		case "patterns:", "strings:":
			flushCond()
			sec = sectionPatterns
			continue
		case "condition:":
			sec = sectionCondition
			continue
		}
		if low := strings.ToLower(line); strings.HasPrefix(low, "condition:") {
			sec = sectionCondition
			if rest := strings.TrimSpace(line[len("condition:"):]); rest != "" {
				if cur.CondLine == 0 {
					cur.CondLine = lineNo
				}
				condParts = append(condParts, rest)
			}
			continue
		}

		switch sec {
		case sectionMeta:
			key, value, ok := parseMetaLine(line)
			if !ok {
				return nil, fmt.Errorf("line %d: malformed meta entry %q", lineNo, line)
			}
			cur.Meta[strings.ToLower(key)] = value
		case sectionPatterns:
			cur.Patterns = append(cur.Patterns, parsePatternLine(line, lineNo))
		case sectionCondition:
			if cur.CondLine == 0 {
				cur.CondLine = lineNo
			}
			condParts = append(condParts, line)
		default:
			return nil, fmt.Errorf("line %d: content before any section: %q", lineNo, line)
		}
	}
	closeBlock()

	if len(blocks) == 0 {
		return nil, fmt.Errorf("no rule content found")
	}
	return blocks, nil
}

func ruleHeader(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "rule ")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "{")
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.ContainsAny(rest, " \t{}") {
		return "", false
	}
	return rest, true
}

// stripComment drops a trailing `#` or `//` comment, respecting quoted strings
// and regex bodies.
func stripComment(line string) string {
	inQuote := false
	inRegex := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '"':
			if !inRegex {
				inQuote = !inQuote
			}
		case '/':
			if inQuote {
				continue
			}
			if i+1 < len(line) && line[i+1] == '/' && !inRegex {
				return line[:i]
			}
			// A '/' outside quotes toggles regex context on pattern lines.
			inRegex = !inRegex
		case '#':
			if !inQuote && !inRegex {
				return line[:i]
			}
		}
	}
	return line
}

func parseMetaLine(line string) (key, value string, ok bool) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	value = strings.TrimSpace(line[eq+1:])
	if key == "" {
		return "", "", false
	}
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	return key, value, true
}

// parsePatternLine parses `$name = "literal" mods` or `$name = /regex/ mods`.
// Malformed lines produce a patternLine with Err set; the compiler turns that
// into a diagnostic and drops the pattern.
func parsePatternLine(line string, lineNo int) patternLine {
	p := patternLine{Line: lineNo}

	if !strings.HasPrefix(line, "$") {
		p.Err = "pattern must start with '$name ='"
		return p
	}
	eq := strings.Index(line, "=")
	if eq < 0 {
		p.Err = "missing '=' in pattern"
		return p
	}
	name := strings.TrimSpace(line[1:eq])
	if name == "" || !isIdent(name) {
		p.Err = fmt.Sprintf("invalid pattern variable name %q", name)
		return p
	}
	p.Name = name

	rhs := strings.TrimSpace(line[eq+1:])
	switch {
	case strings.HasPrefix(rhs, `"`):
		body, rest, err := scanDelimited(rhs, '"')
		if err != "" {
			p.Err = err
			return p
		}
		p.Kind = PatternLiteral
		p.Source = unescapeLiteral(body)
		p.Err = parseModifiers(rest, &p.Modifiers)
	case strings.HasPrefix(rhs, "/"):
		body, rest, err := scanDelimited(rhs, '/')
		if err != "" {
			p.Err = err
			return p
		}
		p.Kind = PatternRegex
		p.Source = strings.ReplaceAll(body, `\/`, "/")
		p.Err = parseModifiers(rest, &p.Modifiers)
	default:
		p.Err = "pattern body must be a quoted literal or /regex/"
	}
	return p
}

// scanDelimited extracts the delimited body starting at s[0], honoring
// backslash escapes, and returns the remainder after the closing delimiter.
func scanDelimited(s string, delim byte) (body, rest, errMsg string) {
	escaped := false
	for i := 1; i < len(s); i++ {
		if escaped {
			escaped = false
			continue
		}
		switch s[i] {
		case '\\':
			escaped = true
		case delim:
			return s[1:i], s[i+1:], ""
		}
	}
	return "", "", fmt.Sprintf("unterminated pattern body (missing closing %q)", string(delim))
}

func unescapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

func parseModifiers(rest string, mods *Modifiers) string {
	for _, word := range strings.Fields(rest) {
		switch strings.ToLower(word) {
		case "nocase":
			mods.NoCase = true
		case "multiline":
			mods.Multiline = true
		case "fullword":
			mods.FullWord = true
		default:
			return fmt.Sprintf("unknown pattern modifier %q", word)
		}
	}
	return ""
}

func isIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return len(s) > 0
}
