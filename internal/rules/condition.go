package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is the tagged-variant AST for a rule's firing expression. Eval
// receives per-variable match counts for the current file and must be total:
// every node answers true or false, never panics.
type Condition interface {
	Eval(counts map[string]int) bool
	// Vars returns the variable names the node references directly.
	// Aggregate nodes (any/all of ...) resolve against the pattern set at
	// evaluation time and return nil here.
	Vars() []string
	String() string
}

// VarRef fires when the variable has at least one match.
type VarRef struct {
	Name string
}

func (v VarRef) Eval(counts map[string]int) bool { return counts[v.Name] > 0 }
func (v VarRef) Vars() []string                  { return []string{v.Name} }
func (v VarRef) String() string                  { return "$" + v.Name }

// AnyOfThem fires when any declared variable has a match.
type AnyOfThem struct {
	All []string
}

func (a AnyOfThem) Eval(counts map[string]int) bool {
	for _, name := range a.All {
		if counts[name] > 0 {
			return true
		}
	}
	return false
}
func (a AnyOfThem) Vars() []string { return nil }
func (a AnyOfThem) String() string { return "any of them" }

// AllOfThem fires when every declared variable has a match.
type AllOfThem struct {
	All []string
}

func (a AllOfThem) Eval(counts map[string]int) bool {
	if len(a.All) == 0 {
		return false
	}
	for _, name := range a.All {
		if counts[name] == 0 {
			return false
		}
	}
	return true
}
func (a AllOfThem) Vars() []string { return nil }
func (a AllOfThem) String() string { return "all of them" }

// AnyOfPrefix fires when any variable whose name starts with Prefix matches.
type AnyOfPrefix struct {
	Prefix string
	All    []string
}

func (a AnyOfPrefix) Eval(counts map[string]int) bool {
	for _, name := range a.All {
		if strings.HasPrefix(name, a.Prefix) && counts[name] > 0 {
			return true
		}
	}
	return false
}
func (a AnyOfPrefix) Vars() []string { return nil }
func (a AnyOfPrefix) String() string { return fmt.Sprintf("any of ($%s*)", a.Prefix) }

// AllOfPrefix fires when every variable whose name starts with Prefix matches.
// No variable carrying the prefix means nothing can satisfy "all": false.
type AllOfPrefix struct {
	Prefix string
	All    []string
}

func (a AllOfPrefix) Eval(counts map[string]int) bool {
	matched := false
	for _, name := range a.All {
		if !strings.HasPrefix(name, a.Prefix) {
			continue
		}
		matched = true
		if counts[name] == 0 {
			return false
		}
	}
	return matched
}
func (a AllOfPrefix) Vars() []string { return nil }
func (a AllOfPrefix) String() string { return fmt.Sprintf("all of ($%s*)", a.Prefix) }

type And struct {
	Left, Right Condition
}

func (a And) Eval(counts map[string]int) bool {
	return a.Left.Eval(counts) && a.Right.Eval(counts)
}
func (a And) Vars() []string {
	return append(a.Left.Vars(), a.Right.Vars()...)
}
func (a And) String() string { return "(" + a.Left.String() + " and " + a.Right.String() + ")" }

type Or struct {
	Left, Right Condition
}

func (o Or) Eval(counts map[string]int) bool {
	return o.Left.Eval(counts) || o.Right.Eval(counts)
}
func (o Or) Vars() []string {
	return append(o.Left.Vars(), o.Right.Vars()...)
}
func (o Or) String() string { return "(" + o.Left.String() + " or " + o.Right.String() + ")" }

type CompareOp string

const (
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpEQ CompareOp = "=="
)

// Compare fires based on a variable's match count against a constant.
type Compare struct {
	Name string
	Op   CompareOp
	N    int
}

func (c Compare) Eval(counts map[string]int) bool {
	n := counts[c.Name]
	switch c.Op {
	case OpGT:
		return n > c.N
	case OpGE:
		return n >= c.N
	case OpLT:
		return n < c.N
	case OpLE:
		return n <= c.N
	case OpEQ:
		return n == c.N
	default:
		// Unknown operator evaluates fail-closed.
		return false
	}
}
func (c Compare) Vars() []string { return []string{c.Name} }
func (c Compare) String() string { return fmt.Sprintf("$%s %s %d", c.Name, c.Op, c.N) }

// ── condition parser ────────────────────────────────────────────────

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokVar           // $name
	tokWord          // any, all, of, them, and, or
	tokNumber
	tokLParen
	tokRParen
	tokStar
	tokOp // > >= < <= ==
)

type token struct {
	kind tokenKind
	text string
}

func lexCondition(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			i++
		case ch == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case ch == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case ch == '*':
			toks = append(toks, token{tokStar, "*"})
			i++
		case ch == '$':
			j := i + 1
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("bare '$' at offset %d", i)
			}
			toks = append(toks, token{tokVar, src[i+1 : j]})
			i = j
		case ch == '>' || ch == '<' || ch == '=' || ch == '!':
			j := i + 1
			if j < len(src) && src[j] == '=' {
				j++
			}
			op := src[i:j]
			switch op {
			case ">", ">=", "<", "<=", "==":
			default:
				return nil, fmt.Errorf("unsupported operator %q", op)
			}
			toks = append(toks, token{tokOp, op})
			i = j
		case ch >= '0' && ch <= '9':
			j := i
			for j < len(src) && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		case isIdentChar(ch):
			j := i
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			toks = append(toks, token{tokWord, strings.ToLower(src[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", ch, i)
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks, nil
}

func isIdentChar(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

type condParser struct {
	toks     []token
	pos      int
	declared []string
}

// ParseCondition parses a condition expression into its AST. The declared
// variable list is baked into aggregate nodes so "any of them" stays stable
// after compilation.
func ParseCondition(src string, declared []string) (Condition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("condition is empty")
	}
	toks, err := lexCondition(src)
	if err != nil {
		return nil, err
	}
	p := &condParser{toks: toks, declared: declared}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("trailing tokens after condition: %q", p.peek().text)
	}
	return cond, nil
}

func (p *condParser) peek() token { return p.toks[p.pos] }

func (p *condParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *condParser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return token{}, fmt.Errorf("expected %s, got %q", what, t.text)
	}
	return t, nil
}

// expr := term (OR term)*
func (p *condParser) parseExpr() (Condition, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokWord && p.peek().text == "or" {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

// term := factor (AND factor)*
func (p *condParser) parseTerm() (Condition, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokWord && p.peek().text == "and" {
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *condParser) parseFactor() (Condition, error) {
	t := p.peek()
	switch {
	case t.kind == tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case t.kind == tokVar:
		p.next()
		if p.peek().kind == tokOp {
			op := p.next()
			num, err := p.expect(tokNumber, "number")
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(num.text)
			if err != nil {
				return nil, fmt.Errorf("bad count %q: %w", num.text, err)
			}
			return Compare{Name: t.text, Op: CompareOp(op.text), N: n}, nil
		}
		return VarRef{Name: t.text}, nil
	case t.kind == tokWord && (t.text == "any" || t.text == "all"):
		return p.parseAggregate(t.text)
	default:
		return nil, fmt.Errorf("unexpected token %q in condition", t.text)
	}
}

// aggregate := ('any'|'all') 'of' ('them' | '(' $prefix '*' ')')
func (p *condParser) parseAggregate(which string) (Condition, error) {
	p.next()
	of := p.next()
	if of.kind != tokWord || of.text != "of" {
		return nil, fmt.Errorf("expected 'of' after %q, got %q", which, of.text)
	}
	t := p.next()
	switch {
	case t.kind == tokWord && t.text == "them":
		if which == "any" {
			return AnyOfThem{All: p.declared}, nil
		}
		return AllOfThem{All: p.declared}, nil
	case t.kind == tokLParen:
		v, err := p.expect(tokVar, "'$prefix'")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokStar, "'*'"); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		if which == "any" {
			return AnyOfPrefix{Prefix: v.text, All: p.declared}, nil
		}
		return AllOfPrefix{Prefix: v.text, All: p.declared}, nil
	default:
		return nil, fmt.Errorf("expected 'them' or '($prefix*)' after '%s of', got %q", which, t.text)
	}
}
