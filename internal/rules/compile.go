package rules

import (
	"fmt"
	"strings"

	"securethread/internal/model"
)

// Compile turns one caller-supplied rule spec into a compiled Rule. A single
// invalid pattern is dropped with a diagnostic; the rule survives as long as
// at least one pattern compiles. A nil Rule means compilation failed outright.
//
// Compilation is deterministic: the same spec against the same cache always
// yields a structurally identical Rule.
func Compile(spec Spec, cache *Cache) (*Rule, []Diagnostic) {
	blocks, err := parseSource(spec.Source)
	if err != nil {
		return nil, []Diagnostic{{RuleID: strings.TrimSpace(spec.ID), Message: err.Error()}}
	}
	var diags []Diagnostic
	if len(blocks) > 1 {
		diags = append(diags, Diagnostic{
			RuleID:  strings.TrimSpace(spec.ID),
			Message: fmt.Sprintf("source contains %d rule blocks, compiling only the first", len(blocks)),
		})
	}
	rule, blockDiags := compileBlock(spec, blocks[0], cache)
	return rule, append(diags, blockDiags...)
}

// CompileSet compiles every spec, dropping the ones that fail. Diagnostics
// from all rules are returned together so operators see dead rules.
func CompileSet(specs []Spec, cache *Cache) ([]Rule, []Diagnostic) {
	var out []Rule
	var diags []Diagnostic
	for _, spec := range specs {
		rule, ruleDiags := Compile(spec, cache)
		diags = append(diags, ruleDiags...)
		if rule != nil {
			out = append(out, *rule)
		}
	}
	return out, diags
}

func compileBlock(spec Spec, block ruleBlock, cache *Cache) (*Rule, []Diagnostic) {
	var diags []Diagnostic

	ruleID := strings.TrimSpace(spec.ID)
	if ruleID == "" {
		ruleID = block.ID
	}
	if ruleID == "" {
		return nil, []Diagnostic{{Message: "rule has no id"}}
	}

	rule := &Rule{
		ID:       ruleID,
		Name:     spec.Name,
		Category: spec.Category,
		Severity: spec.Severity,
	}
	applyMeta(rule, block.Meta)
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if !rule.Severity.Valid() {
		diags = append(diags, Diagnostic{
			RuleID:  ruleID,
			Message: fmt.Sprintf("unknown severity %q, defaulting to medium", rule.Severity),
		})
		rule.Severity = model.SeverityMedium
	}

	declared := make([]string, 0, len(block.Patterns))
	dropped := make(map[string]bool)
	for _, pl := range block.Patterns {
		if pl.Err != "" {
			diags = append(diags, Diagnostic{RuleID: ruleID, Var: pl.Name, Line: pl.Line, Message: pl.Err})
			if pl.Name != "" {
				declared = append(declared, pl.Name)
				dropped[pl.Name] = true
			}
			continue
		}
		if _, dup := rule.Pattern(pl.Name); dup {
			diags = append(diags, Diagnostic{RuleID: ruleID, Var: pl.Name, Line: pl.Line, Message: "duplicate pattern variable"})
			continue
		}
		declared = append(declared, pl.Name)

		re, compileErr := cache.Compile(pl.Kind, pl.Source, pl.Modifiers)
		if compileErr != nil {
			diags = append(diags, Diagnostic{RuleID: ruleID, Var: pl.Name, Line: pl.Line, Message: compileErr.Error()})
			dropped[pl.Name] = true
			continue
		}
		rule.Patterns = append(rule.Patterns, PatternDef{
			Name:      pl.Name,
			Kind:      pl.Kind,
			Source:    pl.Source,
			Modifiers: pl.Modifiers,
			Regex:     re,
		})
	}

	if len(rule.Patterns) == 0 {
		return nil, append(diags, Diagnostic{RuleID: ruleID, Message: "no valid patterns, rule dropped"})
	}

	if strings.TrimSpace(block.CondText) == "" {
		return nil, append(diags, Diagnostic{RuleID: ruleID, Message: "missing condition section"})
	}
	cond, condErr := ParseCondition(block.CondText, declared)
	if condErr != nil {
		return nil, append(diags, Diagnostic{RuleID: ruleID, Line: block.CondLine, Message: fmt.Sprintf("parse condition: %v", condErr)})
	}

	// References must resolve to declared variables. A reference to a pattern
	// dropped above keeps the rule alive but can never match; surface it
	// loudly so dead branches are noticed.
	declaredSet := make(map[string]bool, len(declared))
	for _, name := range declared {
		declaredSet[name] = true
	}
	for _, name := range cond.Vars() {
		if !declaredSet[name] {
			return nil, append(diags, Diagnostic{
				RuleID: ruleID, Var: name, Line: block.CondLine,
				Message: "condition references undeclared pattern variable",
			})
		}
		if dropped[name] {
			diags = append(diags, Diagnostic{
				RuleID: ruleID, Var: name, Line: block.CondLine,
				Message: "condition references a pattern that failed to compile; it will never match",
			})
		}
	}
	rule.Condition = cond

	return rule, diags
}

func applyMeta(rule *Rule, meta map[string]string) {
	if v := meta["name"]; v != "" {
		rule.Name = v
	}
	if v := meta["category"]; v != "" {
		rule.Category = v
	}
	if v := meta["severity"]; v != "" {
		rule.Severity = model.Severity(strings.ToLower(v))
	}
	if v := meta["description"]; v != "" {
		rule.Description = v
	}
	if v := meta["cwe"]; v != "" {
		rule.CWEID = v
	}
	if v := meta["owasp"]; v != "" {
		rule.OWASPCategory = v
	}
	if v := meta["recommendation"]; v != "" {
		rule.Recommendation = v
	}
}
