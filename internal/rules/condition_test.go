package rules

import "testing"

func TestParseConditionEval(t *testing.T) {
	declared := []string{"query", "concat", "exec_a", "exec_b"}

	tests := []struct {
		name   string
		src    string
		counts map[string]int
		want   bool
	}{
		{"single var fires", "$query", map[string]int{"query": 1}, true},
		{"single var no match", "$query", map[string]int{}, false},
		{"and both present", "$query and $concat", map[string]int{"query": 1, "concat": 2}, true},
		{"and one missing", "$query and $concat", map[string]int{"query": 1}, false},
		{"or either present", "$query or $concat", map[string]int{"concat": 1}, true},
		{"case-insensitive keywords", "$query AND $concat", map[string]int{"query": 1, "concat": 1}, true},
		{"and binds tighter than or", "$query or $concat and $exec_a", map[string]int{"query": 1}, true},
		{"parens override precedence", "($query or $concat) and $exec_a", map[string]int{"query": 1}, false},
		{"any of them", "any of them", map[string]int{"exec_b": 1}, true},
		{"any of them empty", "any of them", map[string]int{}, false},
		{"all of them", "all of them", map[string]int{"query": 1, "concat": 1, "exec_a": 1, "exec_b": 1}, true},
		{"all of them one missing", "all of them", map[string]int{"query": 1, "concat": 1, "exec_a": 1}, false},
		{"any of prefix", "any of ($exec_*)", map[string]int{"exec_b": 1}, true},
		{"any of prefix no match", "any of ($exec_*)", map[string]int{"query": 5}, false},
		{"all of prefix", "all of ($exec_*)", map[string]int{"exec_a": 1, "exec_b": 1}, true},
		{"all of prefix partial", "all of ($exec_*)", map[string]int{"exec_a": 1}, false},
		{"count greater", "$query > 2", map[string]int{"query": 3}, true},
		{"count greater boundary", "$query > 2", map[string]int{"query": 2}, false},
		{"count gte", "$query >= 2", map[string]int{"query": 2}, true},
		{"count less", "$query < 2", map[string]int{"query": 1}, true},
		{"count lte", "$query <= 2", map[string]int{"query": 3}, false},
		{"count eq", "$query == 2", map[string]int{"query": 2}, true},
		{"comparison composed", "$query >= 2 and $concat", map[string]int{"query": 2, "concat": 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := ParseCondition(tt.src, declared)
			if err != nil {
				t.Fatalf("ParseCondition(%q): %v", tt.src, err)
			}
			if got := cond.Eval(tt.counts); got != tt.want {
				t.Errorf("Eval(%q, %v) = %v, want %v", tt.src, tt.counts, got, tt.want)
			}
		})
	}
}

func TestParseConditionErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", "   "},
		{"bare dollar", "$ and $x"},
		{"unsupported operator", "$x != 2"},
		{"missing closing paren", "($x or $y"},
		{"trailing tokens", "$x $y"},
		{"aggregate missing of", "any them"},
		{"aggregate missing star", "any of ($x)"},
		{"comparison missing number", "$x >"},
		{"unexpected word", "maybe $x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCondition(tt.src, []string{"x", "y"}); err == nil {
				t.Errorf("ParseCondition(%q) succeeded, want error", tt.src)
			}
		})
	}
}

func TestAllOfPrefixNoCarrier(t *testing.T) {
	// No declared variable carries the prefix: nothing can satisfy "all".
	cond, err := ParseCondition("all of ($sql_*)", []string{"query", "concat"})
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	if cond.Eval(map[string]int{"query": 3, "concat": 3}) {
		t.Error("all-of over an empty prefix set must be false")
	}
}

func TestAllOfThemNoDeclared(t *testing.T) {
	cond, err := ParseCondition("all of them", nil)
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	if cond.Eval(map[string]int{}) {
		t.Error("all of them with zero declared variables must be false")
	}
}
