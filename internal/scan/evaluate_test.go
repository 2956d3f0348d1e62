package scan

import (
	"testing"

	"securethread/internal/rules"
)

type panickyCondition struct{}

func (panickyCondition) Eval(map[string]int) bool { panic("boom") }
func (panickyCondition) Vars() []string           { return nil }
func (panickyCondition) String() string           { return "panicky" }

func TestEvaluateCondition(t *testing.T) {
	cond, err := rules.ParseCondition("$a and $b", []string{"a", "b"})
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	rule := &rules.Rule{ID: "r", Condition: cond}

	byVar := map[string][]Match{
		"a": {{Line: 1}},
		"b": {{Line: 2}, {Line: 3}},
	}
	if !EvaluateCondition(rule, byVar, nil) {
		t.Error("condition should fire when both variables matched")
	}

	delete(byVar, "b")
	if EvaluateCondition(rule, byVar, nil) {
		t.Error("condition should not fire with a variable missing")
	}
}

func TestEvaluateConditionFailClosed(t *testing.T) {
	t.Run("nil condition", func(t *testing.T) {
		rule := &rules.Rule{ID: "broken"}
		if EvaluateCondition(rule, map[string][]Match{"a": {{Line: 1}}}, nil) {
			t.Error("nil condition must evaluate to false")
		}
	})

	t.Run("panicking condition", func(t *testing.T) {
		rule := &rules.Rule{ID: "panicky", Condition: panickyCondition{}}
		if EvaluateCondition(rule, map[string][]Match{"a": {{Line: 1}}}, nil) {
			t.Error("panicking condition must evaluate to false")
		}
	})
}
