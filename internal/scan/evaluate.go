package scan

import (
	"go.uber.org/zap"

	"securethread/internal/rules"
)

// EvaluateCondition decides whether a rule fires for one file given its
// per-variable match sets. Evaluation is fail-closed: a missing or broken
// condition yields false and a loud log line, never a panic that would abort
// the per-file scan.
func EvaluateCondition(rule *rules.Rule, byVar map[string][]Match, log *zap.SugaredLogger) (fired bool) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if rule.Condition == nil {
		log.Errorw("rule has no compiled condition, treating as non-firing",
			"rule", rule.ID)
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("condition evaluation panicked, treating as non-firing",
				"rule", rule.ID, "panic", r)
			fired = false
		}
	}()

	counts := make(map[string]int, len(byVar))
	for name, ms := range byVar {
		counts[name] = len(ms)
	}
	return rule.Condition.Eval(counts)
}
