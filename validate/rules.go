package validate

import "humanity.network/core/object"

// Rule is an explicit, named validation rule.
//
// ID must be stable across versions.
// Apply must be deterministic and side-effect free.
type Rule struct {
	ID    string
	Apply func(*object.Object) error
}

func (r Rule) apply(o *object.Object) error {
	if r.Apply == nil {
		return object.NewError(object.KindInternal, "HUM-INTERNAL-001", "nil rule Apply")
	}
	return r.Apply(o)
}

// ValidateRules runs rules in order, returning the first failure.
//
// Determinism note: rule order is the evaluation order; keep it stable.
func ValidateRules(o *object.Object, rules []Rule) error {
	for _, r := range rules {
		if err := r.apply(o); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRulesAll runs all rules in order, returning a (deterministically
// ordered) slice of all violations.
func ValidateRulesAll(o *object.Object, rules []Rule) []error {
	var out []error
	for _, r := range rules {
		if err := r.apply(o); err != nil {
			out = append(out, err)
		}
	}
	return out
}
