package domain

import (
	"fmt"
	"strings"
)

// ActionDirect is the only action ever emitted.
const ActionDirect = "direct"

// Rule is a single routing directive. The action is always ActionDirect,
// whatever the upstream list asked for.
type Rule struct {
	Kind   RuleKind
	Target string // trimmed, original casing preserved
}

// NewRule constructs a Rule and validates its fields.
func NewRule(kind RuleKind, target string) (Rule, error) {
	r := Rule{Kind: kind, Target: strings.TrimSpace(target)}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule for a known kind and a non-empty target.
func (r Rule) Validate() error {
	if r.Target == "" {
		return fmt.Errorf("rule target must not be empty")
	}
	if int(r.Kind) >= len(kindNames) {
		return fmt.Errorf("unsupported RuleKind: %d", r.Kind)
	}
	return nil
}

// Action returns the routing action of the rule.
func (r Rule) Action() string { return ActionDirect }

// Fingerprint is the case-insensitive identity used for deduplication.
func (r Rule) Fingerprint() string {
	return strings.ToLower(r.Kind.String() + "," + r.Target)
}

// String serializes the rule as a list line: "KIND, target, direct".
func (r Rule) String() string {
	return r.Kind.String() + ", " + r.Target + ", " + ActionDirect
}
