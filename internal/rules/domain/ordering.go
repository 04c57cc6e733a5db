package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Ordering selects the total order of the output sequence.
type Ordering uint8

const (
	// OrderPriority ranks HOST, HOST-SUFFIX, HOST-KEYWORD first, then all
	// other kinds; equal ranks fall back to kind name, then target.
	OrderPriority Ordering = iota
	// OrderLexical compares the serialized "KIND,target" string, then target.
	OrderLexical
)

func (o Ordering) String() string {
	switch o {
	case OrderPriority:
		return "priority"
	case OrderLexical:
		return "lexical"
	default:
		return fmt.Sprintf("Ordering(%d)", o)
	}
}

// ParseOrdering accepts "priority" or "lexical" (case-insensitive).
func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "priority", "":
		return OrderPriority, nil
	case "lexical":
		return OrderLexical, nil
	default:
		return 0, fmt.Errorf("unsupported Ordering: %q", s)
	}
}

// priorityRank: HOST=1, HOST-SUFFIX=2, HOST-KEYWORD=3, everything else 10.
func priorityRank(k RuleKind) int {
	switch k {
	case KindHost:
		return 1
	case KindHostSuffix:
		return 2
	case KindHostKeyword:
		return 3
	default:
		return 10
	}
}

// Compare returns -1, 0 or +1 ordering a before, equal to, or after b.
func (o Ordering) Compare(a, b Rule) int {
	switch o {
	case OrderLexical:
		if c := strings.Compare(a.Kind.String()+","+a.Target, b.Kind.String()+","+b.Target); c != 0 {
			return c
		}
	default:
		if c := cmp.Compare(priorityRank(a.Kind), priorityRank(b.Kind)); c != 0 {
			return c
		}
		if c := strings.Compare(a.Kind.String(), b.Kind.String()); c != 0 {
			return c
		}
	}
	return strings.Compare(a.Target, b.Target)
}

// Sort orders rules in place.
func (o Ordering) Sort(rules []Rule) {
	slices.SortFunc(rules, o.Compare)
}
