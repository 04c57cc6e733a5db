package domain

import (
	"fmt"
	"strings"
)

// RuleKind is the match type of a proxy rule line.
type RuleKind uint8

const (
	KindHost RuleKind = iota
	KindHostSuffix
	KindHostKeyword
	KindIPCIDR
	KindIPCIDR6
	KindUserAgent
)

var kindNames = [...]string{
	KindHost:        "HOST",
	KindHostSuffix:  "HOST-SUFFIX",
	KindHostKeyword: "HOST-KEYWORD",
	KindIPCIDR:      "IP-CIDR",
	KindIPCIDR6:     "IP-CIDR6",
	KindUserAgent:   "USER-AGENT",
}

// String returns the rule keyword as written in list files.
func (k RuleKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("RuleKind(%d)", k)
}

// ParseRuleKind converts a list keyword into a RuleKind.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseRuleKind(s string) (RuleKind, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == up {
			return RuleKind(k), nil
		}
	}
	return 0, fmt.Errorf("unsupported RuleKind: %q", s)
}

// IsDomain reports whether the kind matches on host names.
func (k RuleKind) IsDomain() bool {
	return k == KindHost || k == KindHostSuffix || k == KindHostKeyword
}

// AllowList is the set of kinds a parser accepts.
type AllowList struct {
	kinds [len(kindNames)]bool
}

// NewAllowList returns an AllowList containing the given kinds.
func NewAllowList(kinds ...RuleKind) AllowList {
	var a AllowList
	for _, k := range kinds {
		if int(k) < len(a.kinds) {
			a.kinds[k] = true
		}
	}
	return a
}

// FullAllowList accepts every supported kind.
func FullAllowList() AllowList {
	return NewAllowList(KindHost, KindHostSuffix, KindHostKeyword, KindIPCIDR, KindIPCIDR6, KindUserAgent)
}

// SlimAllowList accepts the domain kinds only.
func SlimAllowList() AllowList {
	return NewAllowList(KindHost, KindHostSuffix, KindHostKeyword)
}

// AllowListForMode maps the configured parser mode ("full" or "slim").
func AllowListForMode(mode string) (AllowList, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "full", "":
		return FullAllowList(), nil
	case "slim":
		return SlimAllowList(), nil
	default:
		return AllowList{}, fmt.Errorf("unsupported parser mode: %q", mode)
	}
}

// Allows reports whether k is accepted.
func (a AllowList) Allows(k RuleKind) bool {
	return int(k) < len(a.kinds) && a.kinds[k]
}

// Lookup parses a raw keyword and reports whether it is both known and allowed.
func (a AllowList) Lookup(raw string) (RuleKind, bool) {
	k, err := ParseRuleKind(raw)
	if err != nil || !a.Allows(k) {
		return 0, false
	}
	return k, true
}

// Kinds returns the allowed kinds in declaration order.
func (a AllowList) Kinds() []RuleKind {
	out := make([]RuleKind, 0, len(a.kinds))
	for k, ok := range a.kinds {
		if ok {
			out = append(out, RuleKind(k))
		}
	}
	return out
}
