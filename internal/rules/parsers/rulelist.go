package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/hydirect/internal/rules/common/log"
	"github.com/haukened/hydirect/internal/rules/domain"
)

// ParseRuleList parses a Quantumult X style rule list ("KIND, target, action")
// into direct rules.
//
// Behavior:
//   - Skips blank lines and lines starting with '#', ';' or '//'
//   - Skips lines without a ',' separator
//   - The first field, uppercased, must be a kind accepted by allow
//   - The second field is the target, trimmed with its casing preserved
//   - Whatever action the list specifies is dropped; rules are always direct
//
// Malformed lines are never an error; they are logged at debug level and skipped.
// The only error returned comes from reading r.
func ParseRuleList(r io.Reader, allow domain.AllowList, logger logpkg.Logger) ([]domain.Rule, error) {
	return parseRuleList(bufio.NewScanner(r), allow, logger)
}

func parseRuleList(scanner *bufio.Scanner, allow domain.AllowList, logger logpkg.Logger) ([]domain.Rule, error) {
	out := make([]domain.Rule, 0, 256)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(stripLineBOM(scanner.Text()))

		if line == "" {
			continue
		}
		if isComment(line) {
			continue
		}
		if !strings.Contains(line, ",") {
			logger.Debug(map[string]any{"line": lineNum}, "skip_no_separator")
			continue
		}

		fields := splitFields(line)
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "skip_short_line")
			continue
		}

		kind, ok := allow.Lookup(fields[0])
		if !ok {
			logger.Debug(map[string]any{"line": lineNum, "kind": fields[0]}, "skip_kind_not_allowed")
			continue
		}

		rule, err := domain.NewRule(kind, fields[1])
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "kind": kind.String(), "error": err.Error()}, "skip_constructor_error")
			continue
		}
		out = append(out, rule)
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"error": err.Error(), "line": lineNum}, "parse_rule_list_scan_error")
		return out, err
	}
	return out, nil
}

// Parser turns the full text of one fetched list into rules.
type Parser struct {
	allow  domain.AllowList
	logger logpkg.Logger
}

// New returns a Parser accepting the kinds in allow.
// A nil logger discards debug output.
func New(allow domain.AllowList, logger logpkg.Logger) *Parser {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return &Parser{allow: allow, logger: logger}
}

// Parse never fails: the scanner buffer is sized to the input, so no line
// can exceed it, and a string reader cannot return a read error.
func (p *Parser) Parse(raw string) []domain.Rule {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), len(raw)+1)
	rules, err := parseRuleList(scanner, p.allow, p.logger)
	if err != nil {
		p.logger.Warn(map[string]any{"error": err.Error(), "kept": len(rules)}, "parse_truncated")
	}
	return rules
}
