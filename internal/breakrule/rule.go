package breakrule

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects how a rule compares against buffered text.
type Mode string

const (
	// ModeEnd matches when the upper-cased text ends with the value.
	ModeEnd Mode = "END"
	// ModeIn matches when the upper-cased text contains the value.
	ModeIn Mode = "IN"
	// ModeRegex matches when the case-insensitive expression finds a match in the raw text.
	ModeRegex Mode = "MATCHREGEX"
)

// DefaultTokens is the ordered rule list used when configuration leaves it empty.
var DefaultTokens = []string{
	"UNDO",
	"END:END",
	`MATCHREGEX:NEEDPSN\d+\s*$`,
	`MATCHREGEX:FAIL\d+PASS\s*$`,
	`MATCHREGEX:FAIL\d+\s*$`,
	`MATCHREGEX:PASSED=[01]PASS\s*$`,
	`MATCHREGEX:PASSED=[01]\s*$`,
}

// DefaultAlwaysLast lists the broad rules that are evaluated after every
// specific rule.
var DefaultAlwaysLast = []string{
	"END:PASSED=1",
	"END:PASSED=0",
	"IN:NEEDPSN",
	"END:PASS",
	"END:FAIL",
	"END:ERRO",
}

// Rule is a single compiled completion rule.
type Rule struct {
	Mode  Mode
	Value string
	re    *regexp.Regexp
}

// Parse compiles one token. Prefixes are case-insensitive; "REGEX:" is an alias
// for "MATCHREGEX:".
func Parse(token string) (Rule, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Rule{}, fmt.Errorf("empty break rule")
	}

	mode := ModeIn
	value := trimmed
	if idx := strings.Index(trimmed, ":"); idx > 0 {
		switch strings.ToUpper(trimmed[:idx]) {
		case "END":
			mode, value = ModeEnd, trimmed[idx+1:]
		case "IN":
			mode, value = ModeIn, trimmed[idx+1:]
		case "MATCHREGEX", "REGEX":
			mode, value = ModeRegex, trimmed[idx+1:]
		}
	}

	if mode == ModeRegex {
		if strings.TrimSpace(value) == "" {
			return Rule{}, fmt.Errorf("break rule %q: empty expression", token)
		}
		re, err := regexp.Compile("(?i)" + value)
		if err != nil {
			return Rule{}, fmt.Errorf("break rule %q: %w", token, err)
		}
		return Rule{Mode: mode, Value: value, re: re}, nil
	}

	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return Rule{}, fmt.Errorf("break rule %q: empty value", token)
	}
	return Rule{Mode: mode, Value: value}, nil
}

// Match reports whether text satisfies the rule.
func (r Rule) Match(text string) bool {
	switch r.Mode {
	case ModeRegex:
		return r.re != nil && r.re.MatchString(text)
	case ModeEnd:
		up := strings.ToUpper(text)
		return strings.HasSuffix(up, r.Value) || strings.HasSuffix(strings.TrimRight(up, " \t\r\n"), r.Value)
	case ModeIn:
		return strings.Contains(strings.ToUpper(text), r.Value)
	default:
		return false
	}
}

// String renders the canonical token form.
func (r Rule) String() string {
	return string(r.Mode) + ":" + r.Value
}

// SplitTokens splits a free-form list on commas and newlines. Items starting
// with '#' or ';' are treated as comments.
func SplitTokens(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		item := strings.TrimSpace(field)
		if item == "" || strings.HasPrefix(item, "#") || strings.HasPrefix(item, ";") {
			continue
		}
		out = append(out, item)
	}
	return out
}
