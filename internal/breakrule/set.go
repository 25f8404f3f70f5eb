package breakrule

import "strings"

// Set is an ordered list of rules. The first matching rule wins.
type Set []Rule

// Compile builds a rule set from the main token list followed by the
// always-last tokens. Tokens that also appear in alwaysLast are dropped from
// the main list, and duplicates are removed.
func Compile(tokens, alwaysLast []string) (Set, error) {
	last := make([]Rule, 0, len(alwaysLast))
	lastKeys := make(map[string]struct{}, len(alwaysLast))
	for _, token := range alwaysLast {
		if skipToken(token) {
			continue
		}
		rule, err := Parse(token)
		if err != nil {
			return nil, err
		}
		key := rule.String()
		if _, dup := lastKeys[key]; dup {
			continue
		}
		lastKeys[key] = struct{}{}
		last = append(last, rule)
	}

	set := make(Set, 0, len(tokens)+len(last))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if skipToken(token) {
			continue
		}
		rule, err := Parse(token)
		if err != nil {
			return nil, err
		}
		key := rule.String()
		if _, isLast := lastKeys[key]; isLast {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		set = append(set, rule)
	}
	return append(set, last...), nil
}

// Default returns the built-in rule set.
func Default() Set {
	set, err := Compile(DefaultTokens, DefaultAlwaysLast)
	if err != nil {
		panic("breakrule: invalid default rules: " + err.Error())
	}
	return set
}

// Match reports whether any rule in the set matches text.
func (s Set) Match(text string) bool {
	_, ok := s.First(text)
	return ok
}

// First returns the first rule matching text.
func (s Set) First(text string) (Rule, bool) {
	for _, rule := range s {
		if rule.Match(text) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Tokens renders the set back into canonical tokens.
func (s Set) Tokens() []string {
	out := make([]string, len(s))
	for i, rule := range s {
		out[i] = rule.String()
	}
	return out
}

func skipToken(token string) bool {
	trimmed := strings.TrimSpace(token)
	return trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";")
}
