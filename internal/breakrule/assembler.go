package breakrule

import "strings"

// Assembler accumulates chunks until the rule set declares the frame complete.
// It is not safe for concurrent use.
type Assembler struct {
	rules Set
	buf   strings.Builder
}

// NewAssembler returns an assembler bound to rules.
func NewAssembler(rules Set) *Assembler {
	return &Assembler{rules: rules}
}

// Push appends chunk and returns the trimmed frame once a rule matches. The
// buffer is cleared when a frame is returned.
func (a *Assembler) Push(chunk string) (string, bool) {
	if chunk == "" {
		return "", false
	}
	a.buf.WriteString(chunk)
	current := a.buf.String()
	if !a.rules.Match(current) {
		return "", false
	}
	a.buf.Reset()
	return strings.TrimSpace(current), true
}

// Pending returns the buffered text that has not formed a frame yet.
func (a *Assembler) Pending() string {
	return a.buf.String()
}

// Reset drops buffered text.
func (a *Assembler) Reset() {
	a.buf.Reset()
}

// SetRules swaps the rule set. Buffered text is kept.
func (a *Assembler) SetRules(rules Set) {
	a.rules = rules
}
