package wire

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Status is the verdict carried by a message.
type Status string

const (
	StatusUnknown Status = ""
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
)

// InferStatus reads the verdict out of free text. FAIL markers win over PASS
// markers.
func InferStatus(text string) Status {
	up := strings.ToUpper(text)
	if strings.Contains(up, "PASSED=0") || strings.Contains(up, "FAIL") || strings.Contains(up, "ERRO") {
		return StatusFail
	}
	if strings.Contains(up, "PASSED=1") || strings.Contains(up, " PASS") || strings.HasSuffix(up, "PASS") {
		return StatusPass
	}
	return StatusUnknown
}

var (
	triggerLine  = regexp.MustCompile(`(?i)^\s*([A-Z0-9][A-Z0-9_-]{1,31})\s*,\s*(NEEDPSN\d{1,4})\s*$`)
	needPSNToken = regexp.MustCompile(`(?i)NEEDPSN\d+`)
)

const (
	triggerMinLen = 8
	triggerMaxLen = 64
)

// ErrInvalidTrigger reports a laser line that is not "<MO>,NEEDPSN<n>".
var ErrInvalidTrigger = errors.New("invalid trigger")

// Trigger is the laser's request for serial numbers.
type Trigger struct {
	MO      string
	NeedPSN string
}

func (t Trigger) String() string {
	return t.MO + "," + t.NeedPSN
}

// ParseTrigger validates a laser line. When expectedMO is non-empty the MO must
// match it exactly (case-insensitive).
func ParseTrigger(line, expectedMO string) (Trigger, error) {
	text := strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(line))
	if text == "" {
		return Trigger{}, fmt.Errorf("%w: empty line", ErrInvalidTrigger)
	}
	if len(text) < triggerMinLen || len(text) > triggerMaxLen {
		return Trigger{}, fmt.Errorf("%w: length %d outside %d..%d", ErrInvalidTrigger, len(text), triggerMinLen, triggerMaxLen)
	}
	match := triggerLine.FindStringSubmatch(text)
	if match == nil {
		return Trigger{}, fmt.Errorf("%w: expected <MO>,NEEDPSNxx, got %q", ErrInvalidTrigger, text)
	}
	trigger := Trigger{
		MO:      strings.ToUpper(strings.TrimSpace(match[1])),
		NeedPSN: strings.ToUpper(strings.TrimSpace(match[2])),
	}
	if expected := strings.ToUpper(strings.TrimSpace(expectedMO)); expected != "" && trigger.MO != expected {
		return Trigger{}, fmt.Errorf("%w: MO %s does not match %s", ErrInvalidTrigger, trigger.MO, expected)
	}
	return trigger, nil
}

// FinalFor builds the final the laser receives for a carve result: the carve
// result followed by PASS.
func FinalFor(carve string) string {
	return strings.TrimSpace(carve) + "PASS"
}

// EndsWithPass reports whether text ends in PASS, ignoring case and trailing
// whitespace.
func EndsWithPass(text string) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(text)), "PASS")
}

// FindNeedPSN returns the first NEEDPSN token in text, upper-cased.
func FindNeedPSN(text string) (string, bool) {
	match := needPSNToken.FindString(text)
	if match == "" {
		return "", false
	}
	return strings.ToUpper(match), true
}

// Score ranks how informative a response line is.
func Score(line string) int {
	up := strings.ToUpper(line)
	score := 0
	if strings.Contains(up, "PASS") || strings.Contains(up, "FAIL") {
		score += 100
	}
	if strings.Contains(up, "PASSED=1") || strings.Contains(up, "PASSED=0") {
		score += 30
	}
	if strings.Contains(up, "ERRO") || strings.Contains(up, "TIMEOUT") {
		score += 50
	}
	if strings.HasPrefix(up, "$") {
		score += 10
	}
	score += min(len(line), 120) / 20
	return score
}

// PickBest returns the highest scoring line. Ties keep the earliest line.
func PickBest(lines []string) string {
	best, bestScore := "", -1
	for _, line := range lines {
		if s := Score(line); s > bestScore {
			best, bestScore = line, s
		}
	}
	return best
}
