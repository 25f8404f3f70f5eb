package wire

import (
	"regexp"
	"strings"
)

// Terminator ends every line on the wire.
const Terminator = "\r\n"

// Kind is the conventional role of a message inside the handshake.
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindTrigger     Kind = "trigger"
	KindAck         Kind = "ack"
	KindDSNList     Kind = "dsn_list"
	KindCarveResult Kind = "carve_result"
	KindFinal       Kind = "final"
	KindFail        Kind = "fail"
)

var (
	needPSNField = regexp.MustCompile(`(?i)^NEEDPSN\d+$`)
	finalTail    = regexp.MustCompile(`(?i)(PASSED=[01](,FAIL\d+)?|(^|,)FAIL\d+)PASS\s*$`)
	carveTail    = regexp.MustCompile(`(?i)(PASSED=[01](,FAIL\d+)?|(^|,)FAIL\d+)\s*$`)
)

// Message is one decoded line split into its comma-separated fields.
type Message struct {
	Text   string
	Fields []string
}

// Parse splits a decoded line. A trailing terminator is ignored.
func Parse(line string) Message {
	text := strings.TrimRight(line, "\r\n")
	return Message{Text: text, Fields: strings.Split(text, ",")}
}

// New builds a message from fields.
func New(fields ...string) Message {
	text := strings.Join(fields, ",")
	return Message{Text: text, Fields: append([]string(nil), fields...)}
}

// Encode renders the message as it travels on the wire.
func (m Message) Encode() []byte {
	return []byte(m.Text + Terminator)
}

func (m Message) String() string {
	return m.Text
}

// Field returns the i-th field, or "" when out of range.
func (m Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return strings.TrimSpace(m.Fields[i])
}

// MO returns the manufacturing order, which leads every message.
func (m Message) MO() string {
	return m.Field(0)
}

// Model returns the second field of SFC replies (H-code or product model).
func (m Message) Model() string {
	return m.Field(1)
}

// Kind classifies the message.
func (m Message) Kind() Kind {
	return Classify(m)
}

// DSNs extracts the unique serial numbers carried by a DSN list. The SFC
// repeats the MO/model header and the serials, so repeated values are
// reported once in first-seen order.
func (m Message) DSNs() []string {
	if len(m.Fields) < 4 {
		return nil
	}
	mo, model := m.MO(), m.Model()
	seen := make(map[string]struct{}, len(m.Fields))
	var out []string
	for _, raw := range m.Fields[2 : len(m.Fields)-1] {
		field := strings.TrimSpace(raw)
		if field == "" || field == mo || field == model {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

// Classify assigns a conventional kind by position and suffix.
func Classify(m Message) Kind {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return KindUnknown
	}
	switch {
	case finalTail.MatchString(text):
		return KindFinal
	case carveTail.MatchString(text):
		return KindCarveResult
	case len(m.Fields) == 2 && needPSNField.MatchString(m.Field(1)):
		return KindTrigger
	}

	last := strings.ToUpper(m.Field(len(m.Fields) - 1))
	if last == "PASS" {
		if len(m.Fields) == 3 {
			return KindAck
		}
		if len(m.Fields) >= 4 {
			return KindDSNList
		}
	}
	if InferStatus(text) == StatusFail {
		return KindFail
	}
	return KindUnknown
}
