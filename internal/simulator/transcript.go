package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"laserlink/internal/wire"
)

// Direction tells which side wrote a step.
type Direction string

const (
	LaserToSFC Direction = "laser->sfc"
	SFCToLaser Direction = "sfc->laser"
)

// Step is one line of a handshake.
type Step struct {
	Index     int
	Direction Direction
	Payload   string
}

// Transcript is an ordered handshake.
type Transcript []Step

// Literal payloads of a passing handshake.
const (
	TriggerLine = "2790005577,NEEDPSN12"
	AckLine     = "2505004562,H25101801031,PASS"
	DSNListLine = "2505004562,PF2AS04TE,P072UT02243604N5,P072UT02243604N6,P072UT02243604N7,P072UT02243604N8," +
		"2505004562,PF2AS04TE,P072UT02243604N5,P072UT02243604N6,P072UT02243604N7,P072UT02243604N8,PASS"
	CarveLine = "2505004562,PF2AS04TE,PASSED=1"
	FinalLine = "2505004562,PF2AS04TE,PASSED=1PASS"
)

// DefaultTranscript returns the five-step passing handshake.
func DefaultTranscript() Transcript {
	return Transcript{
		{Index: 1, Direction: LaserToSFC, Payload: TriggerLine},
		{Index: 2, Direction: SFCToLaser, Payload: AckLine},
		{Index: 3, Direction: SFCToLaser, Payload: DSNListLine},
		{Index: 4, Direction: LaserToSFC, Payload: CarveLine},
		{Index: 5, Direction: SFCToLaser, Payload: FinalLine},
	}
}

// Payloads returns the payloads in order.
func (t Transcript) Payloads() []string {
	out := make([]string, len(t))
	for i, step := range t {
		out[i] = step.Payload
	}
	return out
}

// Bytes returns exactly what one side writes, CRLF-terminated. An empty
// direction returns every step.
func (t Transcript) Bytes(direction Direction) []byte {
	var buf bytes.Buffer
	for _, step := range t {
		if direction != "" && step.Direction != direction {
			continue
		}
		buf.WriteString(step.Payload)
		buf.WriteString(wire.Terminator)
	}
	return buf.Bytes()
}

// Replay decodes a byte stream into messages. Undecodable lines are skipped;
// an unterminated tail is reported after the decoded messages.
func Replay(r io.Reader, opts wire.FramerOptions) ([]wire.Message, error) {
	framer := wire.NewFramer(r, opts)
	var (
		out      []wire.Message
		firstErr error
	)
	for {
		msg, err := framer.Next()
		if err == nil {
			out = append(out, msg)
			continue
		}
		if errors.Is(err, io.EOF) {
			return out, firstErr
		}
		var decodeErr *wire.DecodeError
		var partial *wire.PartialLineError
		if !errors.As(err, &decodeErr) && !errors.As(err, &partial) && !errors.Is(err, wire.ErrLineTooLong) {
			return out, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
}

// MismatchError reports the first step where two transcripts differ.
type MismatchError struct {
	Index    int
	Expected *Step
	Observed *Step
}

func (e *MismatchError) Error() string {
	switch {
	case e.Expected == nil:
		return fmt.Sprintf("step %d: unexpected %s %q", e.Index, e.Observed.Direction, e.Observed.Payload)
	case e.Observed == nil:
		return fmt.Sprintf("step %d: missing %s %q", e.Index, e.Expected.Direction, e.Expected.Payload)
	default:
		return fmt.Sprintf("step %d: expected %s %q, got %s %q", e.Index,
			e.Expected.Direction, e.Expected.Payload, e.Observed.Direction, e.Observed.Payload)
	}
}

// Verify compares direction and payload of every step.
func Verify(expected, observed Transcript) error {
	n := max(len(expected), len(observed))
	for i := 0; i < n; i++ {
		var exp, obs *Step
		if i < len(expected) {
			exp = &expected[i]
		}
		if i < len(observed) {
			obs = &observed[i]
		}
		if exp != nil && obs != nil && exp.Direction == obs.Direction && exp.Payload == obs.Payload {
			continue
		}
		return &MismatchError{Index: i + 1, Expected: exp, Observed: obs}
	}
	return nil
}
