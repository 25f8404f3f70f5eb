package breakrule_test

import (
	"strings"
	"testing"

	"laserlink/internal/breakrule"
)

func TestParseModes(t *testing.T) {
	cases := []struct {
		token string
		text  string
		want  bool
	}{
		{"END:PASS", "2505004562,H25101801031,PASS", true},
		{"end:pass", "2505004562,h25101801031,pass  \r\n", true},
		{"END:PASS", "2505004562,PASSED", false},
		{"IN:NEEDPSN", "2790005577,needpsn12", true},
		{"NEEDPSN", "2790005577,NEEDPSN12", true},
		{`MATCHREGEX:PASSED=[01]\s*$`, "x,PASSED=1", true},
		{`REGEX:PASSED=[01]\s*$`, "x,passed=0 ", true},
		{`MATCHREGEX:PASSED=[01]\s*$`, "x,PASSED=1PASS", false},
		{`MATCHREGEX:FAIL\d+PASS\s*$`, "x,PASSED=0,FAIL03PASS", true},
	}
	for _, tc := range cases {
		rule, err := breakrule.Parse(tc.token)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tc.token, err)
		}
		if got := rule.Match(tc.text); got != tc.want {
			t.Fatalf("rule %q on %q = %v, want %v", tc.token, tc.text, got, tc.want)
		}
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	for _, token := range []string{"", "END:", "IN:  ", "MATCHREGEX:", "REGEX:([bad"} {
		if _, err := breakrule.Parse(token); err == nil {
			t.Fatalf("expected error for %q", token)
		}
	}
}

func TestCompileOrdersAlwaysLastAndDeduplicates(t *testing.T) {
	set, err := breakrule.Compile(
		[]string{"END:PASS", "in:foo", "IN:FOO", "# comment", "; note", "END:DONE"},
		[]string{"end:pass", "END:FAIL", "END:PASS"},
	)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	got := strings.Join(set.Tokens(), " ")
	want := "IN:FOO END:DONE END:PASS END:FAIL"
	if got != want {
		t.Fatalf("unexpected order: got %q want %q", got, want)
	}
}

func TestDefaultSetCompletesTranscriptLines(t *testing.T) {
	set := breakrule.Default()
	if tokens := set.Tokens(); tokens[0] != "IN:UNDO" || tokens[len(tokens)-1] != "END:ERRO" {
		t.Fatalf("unexpected default ordering: %v", tokens)
	}
	complete := []string{
		"2790005577,NEEDPSN12",
		"2505004562,H25101801031,PASS",
		"2505004562,PF2AS04TE,P072UT02243604N5,P072UT02243604N6,PASS",
		"2505004562,PF2AS04TE,PASSED=1",
		"2505004562,PF2AS04TE,PASSED=1PASS",
		"2505004562,PF2AS04TE,PASSED=0,FAIL03",
	}
	for _, line := range complete {
		if !set.Match(line) {
			t.Fatalf("expected default rules to complete %q", line)
		}
	}
	partial := []string{"2790005577,NEED", "2505004562,PF2AS04TE,PASSED=", "2505004562,PF2AS04TE,P072UT"}
	for _, line := range partial {
		if rule, ok := set.First(line); ok {
			t.Fatalf("expected %q to stay incomplete, matched %s", line, rule)
		}
	}
}

func TestSplitTokens(t *testing.T) {
	got := breakrule.SplitTokens("UNDO, END:END\n# skip\n;skip,,IN:NEEDPSN\r\n")
	want := []string{"UNDO", "END:END", "IN:NEEDPSN"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("SplitTokens = %v, want %v", got, want)
	}
}

func TestAssemblerAcrossChunks(t *testing.T) {
	asm := breakrule.NewAssembler(breakrule.Default())
	if _, ok := asm.Push("2505004562,PF2AS04TE,"); ok {
		t.Fatal("unexpected early frame")
	}
	if _, ok := asm.Push(""); ok {
		t.Fatal("empty chunk must not complete a frame")
	}
	frame, ok := asm.Push("PASSED=1\r\n")
	if !ok {
		t.Fatalf("expected frame, pending %q", asm.Pending())
	}
	if frame != "2505004562,PF2AS04TE,PASSED=1" {
		t.Fatalf("unexpected frame %q", frame)
	}
	if asm.Pending() != "" {
		t.Fatalf("expected buffer reset, got %q", asm.Pending())
	}

	asm.Push("garbage")
	asm.Reset()
	if asm.Pending() != "" {
		t.Fatal("expected Reset to clear pending text")
	}
}
