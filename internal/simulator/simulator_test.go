package simulator_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"laserlink/internal/serialport"
	"laserlink/internal/services"
	"laserlink/internal/simulator"
	"laserlink/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReplayDefaultTranscript(t *testing.T) {
	transcript := simulator.DefaultTranscript()
	messages, err := simulator.Replay(bytes.NewReader(transcript.Bytes("")), wire.FramerOptions{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	got := make([]string, len(messages))
	for i, msg := range messages {
		got[i] = msg.Text
	}
	if diff := cmp.Diff(transcript.Payloads(), got); diff != "" {
		t.Fatalf("replayed payloads differ (-want +got):\n%s", diff)
	}

	wantKinds := []wire.Kind{wire.KindTrigger, wire.KindAck, wire.KindDSNList, wire.KindCarveResult, wire.KindFinal}
	for i, msg := range messages {
		if msg.Kind() != wantKinds[i] {
			t.Fatalf("step %d classified %s, want %s", i+1, msg.Kind(), wantKinds[i])
		}
	}
}

func TestReplayReportsPartialTail(t *testing.T) {
	raw := simulator.TriggerLine + "\r\n2505004562,H2510"
	messages, err := simulator.Replay(strings.NewReader(raw), wire.FramerOptions{})
	var partial *wire.PartialLineError
	if !errors.As(err, &partial) {
		t.Fatalf("expected partial line error, got %v", err)
	}
	if len(messages) != 1 || messages[0].Text != simulator.TriggerLine {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestTranscriptBytesByDirection(t *testing.T) {
	transcript := simulator.DefaultTranscript()
	laser := string(transcript.Bytes(simulator.LaserToSFC))
	if laser != simulator.TriggerLine+"\r\n"+simulator.CarveLine+"\r\n" {
		t.Fatalf("unexpected laser bytes %q", laser)
	}
	sfc := string(transcript.Bytes(simulator.SFCToLaser))
	if strings.Count(sfc, "\r\n") != 3 || !strings.HasSuffix(sfc, simulator.FinalLine+"\r\n") {
		t.Fatalf("unexpected sfc bytes %q", sfc)
	}
}

func TestVerifyReportsFirstMismatch(t *testing.T) {
	expected := simulator.DefaultTranscript()
	if err := simulator.Verify(expected, simulator.DefaultTranscript()); err != nil {
		t.Fatalf("identical transcripts must verify: %v", err)
	}

	observed := simulator.DefaultTranscript()
	observed[3].Payload = "2505004562,PF2AS04TE,PASSED=0,FAIL03"
	var mismatch *simulator.MismatchError
	if err := simulator.Verify(expected, observed); !errors.As(err, &mismatch) || mismatch.Index != 4 {
		t.Fatalf("expected mismatch at step 4, got %v", err)
	}

	if err := simulator.Verify(expected, observed[:2]); !errors.As(err, &mismatch) || mismatch.Index != 3 || mismatch.Observed != nil {
		t.Fatalf("expected missing step 3, got %v", err)
	}
}

func TestFinalFor(t *testing.T) {
	if got := wire.FinalFor(simulator.CarveLine); got != simulator.FinalLine {
		t.Fatalf("FinalFor = %q", got)
	}
}

func TestParseScenario(t *testing.T) {
	for input, want := range map[string]simulator.Scenario{"": simulator.ScenarioPass, "PASS": simulator.ScenarioPass, " fail ": simulator.ScenarioFail} {
		got, err := simulator.ParseScenario(input)
		if err != nil || got != want {
			t.Fatalf("ParseScenario(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := simulator.ParseScenario("flaky"); err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}

func TestRunPassScenarioMatchesTranscript(t *testing.T) {
	laserEnd, sfcEnd := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	observed, err := simulator.Run(ctx, laserEnd, sfcEnd, simulator.RunOptions{StepTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := simulator.Verify(simulator.DefaultTranscript(), observed); err != nil {
		t.Fatalf("observed transcript differs: %v", err)
	}
}

func TestRunSFCRejects(t *testing.T) {
	laserEnd, sfcEnd := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	observed, err := simulator.Run(ctx, laserEnd, sfcEnd, simulator.RunOptions{SFCScenario: simulator.ScenarioFail, StepTimeout: 2 * time.Second})
	if !errors.Is(err, services.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(observed) != 2 || observed[1].Payload != "2505004562,H25101801031,FAIL" {
		t.Fatalf("unexpected transcript %+v", observed)
	}
}

func TestRunLaserCarveFails(t *testing.T) {
	laserEnd, sfcEnd := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	observed, err := simulator.Run(ctx, laserEnd, sfcEnd, simulator.RunOptions{LaserScenario: simulator.ScenarioFail, StepTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(observed) != 5 {
		t.Fatalf("expected 5 steps, got %+v", observed)
	}
	final := observed[4].Payload
	if final != "2505004562,PF2AS04TE,PASSED=0,FAIL03PASS" || wire.InferStatus(final) != wire.StatusFail {
		t.Fatalf("unexpected final %q", final)
	}
}

func TestLaserStepTimeout(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()

	link := serialport.NewLink(local, serialport.LinkOptions{Name: "laser"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	link.Start(ctx)
	defer link.Close()

	laser := simulator.NewLaser(link, simulator.LaserOptions{StepTimeout: 80 * time.Millisecond})
	observed, err := laser.Run(ctx)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if len(observed) != 1 || observed[0].Direction != simulator.LaserToSFC {
		t.Fatalf("unexpected transcript %+v", observed)
	}
}
