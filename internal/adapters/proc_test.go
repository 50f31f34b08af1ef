package adapters

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestRunProcess_CapturesBothStreams(t *testing.T) {
	var seen []string
	proc := runProcess(context.Background(), "sh",
		[]string{"-c", `printf 'out1\nout2\n'; printf 'err1\n' >&2`},
		"", 5*time.Second,
		func(line string) { seen = append(seen, line) })

	if proc.err != nil {
		t.Fatalf("err = %v", proc.err)
	}
	if !reflect.DeepEqual(proc.stdout, []string{"out1", "out2"}) {
		t.Errorf("stdout = %v", proc.stdout)
	}
	if !reflect.DeepEqual(proc.stderr, []string{"err1"}) {
		t.Errorf("stderr = %v", proc.stderr)
	}
	if !reflect.DeepEqual(seen, []string{"out1", "out2"}) {
		t.Errorf("onStdout saw %v", seen)
	}
}

func TestRunProcess_TrailingFragmentFlushed(t *testing.T) {
	proc := runProcess(context.Background(), "sh",
		[]string{"-c", `printf 'no newline'`}, "", 5*time.Second, nil)
	if proc.err != nil {
		t.Fatalf("err = %v", proc.err)
	}
	if !reflect.DeepEqual(proc.stdout, []string{"no newline"}) {
		t.Errorf("stdout = %v", proc.stdout)
	}
}

func TestRunProcess_NonzeroExit(t *testing.T) {
	proc := runProcess(context.Background(), "sh",
		[]string{"-c", `echo boom >&2; exit 3`}, "", 5*time.Second, nil)
	if proc.err == nil {
		t.Fatal("expected exit error")
	}
	if proc.timedOut {
		t.Error("nonzero exit must not report timeout")
	}
}

func TestRunProcess_TimeoutKills(t *testing.T) {
	start := time.Now()
	proc := runProcess(context.Background(), "sh",
		[]string{"-c", `sleep 30`}, "", 100*time.Millisecond, nil)
	if !proc.timedOut {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("kill took %s", elapsed)
	}
}

func TestRunProcess_TimeoutKillsDescendants(t *testing.T) {
	// The background sleep inherits the pipe write ends; only a group
	// kill makes the drain end at the deadline.
	start := time.Now()
	proc := runProcess(context.Background(), "sh",
		[]string{"-c", `sleep 30 & sleep 30`}, "", 100*time.Millisecond, nil)
	if !proc.timedOut {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("kill took %s", elapsed)
	}
}

func TestRunProcess_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	proc := runProcess(ctx, "sh", []string{"-c", `sleep 30`}, "", time.Minute, nil)
	if proc.err == nil {
		t.Fatal("expected context error")
	}
	if proc.timedOut {
		t.Error("cancellation must not report timeout")
	}
}

func TestRunProcess_MissingBinary(t *testing.T) {
	proc := runProcess(context.Background(), "/nonexistent/tool-for-test", nil, "", time.Second, nil)
	if proc.err == nil {
		t.Fatal("expected spawn error")
	}
}
