package adapters

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestCodexBuildArgs(t *testing.T) {
	c := NewCodex(nil)

	fresh := c.buildArgs(Input{Prompt: "do it"})
	wantFresh := []string{"exec", "--dangerously-bypass-approvals-and-sandbox", "--json", "do it"}
	if !reflect.DeepEqual(fresh, wantFresh) {
		t.Errorf("fresh args = %v", fresh)
	}

	resumed := c.buildArgs(Input{Prompt: "more", ResumeKey: "th-9"})
	wantResumed := []string{
		"exec", "--dangerously-bypass-approvals-and-sandbox",
		"resume", "th-9", "--json", "more",
	}
	if !reflect.DeepEqual(resumed, wantResumed) {
		t.Errorf("resumed args = %v", resumed)
	}
}

func TestParseCodexOutput_ItemEnvelopes(t *testing.T) {
	lines := []string{
		`{"type":"thread.started","thread_id":"th-1"}`,
		`{"type":"item.started","item":{"type":"agent_message","text":"Working on it."}}`,
		`{"type":"item.completed","item":{"type":"agent_message","text":"Working on it."}}`,
		`{"type":"item.completed","item":{"type":"command_execution","command":"ls -la"}}`,
		`{"type":"item.completed","item":{"type":"agent_message","text":" Done."}}`,
	}
	text, key, parsed, fails := parseCodexOutput(lines)
	if text != "Working on it. Done." {
		t.Errorf("text = %q", text)
	}
	if key != "th-1" {
		t.Errorf("thread key = %q", key)
	}
	if parsed != 5 || fails != 0 {
		t.Errorf("parsed = %d, fails = %d", parsed, fails)
	}
}

func TestParseCodexOutput_ThreadIDLastWins(t *testing.T) {
	lines := []string{
		`{"type":"thread.started","thread_id":"th-old"}`,
		`{"type":"turn.completed","thread_id":"th-new"}`,
	}
	_, key, _, _ := parseCodexOutput(lines)
	if key != "th-new" {
		t.Errorf("thread key = %q, want th-new", key)
	}
}

func TestParseCodexOutput_SkipsGarbageLines(t *testing.T) {
	lines := []string{
		`[WARN] model fallback engaged`,
		`{"type":"thread.started","thread_id":"th-1"}`,
		`{bad`,
		`{"type":"item.completed","item":{"type":"agent_message","text":"ok"}}`,
	}
	text, key, parsed, _ := parseCodexOutput(lines)
	if text != "ok" || key != "th-1" {
		t.Errorf("text = %q, key = %q", text, key)
	}
	if parsed != 2 {
		t.Errorf("parsed = %d, want 2", parsed)
	}
}

func TestCodexRun_ProgressDedupesRepeatedText(t *testing.T) {
	c := NewCodex(nil)
	c.Bin = writeStubTool(t, `
printf '%s\n' '{"type":"thread.started","thread_id":"th-run"}'
printf '%s\n' '{"type":"item.started","item":{"type":"agent_message","text":"Working on it."}}'
printf '%s\n' '{"type":"item.completed","item":{"type":"agent_message","text":"Working on it."}}'
printf '%s\n' '{"type":"item.completed","item":{"type":"agent_message","text":"Done."}}'`)

	var texts []string
	res := c.Run(context.Background(), Input{
		Prompt:  "fix it",
		Timeout: 5 * time.Second,
		OnProgress: func(ev ProgressEvent) {
			if ev.Type == "assistant_text" {
				texts = append(texts, ev.Text)
			}
		},
	})

	if !res.OK {
		t.Fatalf("run failed: %s %s", res.ErrorCode, res.ErrorMessage)
	}
	if res.AdapterState["thread_id"] != "th-run" {
		t.Errorf("adapter state = %v", res.AdapterState)
	}
	want := []string{"Working on it.", "Done."}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("progress texts = %v, want %v", texts, want)
	}
}

func TestCommandLabel(t *testing.T) {
	cases := []struct {
		command string
		want    string
	}{
		{"/bin/bash -lc 'go test ./...'", "bash"},
		{"/bin/zsh -c ls", "bash"},
		{"/usr/local/bin/rg pattern", "rg"},
		{"ls -la", "ls"},
		{"", "tool"},
		{"   ", "tool"},
	}
	for _, tc := range cases {
		if got := commandLabel(tc.command); got != tc.want {
			t.Errorf("commandLabel(%q) = %q, want %q", tc.command, got, tc.want)
		}
	}
}
