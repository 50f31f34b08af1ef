package models

import "testing"

func TestParseTool(t *testing.T) {
	for _, name := range []string{"claude", "codex", "cursor"} {
		tool, ok := ParseTool(name)
		if !ok || string(tool) != name {
			t.Errorf("ParseTool(%q) = %q, %v", name, tool, ok)
		}
	}
	if _, ok := ParseTool("vim"); ok {
		t.Error("unknown tool parsed")
	}
}

func TestResumeStateKey(t *testing.T) {
	if ToolCodex.ResumeStateKey() != "thread_id" {
		t.Errorf("codex key = %s", ToolCodex.ResumeStateKey())
	}
	if ToolClaude.ResumeStateKey() != "session_id" {
		t.Errorf("claude key = %s", ToolClaude.ResumeStateKey())
	}
	if ToolCursor.ResumeStateKey() != "session_id" {
		t.Errorf("cursor key = %s", ToolCursor.ResumeStateKey())
	}
}

func TestJobStatePredicates(t *testing.T) {
	cases := []struct {
		state     JobState
		finished  bool
		retryable bool
	}{
		{JobQueued, false, false},
		{JobRunning, false, false},
		{JobSuccess, true, false},
		{JobFailed, true, true},
		{JobUnknownAfterCrash, true, true},
	}
	for _, tc := range cases {
		if tc.state.Finished() != tc.finished {
			t.Errorf("%s.Finished() = %v", tc.state, tc.state.Finished())
		}
		if tc.state.Retryable() != tc.retryable {
			t.Errorf("%s.Retryable() = %v", tc.state, tc.state.Retryable())
		}
	}
}

func TestDedupKey(t *testing.T) {
	if DedupKey("t1", "m1") != "t1:m1" {
		t.Errorf("key = %s", DedupKey("t1", "m1"))
	}
	if DedupKey("t1", "m1") == DedupKey("t2", "m1") {
		t.Error("keys must be thread scoped")
	}
}

func TestSessionClone_Isolated(t *testing.T) {
	s := &Session{
		ThreadID:     "t1",
		Queue:        []string{"j1"},
		AdapterState: map[string]string{"session_id": "k"},
	}
	c := s.Clone()
	c.Queue[0] = "other"
	c.AdapterState["session_id"] = "changed"
	if s.Queue[0] != "j1" || s.AdapterState["session_id"] != "k" {
		t.Error("clone shares memory with original")
	}
}

func TestProjectToolEnabled(t *testing.T) {
	p := ProjectConfig{EnabledTools: []Tool{ToolClaude, ToolCursor}}
	if !p.ToolEnabled(ToolClaude) || p.ToolEnabled(ToolCodex) {
		t.Error("ToolEnabled mismatch")
	}
}
