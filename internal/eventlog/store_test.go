package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/conduit/pkg/models"
)

func testOptions() Options {
	return Options{
		Fatal: func(err error) { panic(err) },
	}
}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, testOptions())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func appendAll(t *testing.T, s *Store, events ...struct {
	typ     models.EventType
	payload any
}) {
	t.Helper()
	for _, ev := range events {
		if _, err := s.Append(ev.typ, ev.payload); err != nil {
			t.Fatalf("append %s: %v", ev.typ, err)
		}
	}
}

func seedRunningJob(t *testing.T, s *Store) {
	t.Helper()
	steps := []struct {
		typ     models.EventType
		payload any
	}{
		{models.EventSessionCreated, models.SessionCreatedPayload{ThreadID: "t1", ProjectName: "demo", Tool: models.ToolClaude}},
		{models.EventJobEnqueued, models.JobEnqueuedPayload{ThreadID: "t1", JobID: "j1", MessageID: "m1", Prompt: "go", Tool: models.ToolClaude, Attempt: 1}},
		{models.EventJobStarted, models.JobStartedPayload{ThreadID: "t1", JobID: "j1"}},
	}
	appendAll(t, s, steps...)
}

func TestAppend_AssignsContiguousSeq(t *testing.T) {
	s := openStore(t, t.TempDir())
	defer s.Close()

	ev1, err := s.Append(models.EventSessionCreated, models.SessionCreatedPayload{ThreadID: "t1", ProjectName: "p", Tool: models.ToolClaude})
	if err != nil {
		t.Fatal(err)
	}
	ev2, err := s.Append(models.EventToolChanged, models.ToolChangedPayload{ThreadID: "t1", Tool: models.ToolCodex})
	if err != nil {
		t.Fatal(err)
	}
	if ev1.Seq != 1 || ev2.Seq != 2 {
		t.Errorf("seqs = %d, %d; want 1, 2", ev1.Seq, ev2.Seq)
	}
}

func TestCrashRecovery_MarksRunningJobs(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	seedRunningJob(t, s)
	if err := s.Snapshot(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened := openStore(t, dir)
	defer reopened.Close()
	marked, err := reopened.Recover()
	if err != nil {
		t.Fatal(err)
	}
	if len(marked) != 1 || marked[0] != "j1" {
		t.Fatalf("marked = %v, want [j1]", marked)
	}

	job, _ := reopened.State().Job("j1")
	if job.State != models.JobUnknownAfterCrash {
		t.Errorf("state = %s, want unknown_after_crash", job.State)
	}
	sess, _ := reopened.State().Session("t1")
	if sess.RunningJobID != "" {
		t.Error("running_job_id not cleared")
	}
}

func TestCrashRecovery_Idempotent(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	seedRunningJob(t, s)

	first, err := s.Recover()
	if err != nil || len(first) != 1 {
		t.Fatalf("first recovery = %v, %v", first, err)
	}
	second, err := s.Recover()
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("second recovery marked %v, want nothing", second)
	}
	s.Close()

	// A third run after a reopen also finds nothing: the marks are durable.
	reopened := openStore(t, dir)
	defer reopened.Close()
	third, err := reopened.Recover()
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 0 {
		t.Errorf("post-reopen recovery marked %v, want nothing", third)
	}
}

func TestReplay_WithoutSnapshotMatchesSnapshotPlusTail(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	seedRunningJob(t, s)
	appendAll(t, s, struct {
		typ     models.EventType
		payload any
	}{models.EventJobCompleted, models.JobCompletedPayload{
		ThreadID: "t1", JobID: "j1", ResultExcerpt: "done",
		AdapterState: map[string]string{"session_id": "kx"},
	}})
	if err := s.Snapshot(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	withSnap := openStore(t, dir)
	fromSnap, _ := json.Marshal(withSnap.State().Snapshot())
	withSnap.Close()

	if err := os.Remove(filepath.Join(dir, "snapshot.json")); err != nil {
		t.Fatal(err)
	}
	replayed := openStore(t, dir)
	defer replayed.Close()
	fromLog, _ := json.Marshal(replayed.State().Snapshot())

	if string(fromSnap) != string(fromLog) {
		t.Errorf("replay mismatch:\nsnapshot: %s\nlog only: %s", fromSnap, fromLog)
	}

	job, _ := replayed.State().Job("j1")
	if job.State != models.JobSuccess {
		t.Errorf("state = %s, want success", job.State)
	}
	sess, _ := replayed.State().Session("t1")
	if sess.AdapterState["session_id"] != "kx" {
		t.Errorf("adapter_state = %v", sess.AdapterState)
	}
}

func TestOpen_FailsOnSeqGap(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		`{"seq":1,"ts":"2025-06-01T00:00:00Z","type":"SessionCreated","payload":{"thread_id":"t1","project_name":"p","tool":"claude","adapter_state":{}}}`,
		`{"seq":3,"ts":"2025-06-01T00:00:02Z","type":"ToolChanged","payload":{"thread_id":"t1","tool":"codex"}}`,
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "events.ndjson"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(dir, testOptions()); err == nil {
		t.Fatal("expected failure on seq gap")
	}
}

func TestOpen_FailsOnSnapshotWithoutSeq(t *testing.T) {
	dir := t.TempDir()
	snap := `{"version":1,"sessions":{},"jobs":{},"dedupe":{}}`
	if err := os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte(snap), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir, testOptions()); err == nil {
		t.Fatal("expected failure on snapshot without seq")
	}
}

func TestSnapshotPolicy_EveryFiftyEvents(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	opts.Clock = func() time.Time { return base } // freeze: only the event-count trigger fires
	s, err := Open(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Append(models.EventSessionCreated, models.SessionCreatedPayload{ThreadID: "t1", ProjectName: "p", Tool: models.ToolClaude}); err != nil {
		t.Fatal(err)
	}
	for i := 2; i < SnapshotEveryEvents; i++ {
		tool := models.ToolCodex
		if i%2 == 0 {
			tool = models.ToolCursor
		}
		if _, err := s.Append(models.EventToolChanged, models.ToolChangedPayload{ThreadID: "t1", Tool: tool}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshot.json")); !os.IsNotExist(err) {
		t.Fatal("snapshot written before the 50th event")
	}

	if _, err := s.Append(models.EventToolChanged, models.ToolChangedPayload{ThreadID: "t1", Tool: models.ToolClaude}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "snapshot.json"))
	if err != nil {
		t.Fatalf("snapshot missing after 50 events: %v", err)
	}
	var snap struct {
		Seq uint64 `json:"seq"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Seq != SnapshotEveryEvents {
		t.Errorf("snapshot seq = %d, want %d", snap.Seq, SnapshotEveryEvents)
	}
}

func TestSnapshotPolicy_TimeBased(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	opts.Clock = func() time.Time { return now }
	s, err := Open(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	now = now.Add(10 * time.Second) // past the interval, but no events yet

	if _, err := s.Append(models.EventSessionCreated, models.SessionCreatedPayload{ThreadID: "t1", ProjectName: "p", Tool: models.ToolClaude}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshot.json")); err != nil {
		t.Fatalf("expected time-triggered snapshot after append: %v", err)
	}
}
