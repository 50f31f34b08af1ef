package scheduler

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/internal/state"
	"github.com/haasonsaas/conduit/pkg/models"
)

type evSpec struct {
	typ     models.EventType
	payload any
}

func buildState(t *testing.T, specs ...evSpec) *state.State {
	t.Helper()
	st := state.New()
	for i, spec := range specs {
		raw, err := json.Marshal(spec.payload)
		if err != nil {
			t.Fatal(err)
		}
		ev := models.Event{
			Seq:     uint64(i + 1),
			TS:      time.Date(2025, 6, 1, 0, 0, i, 0, time.UTC),
			Type:    spec.typ,
			Payload: raw,
		}
		if err := st.Apply(ev); err != nil {
			t.Fatalf("apply event %d: %v", i+1, err)
		}
	}
	return st
}

func sessionWithJob(thread, job string) []evSpec {
	return []evSpec{
		{models.EventSessionCreated, models.SessionCreatedPayload{ThreadID: thread, ProjectName: "p", Tool: models.ToolClaude}},
		{models.EventJobEnqueued, models.JobEnqueuedPayload{ThreadID: thread, JobID: job, MessageID: "m-" + job, Prompt: "x", Tool: models.ToolClaude, Attempt: 1}},
	}
}

func TestPickNext_OldestActivityWins(t *testing.T) {
	// t2's enqueue happens after t1's, so t1 has the older activity.
	specs := append(sessionWithJob("t1", "j1"), sessionWithJob("t2", "j2")...)
	st := buildState(t, specs...)

	thread, job, ok := PickNext(st, nil)
	if !ok {
		t.Fatal("expected a pick")
	}
	if thread != "t1" || job != "j1" {
		t.Errorf("picked %s/%s, want t1/j1", thread, job)
	}
}

func TestPickNext_SkipsRunningSession(t *testing.T) {
	specs := append(sessionWithJob("t1", "j1"), sessionWithJob("t2", "j2")...)
	specs = append(specs, evSpec{models.EventJobStarted, models.JobStartedPayload{ThreadID: "t1", JobID: "j1"}})
	// t1 has a second queued job but is busy, so t2 wins despite newer activity.
	specs = append(specs, evSpec{models.EventJobEnqueued, models.JobEnqueuedPayload{
		ThreadID: "t1", JobID: "j3", MessageID: "m-j3", Prompt: "x", Tool: models.ToolClaude, Attempt: 1,
	}})
	st := buildState(t, specs...)

	thread, job, ok := PickNext(st, nil)
	if !ok {
		t.Fatal("expected a pick")
	}
	if thread != "t2" || job != "j2" {
		t.Errorf("picked %s/%s, want t2/j2", thread, job)
	}
}

func TestPickNext_HonorsExcludeSet(t *testing.T) {
	specs := append(sessionWithJob("t1", "j1"), sessionWithJob("t2", "j2")...)
	st := buildState(t, specs...)

	thread, job, ok := PickNext(st, map[string]bool{"t1": true})
	if !ok {
		t.Fatal("expected a pick")
	}
	if thread != "t2" || job != "j2" {
		t.Errorf("picked %s/%s, want t2/j2", thread, job)
	}

	if _, _, ok := PickNext(st, map[string]bool{"t1": true, "t2": true}); ok {
		t.Error("expected no pick with every thread excluded")
	}
}

func TestPickNext_FIFOWithinThread(t *testing.T) {
	specs := sessionWithJob("t1", "j1")
	specs = append(specs, evSpec{models.EventJobEnqueued, models.JobEnqueuedPayload{
		ThreadID: "t1", JobID: "j2", MessageID: "m-j2", Prompt: "x", Tool: models.ToolClaude, Attempt: 1,
	}})
	st := buildState(t, specs...)

	_, job, ok := PickNext(st, nil)
	if !ok || job != "j1" {
		t.Fatalf("picked %s, want head job j1", job)
	}
}

func TestPickNext_EmptyState(t *testing.T) {
	if _, _, ok := PickNext(state.New(), nil); ok {
		t.Error("expected no pick from empty state")
	}
}

func TestCheckEnqueue_Backpressure(t *testing.T) {
	sess := &models.Session{ThreadID: "t1"}
	for i := 0; i < MaxQueuePerSession-1; i++ {
		sess.Queue = append(sess.Queue, fmt.Sprintf("j%d", i))
	}
	if err := CheckEnqueue(sess); err != nil {
		t.Fatalf("queue of %d should accept: %v", len(sess.Queue), err)
	}

	sess.Queue = append(sess.Queue, "j-last")
	err := CheckEnqueue(sess)
	if err == nil {
		t.Fatal("full queue should reject")
	}
	if fault.CodeOf(err) != fault.CodeQueueFull {
		t.Errorf("code = %s, want %s", fault.CodeOf(err), fault.CodeQueueFull)
	}
}
