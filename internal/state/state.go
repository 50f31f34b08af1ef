// Package state holds the in-memory projection of the durable event log:
// sessions, jobs, the dedup index, and the last applied sequence number.
//
// The projection is only ever mutated by applying an event. Application is
// a pure function of (prior state, event); that purity is what makes
// startup replay reproduce the exact pre-crash state. Readers always get
// deep copies so no caller can mutate the projection from outside.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/conduit/pkg/models"
)

// SnapshotVersion is the on-disk snapshot format version.
const SnapshotVersion = 1

// State is the in-memory projection.
type State struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	jobs     map[string]*models.Job
	dedupe   map[string]string
	seq      uint64
}

// New returns an empty projection at seq 0.
func New() *State {
	return &State{
		sessions: make(map[string]*models.Session),
		jobs:     make(map[string]*models.Job),
		dedupe:   make(map[string]string),
	}
}

// Seq returns the sequence number of the last applied event.
func (s *State) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Session returns a deep copy of the session for threadID.
func (s *State) Session(threadID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[threadID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Job returns a deep copy of the job with the given ID.
func (s *State) Job(id string) (*models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// DedupeJob returns the job ID already recorded for a dedup key.
func (s *State) DedupeJob(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.dedupe[key]
	return id, ok
}

// Sessions returns deep copies of all sessions, ordered by thread ID.
func (s *State) Sessions() []*models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out
}

// RunningJobIDs returns the IDs of all jobs in state running, sorted for
// deterministic crash recovery.
func (s *State) RunningJobIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, job := range s.jobs {
		if job.State == models.JobRunning {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RunningCount returns the number of jobs currently in state running.
func (s *State) RunningCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, job := range s.jobs {
		if job.State == models.JobRunning {
			n++
		}
	}
	return n
}

// QueuedTotal returns the number of queued jobs across all sessions.
func (s *State) QueuedTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		n += len(sess.Queue)
	}
	return n
}

// Counts returns the number of sessions and jobs in the projection.
func (s *State) Counts() (sessions, jobs int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), len(s.jobs)
}

// Snapshot is the serializable full-projection shape written to
// snapshot.json.
type Snapshot struct {
	Version  int                        `json:"version"`
	Seq      uint64                     `json:"seq"`
	Sessions map[string]*models.Session `json:"sessions"`
	Jobs     map[string]*models.Job     `json:"jobs"`
	Dedupe   map[string]string          `json:"dedupe"`
}

// Snapshot returns a deep copy of the full projection.
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Version:  SnapshotVersion,
		Seq:      s.seq,
		Sessions: make(map[string]*models.Session, len(s.sessions)),
		Jobs:     make(map[string]*models.Job, len(s.jobs)),
		Dedupe:   make(map[string]string, len(s.dedupe)),
	}
	for id, sess := range s.sessions {
		snap.Sessions[id] = sess.Clone()
	}
	for id, job := range s.jobs {
		snap.Jobs[id] = job.Clone()
	}
	for k, v := range s.dedupe {
		snap.Dedupe[k] = v
	}
	return snap
}

// Restore replaces the projection with the snapshot's contents. The
// snapshot is deep-copied on the way in.
func (s *State) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = snap.Seq
	s.sessions = make(map[string]*models.Session, len(snap.Sessions))
	s.jobs = make(map[string]*models.Job, len(snap.Jobs))
	s.dedupe = make(map[string]string, len(snap.Dedupe))
	for id, sess := range snap.Sessions {
		s.sessions[id] = sess.Clone()
	}
	for id, job := range snap.Jobs {
		s.jobs[id] = job.Clone()
	}
	for k, v := range snap.Dedupe {
		s.dedupe[k] = v
	}
}

// Apply applies one event to the projection. The event's seq must be
// exactly one past the last applied seq; anything else is a gap or a
// duplicate and returns an error so the caller can fail fast.
func (s *State) Apply(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Seq != s.seq+1 {
		return fmt.Errorf("event seq %d does not follow %d", ev.Seq, s.seq)
	}

	if err := s.applyLocked(ev); err != nil {
		return err
	}
	s.seq = ev.Seq
	return nil
}

func (s *State) applyLocked(ev models.Event) error {
	switch ev.Type {
	case models.EventProjectCreated:
		// Audit only: project configuration lives in config.json.
		var p models.ProjectCreatedPayload
		return ev.DecodePayload(&p)

	case models.EventSessionCreated:
		var p models.SessionCreatedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		adapterState := p.AdapterState
		if adapterState == nil {
			adapterState = map[string]string{}
		}
		s.sessions[p.ThreadID] = &models.Session{
			ThreadID:       p.ThreadID,
			ProjectName:    p.ProjectName,
			Tool:           p.Tool,
			AdapterState:   adapterState,
			Queue:          []string{},
			CreatedAt:      ev.TS,
			UpdatedAt:      ev.TS,
			LastActivityAt: ev.TS,
		}
		return nil

	case models.EventToolChanged:
		var p models.ToolChangedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("ToolChanged for unknown session %s", p.ThreadID)
		}
		sess.Tool = p.Tool
		sess.UpdatedAt = ev.TS
		return nil

	case models.EventJobEnqueued:
		var p models.JobEnqueuedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		sess, ok := s.sessions[p.ThreadID]
		if !ok {
			return fmt.Errorf("JobEnqueued for unknown session %s", p.ThreadID)
		}
		attempt := p.Attempt
		if attempt < 1 {
			attempt = 1
		}
		s.jobs[p.JobID] = &models.Job{
			ID:        p.JobID,
			ThreadID:  p.ThreadID,
			MessageID: p.MessageID,
			State:     models.JobQueued,
			Prompt:    p.Prompt,
			Tool:      p.Tool,
			Attempt:   attempt,
		}
		sess.Queue = append(sess.Queue, p.JobID)
		s.dedupe[models.DedupKey(p.ThreadID, p.MessageID)] = p.JobID
		sess.UpdatedAt = ev.TS
		sess.LastActivityAt = ev.TS
		return nil

	case models.EventJobStarted:
		var p models.JobStartedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		sess, job, err := s.lookupLocked(p.ThreadID, p.JobID, ev.Type)
		if err != nil {
			return err
		}
		ts := ev.TS
		job.State = models.JobRunning
		job.StartedAt = &ts
		sess.RunningJobID = p.JobID
		sess.Queue = removeID(sess.Queue, p.JobID)
		sess.UpdatedAt = ev.TS
		return nil

	case models.EventJobCompleted:
		var p models.JobCompletedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		sess, job, err := s.lookupLocked(p.ThreadID, p.JobID, ev.Type)
		if err != nil {
			return err
		}
		ts := ev.TS
		job.State = models.JobSuccess
		job.FinishedAt = &ts
		job.ResultExcerpt = p.ResultExcerpt
		sess.RunningJobID = ""
		sess.LastJobID = p.JobID
		mergeAdapterState(sess, p.AdapterState)
		sess.UpdatedAt = ev.TS
		return nil

	case models.EventJobFailed:
		var p models.JobFailedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		sess, job, err := s.lookupLocked(p.ThreadID, p.JobID, ev.Type)
		if err != nil {
			return err
		}
		ts := ev.TS
		job.State = models.JobFailed
		job.FinishedAt = &ts
		job.ErrorCode = p.ErrorCode
		job.ErrorMessage = p.ErrorMessage
		sess.RunningJobID = ""
		sess.LastJobID = p.JobID
		mergeAdapterState(sess, p.AdapterState)
		sess.UpdatedAt = ev.TS
		return nil

	case models.EventJobMarkedUnknownAfterCrash:
		var p models.JobMarkedUnknownAfterCrashPayload
		if err := ev.DecodePayload(&p); err != nil {
			return err
		}
		sess, job, err := s.lookupLocked(p.ThreadID, p.JobID, ev.Type)
		if err != nil {
			return err
		}
		ts := ev.TS
		job.State = models.JobUnknownAfterCrash
		job.FinishedAt = &ts
		sess.RunningJobID = ""
		sess.LastJobID = p.JobID
		sess.UpdatedAt = ev.TS
		return nil
	}
	return fmt.Errorf("unknown event type %q (seq %d)", ev.Type, ev.Seq)
}

func (s *State) lookupLocked(threadID, jobID string, et models.EventType) (*models.Session, *models.Job, error) {
	sess, ok := s.sessions[threadID]
	if !ok {
		return nil, nil, fmt.Errorf("%s for unknown session %s", et, threadID)
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, nil, fmt.Errorf("%s for unknown job %s", et, jobID)
	}
	return sess, job, nil
}

func mergeAdapterState(sess *models.Session, updates map[string]string) {
	for k, v := range updates {
		sess.AdapterState[k] = v
	}
}

func removeID(queue []string, id string) []string {
	for i, q := range queue {
		if q == id {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}
