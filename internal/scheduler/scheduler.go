// Package scheduler holds the pure scheduling policy: per-thread FIFO,
// a global concurrency cap, and queue backpressure. The policy functions
// read the projection and make no mutations; admission is the
// coordinator's job.
package scheduler

import (
	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/internal/state"
	"github.com/haasonsaas/conduit/pkg/models"
)

const (
	// MaxQueuePerSession bounds pending jobs per thread.
	MaxQueuePerSession = 20

	// GlobalMaxRunning bounds concurrently running jobs across threads.
	GlobalMaxRunning = 2
)

// PickNext chooses the next runnable (thread, job) pair: among sessions
// with a non-empty queue and no running job, the one with the oldest
// last activity wins, with ties broken by smallest thread ID. Threads in
// exclude are skipped (the coordinator has already admitted them but their
// JobStarted event is not yet applied).
func PickNext(st *state.State, exclude map[string]bool) (threadID, jobID string, ok bool) {
	var best *models.Session
	for _, sess := range st.Sessions() {
		if len(sess.Queue) == 0 || sess.RunningJobID != "" || exclude[sess.ThreadID] {
			continue
		}
		// Sessions() is ordered by thread ID, so a strict comparison
		// keeps the lexicographic tie-break.
		if best == nil || sess.LastActivityAt.Before(best.LastActivityAt) {
			best = sess
		}
	}
	if best == nil {
		return "", "", false
	}
	return best.ThreadID, best.Queue[0], true
}

// CheckEnqueue reports whether the session can accept another job.
func CheckEnqueue(sess *models.Session) error {
	if len(sess.Queue) >= MaxQueuePerSession {
		return fault.Newf(fault.CodeQueueFull,
			"session %s already has %d queued jobs", sess.ThreadID, len(sess.Queue))
	}
	return nil
}
