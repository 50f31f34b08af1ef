package models

import "time"

// Session is a conversational context bound 1:1 to a chat thread. It owns
// a FIFO queue of pending job IDs; job records live in the state's job map
// and are looked up by ID, never referenced directly.
type Session struct {
	ThreadID    string `json:"thread_id"`
	ProjectName string `json:"project_name"`

	// Tool is the currently selected tool. Switching it affects future
	// enqueues only; queued and running jobs keep their frozen tool.
	Tool Tool `json:"tool"`

	// AdapterState carries tool-specific resume keys ("session_id" for
	// claude/cursor, "thread_id" for codex).
	AdapterState map[string]string `json:"adapter_state"`

	// Queue holds the IDs of queued jobs in enqueue order.
	Queue []string `json:"queue"`

	// RunningJobID names the single running job, or "" when idle.
	RunningJobID string `json:"running_job_id,omitempty"`

	// LastJobID names the most recently finished job, or "".
	LastJobID string `json:"last_job_id,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Queue = append([]string(nil), s.Queue...)
	c.AdapterState = make(map[string]string, len(s.AdapterState))
	for k, v := range s.AdapterState {
		c.AdapterState[k] = v
	}
	return &c
}

// DedupKey builds the exactly-once enqueue key for a source message.
func DedupKey(threadID, messageID string) string {
	return threadID + ":" + messageID
}
