package models

import "time"

// JobState is the lifecycle state of a job. Transitions are one-way:
// queued -> running -> success | failed, with unknown_after_crash reserved
// for jobs that were running when the process died.
type JobState string

const (
	JobQueued            JobState = "queued"
	JobRunning           JobState = "running"
	JobSuccess           JobState = "success"
	JobFailed            JobState = "failed"
	JobUnknownAfterCrash JobState = "unknown_after_crash"
)

// Finished reports whether the state is terminal.
func (s JobState) Finished() bool {
	switch s {
	case JobSuccess, JobFailed, JobUnknownAfterCrash:
		return true
	}
	return false
}

// Retryable reports whether a job in this state may be retried by the
// operator. Successful jobs are not retried; queued and running jobs are
// still in flight.
func (s JobState) Retryable() bool {
	return s == JobFailed || s == JobUnknownAfterCrash
}

// Job is one enqueued prompt plus its execution outcome. Jobs are never
// mutated retroactively; a retry creates a fresh job with Attempt+1.
type Job struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`

	// MessageID is the chat message that enqueued the job. Retries use a
	// synthetic "retry:<old_job>:<new_job>" key to keep dedup unique.
	MessageID string `json:"discord_message_id"`

	State   JobState `json:"state"`
	Prompt  string   `json:"prompt"`
	Tool    Tool     `json:"tool"`
	Attempt int      `json:"attempt"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// ResultExcerpt holds the first MaxResultExcerptChars characters of
	// the assistant's final text.
	ResultExcerpt string `json:"result_excerpt,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
