package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a durable event. The event log is the single source of
// truth; every state mutation is the application of one of these.
type EventType string

const (
	EventProjectCreated             EventType = "ProjectCreated"
	EventSessionCreated             EventType = "SessionCreated"
	EventToolChanged                EventType = "ToolChanged"
	EventJobEnqueued                EventType = "JobEnqueued"
	EventJobStarted                 EventType = "JobStarted"
	EventJobCompleted               EventType = "JobCompleted"
	EventJobFailed                  EventType = "JobFailed"
	EventJobMarkedUnknownAfterCrash EventType = "JobMarkedUnknownAfterCrash"
)

// Event is the durable envelope written to events.ndjson, one per line.
// Seq starts at 1 and increases by exactly 1 with no gaps.
type Event struct {
	Seq     uint64          `json:"seq"`
	TS      time.Time       `json:"ts"`
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodePayload unmarshals the payload into dst.
func (e *Event) DecodePayload(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload (seq %d): %w", e.Type, e.Seq, err)
	}
	return nil
}

// ProjectCreatedPayload is an audit record; project configuration itself
// lives in config.json.
type ProjectCreatedPayload struct {
	ProjectName  string `json:"project_name"`
	Path         string `json:"path"`
	EnabledTools []Tool `json:"enabled_tools"`
}

type SessionCreatedPayload struct {
	ThreadID     string            `json:"thread_id"`
	ProjectName  string            `json:"project_name"`
	Tool         Tool              `json:"tool"`
	AdapterState map[string]string `json:"adapter_state"`
}

type ToolChangedPayload struct {
	ThreadID string `json:"thread_id"`
	Tool     Tool   `json:"tool"`
}

type JobEnqueuedPayload struct {
	ThreadID  string `json:"thread_id"`
	JobID     string `json:"job_id"`
	MessageID string `json:"discord_message_id"`
	Prompt    string `json:"prompt"`
	Tool      Tool   `json:"tool"`
	Attempt   int    `json:"attempt"`
}

type JobStartedPayload struct {
	ThreadID string `json:"thread_id"`
	JobID    string `json:"job_id"`
}

type JobCompletedPayload struct {
	ThreadID      string            `json:"thread_id"`
	JobID         string            `json:"job_id"`
	ResultExcerpt string            `json:"result_excerpt"`
	AdapterState  map[string]string `json:"adapter_state,omitempty"`
}

type JobFailedPayload struct {
	ThreadID     string            `json:"thread_id"`
	JobID        string            `json:"job_id"`
	ErrorCode    string            `json:"error_code"`
	ErrorMessage string            `json:"error_message"`
	AdapterState map[string]string `json:"adapter_state,omitempty"`
}

type JobMarkedUnknownAfterCrashPayload struct {
	ThreadID string `json:"thread_id"`
	JobID    string `json:"job_id"`
}
