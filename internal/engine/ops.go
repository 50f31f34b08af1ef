package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/internal/scheduler"
	"github.com/haasonsaas/conduit/internal/state"
	"github.com/haasonsaas/conduit/pkg/models"
)

// EnqueueResult reports the outcome of an enqueue.
type EnqueueResult struct {
	JobID string

	// Deduped is true when the message was seen before; JobID then names
	// the previously enqueued job and no new event was written.
	Deduped bool
}

// SessionStatus is the assembled operator-facing view of one session.
type SessionStatus struct {
	Session    *models.Session
	Running    *models.Job
	Last       *models.Job
	QueueDepth int

	// Retryable means the last finished job can be re-run with /retry.
	Retryable bool
}

// State exposes the read-only projection for status surfaces.
func (e *Engine) State() *state.State {
	return e.log.State()
}

// CreateProject validates and registers a project, recording an audit
// event in the log.
func (e *Engine) CreateProject(name, path string, tools []models.Tool, defaultTool models.Tool, defaultArgs map[models.Tool][]string) (models.ProjectConfig, error) {
	p, err := e.projects.Create(name, path, tools, defaultTool, defaultArgs)
	if err != nil {
		return models.ProjectConfig{}, err
	}
	if _, err := e.log.Append(models.EventProjectCreated, models.ProjectCreatedPayload{
		ProjectName:  p.Name,
		Path:         p.Path,
		EnabledTools: p.EnabledTools,
	}); err != nil {
		return models.ProjectConfig{}, err
	}
	e.metrics.EventsAppended.WithLabelValues(string(models.EventProjectCreated)).Inc()
	e.logger.Info("project created", "project", p.Name, "path", p.Path, "tools", p.EnabledTools)
	return p, nil
}

// Projects lists all registered projects.
func (e *Engine) Projects() []models.ProjectConfig {
	return e.projects.List()
}

// Project returns one project by name.
func (e *Engine) Project(name string) (models.ProjectConfig, error) {
	p, ok := e.projects.Get(name)
	if !ok {
		return models.ProjectConfig{}, fault.Newf(fault.CodeProjectNotFound, "project %q is not configured", name)
	}
	return p, nil
}

// StartSession binds a chat thread to a project. When the thread already
// has a session it is returned unchanged with created=false; re-opening a
// thread is a chat-surface side effect, not a state change.
func (e *Engine) StartSession(threadID, projectName string, toolName string) (*models.Session, bool, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if sess, ok := e.log.State().Session(threadID); ok {
		return sess, false, nil
	}

	proj, ok := e.projects.Get(projectName)
	if !ok {
		return nil, false, fault.Newf(fault.CodeProjectNotFound, "project %q is not configured", projectName)
	}

	tool := proj.DefaultTool
	if toolName != "" {
		t, ok := models.ParseTool(toolName)
		if !ok {
			return nil, false, fault.Newf(fault.CodeInvalidToolset, "unknown tool %q", toolName)
		}
		if !proj.ToolEnabled(t) {
			return nil, false, fault.Newf(fault.CodeToolNotEnabled,
				"tool %q is not enabled for project %q", t, projectName)
		}
		tool = t
	}

	if _, err := e.log.Append(models.EventSessionCreated, models.SessionCreatedPayload{
		ThreadID:     threadID,
		ProjectName:  projectName,
		Tool:         tool,
		AdapterState: map[string]string{},
	}); err != nil {
		return nil, false, err
	}
	e.metrics.EventsAppended.WithLabelValues(string(models.EventSessionCreated)).Inc()
	e.logger.Info("session created", "thread_id", threadID, "project", projectName, "tool", tool)

	sess, _ := e.log.State().Session(threadID)
	return sess, true, nil
}

// Enqueue adds a prompt to a session's queue. The (thread, message) pair
// enqueues at most once: a repeat returns the original job ID with
// Deduped set and writes no event.
func (e *Engine) Enqueue(threadID, messageID, prompt string) (EnqueueResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	st := e.log.State()
	sess, ok := st.Session(threadID)
	if !ok {
		return EnqueueResult{}, fault.Newf(fault.CodeSessionNotFound, "no session for thread %s", threadID)
	}

	key := models.DedupKey(threadID, messageID)
	if jobID, ok := st.DedupeJob(key); ok {
		return EnqueueResult{JobID: jobID, Deduped: true}, nil
	}

	if err := scheduler.CheckEnqueue(sess); err != nil {
		return EnqueueResult{}, err
	}

	jobID := uuid.NewString()
	if _, err := e.log.Append(models.EventJobEnqueued, models.JobEnqueuedPayload{
		ThreadID:  threadID,
		JobID:     jobID,
		MessageID: messageID,
		Prompt:    prompt,
		Tool:      sess.Tool,
		Attempt:   1,
	}); err != nil {
		return EnqueueResult{}, err
	}
	e.metrics.EventsAppended.WithLabelValues(string(models.EventJobEnqueued)).Inc()
	e.metrics.JobsEnqueued.WithLabelValues(string(sess.Tool)).Inc()

	e.Kick()
	return EnqueueResult{JobID: jobID}, nil
}

// Retry re-enqueues the session's last finished job when it ended failed
// or unknown_after_crash. The prior job is never mutated; the new job
// carries attempt+1 and a synthetic dedup key.
func (e *Engine) Retry(threadID string) (string, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	st := e.log.State()
	sess, ok := st.Session(threadID)
	if !ok {
		return "", fault.Newf(fault.CodeSessionNotFound, "no session for thread %s", threadID)
	}
	if sess.LastJobID == "" {
		return "", fault.New(fault.CodeJobNotRetryable, "no finished job to retry")
	}
	prev, ok := st.Job(sess.LastJobID)
	if !ok {
		return "", fault.New(fault.CodeJobNotRetryable, "no finished job to retry")
	}
	if !prev.State.Retryable() {
		return "", fault.Newf(fault.CodeJobNotRetryable,
			"last job ended %s; only failed or unknown_after_crash jobs can be retried", prev.State)
	}
	if err := scheduler.CheckEnqueue(sess); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	if _, err := e.log.Append(models.EventJobEnqueued, models.JobEnqueuedPayload{
		ThreadID:  threadID,
		JobID:     jobID,
		MessageID: fmt.Sprintf("retry:%s:%s", prev.ID, jobID),
		Prompt:    prev.Prompt,
		Tool:      prev.Tool,
		Attempt:   prev.Attempt + 1,
	}); err != nil {
		return "", err
	}
	e.metrics.EventsAppended.WithLabelValues(string(models.EventJobEnqueued)).Inc()
	e.metrics.JobsEnqueued.WithLabelValues(string(prev.Tool)).Inc()
	e.logger.Info("job retried", "thread_id", threadID,
		"prev_job_id", prev.ID, "job_id", jobID, "attempt", prev.Attempt+1)

	e.Kick()
	return jobID, nil
}

// SwitchTool changes the session's tool for future enqueues. Queued and
// running jobs keep the tool they were enqueued with.
func (e *Engine) SwitchTool(threadID, toolName string) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	sess, ok := e.log.State().Session(threadID)
	if !ok {
		return fault.Newf(fault.CodeSessionNotFound, "no session for thread %s", threadID)
	}
	tool, ok := models.ParseTool(toolName)
	if !ok {
		return fault.Newf(fault.CodeInvalidToolset, "unknown tool %q", toolName)
	}
	proj, ok := e.projects.Get(sess.ProjectName)
	if !ok {
		return fault.Newf(fault.CodeProjectNotFound, "project %q is not configured", sess.ProjectName)
	}
	if !proj.ToolEnabled(tool) {
		return fault.Newf(fault.CodeToolNotEnabled,
			"tool %q is not enabled for project %q", tool, sess.ProjectName)
	}
	if sess.Tool == tool {
		return nil
	}

	if _, err := e.log.Append(models.EventToolChanged, models.ToolChangedPayload{
		ThreadID: threadID,
		Tool:     tool,
	}); err != nil {
		return err
	}
	e.metrics.EventsAppended.WithLabelValues(string(models.EventToolChanged)).Inc()
	e.logger.Info("tool switched", "thread_id", threadID, "tool", tool)
	return nil
}

// SessionStatus assembles the operator view of one session.
func (e *Engine) SessionStatus(threadID string) (SessionStatus, error) {
	st := e.log.State()
	sess, ok := st.Session(threadID)
	if !ok {
		return SessionStatus{}, fault.Newf(fault.CodeSessionNotFound, "no session for thread %s", threadID)
	}
	status := SessionStatus{
		Session:    sess,
		QueueDepth: len(sess.Queue),
	}
	if sess.RunningJobID != "" {
		if job, ok := st.Job(sess.RunningJobID); ok {
			status.Running = job
		}
	}
	if sess.LastJobID != "" {
		if job, ok := st.Job(sess.LastJobID); ok {
			status.Last = job
			status.Retryable = job.State.Retryable()
		}
	}
	return status, nil
}

// Sessions lists all sessions, ordered by thread ID.
func (e *Engine) Sessions() []*models.Session {
	return e.log.State().Sessions()
}
