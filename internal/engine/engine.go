// Package engine contains the job coordinator: it owns the run loop that
// admits queued jobs under the scheduling policy, drives the tool adapters,
// records every lifecycle transition in the event log, and fires progress
// hooks toward the chat surface.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/conduit/internal/adapters"
	"github.com/haasonsaas/conduit/internal/eventlog"
	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/project"
	"github.com/haasonsaas/conduit/internal/scheduler"
	"github.com/haasonsaas/conduit/pkg/models"
)

const (
	// MaxResultExcerptChars bounds the excerpt stored in JobCompleted.
	MaxResultExcerptChars = 400

	idlePollInterval = 10 * time.Millisecond
)

// FinishInfo describes a finished job for the OnJobFinished hook.
type FinishInfo struct {
	ThreadID      string
	JobID         string
	State         models.JobState
	ErrorCode     string
	ErrorMessage  string
	ResultExcerpt string
}

// Hooks are the callbacks fired during job processing. All hooks are
// best-effort: a panicking hook is logged and swallowed.
type Hooks struct {
	OnJobStarted  func(threadID, jobID string)
	OnJobProgress func(threadID, jobID string, ev adapters.ProgressEvent)
	OnJobFinished func(info FinishInfo)
}

// Options wires an Engine. Log, Projects, and Runners are required.
type Options struct {
	Log      *eventlog.Store
	Projects *project.Store
	Runners  map[models.Tool]adapters.Runner
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	// LogDir holds per-job logs under LogDir/job/<id>.log.
	LogDir string

	// Timeout is the per-run adapter deadline, defaulting to
	// adapters.CLITimeout.
	Timeout time.Duration
}

// Engine is the job coordinator.
type Engine struct {
	log      *eventlog.Store
	projects *project.Store
	runners  map[models.Tool]adapters.Runner
	logger   *slog.Logger
	metrics  *observability.Metrics
	logDir   string
	timeout  time.Duration

	// opMu serializes operator mutations so a dedup check and its
	// JobEnqueued append are atomic.
	opMu sync.Mutex

	mu      sync.Mutex
	running int
	active  map[string]bool
	looping bool

	hooksMu sync.RWMutex
	hooks   Hooks
}

// New builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Log == nil || opts.Projects == nil {
		return nil, fmt.Errorf("engine requires an event log and a project store")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(nil)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = adapters.CLITimeout
	}
	if opts.Runners == nil {
		opts.Runners = adapters.DefaultRunners(opts.Logger)
	}
	return &Engine{
		log:      opts.Log,
		projects: opts.Projects,
		runners:  opts.Runners,
		logger:   opts.Logger.With("component", "engine"),
		metrics:  opts.Metrics,
		logDir:   opts.LogDir,
		timeout:  opts.Timeout,
		active:   make(map[string]bool),
	}, nil
}

// SetHooks installs the lifecycle callbacks.
func (e *Engine) SetHooks(h Hooks) {
	e.hooksMu.Lock()
	e.hooks = h
	e.hooksMu.Unlock()
}

func (e *Engine) currentHooks() Hooks {
	e.hooksMu.RLock()
	defer e.hooksMu.RUnlock()
	return e.hooks
}

// Kick nudges the run loop. Edge-triggered and idempotent: when the loop
// is already advancing the call returns immediately, and the loop re-kicks
// itself after each finished job.
func (e *Engine) Kick() {
	e.mu.Lock()
	if e.looping {
		e.mu.Unlock()
		return
	}
	e.looping = true
	e.mu.Unlock()
	go e.loop()
}

func (e *Engine) loop() {
	for {
		e.mu.Lock()
		if e.running >= scheduler.GlobalMaxRunning {
			e.looping = false
			e.mu.Unlock()
			return
		}
		threadID, jobID, ok := scheduler.PickNext(e.log.State(), e.active)
		if !ok {
			e.looping = false
			e.mu.Unlock()
			return
		}
		e.running++
		e.active[threadID] = true
		e.mu.Unlock()

		go func(tid, jid string) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("job processing panicked", "thread_id", tid, "job_id", jid, "panic", r)
				}
				e.mu.Lock()
				e.running--
				delete(e.active, tid)
				e.mu.Unlock()
				e.Kick()
			}()
			e.processJob(tid, jid)
		}(threadID, jobID)
	}
}

// WaitForIdle blocks until no job is running and every queue is empty, or
// the context is done.
func (e *Engine) WaitForIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		e.mu.Lock()
		busy := e.running > 0 || e.looping
		e.mu.Unlock()
		st := e.log.State()
		if !busy && st.RunningCount() == 0 && st.QueuedTotal() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) processJob(threadID, jobID string) {
	if _, err := e.log.Append(models.EventJobStarted, models.JobStartedPayload{
		ThreadID: threadID,
		JobID:    jobID,
	}); err != nil {
		e.logger.Error("failed to record job start", "job_id", jobID, "error", err)
		return
	}
	e.metrics.EventsAppended.WithLabelValues(string(models.EventJobStarted)).Inc()
	e.metrics.JobsRunning.Inc()
	defer e.metrics.JobsRunning.Dec()

	hooks := e.currentHooks()
	if hooks.OnJobStarted != nil {
		e.callHook(jobID, func() { hooks.OnJobStarted(threadID, jobID) })
	}

	st := e.log.State()
	sess, okSess := st.Session(threadID)
	job, okJob := st.Job(jobID)
	if !okSess || !okJob {
		e.failJob(threadID, jobID, fault.CodeAdapterParse,
			"internal: session or job missing after start", nil)
		return
	}

	proj, ok := e.projects.Get(sess.ProjectName)
	if !ok {
		e.failJob(threadID, jobID, fault.CodeProjectNotFound,
			fmt.Sprintf("project %q is not configured", sess.ProjectName), nil)
		return
	}

	runner, ok := e.runners[job.Tool]
	if !ok {
		e.failJob(threadID, jobID, fault.CodeToolNotEnabled,
			fmt.Sprintf("no adapter for tool %q", job.Tool), nil)
		return
	}

	resumeKey := sess.AdapterState[job.Tool.ResumeStateKey()]
	e.logger.Info("job started",
		"thread_id", threadID, "job_id", jobID, "tool", job.Tool,
		"attempt", job.Attempt, "resuming", resumeKey != "")

	start := time.Now()
	res := runner.Run(context.Background(), adapters.Input{
		Prompt:    job.Prompt,
		Dir:       proj.Path,
		Timeout:   e.timeout,
		ResumeKey: resumeKey,
		ExtraArgs: proj.DefaultArgs[job.Tool],
		OnProgress: func(ev adapters.ProgressEvent) {
			h := e.currentHooks()
			if h.OnJobProgress != nil {
				e.callHook(jobID, func() { h.OnJobProgress(threadID, jobID, ev) })
			}
		},
	})
	e.metrics.JobDuration.WithLabelValues(string(job.Tool)).Observe(time.Since(start).Seconds())

	e.writeJobLog(jobID, res)

	if res.OK {
		excerpt := truncateRunes(res.AssistantText, MaxResultExcerptChars)
		if _, err := e.log.Append(models.EventJobCompleted, models.JobCompletedPayload{
			ThreadID:      threadID,
			JobID:         jobID,
			ResultExcerpt: excerpt,
			AdapterState:  res.AdapterState,
		}); err != nil {
			e.logger.Error("failed to record job completion", "job_id", jobID, "error", err)
			return
		}
		e.metrics.EventsAppended.WithLabelValues(string(models.EventJobCompleted)).Inc()
		e.metrics.JobsFinished.WithLabelValues(string(job.Tool), string(models.JobSuccess)).Inc()
		e.logger.Info("job completed", "thread_id", threadID, "job_id", jobID,
			"duration", time.Since(start).Round(time.Millisecond))

		h := e.currentHooks()
		if h.OnJobFinished != nil {
			e.callHook(jobID, func() {
				h.OnJobFinished(FinishInfo{
					ThreadID:      threadID,
					JobID:         jobID,
					State:         models.JobSuccess,
					ResultExcerpt: excerpt,
				})
			})
		}
		return
	}

	e.failJob(threadID, jobID, res.ErrorCode, res.ErrorMessage, res.AdapterState)
}

func (e *Engine) failJob(threadID, jobID string, code fault.Code, message string, adapterState map[string]string) {
	if _, err := e.log.Append(models.EventJobFailed, models.JobFailedPayload{
		ThreadID:     threadID,
		JobID:        jobID,
		ErrorCode:    string(code),
		ErrorMessage: message,
		AdapterState: adapterState,
	}); err != nil {
		e.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
		return
	}
	e.metrics.EventsAppended.WithLabelValues(string(models.EventJobFailed)).Inc()

	tool := ""
	if job, ok := e.log.State().Job(jobID); ok {
		tool = string(job.Tool)
	}
	e.metrics.JobsFinished.WithLabelValues(tool, string(models.JobFailed)).Inc()
	e.logger.Warn("job failed", "thread_id", threadID, "job_id", jobID,
		"error_code", code, "error", message)

	h := e.currentHooks()
	if h.OnJobFinished != nil {
		e.callHook(jobID, func() {
			h.OnJobFinished(FinishInfo{
				ThreadID:     threadID,
				JobID:        jobID,
				State:        models.JobFailed,
				ErrorCode:    string(code),
				ErrorMessage: message,
			})
		})
	}
}

// callHook runs a hook, logging and swallowing panics.
func (e *Engine) callHook(jobID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("hook panicked", "job_id", jobID, "panic", r)
		}
	}()
	fn()
}

// writeJobLog persists the captured output of a run to
// logs/job/<job_id>.log. Failures here are logged but never fail the job:
// the authoritative record is the event log.
func (e *Engine) writeJobLog(jobID string, res adapters.Result) {
	if e.logDir == "" {
		return
	}
	dir := filepath.Join(e.logDir, "job")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.logger.Error("create job log dir", "error", err)
		return
	}
	var sb strings.Builder
	for _, line := range res.StdoutLines {
		sb.WriteString("[stdout] ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range res.StderrLines {
		sb.WriteString("[stderr] ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range res.DiagnosticLogs {
		sb.WriteString("[diagnostic] ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	path := filepath.Join(dir, jobID+".log")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		e.logger.Error("write job log", "job_id", jobID, "error", err)
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
