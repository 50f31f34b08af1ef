// Package adapters bridges the engine to the external coding-agent CLIs.
// Each adapter spawns the tool's process with an explicit argv (never a
// shell), line-buffers its stream-json output, emits progress while the
// process runs, and performs a second full pass after exit to extract the
// assistant text and the tool's conversation-continuation key.
package adapters

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/pkg/models"
)

// CLITimeout is the hard deadline for a single tool invocation. The child
// is SIGKILLed when it expires.
const CLITimeout = 900 * time.Second

// ActivityKind classifies an introspective progress signal.
type ActivityKind string

const (
	ActivityThinking ActivityKind = "thinking"
	ActivityTool     ActivityKind = "tool"
)

// ProgressEvent is a streaming signal emitted while the tool runs.
type ProgressEvent struct {
	// Type is "assistant_text" or "activity".
	Type string `json:"type"`

	// Text carries the visible message fragment for assistant_text.
	Text string `json:"text,omitempty"`

	// Activity and Label describe what the tool is doing for activity
	// events. Consumers may debounce identical consecutive activities.
	Activity ActivityKind `json:"activity,omitempty"`
	Label    string       `json:"label,omitempty"`
}

// TextProgress builds an assistant_text progress event.
func TextProgress(text string) ProgressEvent {
	return ProgressEvent{Type: "assistant_text", Text: text}
}

// ActivityProgress builds an activity progress event.
func ActivityProgress(kind ActivityKind, label string) ProgressEvent {
	return ProgressEvent{Type: "activity", Activity: kind, Label: label}
}

// Input describes a single tool invocation.
type Input struct {
	Prompt string

	// Dir is the project's absolute path, used as the child's cwd.
	Dir string

	// Timeout defaults to CLITimeout when zero.
	Timeout time.Duration

	// ResumeKey continues a prior conversation when non-empty.
	ResumeKey string

	// ExtraArgs are the project's per-tool default args, passed verbatim.
	ExtraArgs []string

	// OnProgress receives streaming signals. Invoked synchronously and
	// best-effort: a panicking hook never aborts the run.
	OnProgress func(ProgressEvent)
}

// Result is the outcome of one tool invocation. Failures are carried in
// the result rather than returned as errors: the coordinator persists
// them as JobFailed events instead of propagating exceptions.
type Result struct {
	OK            bool
	AssistantText string

	// AdapterState holds the extracted resume key under the tool's
	// namespace ("session_id" or "thread_id").
	AdapterState map[string]string

	// DiagnosticLogs are stdout lines that were not JSON objects.
	DiagnosticLogs []string
	StdoutLines    []string
	StderrLines    []string

	ErrorCode    fault.Code
	ErrorMessage string
}

// Runner is the capability every tool adapter provides.
type Runner interface {
	Tool() models.Tool
	Run(ctx context.Context, in Input) Result
}

// DefaultRunners returns the production adapter for every supported tool.
func DefaultRunners(logger *slog.Logger) map[models.Tool]Runner {
	return map[models.Tool]Runner{
		models.ToolClaude: NewClaude(logger),
		models.ToolCodex:  NewCodex(logger),
		models.ToolCursor: NewCursor(logger),
	}
}

// safeEmit invokes the progress hook, swallowing panics. Progress is
// best-effort; a broken consumer must not take the job down with it.
func safeEmit(logger *slog.Logger, hook func(ProgressEvent), ev ProgressEvent) {
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress hook panicked", "panic", r)
		}
	}()
	hook(ev)
}

func failure(code fault.Code, msg string, base Result) Result {
	base.OK = false
	base.ErrorCode = code
	base.ErrorMessage = msg
	return base
}
