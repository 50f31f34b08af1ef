package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/pkg/models"
)

// transientHints mark a failed run as worth one automatic retry. Matched
// case-insensitively against the combined stdout/stderr/diagnostic text.
var transientHints = []string{"quota", "retry", "rate limit", "429", "temporarily unavailable"}

// Cursor drives the cursor-agent CLI. Its stream opens with an init event
// carrying the session_id, carries assistant text in message events, and
// must close with a result event for the run to count as complete.
type Cursor struct {
	Bin    string
	logger *slog.Logger
}

// NewCursor returns the production cursor adapter.
func NewCursor(logger *slog.Logger) *Cursor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cursor{Bin: "cursor-agent", logger: logger.With("adapter", "cursor")}
}

// Tool implements Runner.
func (c *Cursor) Tool() models.Tool { return models.ToolCursor }

func (c *Cursor) buildArgs(in Input) []string {
	args := []string{"-p", in.Prompt, "--output-format", "stream-json"}
	args = append(args, in.ExtraArgs...)
	if in.ResumeKey != "" {
		args = append(args, "--resume", in.ResumeKey)
	}
	return args
}

// Run implements Runner. A nonzero exit whose output carries a transient
// hint (quota exhaustion, rate limiting) is retried exactly once with the
// same argv; the other adapters never auto-retry.
func (c *Cursor) Run(ctx context.Context, in Input) Result {
	res := c.runOnce(ctx, in)
	if res.OK || res.ErrorCode != fault.CodeCLIExitNonzero {
		return res
	}
	if !hasTransientHint(res) {
		return res
	}
	c.logger.Info("transient failure hint, retrying once", "error", res.ErrorMessage)
	return c.runOnce(ctx, in)
}

func (c *Cursor) runOnce(ctx context.Context, in Input) Result {
	var diagnostics []string
	onStdout := func(line string) {
		if !looksLikeJSONObject(line) {
			diagnostics = append(diagnostics, line)
			return
		}
		m, ok := parseObject(line)
		if !ok {
			return
		}
		c.emitProgress(m, in.OnProgress)
	}

	proc := runProcess(ctx, c.Bin, c.buildArgs(in), in.Dir, in.Timeout, onStdout)
	base := Result{
		StdoutLines:    proc.stdout,
		StderrLines:    proc.stderr,
		DiagnosticLogs: diagnostics,
	}

	if proc.timedOut {
		return failure(fault.CodeCLITimeout, fmt.Sprintf("cursor-agent did not finish within %s", in.Timeout), base)
	}
	if proc.err != nil {
		return failure(fault.CodeCLIExitNonzero, proc.err.Error(), base)
	}

	out := parseCursorOutput(proc.stdout)
	if out.parsed == 0 && out.parseFails > 0 {
		return failure(fault.CodeAdapterParse,
			fmt.Sprintf("no parseable events in %d stream lines", out.parseFails), base)
	}
	if !out.sawResult {
		return failure(fault.CodeAdapterMissingResult, "stream ended without a result event", base)
	}
	if out.status != "success" {
		return failure(fault.CodeCLIExitNonzero, fmt.Sprintf("tool reported status %q", out.status), base)
	}
	if out.sessionKey == "" {
		return failure(fault.CodeAdapterSessionKeyMissing, "stream carried no session_id", base)
	}

	base.OK = true
	base.AssistantText = out.text
	base.AdapterState = map[string]string{"session_id": out.sessionKey}
	return base
}

func (c *Cursor) emitProgress(m map[string]any, hook func(ProgressEvent)) {
	t, _ := getString(m, "type")
	if t != "message" {
		return
	}
	if role, _ := getString(m, "role"); role != "assistant" {
		return
	}
	if chunk := cursorMessageText(m); chunk != "" {
		safeEmit(c.logger, hook, TextProgress(chunk))
	}
}

type cursorOutput struct {
	text       string
	sessionKey string
	status     string
	sawResult  bool
	parsed     int
	parseFails int
}

func parseCursorOutput(lines []string) cursorOutput {
	var out cursorOutput
	var acc textAccumulator
	for _, line := range lines {
		if !looksLikeJSONObject(line) {
			continue
		}
		m, ok := parseObject(line)
		if !ok {
			out.parseFails++
			continue
		}
		out.parsed++

		switch t, _ := getString(m, "type"); t {
		case "init":
			if sid, ok := getString(m, "session_id"); ok && sid != "" {
				out.sessionKey = sid
			}
		case "message":
			if role, _ := getString(m, "role"); role == "assistant" {
				acc.add(cursorMessageText(m))
			}
		case "result":
			if status, ok := getString(m, "status"); ok {
				out.status = status
				out.sawResult = true
			}
		}
	}
	out.text = acc.String()
	return out
}

// cursorMessageText extracts the text of an assistant message: the delta
// field when present, otherwise the first string among the usual carrier
// fields.
func cursorMessageText(m map[string]any) string {
	if delta, ok := getString(m, "delta"); ok {
		return delta
	}
	for _, key := range []string{"text", "content", "message", "response", "delta"} {
		if v, ok := getString(m, key); ok && v != "" {
			return v
		}
	}
	return ""
}

func hasTransientHint(res Result) bool {
	var sb strings.Builder
	for _, lines := range [][]string{res.StdoutLines, res.StderrLines, res.DiagnosticLogs} {
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(res.ErrorMessage)
	combined := strings.ToLower(sb.String())
	for _, hint := range transientHints {
		if strings.Contains(combined, hint) {
			return true
		}
	}
	return false
}
