package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/pkg/models"
)

// Claude drives the claude CLI in one-shot stream-json mode. Conversations
// continue across invocations via the session_id captured from the stream
// and passed back with -r.
type Claude struct {
	// Bin is the executable name, overridable in tests.
	Bin    string
	logger *slog.Logger
}

// NewClaude returns the production claude adapter.
func NewClaude(logger *slog.Logger) *Claude {
	if logger == nil {
		logger = slog.Default()
	}
	return &Claude{Bin: "claude", logger: logger.With("adapter", "claude")}
}

// Tool implements Runner.
func (c *Claude) Tool() models.Tool { return models.ToolClaude }

func (c *Claude) buildArgs(in Input) []string {
	args := []string{"-p", "--dangerously-skip-permissions", "--verbose", "--output-format", "stream-json"}
	args = append(args, in.ExtraArgs...)
	if in.ResumeKey != "" {
		args = append(args, "-r", in.ResumeKey)
	}
	return append(args, in.Prompt)
}

// Run implements Runner.
func (c *Claude) Run(ctx context.Context, in Input) Result {
	var diagnostics []string
	onStdout := func(line string) {
		if !looksLikeJSONObject(line) {
			diagnostics = append(diagnostics, line)
			return
		}
		m, ok := parseObject(line)
		if !ok {
			return // classified in the post-run pass
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
		return failure(fault.CodeCLITimeout, fmt.Sprintf("claude did not finish within %s", in.Timeout), base)
	}
	if proc.err != nil {
		return failure(fault.CodeCLIExitNonzero, proc.err.Error(), base)
	}

	text, sessionKey, parsed, parseFails := parseClaudeOutput(proc.stdout)
	if parsed == 0 && parseFails > 0 {
		return failure(fault.CodeAdapterParse,
			fmt.Sprintf("no parseable events in %d stream lines", parseFails), base)
	}
	if sessionKey == "" {
		return failure(fault.CodeAdapterSessionKeyMissing, "stream carried no session_id", base)
	}

	base.OK = true
	base.AssistantText = text
	base.AdapterState = map[string]string{"session_id": sessionKey}
	return base
}

// emitProgress turns one streamed event into progress signals.
func (c *Claude) emitProgress(m map[string]any, hook func(ProgressEvent)) {
	t, _ := getString(m, "type")
	if t != "assistant" {
		return
	}
	msg, ok := getObject(m, "message")
	if !ok {
		return
	}
	content, ok := getArray(msg, "content")
	if !ok {
		return
	}
	for _, raw := range content {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch bt, _ := getString(block, "type"); bt {
		case "text":
			if text, ok := getString(block, "text"); ok && text != "" {
				safeEmit(c.logger, hook, TextProgress(text))
			}
		case "tool_use":
			label, _ := getString(block, "name")
			if label == "" {
				label = "tool"
			}
			safeEmit(c.logger, hook, ActivityProgress(ActivityTool, label))
		case "thinking":
			safeEmit(c.logger, hook, ActivityProgress(ActivityThinking, "thinking"))
		}
	}
}

// parseClaudeOutput is the post-exit pass: it accumulates assistant text
// in document order (dropping consecutive duplicate chunks), prefers the
// final result event's text when present, and extracts the last observed
// session_id.
func parseClaudeOutput(lines []string) (text, sessionKey string, parsed, parseFails int) {
	var acc textAccumulator
	finalText := ""
	haveFinal := false

	for _, line := range lines {
		if !looksLikeJSONObject(line) {
			continue
		}
		m, ok := parseObject(line)
		if !ok {
			parseFails++
			continue
		}
		parsed++

		if sid, ok := getString(m, "session_id"); ok && sid != "" {
			sessionKey = sid
		}

		switch t, _ := getString(m, "type"); t {
		case "assistant":
			msg, ok := getObject(m, "message")
			if !ok {
				continue
			}
			content, ok := getArray(msg, "content")
			if !ok {
				continue
			}
			for _, raw := range content {
				block, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if bt, _ := getString(block, "type"); bt == "text" {
					if chunk, ok := getString(block, "text"); ok {
						acc.add(chunk)
					}
				}
			}
		case "result":
			if r, ok := getString(m, "result"); ok {
				finalText = r
				haveFinal = true
			}
		}
	}

	if haveFinal {
		return finalText, sessionKey, parsed, parseFails
	}
	return acc.String(), sessionKey, parsed, parseFails
}
