package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/pkg/models"
)

// Codex drives the codex CLI. Its stream wraps items ("agent_message",
// "reasoning", "command_execution") in item.started/item.completed
// envelopes, and conversations continue via a thread_id rather than a
// session_id.
type Codex struct {
	Bin    string
	logger *slog.Logger
}

// NewCodex returns the production codex adapter.
func NewCodex(logger *slog.Logger) *Codex {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codex{Bin: "codex", logger: logger.With("adapter", "codex")}
}

// Tool implements Runner.
func (c *Codex) Tool() models.Tool { return models.ToolCodex }

func (c *Codex) buildArgs(in Input) []string {
	args := []string{"exec", "--dangerously-bypass-approvals-and-sandbox"}
	if in.ResumeKey != "" {
		args = append(args, "resume", in.ResumeKey)
	}
	args = append(args, "--json")
	args = append(args, in.ExtraArgs...)
	return append(args, in.Prompt)
}

// Run implements Runner.
func (c *Codex) Run(ctx context.Context, in Input) Result {
	var diagnostics []string
	var lastText string
	onStdout := func(line string) {
		if !looksLikeJSONObject(line) {
			diagnostics = append(diagnostics, line)
			return
		}
		m, ok := parseObject(line)
		if !ok {
			return
		}
		c.emitProgress(m, in.OnProgress, &lastText)
	}

	proc := runProcess(ctx, c.Bin, c.buildArgs(in), in.Dir, in.Timeout, onStdout)
	base := Result{
		StdoutLines:    proc.stdout,
		StderrLines:    proc.stderr,
		DiagnosticLogs: diagnostics,
	}

	if proc.timedOut {
		return failure(fault.CodeCLITimeout, fmt.Sprintf("codex did not finish within %s", in.Timeout), base)
	}
	if proc.err != nil {
		return failure(fault.CodeCLIExitNonzero, proc.err.Error(), base)
	}

	text, threadKey, parsed, parseFails := parseCodexOutput(proc.stdout)
	if parsed == 0 && parseFails > 0 {
		return failure(fault.CodeAdapterParse,
			fmt.Sprintf("no parseable events in %d stream lines", parseFails), base)
	}
	if threadKey == "" {
		return failure(fault.CodeAdapterSessionKeyMissing, "stream carried no thread_id", base)
	}

	base.OK = true
	base.AssistantText = text
	base.AdapterState = map[string]string{"thread_id": threadKey}
	return base
}

// emitProgress translates one stream event into a progress emission.
// item.started and item.completed carry the same agent_message text, so
// lastText suppresses the consecutive duplicate the way the post-exit
// accumulator does.
func (c *Codex) emitProgress(m map[string]any, hook func(ProgressEvent), lastText *string) {
	t, _ := getString(m, "type")
	if t != "item.started" && t != "item.completed" {
		return
	}
	item, ok := getObject(m, "item")
	if !ok {
		return
	}
	switch it, _ := getString(item, "type"); it {
	case "agent_message":
		if text, ok := getString(item, "text"); ok && text != "" && text != *lastText {
			*lastText = text
			safeEmit(c.logger, hook, TextProgress(text))
		}
	case "reasoning":
		safeEmit(c.logger, hook, ActivityProgress(ActivityThinking, "reasoning"))
	case "command_execution":
		command, _ := getString(item, "command")
		safeEmit(c.logger, hook, ActivityProgress(ActivityTool, commandLabel(command)))
	}
}

// commandLabel derives a short activity label from an executed command
// line: shell wrappers collapse to "bash", anything else uses the
// basename of the first token.
func commandLabel(command string) string {
	if strings.Contains(command, "/bin/zsh") || strings.Contains(command, "/bin/bash") {
		return "bash"
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "tool"
	}
	base := filepath.Base(fields[0])
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "tool"
	}
	return base
}

// parseCodexOutput accumulates agent_message text with consecutive
// duplicate suppression (item.started and item.completed both carry the
// text) and extracts the last observed thread_id, from thread.started
// events or from any event carrying one.
func parseCodexOutput(lines []string) (text, threadKey string, parsed, parseFails int) {
	var acc textAccumulator
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

		if tid, ok := getString(m, "thread_id"); ok && tid != "" {
			threadKey = tid
		}

		t, _ := getString(m, "type")
		if t != "item.started" && t != "item.completed" {
			continue
		}
		item, ok := getObject(m, "item")
		if !ok {
			continue
		}
		if it, _ := getString(item, "type"); it == "agent_message" {
			if chunk, ok := getString(item, "text"); ok {
				acc.add(chunk)
			}
		}
	}
	return acc.String(), threadKey, parsed, parseFails
}
