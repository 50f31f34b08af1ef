package models

// Tool identifies one of the supported coding-agent CLIs.
type Tool string

const (
	ToolClaude Tool = "claude"
	ToolCodex  Tool = "codex"
	ToolCursor Tool = "cursor"
)

// AllTools lists every supported tool in canonical order.
var AllTools = []Tool{ToolClaude, ToolCodex, ToolCursor}

// ParseTool converts a user-supplied string into a Tool.
func ParseTool(s string) (Tool, bool) {
	switch Tool(s) {
	case ToolClaude, ToolCodex, ToolCursor:
		return Tool(s), true
	}
	return "", false
}

// Valid reports whether t names a supported tool.
func (t Tool) Valid() bool {
	_, ok := ParseTool(string(t))
	return ok
}

// ResumeStateKey returns the adapter-state key under which the tool
// stores its conversation-continuation handle. The namespaces are
// distinct: codex threads are not claude/cursor sessions.
func (t Tool) ResumeStateKey() string {
	if t == ToolCodex {
		return "thread_id"
	}
	return "session_id"
}
