package models

import "time"

// ProjectConfig describes a registered project: a working directory the
// coding-agent CLIs run in, plus which tools are enabled for it.
type ProjectConfig struct {
	Name string `json:"name"`

	// Path is the absolute filesystem path of the project checkout.
	// It must exist when the project is created.
	Path string `json:"path"`

	// EnabledTools is the subset of tools usable in this project.
	EnabledTools []Tool `json:"enabled_tools"`

	// DefaultTool is used for new sessions that do not name a tool.
	// Always a member of EnabledTools.
	DefaultTool Tool `json:"default_tool"`

	// DefaultArgs holds extra argv entries per tool, passed verbatim to
	// every invocation. Never interpreted by a shell.
	DefaultArgs map[Tool][]string `json:"default_args,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolEnabled reports whether the project allows the given tool.
func (p *ProjectConfig) ToolEnabled(t Tool) bool {
	for _, e := range p.EnabledTools {
		if e == t {
			return true
		}
	}
	return false
}

// OwnerConfig is the on-disk shape of config.json: the single operator's
// identity plus the project registry.
type OwnerConfig struct {
	Version  int                      `json:"version"`
	OwnerID  string                   `json:"owner_id"`
	Projects map[string]ProjectConfig `json:"projects"`
}
