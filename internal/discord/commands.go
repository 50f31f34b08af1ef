package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/pkg/models"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	toolChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.AllTools))
	for _, t := range models.AllTools {
		toolChoices = append(toolChoices, &discordgo.ApplicationCommandOptionChoice{
			Name: string(t), Value: string(t),
		})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "project",
			Description: "Manage projects",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "create",
					Description: "Register a project directory",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Project name", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "path", Description: "Absolute path", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "tools", Description: "Comma-separated tools", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "default_tool", Description: "Default tool", Required: false, Choices: toolChoices},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List projects",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show one project's configuration",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Project name", Required: true},
					},
				},
			},
		},
		{
			Name:        "start",
			Description: "Start a session thread for a project",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "project", Description: "Project name", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "tool", Description: "Tool override", Required: false, Choices: toolChoices},
			},
		},
		{
			Name:        "sessions",
			Description: "List sessions",
		},
		{
			Name:        "status",
			Description: "Show this session's status",
		},
		{
			Name:        "tool",
			Description: "Switch this session's tool",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Tool", Required: true, Choices: toolChoices},
			},
		},
		{
			Name:        "retry",
			Description: "Retry this session's last failed job",
		},
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) respond(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: truncateMessage(content)},
	})
	if err != nil {
		b.logger.Error("interaction respond failed", "error", err)
	}
}

func (b *Bot) handleInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if !b.isOwner(interactionUserID(i)) {
		b.respond(i, "🚫 `E_OWNER_ONLY` only the configured owner can use this bot")
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "project":
		b.handleProject(i, data)
	case "start":
		b.handleStart(i, data)
	case "sessions":
		b.handleSessions(i)
	case "status":
		b.handleStatus(i)
	case "tool":
		b.handleTool(i, data)
	case "retry":
		b.handleRetry(i)
	}
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}

func (b *Bot) handleProject(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	switch sub.Name {
	case "create":
		name := optionString(sub.Options, "name")
		path := optionString(sub.Options, "path")
		var tools []models.Tool
		for _, raw := range strings.Split(optionString(sub.Options, "tools"), ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			t, ok := models.ParseTool(raw)
			if !ok {
				b.respond(i, fmt.Sprintf("❌ `%s` unknown tool %q", fault.CodeInvalidToolset, raw))
				return
			}
			tools = append(tools, t)
		}
		defaultTool := models.Tool(optionString(sub.Options, "default_tool"))
		if defaultTool == "" && len(tools) > 0 {
			defaultTool = tools[0]
		}
		p, err := b.engine.CreateProject(name, path, tools, defaultTool, nil)
		if err != nil {
			b.respond(i, formatError(err))
			return
		}
		b.respond(i, fmt.Sprintf("✅ project **%s** → `%s` (tools: %s, default: %s)",
			p.Name, p.Path, joinTools(p.EnabledTools), p.DefaultTool))

	case "list":
		projects := b.engine.Projects()
		if len(projects) == 0 {
			b.respond(i, "no projects configured")
			return
		}
		var sb strings.Builder
		for _, p := range projects {
			fmt.Fprintf(&sb, "• **%s** `%s` (%s)\n", p.Name, p.Path, joinTools(p.EnabledTools))
		}
		b.respond(i, sb.String())

	case "status":
		p, err := b.engine.Project(optionString(sub.Options, "name"))
		if err != nil {
			b.respond(i, formatError(err))
			return
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "**%s**\npath: `%s`\ntools: %s (default: %s)\n",
			p.Name, p.Path, joinTools(p.EnabledTools), p.DefaultTool)
		for tool, args := range p.DefaultArgs {
			fmt.Fprintf(&sb, "args[%s]: `%s`\n", tool, strings.Join(args, " "))
		}
		b.respond(i, sb.String())
	}
}

func (b *Bot) handleStart(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	projectName := optionString(data.Options, "project")
	toolName := optionString(data.Options, "tool")

	if _, err := b.engine.Project(projectName); err != nil {
		b.respond(i, formatError(err))
		return
	}

	thread, err := b.session.ThreadStart(i.ChannelID, "session: "+projectName,
		discordgo.ChannelTypeGuildPublicThread, 1440)
	if err != nil {
		b.respond(i, formatError(fault.Wrap(fault.CodeThreadAccessFailed, "could not create thread", err)))
		return
	}

	sess, created, err := b.engine.StartSession(thread.ID, projectName, toolName)
	if err != nil {
		b.respond(i, formatError(err))
		return
	}
	if !created {
		b.respond(i, fmt.Sprintf("session already exists in <#%s>", sess.ThreadID))
		return
	}
	b.respond(i, fmt.Sprintf("✅ session started in <#%s> (project: %s, tool: %s)",
		thread.ID, projectName, sess.Tool))
	b.send(thread.ID, fmt.Sprintf("Ready. Tool: **%s**. Send a message to run a prompt.", sess.Tool))
}

func (b *Bot) handleSessions(i *discordgo.InteractionCreate) {
	sessions := b.engine.Sessions()
	if len(sessions) == 0 {
		b.respond(i, "no sessions")
		return
	}
	var sb strings.Builder
	for _, s := range sessions {
		state := "idle"
		if s.RunningJobID != "" {
			state = "running"
		} else if len(s.Queue) > 0 {
			state = fmt.Sprintf("%d queued", len(s.Queue))
		}
		fmt.Fprintf(&sb, "• <#%s> %s/%s — %s\n", s.ThreadID, s.ProjectName, s.Tool, state)
	}
	b.respond(i, sb.String())
}

// requireSession resolves the invoking thread's session, responding with a
// routing error when the command was used outside a managed thread.
func (b *Bot) requireSession(i *discordgo.InteractionCreate) (string, bool) {
	threadID := i.ChannelID
	if _, ok := b.engine.State().Session(threadID); !ok {
		b.respond(i, fmt.Sprintf("❌ `%s` use this command inside a session thread", fault.CodeNotInManagedThread))
		return "", false
	}
	return threadID, true
}

func (b *Bot) handleStatus(i *discordgo.InteractionCreate) {
	threadID, ok := b.requireSession(i)
	if !ok {
		return
	}
	status, err := b.engine.SessionStatus(threadID)
	if err != nil {
		b.respond(i, formatError(err))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "project: **%s** · tool: **%s** · queued: %d\n",
		status.Session.ProjectName, status.Session.Tool, status.QueueDepth)
	if status.Running != nil {
		fmt.Fprintf(&sb, "running: `%s` (attempt %d)\n", status.Running.ID, status.Running.Attempt)
	}
	if status.Last != nil {
		fmt.Fprintf(&sb, "last: `%s` — %s", status.Last.ID, status.Last.State)
		if status.Last.ErrorCode != "" {
			fmt.Fprintf(&sb, " (`%s`)", status.Last.ErrorCode)
		}
		sb.WriteByte('\n')
	}
	if status.Retryable {
		sb.WriteString("↻ last job can be re-run with /retry\n")
	}
	b.respond(i, sb.String())
}

func (b *Bot) handleTool(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	threadID, ok := b.requireSession(i)
	if !ok {
		return
	}
	name := optionString(data.Options, "name")
	if err := b.engine.SwitchTool(threadID, name); err != nil {
		b.respond(i, formatError(err))
		return
	}
	b.respond(i, fmt.Sprintf("✅ tool switched to **%s** (queued jobs keep their tool)", name))
}

func (b *Bot) handleRetry(i *discordgo.InteractionCreate) {
	threadID, ok := b.requireSession(i)
	if !ok {
		return
	}
	jobID, err := b.engine.Retry(threadID)
	if err != nil {
		b.respond(i, formatError(err))
		return
	}
	b.respond(i, fmt.Sprintf("↻ retrying as `%s`", jobID))
}

func joinTools(tools []models.Tool) string {
	parts := make([]string, len(tools))
	for i, t := range tools {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
