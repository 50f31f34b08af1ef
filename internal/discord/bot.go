// Package discord is the operator surface: it routes the owner's slash
// commands and thread messages to the engine and streams job progress back
// as message edits.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/haasonsaas/conduit/internal/debounce"
	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/internal/retry"
)

// maxMessageLen is Discord's message content limit.
const maxMessageLen = 2000

// editInterval coalesces streaming progress into at most one edit per
// interval per job.
const editInterval = 1500 * time.Millisecond

// discordSession is the subset of discordgo.Session the bot uses,
// extracted so tests can substitute a fake.
type discordSession interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ThreadStart(channelID, name string, typ discordgo.ChannelType, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Config holds configuration for the bot.
type Config struct {
	// Token is the bot token from the Discord developer portal (required).
	Token string

	// OwnerID is the only user allowed to operate the bot (required).
	OwnerID string

	// AppID is the application ID used for slash-command registration.
	AppID string

	// GuildID scopes command registration to one guild; empty registers
	// globally.
	GuildID string

	// Logger is an optional slog.Logger instance.
	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	if c.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// progressView tracks the streamed progress message for one running job.
type progressView struct {
	channelID string
	messageID string
	activity  string
	preview   strings.Builder
}

// Bot wires the Discord gateway to the engine.
type Bot struct {
	config  Config
	session discordSession
	engine  *engine.Engine
	logger  *slog.Logger

	suppress  *debounce.Suppressor
	coalescer *debounce.Coalescer[string]

	mu    sync.Mutex
	views map[string]*progressView // keyed by job ID
}

// New creates a Bot. The engine's hooks are installed on Start.
func New(config Config, eng *engine.Engine) (*Bot, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	b := &Bot{
		config:   config,
		engine:   eng,
		logger:   config.Logger.With("component", "discord"),
		suppress: debounce.NewSuppressor(),
		views:    make(map[string]*progressView),
	}
	b.coalescer = debounce.NewCoalescer[string](editInterval, b.flushEdit)
	return b, nil
}

// Start connects to the gateway, registers commands, and installs the
// engine hooks.
func (b *Bot) Start(ctx context.Context) error {
	if b.session == nil {
		dg, err := discordgo.New("Bot " + b.config.Token)
		if err != nil {
			return fmt.Errorf("create discord session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
		b.session = dg
	}

	b.session.AddHandler(b.handleMessageCreate)
	b.session.AddHandler(b.handleInteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	if b.config.AppID != "" {
		if _, err := b.session.ApplicationCommandBulkOverwrite(b.config.AppID, b.config.GuildID, commandDefinitions()); err != nil {
			b.logger.Error("slash command registration failed", "error", err)
		}
	}

	b.engine.SetHooks(engine.Hooks{
		OnJobStarted:  b.onJobStarted,
		OnJobProgress: b.onJobProgress,
		OnJobFinished: b.onJobFinished,
	})

	b.logger.Info("discord surface started", "owner_id", b.config.OwnerID)
	return nil
}

// Stop disconnects from the gateway.
func (b *Bot) Stop() error {
	b.coalescer.Stop()
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

// isOwner reports whether the user may operate the bot.
func (b *Bot) isOwner(userID string) bool {
	return userID == b.config.OwnerID
}

// handleMessageCreate treats any non-command message in a managed session
// thread as a prompt to enqueue.
func (b *Bot) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	threadID := m.ChannelID
	if _, ok := b.engine.State().Session(threadID); !ok {
		return // not a managed thread; stay silent
	}
	if !b.isOwner(m.Author.ID) {
		b.send(threadID, "🚫 `E_OWNER_ONLY` only the configured owner can use this bot")
		return
	}
	prompt := strings.TrimSpace(m.Content)
	if prompt == "" {
		return
	}

	res, err := b.engine.Enqueue(threadID, m.ID, prompt)
	if err != nil {
		b.send(threadID, formatError(err))
		return
	}
	if res.Deduped {
		return
	}
	if status, err := b.engine.SessionStatus(threadID); err == nil && status.QueueDepth > 1 {
		b.send(threadID, fmt.Sprintf("📥 queued (#%d in line)", status.QueueDepth))
	}
}

// send delivers a message with rate-limit retries.
func (b *Bot) send(channelID, content string) *discordgo.Message {
	var msg *discordgo.Message
	result := retry.Do(context.Background(), retry.DefaultConfig(), func() error {
		var err error
		msg, err = b.session.ChannelMessageSend(channelID, content)
		return classifyAPIError(err)
	})
	if result.Err != nil {
		b.logger.Error("message send failed", "channel_id", channelID, "error", result.Err)
		return nil
	}
	return msg
}

// edit updates a message with rate-limit retries.
func (b *Bot) edit(channelID, messageID, content string) {
	result := retry.Do(context.Background(), retry.DefaultConfig(), func() error {
		_, err := b.session.ChannelMessageEdit(channelID, messageID, content)
		return classifyAPIError(err)
	})
	if result.Err != nil {
		b.logger.Error("message edit failed", "channel_id", channelID, "error", result.Err)
	}
}

// classifyAPIError maps discordgo errors onto retry semantics: rate limits
// retry after the server's hint, everything else is permanent.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		wrapped := fault.Wrap(fault.CodeDiscordRateLimit, "rate limited", err)
		return retry.After(wrapped, rl.RetryAfter)
	}
	return retry.Permanent(err)
}

func formatError(err error) string {
	if code := fault.CodeOf(err); code != "" {
		var fe *fault.Error
		errors.As(err, &fe)
		return fmt.Sprintf("❌ `%s` %s", code, fe.Message)
	}
	return "❌ " + err.Error()
}
