// Package main provides the CLI entry point for Conduit, a single-operator
// code-agent orchestrator: prompts arrive through Discord threads, run
// through the claude/codex/cursor CLIs, and stream their output back.
//
// # Basic Usage
//
// Start the orchestrator:
//
//	conduit serve --config conduit.yaml
//
// Inspect durable state without starting:
//
//	conduit status --config conduit.yaml
//
// # Environment Variables
//
// conduit.yaml supports ${VAR} expansion, so secrets are typically
// provided via:
//
//   - DISCORD_BOT_TOKEN: bot token referenced from the config file
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/conduit/internal/adapters"
	"github.com/haasonsaas/conduit/internal/config"
	"github.com/haasonsaas/conduit/internal/discord"
	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/internal/eventlog"
	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/internal/project"
	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "conduit",
		Short:         "Single-operator code-agent orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "conduit.yaml", "path to configuration file")

	root.AddCommand(newServeCommand(), newStatusCommand(), newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("conduit %s (%s, built %s)\n", version, commit, date)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(observability.LogConfig{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			})

			store, err := eventlog.Open(cfg.StateDir, eventlog.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer store.Close()

			marked, err := store.Recover()
			if err != nil {
				return err
			}
			if len(marked) > 0 {
				logger.Warn("jobs interrupted by previous crash; use /retry to re-run",
					"count", len(marked))
			}

			projects, err := project.Load(cfg.ProjectsFile())
			if err != nil {
				return err
			}
			if projects.OwnerID() == "" {
				if err := projects.SetOwnerID(cfg.Discord.OwnerID); err != nil {
					return err
				}
			}

			eng, err := engine.New(engine.Options{
				Log:      store,
				Projects: projects,
				Runners:  adapters.DefaultRunners(logger),
				Logger:   logger,
				Metrics:  observability.NewMetrics(nil),
				LogDir:   cfg.LogDir,
			})
			if err != nil {
				return err
			}

			bot, err := discord.New(discord.Config{
				Token:   cfg.Discord.Token,
				OwnerID: cfg.Discord.OwnerID,
				AppID:   cfg.Discord.AppID,
				GuildID: cfg.Discord.GuildID,
				Logger:  logger,
			}, eng)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := bot.Start(ctx); err != nil {
				return err
			}
			eng.Kick() // resume any queued work restored from the log

			logger.Info("conduit running", "version", version, "state_dir", cfg.StateDir)
			<-ctx.Done()

			logger.Info("shutting down, waiting for running jobs")
			drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			defer cancel()
			if err := eng.WaitForIdle(drainCtx); err != nil {
				logger.Warn("shutdown before idle", "error", err)
			}
			return bot.Stop()
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize durable state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "text"})

			store, err := eventlog.Open(cfg.StateDir, eventlog.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer store.Close()

			st := store.State()
			sessions, jobs := st.Counts()
			fmt.Printf("seq: %d\nsessions: %d\njobs: %d (running: %d, queued: %d)\n",
				st.Seq(), sessions, jobs, st.RunningCount(), st.QueuedTotal())
			for _, s := range st.Sessions() {
				fmt.Printf("  %s project=%s tool=%s queued=%d running=%q\n",
					s.ThreadID, s.ProjectName, s.Tool, len(s.Queue), s.RunningJobID)
			}
			return nil
		},
	}
}
