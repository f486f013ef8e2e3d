package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gonkalabs/shardguard/internal/config"
)

// app carries state shared by the subcommands.
type app struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:     "shardguard",
		Version: version,
		Short:   "Split prompts into sub-tasks without exposing sensitive values",
		Long: `shardguard masks secrets and personal data in a prompt, asks a planning
model to split the sanitized prompt into sub-prompts, and restores each value
only for the sub-prompt that references it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel()})))
		},
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "TOML config file (default $SHARDGUARD_CONFIG)")

	root.AddCommand(
		newPlanCmd(a),
		newServeCmd(a),
		newDetectorsCmd(a),
		newToolsCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the shardguard version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// logLevel reads SHARDGUARD_LOG_LEVEL (debug, info, warn, error).
func logLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(os.Getenv("SHARDGUARD_LOG_LEVEL")))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (a *app) loadConfig() (*config.Cfg, error) {
	return config.Load(a.configPath)
}

// openAudit returns the audit logger: JSON lines appended to path, or the
// default logger when path is empty.
func openAudit(path string) (*slog.Logger, func() error, error) {
	if path == "" {
		return slog.Default(), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("audit log: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, nil)).With("component", "audit"), f.Close, nil
}
