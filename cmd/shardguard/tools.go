package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newToolsCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the dispatch server offers to the planner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Dispatch.URL == "" {
				return errors.New("tools needs SHARDGUARD_DISPATCH_URL or dispatch.url")
			}
			tools, err := loadTools(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"default": cfg.Dispatch.Tool, "tools": tools})
			}
			renderTools(cmd.OutOrStdout(), tools, cfg.Dispatch.Tool)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the catalogue as JSON")
	return cmd
}
