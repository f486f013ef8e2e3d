package main

import (
	"github.com/spf13/cobra"
)

func newDetectorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detectors",
		Short: "List the configured detectors in the order they run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			san, err := cfg.NewSanitizer()
			if err != nil {
				return err
			}
			renderDetectors(cmd.OutOrStdout(), san)
			return nil
		},
	}
}
