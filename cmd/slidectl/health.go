package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slidecast/internal/engine"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that ffmpeg is installed and runnable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config()
			st, err := engine.Probe(cmd.Context(), cfg.FFmpegBin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ffmpeg: %s\nfonts_available: %t\n", st.Version, st.FontsAvailable)
			return nil
		},
	}
}
