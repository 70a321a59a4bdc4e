package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/app"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var jobPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the ffmpeg invocation for a job without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJob(jobPath)
			if err != nil {
				return err
			}

			cfg := ctx.config()
			prog, err := app.NewProcessor(app.Options{Config: cfg, Log: ctx.logger(cmd.ErrOrStderr())}).Plan(job)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(prog)
			}

			argv := append([]string{cfg.FFmpegBin}, prog.Args()...)
			quoted := make([]string, len(argv))
			for i, a := range argv {
				quoted[i] = shellQuote(a)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(quoted, " "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "Job file (YAML or JSON, - for stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the compiled program as JSON")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

// shellQuote single-quotes s when it contains characters a POSIX shell would
// interpret.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()[]{}*?!#~=,:") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
