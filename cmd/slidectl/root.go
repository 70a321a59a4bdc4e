package main

import (
	"io"

	"github.com/spf13/cobra"

	"slidecast/internal/config"
	"slidecast/internal/pkg/logger"
)

// commandContext carries root flags to subcommands.
type commandContext struct {
	ffmpegBin string
	workRoot  string
	logLevel  string
	logFormat string
}

// config returns the environment configuration with flag overrides applied.
func (c *commandContext) config() config.Config {
	cfg := config.Load()
	if c.ffmpegBin != "" {
		cfg.FFmpegBin = c.ffmpegBin
	}
	if c.workRoot != "" {
		cfg.WorkRoot = c.workRoot
	}
	return cfg
}

// logger writes to the command's stderr so stdout stays machine-readable.
func (c *commandContext) logger(w io.Writer) *logger.Logger {
	return logger.New(logger.Config{
		Level:       c.logLevel,
		Format:      c.logFormat,
		Output:      w,
		ServiceName: "slidectl",
	})
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "slidectl",
		Short:         "Render slideshow videos with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.ffmpegBin, "ffmpeg", "", "ffmpeg binary (default $FFMPEG_BIN or ffmpeg)")
	flags.StringVar(&ctx.workRoot, "work-root", "", "Directory for per-job workspaces (default $WORK_ROOT or the system temp dir)")
	flags.StringVar(&ctx.logLevel, "log-level", config.Env("LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")
	flags.StringVar(&ctx.logFormat, "log-format", config.Env("LOG_FORMAT", "text"), "Log format: text or json")

	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newGDriveAuthCommand())

	return rootCmd
}
