package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"slidecast/internal/app"
	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/renderer/publisher"
	"slidecast/internal/storage"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var jobPath string
	var outPath string
	var withSidecars bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a job file to an MP4",
		Example: `  slidectl render --job trip.yaml --out trip.mp4
  cat job.json | slidectl render --job - --out out.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := loadJob(jobPath)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = job.DownloadFilename()
			}

			cfg := ctx.config()
			log := ctx.logger(cmd.ErrOrStderr())
			opts := app.Options{Config: cfg, LocalFiles: true, Log: log}

			pub := publisher.Multi{publisher.File{Dest: outPath}}
			if withSidecars {
				cleanup, err := attachSidecars(cmd, &opts)
				if err != nil {
					return err
				}
				defer cleanup()
				pub = append(pub, app.Sidecars(opts)...)
			}

			res, pubErr := app.NewProcessor(opts).Process(cmd.Context(), job, pub)
			return reportRender(cmd, res, pubErr, outPath)
		},
	}

	cmd.Flags().StringVarP(&jobPath, "job", "j", "", "Job file (YAML or JSON, - for stdin)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (default <title>_<job id>.mp4)")
	cmd.Flags().BoolVar(&withSidecars, "publish", false, "Also publish events and uploads configured in the environment")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

// attachSidecars connects the Redis and storage services configured in the
// environment.
func attachSidecars(cmd *cobra.Command, opts *app.Options) (func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if opts.Config.RedisAddr != "" {
		rdb, err := app.OpenRedis(cmd.Context(), opts.Config.RedisAddr)
		if err != nil {
			return cleanup, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		opts.RDB = rdb
	}

	sp, err := storage.NewProvider(cmd.Context(), opts.Config.Storage)
	if err != nil {
		cleanup()
		return func() {}, err
	}
	if sp != nil {
		opts.SP = sp
	}
	return cleanup, nil
}

func reportRender(cmd *cobra.Command, res models.RenderResult, pubErr error, outPath string) error {
	if !res.Succeeded() {
		if tail := res.Stderr(); tail != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "ffmpeg stderr (tail):")
			fmt.Fprintln(cmd.ErrOrStderr(), tail)
		}
		return res.Err
	}
	if pubErr != nil {
		return errors.Wrap(pubErr, "slidectl.render", "render succeeded but publishing failed")
	}

	abs, err := filepath.Abs(outPath)
	if err != nil {
		abs = outPath
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d bytes\t%s\n", res.JobID, abs, res.Size, res.Duration.Round(time.Millisecond))
	return nil
}
