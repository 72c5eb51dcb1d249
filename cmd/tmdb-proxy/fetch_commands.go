package main

import (
	"context"
	"fmt"
	"io"

	"github.com/RajVeer36399/tmdb-proxy/pkg/cache"
	"github.com/RajVeer36399/tmdb-proxy/pkg/client"
	"github.com/RajVeer36399/tmdb-proxy/pkg/config"
	"github.com/RajVeer36399/tmdb-proxy/pkg/details"
	"github.com/RajVeer36399/tmdb-proxy/pkg/pagination"
	"github.com/RajVeer36399/tmdb-proxy/pkg/report"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// fetchRun is what one fetch command needs, wired from the configuration.
type fetchRun struct {
	cfg    config.Config
	client *client.Client
	store  cache.Store
	logger zerolog.Logger
	out    io.Writer
}

func newPagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "Fetch the popular collection pages into the cache",
		Long: `Fetch page 1 of the popular collection to learn total_pages, then every
missing page up to min(total_pages, 500, END_PAGE). Cached pages are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFetchRun(cmd, "pages", func(r *fetchRun) error {
				return r.pages(cmd.Context())
			})
		},
	}
}

func newDetailsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "details",
		Short: "Fetch movie details for every movie in the cached pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFetchRun(cmd, "details", func(r *fetchRun) error {
				return r.details(cmd.Context())
			})
		},
	}
}

func newAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Fetch the collection pages, then the movie details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFetchRun(cmd, "all", func(r *fetchRun) error {
				if err := r.pages(cmd.Context()); err != nil {
					return err
				}
				return r.details(cmd.Context())
			})
		},
	}
}

// withFetchRun validates the configuration, opens the locked store and the
// client, and runs fn.
func (c *commandContext) withFetchRun(cmd *cobra.Command, component string, fn func(*fetchRun) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := c.logger(cfg, component)

	tmdb, err := newTMDbClient(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close cache store")
		}
	}()

	logger.Info().
		Str("backend", cfg.CacheBackend).
		Str("cache_dir", cfg.CacheDir).
		Msg("Cache store opened")

	return fn(&fetchRun{
		cfg:    cfg,
		client: tmdb,
		store:  store,
		logger: logger,
		out:    cmd.OutOrStdout(),
	})
}

func (r *fetchRun) pages(ctx context.Context) error {
	cfg := pagination.Config{
		StartPage: r.cfg.Pages.StartPage,
		EndPage:   r.cfg.Pages.EndPage,
		Delay:     r.cfg.Pages.Delay,
		Retries:   r.cfg.Pages.Retries,
	}
	logger := r.logger.With().Str("job", pagination.Job).Logger()
	rep, err := pagination.NewFetcher(r.client, r.store, cfg, logger).Run(ctx)
	return r.finish(ctx, rep, logger, err)
}

func (r *fetchRun) details(ctx context.Context) error {
	cfg := details.Config{
		Delay:   r.cfg.Details.Delay,
		Retries: r.cfg.Details.Retries,
	}
	logger := r.logger.With().Str("job", details.Job).Logger()
	rep, err := details.NewFetcher(r.client, r.store, cfg, logger).Run(ctx)
	return r.finish(ctx, rep, logger, err)
}

// finish logs the report, stores it as the run manifest and prints the
// summary line. Runs that stopped before handling a key bring no report.
// The manifest is kept as is when the run only skipped cached keys, so
// repeated runs over a complete cache leave the store untouched. It is
// written even when the run was interrupted.
func (r *fetchRun) finish(ctx context.Context, rep *report.Report, logger zerolog.Logger, runErr error) error {
	if rep == nil {
		return runErr
	}
	rep.Log(logger)

	if rep.Changed() {
		key, err := rep.Save(context.WithoutCancel(ctx), r.store)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to write run manifest")
		} else {
			logger.Info().Str("key", key).Msg("Wrote run manifest")
		}
	} else {
		logger.Debug().Msg("Nothing fetched, keeping previous run manifest")
	}

	fmt.Fprintf(r.out, "%s: %d fetched, %d skipped, %d failed of %d\n",
		rep.Job, rep.Fetched, rep.Skipped, len(rep.Failed), rep.Total)
	for _, f := range rep.Failed {
		fmt.Fprintf(r.out, "  missing %s after %d attempts: %s\n", f.Key, f.Attempts, f.Error)
	}
	return runErr
}
