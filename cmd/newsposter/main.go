package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"NewsPoster/internal/app"
	"NewsPoster/internal/config"
	"NewsPoster/internal/logging"
	"NewsPoster/internal/usecase"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type stageFunc func(ctx context.Context, application *app.Application) ([]usecase.Summary, error)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "newsposter",
		Short:         "Crawl news, generate social posts and publish them",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config (defaults to $NEWSPOSTER_CONFIG)")

	root.AddCommand(
		stageCommand("crawl", "Discover, fetch and analyze articles", &configPath,
			func(ctx context.Context, a *app.Application) ([]usecase.Summary, error) {
				summary, err := a.Crawl(ctx)
				return []usecase.Summary{summary}, err
			}),
		stageCommand("generate", "Generate candidate posts from the last crawl", &configPath,
			func(ctx context.Context, a *app.Application) ([]usecase.Summary, error) {
				summary, err := a.Generate(ctx)
				return []usecase.Summary{summary}, err
			}),
		stageCommand("post", "Publish pending candidate posts", &configPath,
			func(ctx context.Context, a *app.Application) ([]usecase.Summary, error) {
				summary, err := a.Post(ctx)
				return []usecase.Summary{summary}, err
			}),
		stageCommand("run", "Run crawl, generate and post in sequence", &configPath,
			func(ctx context.Context, a *app.Application) ([]usecase.Summary, error) {
				return a.RunAll(ctx)
			}),
	)
	return root
}

func stageCommand(use, short string, configPath *string, fn stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := config.Load(*configPath)
			logger, logCloser := logging.FromConfig(cfg.Logging)
			defer logCloser.Close()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := application.Close(); closeErr != nil {
					logger.Warn("shutdown", "error", closeErr)
				}
			}()

			summaries, runErr := fn(ctx, application)
			renderSummaries(cmd.OutOrStdout(), summaries)
			if runErr != nil {
				return runErr
			}
			return failure(summaries)
		},
	}
}

func failure(summaries []usecase.Summary) error {
	for _, s := range summaries {
		if s.Failed() {
			return fmt.Errorf("%s stage finished with result %s", s.Stage, s.Result)
		}
	}
	return nil
}
