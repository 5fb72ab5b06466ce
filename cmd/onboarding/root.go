package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/hubspot-onboarding/internal/config"
	"github.com/JakeFAU/hubspot-onboarding/internal/crawl"
	"github.com/JakeFAU/hubspot-onboarding/internal/server"
)

// App is the surface the commands use. Tests swap in a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Crawl(ctx context.Context, projectID, websiteID string, maxPages, maxDepth int) (crawl.Result, error)
	Close(ctx context.Context) error
}

var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

type rootOptions struct {
	configFile string
}

func (o *rootOptions) buildApp(ctx context.Context) (App, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := newApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "onboarding",
		Short: "HubSpot onboarding manager",
		Long: `onboarding tracks client onboarding projects and their websites, crawls
those websites into a page corpus, and exposes everything over a JSON API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newCrawlCmd(opts))
	return cmd
}
