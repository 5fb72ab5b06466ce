package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type crawlOptions struct {
	projectID string
	websiteID string
	maxPages  int
	maxDepth  int
}

func newCrawlCmd(root *rootOptions) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one website synchronously and print the summary",
		Long: `Runs a single crawl against the configured database: the website is moved
to crawling, its pages are discovered and scraped, and the final counts are
printed as JSON. Unset limits fall back to CRAWL_MAX_PAGES and CRAWL_MAX_DEPTH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close(context.WithoutCancel(cmd.Context()))
			}()

			result, err := app.Crawl(cmd.Context(), opts.projectID, opts.websiteID, opts.maxPages, opts.maxDepth)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.projectID, "project", "", "project ID that owns the website")
	cmd.Flags().StringVar(&opts.websiteID, "website", "", "website ID to crawl")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "maximum pages to crawl (default from config)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "maximum link depth (default from config)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("website")
	return cmd
}
