package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the async crawl workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			// Run closes the app on its way out.
			return app.Run(cmd.Context())
		},
	}
}
