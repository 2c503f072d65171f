package main

import (
	"io"

	"github.com/Sternrassler/posts-client/internal/tui"
	"github.com/Sternrassler/posts-client/pkg/loader"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/spf13/cobra"
)

func newBrowseCommand(g *globalFlags) *cobra.Command {
	var parallel bool

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse posts in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}

			// The terminal belongs to the UI; logs would corrupt it.
			a, err := newApp(cmd.Context(), cfg, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			ld := loader.New(a.allFetcher(parallel), loader.WithLogger(a.logger))
			defer ld.Close()
			pc := pagination.New(a.client, pagination.WithLogger(a.logger))
			defer pc.Close()

			return tui.Run(cmd.Context(), ld, pc, tui.Options{
				PageSize:     cfg.Pagination.PageSize,
				StartingPage: cfg.Pagination.StartingPage,
			})
		},
	}

	cmd.Flags().BoolVar(&parallel, "parallel", false, "Load the full list with parallel page fetches")
	return cmd
}
