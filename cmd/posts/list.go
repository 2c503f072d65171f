package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/posts-client/pkg/loader"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/spf13/cobra"
)

type listOptions struct {
	paged    bool
	pageSize int
	pages    int
	parallel bool
}

func newListCommand(g *globalFlags) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print posts as NDJSON",
		Long: `Print posts to stdout, one JSON object per line.

Without --paged the whole list is fetched in one request, or page by page in
parallel with --parallel. With --paged posts are streamed page by page through
the page coordinator until the data runs out or --pages pages were printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("page-size") {
				cfg.Pagination.PageSize = opts.pageSize
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			a, err := newApp(cmd.Context(), cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			return runList(cmd.Context(), a, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.paged, "paged", false, "Stream posts page by page")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Posts per page (default from config)")
	cmd.Flags().IntVar(&opts.pages, "pages", 0, "Stop after this many pages with --paged (0 = all)")
	cmd.Flags().BoolVar(&opts.parallel, "parallel", false, "Fetch all pages in parallel")

	return cmd
}

func runList(ctx context.Context, a *app, out io.Writer, opts listOptions) error {
	w := &postWriter{enc: json.NewEncoder(out)}
	if opts.paged {
		return streamPages(ctx, a, w, opts.pages)
	}
	return loadAll(ctx, a, w, opts.parallel)
}

// loadAll drives a single-fetch coordinator to a terminal state.
func loadAll(ctx context.Context, a *app, w *postWriter, parallel bool) error {
	ld := loader.New(a.allFetcher(parallel), loader.WithLogger(a.logger))
	defer ld.Close()

	ch := ld.Observe(ctx)
	ld.Load()

	for s := range ch {
		switch s.Phase {
		case loader.PhaseSuccess:
			if err := w.write(s.Posts); err != nil {
				return err
			}
			a.logger.Info().Int("count", len(s.Posts)).Msg("Listed posts")
			return nil
		case loader.PhaseError:
			return fmt.Errorf("%w: %s", post.ErrNetwork, s.Message)
		}
	}
	return ctx.Err()
}

// streamPages drives a page coordinator forward, printing each page as it
// lands.
func streamPages(ctx context.Context, a *app, w *postWriter, maxPages int) error {
	pc := pagination.New(a.client, pagination.WithLogger(a.logger))
	defer pc.Close()

	ch := pc.Observe(ctx)
	if err := pc.Initialize(a.cfg.Pagination.PageSize, a.cfg.Pagination.StartingPage); err != nil {
		return err
	}

	written, pages := 0, 1
	for s := range ch {
		switch {
		case s.Refresh.Failed():
			return s.Refresh.Err
		case s.Append.Failed():
			return s.Append.Err
		case s.Refresh.Phase != pagination.PhaseReady || s.Append.Loading():
			continue
		}

		if err := w.write(s.Items[written:]); err != nil {
			return err
		}
		written = len(s.Items)

		if !s.HasNext() || (maxPages > 0 && pages >= maxPages) {
			a.logger.Info().Int("count", written).Int("pages", pages).Msg("Listed posts")
			return nil
		}
		pc.LoadNext()
		pages++
	}
	return ctx.Err()
}

type postWriter struct {
	enc *json.Encoder
}

func (w *postWriter) write(posts []post.Post) error {
	for _, p := range posts {
		if err := w.enc.Encode(p.ToDTO()); err != nil {
			return fmt.Errorf("write post %d: %w", p.ID, err)
		}
	}
	return nil
}
