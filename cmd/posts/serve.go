package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Sternrassler/posts-client/pkg/metrics"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

func newServeCommand(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose posts and a page coordinator over HTTP",
		Long: `Start an HTTP server with these endpoints:

  GET  /health          liveness probe
  GET  /metrics         Prometheus metrics
  GET  /posts           the full list as a JSON array
  GET  /paged           the page coordinator snapshot
  POST /paged/next      load the next page
  POST /paged/retry     retry the failed load
  POST /paged/refresh   reload from the starting page`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			a, err := newApp(cmd.Context(), cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			pc := pagination.New(a.client, pagination.WithLogger(a.logger))
			defer pc.Close()
			if err := pc.Initialize(cfg.Pagination.PageSize, cfg.Pagination.StartingPage); err != nil {
				return err
			}

			return serve(cmd.Context(), cfg.Server.Addr, newMux(a.client, pc, a.logger), a.logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

// pageSource is the part of the page coordinator the HTTP handlers drive.
type pageSource interface {
	Snapshot() pagination.State
	LoadNext()
	Retry()
	Refresh()
}

func newMux(fetcher post.AllFetcher, pages pageSource, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /posts", postsHandler(fetcher, logger))
	mux.HandleFunc("GET /paged", pagedHandler(pages, logger))
	mux.HandleFunc("POST /paged/next", signalHandler(pages.LoadNext))
	mux.HandleFunc("POST /paged/retry", signalHandler(pages.Retry))
	mux.HandleFunc("POST /paged/refresh", signalHandler(pages.Refresh))
	return mux
}

func serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting posts server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func postsHandler(fetcher post.AllFetcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		posts, err := fetcher.FetchAll(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Posts request failed")
			http.Error(w, fmt.Sprintf("posts request failed: %s", describe(err)), http.StatusBadGateway)
			return
		}

		dtos := make([]post.DTO, 0, len(posts))
		for _, p := range posts {
			dtos = append(dtos, p.ToDTO())
		}
		writeJSON(w, http.StatusOK, dtos, logger)
	}
}

type statusJSON struct {
	Phase string `json:"phase"`
	Error string `json:"error,omitempty"`
}

type pagedJSON struct {
	Items      []post.DTO `json:"items"`
	NextKey    *int       `json:"next_key"`
	PrevKey    *int       `json:"prev_key"`
	Refresh    statusJSON `json:"refresh"`
	Append     statusJSON `json:"append"`
	Prepend    statusJSON `json:"prepend"`
	Generation uint64     `json:"generation"`
}

func pagedHandler(pages pageSource, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := pages.Snapshot()
		out := pagedJSON{
			Items:      make([]post.DTO, 0, len(s.Items)),
			NextKey:    s.NextKey,
			PrevKey:    s.PrevKey,
			Refresh:    toStatusJSON(s.Refresh),
			Append:     toStatusJSON(s.Append),
			Prepend:    toStatusJSON(s.Prepend),
			Generation: s.Generation,
		}
		for _, p := range s.Items {
			out.Items = append(out.Items, p.ToDTO())
		}
		writeJSON(w, http.StatusOK, out, logger)
	}
}

func signalHandler(signal func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signal()
		w.WriteHeader(http.StatusAccepted)
	}
}

func toStatusJSON(s pagination.Status) statusJSON {
	out := statusJSON{Phase: s.Phase.String()}
	if s.Err != nil {
		out.Error = describe(s.Err)
	}
	return out
}

func describe(err error) string {
	if msg := post.Describe(err); msg != "" {
		return msg
	}
	return "request failed"
}

func writeJSON(w http.ResponseWriter, status int, v any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("Failed to write response")
	}
}
