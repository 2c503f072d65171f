// Command posts lists, browses and serves posts from a paginated REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/posts-client/internal/config"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(mapErrorToExitCode(err))
	}
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	baseURL    string
	logLevel   string
	logPretty  bool
	redisAddr  string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "posts",
		Short: "Fetch posts from a paginated REST API",
		Long: `posts fetches posts from a JSONPlaceholder-style REST API, either all at
once or page by page. It can print them as NDJSON, browse them in a terminal UI
or expose the coordinators over HTTP.

Configuration is read from --config, .posts.yaml or ~/.posts/config.yaml, then
POSTS_* environment variables, then flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&g.baseURL, "base-url", "", "Base URL of the posts API")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
	pf.BoolVar(&g.logPretty, "log-pretty", false, "Human-readable log output")
	pf.StringVar(&g.redisAddr, "redis-addr", "", "Redis address enabling the revalidation cache and shared rate limit")

	rootCmd.AddCommand(newListCommand(g), newBrowseCommand(g), newServeCommand(g))
	return rootCmd
}

// loadConfig merges the config layers and applies flags that were set
// explicitly.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.API.BaseURL = g.baseURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-pretty") {
		cfg.Log.Pretty = g.logPretty
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr = g.redisAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mapErrorToExitCode maps errors to process exit codes.
func mapErrorToExitCode(err error) int {
	if err == nil {
		return 0
	}

	if errors.Is(err, config.ErrInvalid) || errors.Is(err, pagination.ErrInvalidConfig) {
		return 2
	}

	if errors.Is(err, post.ErrNetwork) {
		return 3
	}

	return 1
}
