// Package config loads the posts CLI configuration.
//
// Sources, highest precedence first:
//  1. Command-line flags (applied by the caller)
//  2. Environment variables (POSTS_*)
//  3. Configuration file
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/posts-client/pkg/logging"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Load reads configuration from configPath, or from the first existing
// default location when configPath is empty:
//   - .posts.yaml / .posts.yml (current directory)
//   - ~/.posts/config.yaml / ~/.posts/config.yml
//
// Environment overrides are applied afterwards. A missing default file is
// not an error; a missing explicit file is.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFile(configPath, cfg); err != nil {
			return nil, err
		}
	} else {
		for _, path := range defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				if err := loadFile(path, cfg); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultPaths() []string {
	home, _ := os.UserHomeDir()
	paths := []string{".posts.yaml", ".posts.yml"}
	if home != "" {
		paths = append(paths,
			filepath.Join(home, ".posts", "config.yaml"),
			filepath.Join(home, ".posts", "config.yml"),
		)
	}
	return paths
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse config file %s: %v", ErrInvalid, path, err)
	}
	return nil
}

// applyEnv applies POSTS_* environment overrides. Malformed numbers fail
// loudly instead of being ignored.
func applyEnv(cfg *Config) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"POSTS_BASE_URL", &cfg.API.BaseURL},
		{"POSTS_USER_AGENT", &cfg.API.UserAgent},
		{"POSTS_REDIS_ADDR", &cfg.Redis.Addr},
		{"POSTS_LOG_LEVEL", &cfg.Log.Level},
		{"POSTS_SERVER_ADDR", &cfg.Server.Addr},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.name); ok && v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"POSTS_PAGE_SIZE", &cfg.Pagination.PageSize},
		{"POSTS_STARTING_PAGE", &cfg.Pagination.StartingPage},
		{"POSTS_PARALLELISM", &cfg.Pagination.Parallelism},
		{"POSTS_REDIS_DB", &cfg.Redis.DB},
	}
	for _, i := range ints {
		if v := os.Getenv(i.name); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, i.name, v)
			}
			*i.dst = n
		}
	}

	if v := os.Getenv("POSTS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: POSTS_TIMEOUT=%q: %v", ErrInvalid, v, err)
		}
		cfg.API.Timeout = d
	}

	if v := os.Getenv("POSTS_LOG_PRETTY"); v != "" {
		cfg.Log.Pretty = parseBool(v)
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// parseBool parses various boolean representations
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1" || s == "on"
}

// Validate checks the merged configuration. Every failure wraps ErrInvalid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api base_url cannot be empty", ErrInvalid)
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api base_url %q must be an http(s) URL", ErrInvalid, c.API.BaseURL)
	}
	if c.API.UserAgent == "" {
		return fmt.Errorf("%w: api user_agent cannot be empty", ErrInvalid)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api timeout must be positive, got: %s", ErrInvalid, c.API.Timeout)
	}
	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive, got: %d", ErrInvalid, c.Pagination.PageSize)
	}
	if c.Pagination.StartingPage <= 0 {
		return fmt.Errorf("%w: starting page must be positive, got: %d", ErrInvalid, c.Pagination.StartingPage)
	}
	if c.Pagination.Parallelism <= 0 {
		return fmt.Errorf("%w: parallelism must be positive, got: %d", ErrInvalid, c.Pagination.Parallelism)
	}
	if c.Redis.ErrorThreshold < 0 {
		return fmt.Errorf("%w: redis error_threshold must be >= 0, got: %d", ErrInvalid, c.Redis.ErrorThreshold)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
