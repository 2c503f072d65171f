// Package client provides the posts REST client with rate limiting,
// revalidation caching and retry handling. It implements the fetcher
// contracts of package post.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/posts-client/pkg/cache"
	"github.com/Sternrassler/posts-client/pkg/logging"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/Sternrassler/posts-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posts_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posts_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// PostsPath is the collection endpoint.
const PostsPath = "/posts"

// Client fetches posts over HTTP. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the posts API (e.g. https://jsonplaceholder.typicode.com)
	BaseURL string

	// User-Agent header (REQUIRED)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// Query parameter names for 1-based page number and page size
	PageParam  string
	LimitParam string

	// Redis enables the revalidation cache and the shared rate limit tracker.
	// Optional.
	Redis *redis.Client

	// ErrorThreshold blocks requests while fewer than this many remain in
	// the upstream rate limit window. 0 keeps the tracker default.
	ErrorThreshold int

	// ThrottleDelay is the pause applied in the rate limit warning band.
	ThrottleDelay time.Duration

	// CacheRetention is how long revalidation entries are kept.
	CacheRetention time.Duration

	// RetryPolicy overrides RetryConfigForErrorClass.
	RetryPolicy RetryPolicy

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      userAgent,
		Timeout:        30 * time.Second,
		PageParam:      "_page",
		LimitParam:     "_limit",
		ThrottleDelay:  ratelimit.DefaultThrottleDelay,
		CacheRetention: cache.DefaultRetention,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.ErrorThreshold < 0 {
		return nil, fmt.Errorf("error_threshold must be >= 0 (got %d)", cfg.ErrorThreshold)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageParam == "" {
		cfg.PageParam = "_page"
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = "_limit"
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = RetryConfigForErrorClass
	}

	logger := logging.NewLogger("posts-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger,
			ratelimit.WithCriticalThreshold(cfg.ErrorThreshold),
			ratelimit.WithThrottleDelay(cfg.ThrottleDelay),
		)
		c.cache = cache.NewManager(cfg.Redis, cache.WithRetention(cfg.CacheRetention))
	}

	return c, nil
}

// Do performs an HTTP request with rate limiting, revalidation and retries.
// Any final status >= 400 is returned as an *APIError with the body closed.
// A 304 answered for a cached entry is replaced by the cached response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Rate Limit
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}
			// A failed check lets the request through.
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, ErrRateLimited
		}
	}

	// Step 2: Check Cache
	cacheKey := cache.KeyFor(req.URL)
	var cachedEntry *cache.CacheEntry
	if c.cache != nil && req.Method == http.MethodGet {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		if entry.CanRevalidate() {
			cachedEntry = entry
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		}
	}

	// Step 3: Set headers
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 4: Execute HTTP Request with Retry Logic
	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("query", req.URL.RawQuery).
		Msg("Executing request")

	var resp *http.Response
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, c.config.RetryPolicy, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)

		if reqErr != nil {
			resp = nil
			errClass = c.classifyError(nil, reqErr)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return reqErr
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		if resp.StatusCode >= 400 {
			errClass = c.classifyError(resp, nil)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status_code", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Upstream request error")

			// Drain a little so the connection can be reused
			_, _ = io.CopyN(io.Discard, resp.Body, 4096)
			resp.Body.Close()
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
			resp = nil
			return apiErr
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return nil
	}, func(err error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		return nil, retryErr
	}

	// Step 5: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if err := c.cache.Touch(ctx, cacheKey, cache.ParseExpires(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}

		resp.Body.Close()
		return cache.EntryToResponse(req, cachedEntry), nil
	}

	// Step 6: Update Cache on success
	if c.cache != nil && resp.StatusCode == http.StatusOK && req.Method == http.MethodGet {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			resp.Body.Close()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read response body",
				Err:        err,
			}
		}
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", entry.ETag).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	var class ErrorClass
	switch {
	case err != nil:
		class = ErrorClassNetwork
	case resp.StatusCode == http.StatusTooManyRequests:
		class = ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		class = ErrorClassClient
	case resp.StatusCode >= 500:
		class = ErrorClassServer
	default:
		return ""
	}
	c.logger.Debug().Str("class", string(class)).Msg("Error classified")
	return class
}

// Get performs a GET request against a path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// FetchPage returns one page of posts. page is 1-based. An empty slice means
// the data set has no posts at that page.
func (c *Client) FetchPage(ctx context.Context, page, limit int) ([]post.Post, error) {
	posts, _, err := c.FetchPageWithTotal(ctx, page, limit)
	return posts, err
}

// FetchPageWithTotal is FetchPage plus the X-Total-Count header, or -1 when
// the upstream does not send it.
func (c *Client) FetchPageWithTotal(ctx context.Context, page, limit int) ([]post.Post, int, error) {
	if page < 1 {
		return nil, -1, invalidPageError("page", page)
	}
	if limit < 1 {
		return nil, -1, invalidPageError("limit", limit)
	}

	query := url.Values{}
	query.Set(c.config.PageParam, strconv.Itoa(page))
	query.Set(c.config.LimitParam, strconv.Itoa(limit))

	resp, err := c.Get(ctx, PostsPath, query)
	if err != nil {
		return nil, -1, toNetworkError(err)
	}
	defer resp.Body.Close()

	posts, err := decodePosts(resp)
	if err != nil {
		return nil, -1, err
	}

	total := -1
	if v := resp.Header.Get("X-Total-Count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			total = n
		}
	}

	c.logger.Debug().
		Int("page", page).
		Int("page_size", limit).
		Int("items", len(posts)).
		Int("total", total).
		Msg("Fetched page")

	return posts, total, nil
}

// FetchAll returns the whole collection in one request.
func (c *Client) FetchAll(ctx context.Context) ([]post.Post, error) {
	resp, err := c.Get(ctx, PostsPath, nil)
	if err != nil {
		return nil, toNetworkError(err)
	}
	defer resp.Body.Close()

	posts, err := decodePosts(resp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Int("items", len(posts)).Msg("Fetched all posts")
	return posts, nil
}

func decodePosts(resp *http.Response) ([]post.Post, error) {
	var dtos []post.DTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &post.NetworkError{
			StatusCode:  resp.StatusCode,
			Class:       string(ErrorClassDecode),
			Description: "malformed response body",
			Err:         err,
		}
	}
	return post.FromDTOs(dtos), nil
}

// BaseURL returns the configured upstream.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Cache returns the cache manager, nil without Redis.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// RateLimiter returns the rate limit tracker, nil without Redis.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
