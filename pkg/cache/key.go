package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "posts"

// CacheKey identifies one cached upstream response.
type CacheKey struct {
	// Host is the upstream host; empty when a single upstream shares the Redis DB.
	Host string

	// Endpoint is the request path (e.g. "/posts")
	Endpoint string

	// QueryParams are the request query parameters (e.g. _page=2, _limit=10)
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: posts[:host]:path[:query1=val1[,val2]...]
//
// Example:
//
//	posts:posts:_limit=10:_page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Host != "" {
		parts = append(parts, strings.ToLower(k.Host))
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, name+"="+strings.Join(k.QueryParams[name], ","))
		}
	}

	return strings.Join(parts, ":")
}

// KeyFor builds the cache key of a request URL.
func KeyFor(u *url.URL) CacheKey {
	if u == nil {
		return CacheKey{}
	}
	return CacheKey{
		Host:        u.Host,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}
