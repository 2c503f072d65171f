// Package cache provides a Redis-backed revalidation cache.
//
// Every successful GET that carries an ETag or Last-Modified validator is
// stored under a deterministic key. The next request for the same URL is sent
// with If-None-Match / If-Modified-Since; when the upstream answers 304 Not
// Modified the stored body is substituted. A cached body is never served
// without a 304, so a failing upstream still surfaces as a failure.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, cache.WithRetention(30*time.Minute))
//
//	key := cache.KeyFor(req.URL)
//	entry, err := manager.Get(ctx, key)
//	if err == nil {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
//	resp, err := http.DefaultClient.Do(req)
//	...
//	switch resp.StatusCode {
//	case http.StatusNotModified:
//		resp = cache.EntryToResponse(req, entry)
//	case http.StatusOK:
//		entry, _ := cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Keys
//
//	posts:posts                          GET /posts
//	posts:posts:_limit=10:_page=2        GET /posts?_page=2&_limit=10
//
// # Metrics
//
//   - posts_cache_hits_total
//   - posts_cache_misses_total
//   - posts_cache_stored_bytes_total
//   - posts_cache_conditional_requests_total
//   - posts_cache_not_modified_total
//   - posts_cache_errors_total{operation}
package cache
