// Package testutil provides an in-process mock of the posts REST API.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/posts-client/pkg/post"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI serves GET /posts from an in-memory data set, honouring the
// _page/_limit query parameters, ETag revalidation and X-Total-Count.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	posts     []post.DTO
	omitTotal bool
	remaining int
	failures  []MockResponse
	delay     time.Duration

	// Tracking
	RequestCount      int
	ConditionalCount  int
	NotModifiedCount  int
	LastRequestHeader http.Header
	Queries           []string
}

// NewMockAPI creates a mock server holding n generated posts.
func NewMockAPI(n int) *MockAPI {
	mock := &MockAPI{
		handlers:  make(map[string]http.HandlerFunc),
		posts:     GeneratePosts(n),
		remaining: 100,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Queries = append(mock.Queries, r.URL.RawQuery)
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		var failure *MockResponse
		if len(mock.failures) > 0 {
			failure = &mock.failures[0]
			mock.failures = mock.failures[1:]
		}
		delay := mock.delay
		mock.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if failure != nil {
			writeResponse(w, *failure)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		if r.URL.Path == "/posts" {
			mock.servePosts(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// GeneratePosts builds n posts with ids 1..n, ten per owner.
func GeneratePosts(n int) []post.DTO {
	out := make([]post.DTO, n)
	for i := range out {
		id := i + 1
		out[i] = post.DTO{
			UserID: (id-1)/10 + 1,
			ID:     id,
			Title:  fmt.Sprintf("title %d", id),
			Body:   fmt.Sprintf("body of post %d", id),
		}
	}
	return out
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.NotModifiedCount = 0
	m.LastRequestHeader = nil
	m.Queries = nil
}

// SetPosts replaces the served data set.
func (m *MockAPI) SetPosts(posts []post.DTO) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append([]post.DTO(nil), posts...)
}

// OmitTotal stops sending X-Total-Count.
func (m *MockAPI) OmitTotal(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitTotal = omit
}

// SetRemaining sets the advertised X-Ratelimit-Remaining.
func (m *MockAPI) SetRemaining(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = n
}

// SetDelay delays every response.
func (m *MockAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// FailNext queues resp as the answer to the next request, ahead of any handler.
func (m *MockAPI) FailNext(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, resp)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockAPI) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetNotModifiedCount returns the number of 304 responses sent.
func (m *MockAPI) GetNotModifiedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.NotModifiedCount
}

// GetQueries returns the raw query of every request so far.
func (m *MockAPI) GetQueries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Queries...)
}

// LastHeader returns the headers of the most recent request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// servePosts answers GET /posts like json-server: _page is 1-based and a
// page past the end is an empty array.
func (m *MockAPI) servePosts(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	all := m.posts
	omitTotal := m.omitTotal
	remaining := m.remaining
	m.mu.RUnlock()

	q := r.URL.Query()
	page := all
	if q.Has("_page") || q.Has("_limit") {
		pageNum, err1 := strconv.Atoi(q.Get("_page"))
		limit, err2 := strconv.Atoi(q.Get("_limit"))
		if err1 != nil || err2 != nil || pageNum < 1 || limit < 1 {
			writeResponse(w, NewClientErrorResponse("invalid pagination parameters"))
			return
		}
		start := (pageNum - 1) * limit
		switch {
		case start >= len(all):
			page = []post.DTO{}
		case start+limit > len(all):
			page = all[start:]
		default:
			page = all[start : start+limit]
		}
	}

	body, err := json.Marshal(page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h := fnv.New64a()
	h.Write(body)
	etag := fmt.Sprintf(`W/"%x"`, h.Sum64())

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Header().Set("X-Ratelimit-Limit", "100")
	w.Header().Set("X-Ratelimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
	if !omitTotal {
		w.Header().Set("X-Total-Count", strconv.Itoa(len(all)))
	}

	if r.Header.Get("If-None-Match") == etag {
		m.mu.Lock()
		m.NotModifiedCount++
		m.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"X-Ratelimit-Remaining": "0",
			"X-Ratelimit-Reset":     "1",
		},
	}
}

// NewClientErrorResponse creates a 400 Bad Request response.
func NewClientErrorResponse(msg string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       fmt.Sprintf(`{"error": %q}`, msg),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>gateway</html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
