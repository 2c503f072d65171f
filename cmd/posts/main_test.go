package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Sternrassler/posts-client/internal/config"
	"github.com/Sternrassler/posts-client/internal/testutil"
	"github.com/Sternrassler/posts-client/pkg/client"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/rs/zerolog"
)

// isolate keeps config discovery away from the developer's files and env.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "POSTS_") {
			t.Setenv(name, "")
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeLines(t *testing.T, out string) []post.DTO {
	t.Helper()
	var dtos []post.DTO
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var d post.DTO
		if err := dec.Decode(&d); err != nil {
			t.Fatalf("decode NDJSON: %v", err)
		}
		dtos = append(dtos, d)
	}
	return dtos
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func newTestClient(t *testing.T, baseURL string) *client.Client {
	t.Helper()
	logger := zerolog.Nop()
	cfg := client.DefaultConfig(baseURL, "posts-test/1.0")
	cfg.Logger = &logger
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

type stubPages struct {
	state                     pagination.State
	nexts, retries, refreshes int
}

func (s *stubPages) Snapshot() pagination.State { return s.state }
func (s *stubPages) LoadNext()                  { s.nexts++ }
func (s *stubPages) Retry()                     { s.retries++ }
func (s *stubPages) Refresh()                   { s.refreshes++ }

func TestPostsEndpoint(t *testing.T) {
	mock := testutil.NewMockAPI(12)
	defer mock.Close()

	mux := newMux(newTestClient(t, mock.URL()), &stubPages{}, zerolog.Nop())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/posts")
	if err != nil {
		t.Fatalf("GET /posts: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var dtos []post.DTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(dtos) != 12 || dtos[0].ID != 1 || dtos[11].UserID != 2 {
		t.Errorf("got %d posts, first=%+v", len(dtos), dtos[0])
	}
}

func TestPostsEndpoint_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockAPI(3)
	defer mock.Close()
	mock.FailNext(testutil.NewClientErrorResponse("nope"))

	mux := newMux(newTestClient(t, mock.URL()), &stubPages{}, zerolog.Nop())
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/posts", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestPagedEndpoints(t *testing.T) {
	next := 3
	pages := &stubPages{state: pagination.State{
		Items:      []post.Post{{ID: 1, Title: "a", OwnerID: 1}, {ID: 2, Title: "b", OwnerID: 1}},
		NextKey:    &next,
		Refresh:    pagination.Status{Phase: pagination.PhaseReady},
		Append:     pagination.Status{Phase: pagination.PhaseFailed, Err: &post.NetworkError{Description: "timeout"}},
		Generation: 4,
	}}
	mux := newMux(post.AllFetcherFunc(nil), pages, zerolog.Nop())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/paged", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /paged status = %d", w.Code)
	}
	var got pagedJSON
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Items) != 2 || got.NextKey == nil || *got.NextKey != 3 || got.PrevKey != nil {
		t.Errorf("snapshot = %+v", got)
	}
	if got.Refresh.Phase != "ready" || got.Append.Phase != "failed" || got.Append.Error != "timeout" {
		t.Errorf("statuses = %+v / %+v", got.Refresh, got.Append)
	}
	if got.Generation != 4 {
		t.Errorf("generation = %d, want 4", got.Generation)
	}

	for _, path := range []string{"/paged/next", "/paged/retry", "/paged/refresh"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("POST", path, nil))
		if w.Code != http.StatusAccepted {
			t.Errorf("POST %s status = %d, want 202", path, w.Code)
		}
	}
	if pages.nexts != 1 || pages.retries != 1 || pages.refreshes != 1 {
		t.Errorf("signals = %d/%d/%d, want 1/1/1", pages.nexts, pages.retries, pages.refreshes)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/paged/next", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /paged/next status = %d, want 405", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newMux(post.AllFetcherFunc(nil), &stubPages{}, zerolog.Nop())
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected default collectors in /metrics output")
	}
}

func TestListCommand(t *testing.T) {
	isolate(t)
	mock := testutil.NewMockAPI(23)
	defer mock.Close()

	out, err := execute(t, "list", "--base-url", mock.URL(), "--log-level", "disabled")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	dtos := decodeLines(t, out)
	if len(dtos) != 23 {
		t.Fatalf("printed %d posts, want 23", len(dtos))
	}
	if dtos[22].ID != 23 {
		t.Errorf("last id = %d, want 23", dtos[22].ID)
	}
}

func TestListCommand_Parallel(t *testing.T) {
	isolate(t)
	mock := testutil.NewMockAPI(23)
	defer mock.Close()

	out, err := execute(t, "list", "--parallel", "--page-size", "5",
		"--base-url", mock.URL(), "--log-level", "disabled")
	if err != nil {
		t.Fatalf("list --parallel: %v", err)
	}
	dtos := decodeLines(t, out)
	if len(dtos) != 23 {
		t.Fatalf("printed %d posts, want 23", len(dtos))
	}
	for i, d := range dtos {
		if d.ID != i+1 {
			t.Fatalf("dtos[%d].ID = %d, want page order", i, d.ID)
		}
	}
}

func TestListCommand_Paged(t *testing.T) {
	tests := []struct {
		name  string
		pages string
		want  int
	}{
		{"until exhausted", "0", 23},
		{"two pages", "2", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			mock := testutil.NewMockAPI(23)
			defer mock.Close()

			out, err := execute(t, "list", "--paged", "--page-size", "5", "--pages", tt.pages,
				"--base-url", mock.URL(), "--log-level", "disabled")
			if err != nil {
				t.Fatalf("list --paged: %v", err)
			}
			if got := len(decodeLines(t, out)); got != tt.want {
				t.Errorf("printed %d posts, want %d", got, tt.want)
			}
		})
	}
}

func TestListCommand_Errors(t *testing.T) {
	isolate(t)
	mock := testutil.NewMockAPI(5)
	defer mock.Close()

	tests := []struct {
		name     string
		args     []string
		setup    func()
		wantCode int
	}{
		{
			name:     "bad base url",
			args:     []string{"list", "--base-url", "ftp://example.com", "--log-level", "disabled"},
			wantCode: 2,
		},
		{
			name:     "bad page size",
			args:     []string{"list", "--page-size", "0", "--base-url", mock.URL(), "--log-level", "disabled"},
			wantCode: 2,
		},
		{
			name:     "bad log level",
			args:     []string{"list", "--base-url", mock.URL(), "--log-level", "loud"},
			wantCode: 2,
		},
		{
			name:     "upstream rejects list",
			args:     []string{"list", "--base-url", mock.URL(), "--log-level", "disabled"},
			setup:    func() { mock.FailNext(testutil.NewClientErrorResponse("nope")) },
			wantCode: 3,
		},
		{
			name:     "upstream rejects page",
			args:     []string{"list", "--paged", "--base-url", mock.URL(), "--log-level", "disabled"},
			setup:    func() { mock.FailNext(testutil.NewClientErrorResponse("nope")) },
			wantCode: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.Reset()
			if tt.setup != nil {
				tt.setup()
			}
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := mapErrorToExitCode(err); got != tt.wantCode {
				t.Errorf("exit code = %d, want %d (err: %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestMapErrorToExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"nil", nil, 0},
		{"config", fmt.Errorf("load: %w", config.ErrInvalid), 2},
		{"pagination config", &pagination.ConfigError{Field: "pageSize", Value: 0}, 2},
		{"network", &post.NetworkError{StatusCode: 500}, 3},
		{"wrapped network", fmt.Errorf("list: %w", post.ErrNetwork), 3},
		{"other", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErrorToExitCode(tt.err); got != tt.wantCode {
				t.Errorf("mapErrorToExitCode(%v) = %d, want %d", tt.err, got, tt.wantCode)
			}
		})
	}
}
