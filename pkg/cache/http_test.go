package cache

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResponseToEntry(t *testing.T) {
	lastMod := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	resp := &http.Response{
		StatusCode: 200,
		Header: http.Header{
			"Etag":          []string{`"abc123"`},
			"Last-Modified": []string{lastMod.Format(http.TimeFormat)},
			"Cache-Control": []string{"max-age=60"},
		},
		Body: io.NopCloser(bytes.NewReader([]byte(`[{"id":1}]`))),
	}

	entry, err := ResponseToEntry(resp)
	if err != nil {
		t.Fatalf("ResponseToEntry() error = %v", err)
	}

	if entry.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", entry.ETag, `"abc123"`)
	}
	if !entry.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastMod)
	}
	if string(entry.Data) != `[{"id":1}]` {
		t.Errorf("Data = %s", entry.Data)
	}
	if ttl := entry.TTL(); ttl <= 50*time.Second || ttl > 60*time.Second {
		t.Errorf("TTL() = %v, want about 60s from max-age", ttl)
	}

	// Body must still be readable by the caller
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `[{"id":1}]` {
		t.Errorf("restored body = %s", body)
	}
}

func TestResponseToEntry_Nil(t *testing.T) {
	if _, err := ResponseToEntry(nil); err == nil {
		t.Error("ResponseToEntry(nil) should fail")
	}
}

func TestParseExpires(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		headers http.Header
		min     time.Duration
		max     time.Duration
	}{
		{
			name:    "no headers uses default",
			headers: http.Header{},
			min:     DefaultTTL - time.Second,
			max:     DefaultTTL + time.Second,
		},
		{
			name:    "max-age wins over expires",
			headers: http.Header{"Cache-Control": {"public, max-age=30"}, "Expires": {now.Add(time.Hour).Format(http.TimeFormat)}},
			min:     29 * time.Second,
			max:     31 * time.Second,
		},
		{
			name:    "expires header",
			headers: http.Header{"Expires": {now.Add(10 * time.Minute).Format(http.TimeFormat)}},
			min:     9 * time.Minute,
			max:     11 * time.Minute,
		},
		{
			name:    "past expires clamps to now",
			headers: http.Header{"Expires": {now.Add(-time.Hour).Format(http.TimeFormat)}},
			min:     -time.Second,
			max:     time.Second,
		},
		{
			name:    "garbage expires uses default",
			headers: http.Header{"Expires": {"not a date"}},
			min:     DefaultTTL - time.Second,
			max:     DefaultTTL + time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := time.Until(ParseExpires(tt.headers))
			if got < tt.min || got > tt.max {
				t.Errorf("ParseExpires() in %v, want [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"max-age=60", 60 * time.Second, true},
		{"no-cache, Max-Age=5", 5 * time.Second, true},
		{"max-age=abc", 0, false},
		{"max-age=-1", 0, false},
		{"no-store", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseMaxAge(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseMaxAge(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	lastMod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name            string
		entry           *CacheEntry
		wantIfNoneMatch string
		wantIfModified  string
	}{
		{
			name:            "etag preferred",
			entry:           &CacheEntry{ETag: `"v1"`, LastModified: lastMod},
			wantIfNoneMatch: `"v1"`,
		},
		{
			name:           "last modified only",
			entry:          &CacheEntry{LastModified: lastMod},
			wantIfModified: lastMod.Format(http.TimeFormat),
		},
		{
			name:  "no validators",
			entry: &CacheEntry{},
		},
		{
			name:  "nil entry",
			entry: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/posts", nil)
			AddConditionalHeaders(req, tt.entry)

			if got := req.Header.Get("If-None-Match"); got != tt.wantIfNoneMatch {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantIfNoneMatch)
			}
			if got := req.Header.Get("If-Modified-Since"); got != tt.wantIfModified {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantIfModified)
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	entry := &CacheEntry{
		Data:       []byte(`[]`),
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"application/json"}},
	}

	resp := EntryToResponse(req, entry)
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache"); got != "REVALIDATED" {
		t.Errorf("X-Cache = %q, want REVALIDATED", got)
	}
	if entry.Headers.Get("X-Cache") != "" {
		t.Error("EntryToResponse mutated the cached headers")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `[]` {
		t.Errorf("body = %s, want []", body)
	}
	if resp.Request != req {
		t.Error("Request not set on rebuilt response")
	}
}
