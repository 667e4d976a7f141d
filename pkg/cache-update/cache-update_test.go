package cacheupdate

import (
	"net/http"
	"testing"
	"time"
)

func newExchange(t *testing.T, method string, updates ...string) (*http.Request, *http.Response) {
	req, err := http.NewRequest(method, "https://example.com/articles/42/comments", nil)
	if err != nil {
		t.Fatal(err)
	}
	res := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Request: req}
	for _, u := range updates {
		res.Header.Add(HeaderName, u)
	}
	return req, res
}

func TestGetCacheUpdates(t *testing.T) {
	req, res := newExchange(t, "POST", "/articles/42; delay=5, ../../", "https://other.example/x")
	updates := GetCacheUpdates(req, res)
	if len(updates) != 2 {
		t.Fatalf("Got %d updates: %v", len(updates), updates)
	}
	if u := updates[0]; u.URL.String() != "https://example.com/articles/42" || u.Delay != 5*time.Second {
		t.Fatalf("First update is %s after %s", u.URL, u.Delay)
	}
	if u := updates[1]; u.URL.String() != "https://example.com/articles/" || u.Delay != 0 {
		t.Fatalf("Second update is %s after %s", u.URL, u.Delay)
	}
}

func TestGetCacheUpdatesSafeRequest(t *testing.T) {
	req, res := newExchange(t, "GET", "/articles")
	if updates := GetCacheUpdates(req, res); updates != nil {
		t.Fatalf("Safe request returned updates %v", updates)
	}
}

func TestGetCacheUpdatesErrorResponse(t *testing.T) {
	req, res := newExchange(t, "DELETE", "/articles")
	res.StatusCode = http.StatusConflict
	if updates := GetCacheUpdates(req, res); updates != nil {
		t.Fatalf("Error response returned updates %v", updates)
	}
}

func TestGetDelay(t *testing.T) {
	tests := []struct {
		params string
		delay  time.Duration
	}{
		{"", 0},
		{" delay=10", 10 * time.Second},
		{" DELAY=3", 3 * time.Second},
		{" delay=soon", 0},
	}
	for _, tt := range tests {
		if got := getDelay(tt.params); got != tt.delay {
			t.Errorf("getDelay(%q) = %s, want %s", tt.params, got, tt.delay)
		}
	}
}
