package cachejar

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/always-cache/cachejar/cookie"
	"github.com/always-cache/cachejar/metrics"
	responsetransformer "github.com/always-cache/cachejar/pkg/response-transformer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	res, err := client.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, string(body)
}

func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &count
}

func TestTransportReturnsSecondRequestFromCache(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("Content-Type", "text/test")
		w.Write([]byte("Hello world"))
	})
	client := New(Config{}).Client()

	res, body := get(t, client, srv.URL)
	if body != "Hello world" {
		t.Fatalf("Body is %s", body)
	}
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=uri-miss") || !strings.Contains(cs, "stored") {
		t.Fatalf("Cache-Status of first response is %s", cs)
	}

	res, body = get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 1 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
	if body != "Hello world" {
		t.Fatalf("Body is %s", body)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/test" {
		t.Fatalf("Content-Type header is %s", ct)
	}
	if cs := res.Header.Get("Cache-Status"); !strings.HasPrefix(cs, "cachejar; hit") {
		t.Fatalf("Cache-Status of second response is %s", cs)
	}
	if res.Header.Get("Age") == "" {
		t.Fatal("Age header not set")
	}
}

func TestNoStoreIsNotCached(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte("secret"))
	})
	client := New(Config{}).Client()

	get(t, client, srv.URL)
	get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 2 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
}

func TestRequestNoStoreBypassesCache(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte("body"))
	})
	client := New(Config{}).Client()
	get(t, client, srv.URL)

	req, _ := http.NewRequest("GET", srv.URL, nil)
	req.Header.Set("Cache-Control", "no-store")
	res, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if atomic.LoadInt32(count) != 2 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=request") {
		t.Fatalf("Cache-Status is %s", cs)
	}
}

func TestCacheOnlyCacheableStatus(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("error"))
	})
	client := New(Config{}).Client()

	get(t, client, srv.URL)
	get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 2 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
}

func TestUnsafeMethodInvalidates(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte(r.Method))
	})
	client := New(Config{}).Client()

	get(t, client, srv.URL+"/item")
	res, err := client.Post(srv.URL+"/item", "text/plain", strings.NewReader("update"))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=method") {
		t.Fatalf("Cache-Status of POST is %s", cs)
	}

	_, body := get(t, client, srv.URL+"/item")
	if atomic.LoadInt32(count) != 3 || body != "GET" {
		t.Fatalf("Origin called %d times, body %s", atomic.LoadInt32(count), body)
	}
}

func TestCacheUpdateInvalidates(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Cache-Update", "/list")
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte(r.URL.Path))
	})
	client := New(Config{}).Client()

	get(t, client, srv.URL+"/list")
	res, err := client.Post(srv.URL+"/items", "text/plain", strings.NewReader("new"))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()

	get(t, client, srv.URL+"/list")
	if atomic.LoadInt32(count) != 3 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
}

func etagServer(t *testing.T, cacheControl string, status *int32) (*httptest.Server, *int32) {
	return countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if s := int(atomic.LoadInt32(status)); s != 0 && r.Header.Get("If-None-Match") != "" {
			w.WriteHeader(s)
			fmt.Fprintf(w, "status %d", s)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", cacheControl)
		w.Write([]byte("hello"))
	})
}

func TestRevalidationNotModified(t *testing.T) {
	var status int32
	srv, count := etagServer(t, "no-cache", &status)
	client := New(Config{}).Client()

	get(t, client, srv.URL)
	res, body := get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 2 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
	if body != "hello" {
		t.Fatalf("Body is %s", body)
	}
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=stale; fwd-status=304") {
		t.Fatalf("Cache-Status is %s", cs)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Status is %d", res.StatusCode)
	}
}

func TestRevalidationReplaces(t *testing.T) {
	var version int32 = 1
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		etag := fmt.Sprintf(`"v%d"`, atomic.LoadInt32(&version))
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(etag))
	})
	client := New(Config{}).Client()

	get(t, client, srv.URL)
	atomic.StoreInt32(&version, 2)
	res, body := get(t, client, srv.URL)
	if body != `"v2"` {
		t.Fatalf("Body is %s", body)
	}
	if cs := res.Header.Get("Cache-Status"); !strings.Contains(cs, "fwd-status=200") || !strings.Contains(cs, "stored") {
		t.Fatalf("Cache-Status is %s", cs)
	}
	_, body = get(t, client, srv.URL)
	if body != `"v2"` {
		t.Fatalf("Body after replacement is %s", body)
	}
}

func TestRevalidationMismatchedNotModifiedRefetches(t *testing.T) {
	var version int32 = 1
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		etag := fmt.Sprintf(`"v%d"`, atomic.LoadInt32(&version))
		if r.Header.Get("If-None-Match") != "" {
			// answers every conditional request with the current validator
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte("body " + etag))
	})
	client := New(Config{}).Client()

	get(t, client, srv.URL)
	atomic.StoreInt32(&version, 2)
	res, body := get(t, client, srv.URL)
	if body != `body "v2"` {
		t.Fatalf("Body is %s", body)
	}
	if res.StatusCode != http.StatusOK || res.Header.Get("ETag") != `"v2"` {
		t.Fatalf("Got %d with ETag %s", res.StatusCode, res.Header.Get("ETag"))
	}
	if atomic.LoadInt32(count) != 3 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}

	// the refetched response replaced the stored one
	_, body = get(t, client, srv.URL)
	if body != `body "v2"` {
		t.Fatalf("Body after refetch is %s", body)
	}
}

func TestRevalidationGoneDeletes(t *testing.T) {
	var status int32
	srv, _ := etagServer(t, "no-cache", &status)
	transport := New(Config{})
	client := transport.Client()

	get(t, client, srv.URL)
	atomic.StoreInt32(&status, http.StatusGone)
	res, body := get(t, client, srv.URL)
	if res.StatusCode != http.StatusGone || body != "status 410" {
		t.Fatalf("Got %d %s", res.StatusCode, body)
	}
	req, _ := http.NewRequest("GET", srv.URL, nil)
	if cached, err := transport.Storage().Fetch(req); err != nil || cached != nil {
		t.Fatalf("Stored response not deleted: %v %v", cached, err)
	}
}

func TestRevalidationFailure(t *testing.T) {
	var status int32
	srv, _ := etagServer(t, "no-cache", &status)
	client := New(Config{}).Client()

	get(t, client, srv.URL)
	atomic.StoreInt32(&status, http.StatusInternalServerError)
	_, err := client.Get(srv.URL)
	var rerr *RevalidationError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected RevalidationError, got %v", err)
	}
	if rerr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Status is %d", rerr.StatusCode)
	}
}

func TestStaleIfErrorServesStale(t *testing.T) {
	var status int32
	srv, _ := etagServer(t, "no-cache, stale-if-error=60", &status)
	client := New(Config{}).Client()

	get(t, client, srv.URL)
	atomic.StoreInt32(&status, http.StatusServiceUnavailable)
	res, body := get(t, client, srv.URL)
	if body != "hello" {
		t.Fatalf("Body is %s", body)
	}
	if w := strings.Join(res.Header.Values("Warning"), ","); !strings.Contains(w, "111") {
		t.Fatalf("Warning is %s", w)
	}
}

func TestStaleOnTransportError(t *testing.T) {
	var calls int32
	next := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) > 1 {
			return nil, errors.New("connection refused")
		}
		res := &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("cached")),
			Request:    r,
		}
		res.Header.Set("Cache-Control", "no-cache")
		res.Header.Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		return res, nil
	})

	client := New(Config{Next: next, StaleOnError: true}).Client()
	get(t, client, "http://example.com/")
	res, body := get(t, client, "http://example.com/")
	if body != "cached" || res.Header.Get("Warning") == "" {
		t.Fatalf("Expected stale response, got %s", body)
	}

	atomic.StoreInt32(&calls, 0)
	strict := New(Config{Next: next}).Client()
	get(t, strict, "http://example.com/")
	_, err := strict.Get("http://example.com/")
	var rerr *RevalidationError
	if !errors.As(err, &rerr) || rerr.Err == nil {
		t.Fatalf("Expected RevalidationError with cause, got %v", err)
	}
}

func TestRevalidatePolicies(t *testing.T) {
	var status int32
	srv, count := etagServer(t, "no-cache", &status)

	skip := New(Config{Revalidate: RevalidateSkip}).Client()
	get(t, skip, srv.URL)
	res, _ := get(t, skip, srv.URL)
	if atomic.LoadInt32(count) != 1 || !strings.Contains(res.Header.Get("Cache-Status"), "hit") {
		t.Fatalf("Skip policy called origin %d times", atomic.LoadInt32(count))
	}

	never := New(Config{Revalidate: RevalidateNever}).Client()
	get(t, never, srv.URL)
	res, _ = get(t, never, srv.URL)
	if res.Request.Header.Get("If-None-Match") != "" {
		t.Fatal("Never policy sent a conditional request")
	}
	if atomic.LoadInt32(count) != 3 {
		t.Fatalf("Never policy called origin %d times", atomic.LoadInt32(count)-1)
	}
}

func TestExpiryWithClock(t *testing.T) {
	clock := &testClock{now: time.Now()}
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=100")
		w.Write([]byte("body"))
	})
	client := New(Config{Clock: clock.Now}).Client()

	get(t, client, srv.URL)
	clock.Advance(50 * time.Second)
	get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 1 {
		t.Fatalf("Origin called %d times before expiry", atomic.LoadInt32(count))
	}
	clock.Advance(100 * time.Second)
	get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 2 {
		t.Fatalf("Origin called %d times after expiry", atomic.LoadInt32(count))
	}
}

func TestCookies(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if r.URL.Path == "/login" {
			w.Header().Add("Set-Cookie", "session=abc; Path=/")
			return
		}
		w.Write([]byte(r.Header.Get("Cookie")))
	})
	jar := cookie.NewJar()
	client := New(Config{Jar: jar}).Client()

	get(t, client, srv.URL+"/login")
	if jar.Len() != 1 {
		t.Fatalf("Jar has %d cookies", jar.Len())
	}
	_, body := get(t, client, srv.URL+"/me")
	if body != "session=abc" {
		t.Fatalf("Cookie header is %s", body)
	}
}

func TestStoredResponsesHaveNoCookies(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Add("Set-Cookie", "tracking=1")
		w.Write([]byte("body"))
	})
	jar := cookie.NewJar()
	client := New(Config{Jar: jar}).Client()

	res, _ := get(t, client, srv.URL)
	if res.Header.Get("Set-Cookie") == "" {
		t.Fatal("Origin response should keep Set-Cookie")
	}
	res, _ = get(t, client, srv.URL)
	if res.Header.Get("Set-Cookie") != "" {
		t.Fatal("Stored response must not replay Set-Cookie")
	}
}

func TestPurge(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte("body"))
	})
	transport := New(Config{})
	client := transport.Client()
	get(t, client, srv.URL)

	req, _ := http.NewRequest(MethodPurge, srv.URL, nil)
	res, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	if body, _ := io.ReadAll(res.Body); string(body) != "purged" {
		t.Fatalf("Body is %s", body)
	}

	get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 2 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
}

func TestDisableCache(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
	})
	client := New(Config{DisableCache: true}).Client()
	get(t, client, srv.URL)
	res, _ := get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 2 || !strings.Contains(res.Header.Get("Cache-Status"), "fwd=bypass") {
		t.Fatalf("Origin called %d times, status %s", atomic.LoadInt32(count), res.Header.Get("Cache-Status"))
	}
}

func TestRulesMakeResponsesCacheable(t *testing.T) {
	srv, count := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})
	client := New(Config{
		Rules: responsetransformer.Rules{{Status: []int{http.StatusFound}, Default: "max-age=60"}},
	}).Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	get(t, client, srv.URL)
	get(t, client, srv.URL)
	if atomic.LoadInt32(count) != 1 {
		t.Fatalf("Origin called %d times", atomic.LoadInt32(count))
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
	})
	m := metrics.NewMetrics(prometheus.NewRegistry())
	client := New(Config{Metrics: m}).Client()

	get(t, client, srv.URL)
	get(t, client, srv.URL)
	if hits := testutil.ToFloat64(m.Lookups.WithLabelValues(metrics.ResultHit)); hits != 1 {
		t.Fatalf("Hits are %v", hits)
	}
	if stores := testutil.ToFloat64(m.Stores); stores != 1 {
		t.Fatalf("Stores are %v", stores)
	}
}

func TestConcurrentRevalidation(t *testing.T) {
	var status int32
	srv, _ := etagServer(t, "no-cache", &status)
	client := New(Config{}).Client()
	get(t, client, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Get(srv.URL)
			if err != nil {
				t.Error(err)
				return
			}
			defer res.Body.Close()
			if body, _ := io.ReadAll(res.Body); string(body) != "hello" {
				t.Errorf("Body is %s", body)
			}
		}()
	}
	wg.Wait()
}
