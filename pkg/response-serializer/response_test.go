package serializer

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestReadBodyKeepsBodyIntact(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nServer: Test\r\nContent-Length: 16\r\n\r\nThis is the body"

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		t.Fatal(err)
	}

	b, err := ReadBody(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if string(b) != "This is the body" {
		t.Fatalf("Read body: %s", b)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if string(body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestReadBodyWithoutBody(t *testing.T) {
	b, err := ReadBody(&http.Response{Body: http.NoBody})
	if err != nil || b != nil {
		t.Fatalf("Expected no body, got %q, %v", b, err)
	}
}

func TestManifestSerialization(t *testing.T) {
	expires := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{
			RequestHeader:  http.Header{"Accept-Encoding": {"gzip"}},
			ResponseHeader: http.Header{"Vary": {"Accept-Encoding"}, "Etag": {`"abc"`}},
			StatusCode:     200,
			BodyKey:        "httpcache_body",
			Expires:        expires.Unix(),
		},
		{StatusCode: 204, Expires: expires.Add(time.Hour).Unix()},
	}
	b, err := ManifestToBytes(entries)
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	decoded, err := BytesToManifest(b)
	if err != nil {
		t.Fatalf("Error decoding: %+v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("Decoded %d entries", len(decoded))
	}
	if decoded[0].ResponseHeader.Get("ETag") != `"abc"` || decoded[0].BodyKey != "httpcache_body" {
		t.Fatalf("First entry wrong %+v", decoded[0])
	}
	if !decoded[0].ExpiresAt().Equal(expires) {
		t.Fatalf("Expiry is %v", decoded[0].ExpiresAt())
	}
	if decoded[1].RequestHeader == nil || decoded[1].ResponseHeader == nil {
		t.Fatal("Missing headers should decode as empty headers")
	}
}

func TestBytesToManifestRejectsGarbage(t *testing.T) {
	if _, err := BytesToManifest([]byte("garbage")); err == nil {
		t.Fatal("Expected error")
	}
	if _, err := BytesToManifest([]byte(`{"v":99,"entries":[]}`)); err == nil {
		t.Fatal("Expected version error")
	}
}

func TestEntryToResponse(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/", nil)
	e := Entry{StatusCode: 200, ResponseHeader: http.Header{"Content-Type": {"text/plain"}}}
	res := EntryToResponse(e, []byte("hello"), req)
	if res.StatusCode != 200 || res.Status != "200 OK" || res.Request != req {
		t.Fatalf("Unexpected response %+v", res)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "hello" || res.ContentLength != 5 {
		t.Fatalf("Body is %q", body)
	}

	res.Header.Set("Content-Type", "changed")
	if e.ResponseHeader.Get("Content-Type") != "text/plain" {
		t.Fatal("Entry header must not be aliased")
	}

	head, _ := http.NewRequest("HEAD", "http://example.com/", nil)
	if res := EntryToResponse(e, []byte("hello"), head); res.Body != http.NoBody {
		t.Fatal("HEAD responses have no body")
	}
}

func TestEntryIsExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Entry{Expires: now.Unix()}
	if !e.IsExpired(now) || e.IsExpired(now.Add(-time.Second)) {
		t.Fatal("Expiry boundary wrong")
	}
}
