package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one stored response variant of a manifest.
type Entry struct {
	// RequestHeader holds the persisted fields of the request that produced the response,
	// the Vary match runs against it.
	RequestHeader http.Header `json:"request_header"`
	// ResponseHeader holds the persisted response fields.
	ResponseHeader http.Header `json:"response_header"`
	StatusCode     int         `json:"status"`
	// BodyKey references the body blob, empty for responses without body.
	BodyKey string `json:"body_key,omitempty"`
	// Expires is the absolute expiry in UNIX seconds.
	Expires int64 `json:"expires"`
}

// ExpiresAt returns the expiry as time.
func (e Entry) ExpiresAt() time.Time {
	return time.Unix(e.Expires, 0)
}

// IsExpired reports whether the entry may no longer be used at the given time.
func (e Entry) IsExpired(now time.Time) bool {
	return now.Unix() >= e.Expires
}

// manifestVersion is bumped whenever the Entry layout changes incompatibly.
const manifestVersion = 1

type manifest struct {
	Version int     `json:"v"`
	Entries []Entry `json:"entries"`
}

// ManifestToBytes encodes the entries of one cache key, most recent first.
func ManifestToBytes(entries []Entry) ([]byte, error) {
	return json.Marshal(manifest{Version: manifestVersion, Entries: entries})
}

// BytesToManifest decodes a manifest written by ManifestToBytes.
func BytesToManifest(b []byte) ([]Entry, error) {
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("manifest version %d not supported", m.Version)
	}
	for i := range m.Entries {
		if m.Entries[i].RequestHeader == nil {
			m.Entries[i].RequestHeader = make(http.Header)
		}
		if m.Entries[i].ResponseHeader == nil {
			m.Entries[i].ResponseHeader = make(http.Header)
		}
	}
	return m.Entries, nil
}

// ReadBody reads the whole response body and sets a fresh reader in its place,
// so the response can still be consumed after storing it.
func ReadBody(res *http.Response) ([]byte, error) {
	if res.Body == nil || res.Body == http.NoBody {
		return nil, nil
	}
	b, err := io.ReadAll(res.Body)
	res.Body.Close()
	// set response body back, also the part read before a failure
	res.Body = io.NopCloser(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// EntryToResponse reconstructs a response from a stored entry and its body.
func EntryToResponse(e Entry, body []byte, req *http.Request) *http.Response {
	res := &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.ResponseHeader.Clone(),
		ContentLength: int64(len(body)),
		Request:       req,
	}
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	if len(body) > 0 {
		res.Body = io.NopCloser(bytes.NewReader(body))
	} else {
		res.Body = http.NoBody
	}
	if req != nil && req.Method == http.MethodHead {
		res.Body = http.NoBody
	}
	if cl := res.Header.Get("Content-Length"); cl != "" && len(body) == 0 {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			res.ContentLength = n
		} else {
			log.Trace().Str("content-length", cl).Msg("Ignoring invalid stored Content-Length")
		}
	}
	return res
}
