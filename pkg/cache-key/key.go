package cachekey

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultPrefix namespaces all keys written by the cache.
const DefaultPrefix = "httpcache_"

const (
	clauseSeparator = ";"
	listSeparator   = ","
	headerSeparator = "\n"
)

// KeyFilter lists request parts that are left out of the cache key,
// so requests that only differ in volatile values share an entry.
type KeyFilter struct {
	// Headers are excluded from the key, compared case-insensitively.
	Headers []string
	// Query parameters are dropped from the URL before hashing.
	Query []string
}

// ParseKeyFilter reads the `header=H1,H2;query=Q1,Q2` notation.
// Unknown and malformed clauses are ignored.
func ParseKeyFilter(raw string) KeyFilter {
	var filter KeyFilter
	for _, clause := range strings.Split(raw, clauseSeparator) {
		name, list, found := strings.Cut(clause, "=")
		if !found {
			if strings.TrimSpace(clause) != "" {
				log.Trace().Str("clause", clause).Msg("Ignoring malformed key filter clause")
			}
			continue
		}
		var values []string
		for _, v := range strings.Split(list, listSeparator) {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "header":
			filter.Headers = append(filter.Headers, values...)
		case "query":
			filter.Query = append(filter.Query, values...)
		default:
			log.Trace().Str("clause", clause).Msg("Ignoring unknown key filter clause")
		}
	}
	return filter
}

// IsZero reports whether the filter leaves nothing out.
func (f KeyFilter) IsZero() bool {
	return len(f.Headers) == 0 && len(f.Query) == 0
}

func (f KeyFilter) excludesHeader(name string) bool {
	if strings.EqualFold(name, "Cache-Control") {
		return true
	}
	for _, h := range f.Headers {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func (f KeyFilter) excludesQuery(name string) bool {
	for _, q := range f.Query {
		if q == name {
			return true
		}
	}
	return false
}

// CacheKeyer derives storage keys for requests and response bodies.
type CacheKeyer struct {
	// Prefix is prepended to every key.
	Prefix string
	// Filter is nil for plain method and URL keys.
	Filter *KeyFilter
}

// NewCacheKeyer returns a keyer, an empty prefix means DefaultPrefix.
func NewCacheKeyer(prefix string, filter *KeyFilter) CacheKeyer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if filter != nil && filter.IsZero() {
		filter = nil
	}
	return CacheKeyer{
		Prefix: prefix,
		Filter: filter,
	}
}

// Key returns the manifest key of a request.
// Without a filter this is the digest of method and URL.
// With a filter the remaining query parameters are sorted and the remaining
// request headers become part of the digested signature.
func (c CacheKeyer) Key(req *http.Request) string {
	return c.Prefix + digest(c.Signature(req))
}

// URLKey returns the key a request with the given method and URL and no headers gets.
func (c CacheKeyer) URLKey(method string, rawURL string) (string, error) {
	req, err := http.NewRequest(method, rawURL, nil)
	if err != nil {
		return "", err
	}
	return c.Key(req), nil
}

// Signature is the undigested key material, handy when debugging key collisions.
func (c CacheKeyer) Signature(req *http.Request) string {
	if c.Filter == nil {
		return req.Method + " " + req.URL.String()
	}
	u := *req.URL
	u.RawQuery = c.filterQuery(req.URL.Query())
	return req.Method + " " + u.String() + headerSeparator + c.filterHeaders(req.Header)
}

// BodyKey returns the key of a response body blob.
// Bodies are stored by content, so identical bodies of one URL share a blob.
func (c CacheKeyer) BodyKey(url string, body []byte) string {
	sum := md5.Sum(body)
	return c.Prefix + digest(url) + hex.EncodeToString(sum[:])
}

func (c CacheKeyer) filterQuery(query url.Values) string {
	for name := range query {
		if c.Filter.excludesQuery(name) {
			query.Del(name)
		}
	}
	// Encode sorts by key
	return query.Encode()
}

func (c CacheKeyer) filterHeaders(header http.Header) string {
	names := make([]string, 0, len(header))
	for name := range header {
		if !c.Filter.excludesHeader(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(strings.ToLower(name))
		b.WriteString(": ")
		b.WriteString(strings.Join(header[name], ", "))
		b.WriteString(headerSeparator)
	}
	return b.String()
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
