package rfc9111

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CacheControl implements parsing of the "Cache-Control" header (/field).
//
// §  5.2. Cache-Control
// §
// §  The "Cache-Control" header field is used to list directives for caches along
// §  the request/response chain. Cache directives are unidirectional, in that the
// §  presence of a directive in a request does not imply that the same directive is
// §  present or copied in the response.
// §
// §  [...] Cache directives are identified by a token, to
// §  be compared case-insensitively, and have an optional argument that can use both
// §  token and quoted-string syntax.
// §
// §    Cache-Control   = #cache-directive
// §
// §    cache-directive = token [ "=" ( token / quoted-string ) ]
type CacheControl struct {
	directives map[string]directive
}

type directive struct {
	arg    string
	hasArg bool
}

// Get returns the value (/argument) of the specified directive,
// along with a boolean indicating whether this directive is present
func (c CacheControl) Get(name string) (string, bool) {
	d, ok := c.directives[name]
	return d.arg, ok
}

// HasDirective returns whether the specified directive is present
func (c CacheControl) HasDirective(name string) bool {
	_, ok := c.directives[name]
	return ok
}

// IsFlag returns whether the directive is present without an argument.
func (c CacheControl) IsFlag(name string) bool {
	d, ok := c.directives[name]
	return ok && !d.hasArg
}

// Len returns the number of distinct directives.
func (c CacheControl) Len() int {
	return len(c.directives)
}

// ParseCacheControl takes Cache-Control headers as a slice of strings
// and returns an instance of `CacheControl`.
// Malformed directives are skipped.
func ParseCacheControl(headers []string) CacheControl {
	m := make(map[string]directive)
	// note setting map values like this means last defined directive wins
	for _, header := range headers {
		// "#" means comma-separated list
		for _, token := range splitDirectives(header) {
			name, arg, hasArg := strings.Cut(token, "=")
			name = getCacheControlDirectiveName(name)
			if !isToken(name) {
				log.Trace().Str("directive", token).Msg("Skipping malformed Cache-Control directive")
				continue
			}
			d := directive{hasArg: hasArg}
			if hasArg {
				d.arg = getCacheControlDirectiveArgument(arg)
			}
			m[name] = d
		}
	}
	return CacheControl{m}
}

// RequestCacheControl parses the directives of a request.
func RequestCacheControl(req *http.Request) CacheControl {
	return ParseCacheControl(req.Header.Values("Cache-Control"))
}

// ResponseCacheControl parses the directives of a response.
func ResponseCacheControl(res *http.Response) CacheControl {
	return ParseCacheControl(res.Header.Values("Cache-Control"))
}

// splitDirectives splits on commas outside of quoted strings.
func splitDirectives(header string) []string {
	var tokens []string
	start := 0
	quoted := false
	for i := 0; i < len(header); i++ {
		switch header[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				tokens = append(tokens, strings.TrimSpace(header[start:i]))
				start = i + 1
			}
		}
	}
	tokens = append(tokens, strings.TrimSpace(header[start:]))

	result := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}

// getCacheControlDirectiveName returns a normalized name for the given directive.
func getCacheControlDirectiveName(token string) string {
	// §  [...] to be compared case-insensitively [...]
	return strings.ToLower(strings.TrimSpace(token))
}

// getCacheControlDirectiveArgument returns the directive argument in token form,
// i.e. it converts the argument from "quoted-string" to "token" form if needed.
func getCacheControlDirectiveArgument(arg string) string {
	// §  [...] argument that can use both token and quoted-string syntax. [...]
	return strings.Trim(strings.TrimSpace(arg), "\"")
}

// isToken checks the RFC 9110 token grammar.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r >= 127 || strings.ContainsRune(`"(),/:;<=>?@[\]{}`, r) {
			return false
		}
	}
	return true
}

// MaxAge returns "max-age" as a duration, along with a boolean indicating
// whether the "max-age" directive was present.
//
// §  5.2.1.1. max-age
// §
// §  Argument syntax:
// §
// §    delta-seconds (see Section 1.2.2)
// §
// §  The max-age request directive indicates that the client prefers a response
// §  whose age is less than or equal to the specified number of seconds.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.getDeltaSeconds("max-age")
}

// SMaxAge returns the shared cache max age.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.getDeltaSeconds("s-maxage")
}

// MinFresh returns the "min-fresh" request directive.
func (c CacheControl) MinFresh() (time.Duration, bool) {
	return c.getDeltaSeconds("min-fresh")
}

// MaxStale returns the "max-stale" request directive.
// unlimited is set when the directive has no argument.
//
// §  5.2.1.2. max-stale
// §
// §  The max-stale request directive indicates that the client will accept a
// §  response that has exceeded its freshness lifetime. If a value is present,
// §  then the client is willing to accept a response that has exceeded its
// §  freshness lifetime by no more than the specified number of seconds. If no
// §  value is assigned to max-stale, then the client will accept a stale
// §  response of any age.
func (c CacheControl) MaxStale() (limit time.Duration, unlimited bool, present bool) {
	return c.getStaleWindow("max-stale")
}

// StaleIfError returns the RFC 5861 "stale-if-error" directive.
// unlimited is set when the directive has no argument.
func (c CacheControl) StaleIfError() (limit time.Duration, unlimited bool, present bool) {
	return c.getStaleWindow("stale-if-error")
}

func (c CacheControl) getStaleWindow(name string) (time.Duration, bool, bool) {
	d, ok := c.directives[name]
	if !ok {
		return 0, false, false
	}
	if !d.hasArg || d.arg == "" {
		return 0, true, true
	}
	limit, valid := parseDeltaSeconds(d.arg)
	if !valid {
		return 0, false, false
	}
	return limit, false, true
}

// NoCache reports the "no-cache" directive, with or without field names.
func (c CacheControl) NoCache() bool {
	return c.HasDirective("no-cache")
}

// NoStore reports the "no-store" directive.
func (c CacheControl) NoStore() bool {
	return c.HasDirective("no-store")
}

// MustRevalidate reports "must-revalidate" (and "proxy-revalidate", which a private cache treats alike).
func (c CacheControl) MustRevalidate() bool {
	return c.HasDirective("must-revalidate") || c.HasDirective("proxy-revalidate")
}

// getDeltaSeconds returns the "delta-seconds" as `time.Duration`,
// as well as a boolean indicating whether the directive was set.
//
// Examples:
// directive     -> 0,  false
// directive=0   -> 0,  true
// directive=60  -> 60, true
// directive=abc -> 0,  false
func (c CacheControl) getDeltaSeconds(name string) (time.Duration, bool) {
	if secondsStr, ok := c.Get(name); ok && secondsStr != "" {
		return parseDeltaSeconds(secondsStr)
	}
	return 0, false
}
