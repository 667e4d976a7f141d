package cookie

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// PublicSuffixList decides which domains are public suffixes.
// It is satisfied by publicsuffix.List from golang.org/x/net.
type PublicSuffixList interface {
	PublicSuffix(domain string) string
}

// Jar is an in-memory cookie jar.
// No two stored cookies share the same (domain, path, name) tuple.
//
// Jar is safe for concurrent use.
type Jar struct {
	mu      sync.RWMutex
	cookies []Cookie
	now     func() time.Time
	strict  bool
	psl     PublicSuffixList
}

type JarOption func(*Jar)

// WithClock sets the clock used for expiry checks.
func WithClock(now func() time.Time) JarOption {
	return func(j *Jar) {
		j.now = now
	}
}

// WithStrictMode makes SetCookie and ExtractCookies report invalid cookies as errors.
func WithStrictMode() JarOption {
	return func(j *Jar) {
		j.strict = true
	}
}

// WithPublicSuffixList rejects cookies scoped to a public suffix such as "co.uk".
func WithPublicSuffixList(list PublicSuffixList) JarOption {
	return func(j *Jar) {
		j.psl = list
	}
}

// WithPublicSuffixes uses the public suffix list compiled into golang.org/x/net.
func WithPublicSuffixes() JarOption {
	return WithPublicSuffixList(publicsuffix.List)
}

func NewJar(opts ...JarOption) *Jar {
	j := &Jar{now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Filter narrows the cookies returned by All and Remove.
// Empty string fields match anything.
type Filter struct {
	Domain string
	Path   string
	Name   string
	// SkipDiscardable leaves out session cookies marked Discard.
	SkipDiscardable bool
	// IncludeExpired returns cookies whose expiry has passed.
	IncludeExpired bool
}

func (f Filter) match(c Cookie, now time.Time) bool {
	if f.Domain != "" && !c.MatchesDomain(f.Domain) {
		return false
	}
	if f.Path != "" && !c.MatchesPath(f.Path) {
		return false
	}
	if f.Name != "" && f.Name != c.Name {
		return false
	}
	if f.SkipDiscardable && c.Discard {
		return false
	}
	if !f.IncludeExpired && c.IsExpired(now) {
		return false
	}
	return true
}

// Add stores the cookie, resolving conflicts with stored cookies of the same identity.
// It returns false when the cookie is invalid. An invalid cookie with an empty value
// deletes the matching stored cookie, which is how servers remove cookies.
func (j *Jar) Add(c Cookie) bool {
	ok, _ := j.SetCookie(c)
	return ok
}

// SetCookie is Add with the validation error returned in strict mode.
func (j *Jar) SetCookie(c Cookie) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.set(c)
}

func (j *Jar) set(c Cookie) (bool, error) {
	if err := j.validate(c); err != nil {
		log.Debug().Str("cookie", c.Name).Str("domain", c.Domain).Err(err).Msg("Rejecting cookie")
		if c.Value == "" {
			// only the stored cookie with the same identity goes
			if n := j.removeWhere(c.sameIdentity); n > 0 {
				log.Debug().Str("cookie", c.Name).Str("domain", c.Domain).Msg("Deleted cookie by empty value")
			}
		}
		if j.strict {
			return false, err
		}
		return false, nil
	}

	for i, old := range j.cookies {
		if !old.sameIdentity(c) {
			continue
		}
		if !supersedes(c, old) {
			// already stored
			return true, nil
		}
		j.cookies = append(j.cookies[:i], j.cookies[i+1:]...)
		break
	}
	j.cookies = append(j.cookies, c.Clone())
	return true, nil
}

// supersedes reports whether the incoming cookie replaces a stored one with the same identity.
func supersedes(incoming, stored Cookie) bool {
	if !incoming.Discard && stored.Discard {
		return true
	}
	if incoming.Expires.After(stored.Expires) {
		return true
	}
	return incoming.Value != stored.Value
}

func (j *Jar) validate(c Cookie) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if j.psl != nil {
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		// single label hosts such as localhost stay usable
		if suffix := j.psl.PublicSuffix(domain); suffix == domain && strings.Contains(domain, ".") {
			return &ValidationError{Name: c.Name, Reason: "the cookie domain " + domain + " is a public suffix"}
		}
	}
	return nil
}

// All returns copies of the stored cookies that pass the filter.
func (j *Jar) All(f Filter) []Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.all(f)
}

func (j *Jar) all(f Filter) []Cookie {
	now := j.now()
	result := make([]Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		if f.match(c, now) {
			result = append(result, c.Clone())
		}
	}
	return result
}

func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.cookies)
}

// Matching returns the cookies to send with a request to u,
// most specific path first.
func (j *Jar) Matching(u *url.URL) []Cookie {
	host := u.Hostname()
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	port := urlPort(u)
	secure := strings.EqualFold(u.Scheme, "https")

	j.mu.RLock()
	now := j.now()
	var matched []Cookie
	for _, c := range j.cookies {
		if c.MatchesDomain(host) &&
			c.MatchesPath(path) &&
			c.MatchesPort(port) &&
			(!c.Secure || secure) &&
			!c.IsExpired(now) {
			matched = append(matched, c.Clone())
		}
	}
	j.mu.RUnlock()

	sort.SliceStable(matched, func(a, b int) bool {
		return len(matched[a].Path) > len(matched[b].Path)
	})
	return matched
}

// AddCookieHeader sets the Cookie header of the request from the matching cookies.
// The header is left alone when nothing matches.
func (j *Jar) AddCookieHeader(req *http.Request) {
	cookies := j.Matching(req.URL)
	if len(cookies) == 0 {
		return
	}
	pairs := make([]string, len(cookies))
	for i, c := range cookies {
		pairs[i] = c.Name + "=" + c.headerValue()
	}
	req.Header.Set("Cookie", strings.Join(pairs, "; "))
}

// ExtractCookies stores the cookies from the Set-Cookie headers of the response.
// Cookies without a domain are scoped to the request host when req is not nil.
// Malformed headers are skipped. The error is only set in strict mode.
func (j *Jar) ExtractCookies(res *http.Response, req *http.Request) (int, error) {
	var result *multierror.Error
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	stored := 0
	for _, raw := range res.Header.Values("Set-Cookie") {
		c, err := ParseAt(raw, now)
		if err != nil {
			log.Debug().Err(err).Msg("Skipping Set-Cookie header")
			continue
		}
		if c.Domain == "" && req != nil {
			c.Domain = req.URL.Hostname()
		}
		ok, err := j.set(c)
		if err != nil {
			result = multierror.Append(result, err)
		}
		if ok {
			stored++
		}
	}
	return stored, result.ErrorOrNil()
}

// RemoveExpired deletes every cookie whose expiry has passed.
func (j *Jar) RemoveExpired() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	return j.removeWhere(func(c Cookie) bool {
		return c.IsExpired(now)
	})
}

// RemoveTemporary deletes the session cookies: those marked Discard or without an expiry.
func (j *Jar) RemoveTemporary() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.removeWhere(Cookie.IsSession)
}

// Remove deletes the cookies matching every non-empty argument.
func (j *Jar) Remove(domain, path, name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.remove(domain, path, name)
}

func (j *Jar) remove(domain, path, name string) int {
	f := Filter{Domain: domain, Path: path, Name: name, IncludeExpired: true}
	now := j.now()
	return j.removeWhere(func(c Cookie) bool {
		return f.match(c, now)
	})
}

// Clear is Remove, except that without any argument the whole jar is emptied.
func (j *Jar) Clear(domain, path, name string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if domain == "" && path == "" && name == "" {
		n := len(j.cookies)
		j.cookies = nil
		return n
	}
	return j.remove(domain, path, name)
}

func (j *Jar) removeWhere(drop func(Cookie) bool) int {
	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if !drop(c) {
			kept = append(kept, c)
		}
	}
	removed := len(j.cookies) - len(kept)
	// clear the tail so dropped cookies can be collected
	for i := len(kept); i < len(j.cookies); i++ {
		j.cookies[i] = Cookie{}
	}
	j.cookies = kept
	return removed
}

// Serialize encodes the persistent cookies as a JSON array.
// Discarded and expired cookies are left out.
func (j *Jar) Serialize() ([]byte, error) {
	cookies := j.All(Filter{SkipDiscardable: true})
	return json.Marshal(cookies)
}

// Unserialize replaces the jar contents with the cookies in data.
// Invalid cookies are skipped.
func (j *Jar) Unserialize(data []byte) error {
	var cookies []Cookie
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &cookies); err != nil {
			return err
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = nil
	for _, c := range cookies {
		if ok, _ := j.set(c); !ok {
			log.Debug().Str("cookie", c.Name).Str("domain", c.Domain).Msg("Skipping stored cookie")
		}
	}
	return nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	for _, hc := range cookies {
		c := FromHTTPCookie(hc, now)
		if c.Domain == "" {
			c.Domain = u.Hostname()
		}
		j.set(c)
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	matched := j.Matching(u)
	cookies := make([]*http.Cookie, len(matched))
	for i, c := range matched {
		cookies[i] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
	return cookies
}

func urlPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if strings.EqualFold(u.Scheme, "https") {
		return 443
	}
	return 80
}
