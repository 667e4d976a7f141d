// Package cookie implements an RFC 6265 cookie jar with optional file persistence.
package cookie

import (
	"encoding/json"
	"net"
	"strings"
	"time"
)

// Cookie is a single HTTP cookie with its RFC 6265 (and RFC 2965) attributes.
//
// A zero Expires means the cookie has no absolute expiry.
// Ports empty means any port matches.
type Cookie struct {
	Name       string
	Value      string
	Domain     string
	Path       string
	Expires    time.Time
	MaxAge     int
	Secure     bool
	Discard    bool
	HttpOnly   bool
	Ports      []int
	Version    string
	Comment    string
	CommentURL string
	// Attributes holds Set-Cookie tokens that are not part of the known attribute set.
	Attributes map[string]string
}

// New returns a cookie with the default path set.
func New(name, value, domain string) Cookie {
	return Cookie{Name: name, Value: value, Domain: domain, Path: "/"}
}

// Clone returns a deep copy, so the caller never shares slices or maps with a stored cookie.
func (c Cookie) Clone() Cookie {
	cc := c
	if c.Ports != nil {
		cc.Ports = append([]int(nil), c.Ports...)
	}
	if c.Attributes != nil {
		cc.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			cc.Attributes[k] = v
		}
	}
	return cc
}

// HasExpiry reports whether the cookie carries an absolute expiry.
func (c Cookie) HasExpiry() bool {
	return !c.Expires.IsZero()
}

// IsExpired reports whether the cookie has an expiry and it lies before now.
func (c Cookie) IsExpired(now time.Time) bool {
	return c.HasExpiry() && now.After(c.Expires)
}

// IsSession reports whether the cookie should be dropped at the end of the session.
func (c Cookie) IsSession() bool {
	return c.Discard || !c.HasExpiry()
}

// MatchesDomain checks whether the cookie may be sent to the given host.
func (c Cookie) MatchesDomain(host string) bool {
	domain := strings.TrimPrefix(c.Domain, ".")
	// an empty domain was never scoped, and it matches everything
	if domain == "" || strings.EqualFold(domain, host) {
		return true
	}
	if net.ParseIP(host) != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain))
}

// MatchesPath checks whether the cookie path is a prefix of the request path.
func (c Cookie) MatchesPath(path string) bool {
	if c.Path == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(path), strings.ToLower(c.Path))
}

// MatchesPort checks whether the port is allowed.
func (c Cookie) MatchesPort(port int) bool {
	if len(c.Ports) == 0 {
		return true
	}
	for _, p := range c.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// sameIdentity reports whether both cookies share the (path, domain, name) tuple.
func (c Cookie) sameIdentity(o Cookie) bool {
	return c.Path == o.Path && c.Domain == o.Domain && c.Name == o.Name
}

// headerValue is the value as it goes into a Cookie request header.
func (c Cookie) headerValue() string {
	if strings.ContainsAny(c.Value, ";,") {
		return `"` + c.Value + `"`
	}
	return c.Value
}

// String renders the cookie as a Set-Cookie header value.
func (c Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name + "=" + c.headerValue())
	if c.Domain != "" {
		b.WriteString("; Domain=" + c.Domain)
	}
	if c.Path != "" {
		b.WriteString("; Path=" + c.Path)
	}
	if c.HasExpiry() {
		b.WriteString("; Expires=" + c.Expires.UTC().Format(time.RFC1123))
	}
	if c.MaxAge != 0 {
		b.WriteString("; Max-Age=" + itoa(c.MaxAge))
	}
	if len(c.Ports) > 0 {
		ports := make([]string, len(c.Ports))
		for i, p := range c.Ports {
			ports[i] = itoa(p)
		}
		b.WriteString(`; Port="` + strings.Join(ports, ",") + `"`)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Discard {
		b.WriteString("; Discard")
	}
	return b.String()
}

// jsonCookie is the persisted form. Key names follow the Set-Cookie attribute names.
type jsonCookie struct {
	Name       string            `json:"Name"`
	Value      string            `json:"Value"`
	Domain     string            `json:"Domain"`
	Path       string            `json:"Path"`
	MaxAge     int               `json:"Max-Age,omitempty"`
	Expires    int64             `json:"Expires,omitempty"`
	Secure     bool              `json:"Secure"`
	Discard    bool              `json:"Discard"`
	HttpOnly   bool              `json:"HttpOnly"`
	Ports      []int             `json:"Port,omitempty"`
	Version    string            `json:"Version,omitempty"`
	Comment    string            `json:"Comment,omitempty"`
	CommentURL string            `json:"Comment-Url,omitempty"`
	Attributes map[string]string `json:"Attributes,omitempty"`
}

// MarshalJSON stores Expires as an absolute UNIX timestamp.
func (c Cookie) MarshalJSON() ([]byte, error) {
	jc := jsonCookie{
		Name:       c.Name,
		Value:      c.Value,
		Domain:     c.Domain,
		Path:       c.Path,
		MaxAge:     c.MaxAge,
		Secure:     c.Secure,
		Discard:    c.Discard,
		HttpOnly:   c.HttpOnly,
		Ports:      c.Ports,
		Version:    c.Version,
		Comment:    c.Comment,
		CommentURL: c.CommentURL,
		Attributes: c.Attributes,
	}
	if c.HasExpiry() {
		jc.Expires = c.Expires.Unix()
	}
	return json.Marshal(jc)
}

func (c *Cookie) UnmarshalJSON(data []byte) error {
	var jc jsonCookie
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}
	*c = Cookie{
		Name:       jc.Name,
		Value:      jc.Value,
		Domain:     jc.Domain,
		Path:       jc.Path,
		MaxAge:     jc.MaxAge,
		Secure:     jc.Secure,
		Discard:    jc.Discard,
		HttpOnly:   jc.HttpOnly,
		Ports:      jc.Ports,
		Version:    jc.Version,
		Comment:    jc.Comment,
		CommentURL: jc.CommentURL,
		Attributes: jc.Attributes,
	}
	if jc.Expires != 0 {
		c.Expires = time.Unix(jc.Expires, 0)
	}
	return nil
}
