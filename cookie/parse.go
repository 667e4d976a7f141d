package cookie

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// cookieDateLayouts are tried after http.ParseTime, they cover the
// Netscape style dates that servers still send.
var cookieDateLayouts = []string{
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"Monday, 02-Jan-2006 15:04:05 MST",
}

// Parse reads a Set-Cookie header value using the current time
// to resolve Max-Age.
func Parse(raw string) (Cookie, error) {
	return ParseAt(raw, time.Now())
}

// ParseAt reads a Set-Cookie header value.
// The returned cookie is not validated; the jar does that when it is added.
func ParseAt(raw string, now time.Time) (Cookie, error) {
	c := Cookie{Path: "/"}

	pieces := strings.Split(raw, ";")
	parts := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 || !strings.Contains(parts[0], "=") {
		return c, ErrMalformed
	}

	name, value, _ := strings.Cut(parts[0], "=")
	c.Name = strings.TrimSpace(name)
	c.Value = unquote(value)

	var expires string
	maxAgeSet := false
	for _, part := range parts[1:] {
		key, val, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		val = unquote(val)

		switch strings.ToLower(key) {
		case "domain":
			c.Domain = val
		case "path":
			c.Path = val
		case "max-age":
			if n, err := strconv.Atoi(val); err == nil {
				c.MaxAge = n
				maxAgeSet = true
			}
		case "expires":
			expires = val
		case "version":
			c.Version = val
		case "secure":
			c.Secure = true
		case "discard":
			c.Discard = true
		case "httponly":
			c.HttpOnly = true
		case "port":
			c.Ports = parsePorts(val)
		case "comment":
			c.Comment = val
		case "comment-url", "commenturl":
			c.CommentURL = val
		default:
			if c.Attributes == nil {
				c.Attributes = make(map[string]string)
			}
			if !hasValue {
				val = "true"
			}
			c.Attributes[key] = val
		}
	}

	if expires != "" {
		if t, err := parseExpires(expires); err == nil {
			c.Expires = t
		}
	}
	if c.Expires.IsZero() && maxAgeSet && c.MaxAge != 0 {
		c.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return c, nil
}

// FromHTTPCookie converts a net/http cookie.
func FromHTTPCookie(hc *http.Cookie, now time.Time) Cookie {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   hc.Domain,
		Path:     hc.Path,
		Expires:  hc.Expires,
		MaxAge:   hc.MaxAge,
		Secure:   hc.Secure,
		HttpOnly: hc.HttpOnly,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.Expires.IsZero() && c.MaxAge != 0 {
		c.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return c
}

func parseExpires(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0), nil
	}
	if t, err := http.ParseTime(s); err == nil {
		return t, nil
	}
	for _, layout := range cookieDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable cookie date %q", s)
}

func parsePorts(s string) []int {
	var ports []int
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			ports = append(ports, n)
		}
	}
	return ports
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// Validate checks that the cookie can be stored.
// The returned error is a *ValidationError.
func (c Cookie) Validate() error {
	if c.Name == "" {
		return &ValidationError{Reason: "the cookie name must not be empty"}
	}
	if i := strings.IndexFunc(c.Name, isInvalidNameRune); i >= 0 {
		return &ValidationError{
			Name:   c.Name,
			Reason: fmt.Sprintf("the cookie name contains the invalid character %q", c.Name[i]),
		}
	}
	// "0" is a legitimate value, only the empty string is rejected
	if c.Value == "" {
		return &ValidationError{Name: c.Name, Reason: "the cookie value must not be empty"}
	}
	if c.Domain == "" {
		return &ValidationError{Name: c.Name, Reason: "the cookie domain must not be empty"}
	}
	return nil
}

func isInvalidNameRune(r rune) bool {
	switch {
	case r <= 32, r == 127:
		return true
	case r >= 58 && r <= 64: // :;<=>?@
		return true
	case r >= 91 && r <= 93: // [\]
		return true
	}
	switch r {
	case '"', '(', ')', ',', '/', '{', '}':
		return true
	}
	return false
}
