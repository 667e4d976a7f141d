package cookie

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseSetCookie(t *testing.T) {
	c, err := ParseAt(`SID="31d4d96e407aad42"; Path=/app; Domain=.example.com; Secure; HttpOnly; Max-Age=60; Priority=High; SameSite`, testNow)
	require.NoError(t, err)

	assert.Equal(t, "SID", c.Name)
	assert.Equal(t, "31d4d96e407aad42", c.Value)
	assert.Equal(t, "/app", c.Path)
	assert.Equal(t, ".example.com", c.Domain)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, 60, c.MaxAge)
	assert.Equal(t, testNow.Add(time.Minute), c.Expires)
	assert.Equal(t, map[string]string{"Priority": "High", "SameSite": "true"}, c.Attributes)
}

func TestParseAttributesCaseInsensitive(t *testing.T) {
	c, err := ParseAt(`a=b; DOMAIN=example.com; pAtH=/x; secure; DISCARD; port="80,8080"; comment=hi; Comment-Url=http://c; version=1`, testNow)
	require.NoError(t, err)

	assert.Equal(t, "example.com", c.Domain)
	assert.Equal(t, "/x", c.Path)
	assert.True(t, c.Secure)
	assert.True(t, c.Discard)
	assert.Equal(t, []int{80, 8080}, c.Ports)
	assert.Equal(t, "hi", c.Comment)
	assert.Equal(t, "http://c", c.CommentURL)
	assert.Equal(t, "1", c.Version)
	assert.Nil(t, c.Attributes)
}

func TestParseExpires(t *testing.T) {
	tests := []struct {
		header string
		want   time.Time
	}{
		{"a=b; Expires=Wed, 09 Jun 2021 10:18:14 GMT", time.Date(2021, 6, 9, 10, 18, 14, 0, time.UTC)},
		{"a=b; Expires=Wed, 09-Jun-2021 10:18:14 GMT", time.Date(2021, 6, 9, 10, 18, 14, 0, time.UTC)},
		{"a=b; Expires=1623233894", time.Unix(1623233894, 0)},
		// Expires wins over Max-Age
		{"a=b; Max-Age=10; Expires=1623233894", time.Unix(1623233894, 0)},
		{"a=b; Max-Age=-10", testNow.Add(-10 * time.Second)},
		{"a=b", time.Time{}},
		{"a=b; Expires=not a date", time.Time{}},
	}
	for _, tt := range tests {
		c, err := ParseAt(tt.header, testNow)
		require.NoError(t, err, tt.header)
		assert.True(t, tt.want.Equal(c.Expires), "%s: got %v", tt.header, c.Expires)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{"", " ; ", "novalue", "novalue; a=b"} {
		_, err := ParseAt(raw, testNow)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestParseKeepsEmptyValue(t *testing.T) {
	c, err := ParseAt("a=; Domain=example.com", testNow)
	require.NoError(t, err)
	assert.Equal(t, "", c.Value)
	assert.Equal(t, "/", c.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		cookie Cookie
		valid  bool
	}{
		{"valid", New("foo", "bar", "example.com"), true},
		{"zero value", New("foo", "0", "example.com"), true},
		{"empty name", New("", "bar", "example.com"), false},
		{"empty value", New("foo", "", "example.com"), false},
		{"empty domain", New("foo", "bar", ""), false},
		{"space in name", New("fo o", "bar", "example.com"), false},
		{"separator in name", New("foo=", "bar", "example.com"), false},
		{"brace in name", New("{foo}", "bar", "example.com"), false},
		{"control char", New("foo\x7f", "bar", "example.com"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cookie.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Reason)
		})
	}
}

func TestMatchesDomain(t *testing.T) {
	tests := []struct {
		cookieDomain string
		host         string
		want         bool
	}{
		{"example.com", "example.com", true},
		{"Example.COM", "example.com", true},
		{".example.com", "example.com", true},
		{".example.com", "foo.example.com", true},
		{".example.com", "FOO.Example.com", true},
		{"example.com", "foo.example.com", true},
		{".example.com", "notexample.com", false},
		{"example.com", "example.org", false},
		{"127.0.0.1", "127.0.0.1", true},
		{".0.0.1", "127.0.0.1", false},
		{".example.com", "::1", false},
		{"", "anything.test", true},
	}
	for _, tt := range tests {
		c := New("a", "b", tt.cookieDomain)
		assert.Equal(t, tt.want, c.MatchesDomain(tt.host), "%q vs %q", tt.cookieDomain, tt.host)
	}
}

func TestMatchesPath(t *testing.T) {
	c := New("a", "b", "x")
	c.Path = "/Docs"
	assert.True(t, c.MatchesPath("/docs/web"))
	assert.True(t, c.MatchesPath("/DOCS"))
	assert.False(t, c.MatchesPath("/"))

	c.Path = ""
	assert.True(t, c.MatchesPath("/anything"))
}

func TestMatchesPort(t *testing.T) {
	c := New("a", "b", "x")
	assert.True(t, c.MatchesPort(8080))
	c.Ports = []int{80, 443}
	assert.True(t, c.MatchesPort(443))
	assert.False(t, c.MatchesPort(8080))
}

func TestIsExpired(t *testing.T) {
	c := New("a", "b", "x")
	assert.False(t, c.IsExpired(testNow))
	c.Expires = testNow
	assert.False(t, c.IsExpired(testNow))
	assert.True(t, c.IsExpired(testNow.Add(time.Second)))
}

func TestCloneDoesNotAlias(t *testing.T) {
	c := New("a", "b", "x")
	c.Ports = []int{80}
	c.Attributes = map[string]string{"k": "v"}

	cc := c.Clone()
	cc.Ports[0] = 81
	cc.Attributes["k"] = "w"

	assert.Equal(t, 80, c.Ports[0])
	assert.Equal(t, "v", c.Attributes["k"])
}

func TestJSONExpiresIsUnixTimestamp(t *testing.T) {
	c := New("a", "b", "x")
	c.Expires = time.Unix(1700000000, 0)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1700000000), raw["Expires"])

	var back Cookie
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, c.Expires.Equal(back.Expires))
	assert.Equal(t, c.Name, back.Name)
}

func TestString(t *testing.T) {
	c := New("a", "x;y", "example.com")
	c.Secure = true
	assert.Equal(t, `a="x;y"; Domain=example.com; Path=/; Secure`, c.String())
}
