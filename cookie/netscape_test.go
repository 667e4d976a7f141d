package cookie

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const netscapeFixture = "# Netscape HTTP Cookie File\n" +
	".example.com\tTRUE\t/\tFALSE\t1900000000\tsid\tabc\n" +
	"#HttpOnly_example.com\tFALSE\t/admin\tTRUE\t0\tadmin\txyz\n" +
	"broken line\n" +
	"example.com\tFALSE\t/\tFALSE\tsoon\tbad\texpiry\n" +
	"\n"

func TestParseNetscape(t *testing.T) {
	cookies, err := ParseNetscape(strings.NewReader(netscapeFixture))
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, ".example.com", cookies[0].Domain)
	assert.Equal(t, time.Unix(1900000000, 0), cookies[0].Expires)
	assert.False(t, cookies[0].HttpOnly)

	assert.Equal(t, "admin", cookies[1].Name)
	assert.Equal(t, "/admin", cookies[1].Path)
	assert.True(t, cookies[1].HttpOnly)
	assert.True(t, cookies[1].Secure)
	assert.True(t, cookies[1].Discard)
}

func TestImportNetscape(t *testing.T) {
	jar := newTestJar()
	n, err := jar.ImportNetscape(strings.NewReader(netscapeFixture))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, jar.All(Filter{Domain: "www.example.com"}), 2)
}
