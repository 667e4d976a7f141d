package rfc9111

import (
	"fmt"
	"net/http"
)

// §  5.5. Warning
// §
// §  The "Warning" header field was used to carry additional information about
// §  the status or transformation of a message that might not be reflected in
// §  the status code. This specification obsoletes it [...]
//
// The codes are still understood by HTTP/1.1 clients, so they are sent for
// stale responses.

const (
	WarningResponseIsStale    = 110
	WarningRevalidationFailed = 111
)

var warningText = map[int]string{
	WarningResponseIsStale:    "Response is Stale",
	WarningRevalidationFailed: "Revalidation Failed",
}

// AddWarning adds a Warning header field with the given code.
func AddWarning(header http.Header, code int) {
	header.Add("Warning", fmt.Sprintf(`%d - "%s"`, code, warningText[code]))
}
