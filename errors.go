package cachejar

import "fmt"

// RevalidationError is returned when a stored response could not be validated
// and serving it stale is not allowed.
type RevalidationError struct {
	URL string
	// StatusCode is the unexpected origin status, zero for transport errors.
	StatusCode int
	Err        error
}

func (e *RevalidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("revalidate %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("revalidate %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *RevalidationError) Unwrap() error {
	return e.Err
}
