package enricher

import "github.com/cockroachdb/errors"

var (
	// ErrFetchFailed marks transport errors, timeouts and non-2xx responses
	// from any upstream.
	ErrFetchFailed = errors.New("upstream fetch failed")

	// ErrMalformedResponse marks upstream bodies that do not match the
	// expected schema.
	ErrMalformedResponse = errors.New("malformed upstream response")
)
