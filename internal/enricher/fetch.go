package enricher

import (
	"context"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
)

// maxBodyBytes bounds how much of any upstream response is read.
const maxBodyBytes = 32 << 20

// fetch performs a GET against url and returns the body. Transport errors,
// timeouts and non-2xx statuses are marked ErrFetchFailed.
func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", url)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "GET %s", url), ErrFetchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, errors.Mark(errors.Newf("GET %s: status %d", url, resp.StatusCode), ErrFetchFailed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read body of %s", url), ErrFetchFailed)
	}
	return body, nil
}
