package enricher

import (
	"context"
	"net/http"
	"time"
)

// Source is the usage side of a cycle: the raw exposition feed and the
// optional users_by_stream status endpoint.
type Source interface {
	// Usage returns the raw exposition body.
	Usage(ctx context.Context) (string, error)

	// Status returns user observations from the status endpoint. enabled is
	// false when no status endpoint is configured.
	Status(ctx context.Context) (obs []Observation, enabled bool, err error)
}

// HTTPSource fetches the usage feed and status endpoint over HTTP.
type HTTPSource struct {
	client    *http.Client
	usageURL  string
	statusURL string
}

// NewHTTPSource returns a Source for usageURL. statusURL may be empty to
// disable the status endpoint. A nil client uses a client with a 5s timeout.
func NewHTTPSource(client *http.Client, usageURL, statusURL string) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSource{client: client, usageURL: usageURL, statusURL: statusURL}
}

// Usage implements Source.Usage.
func (s *HTTPSource) Usage(ctx context.Context) (string, error) {
	body, err := fetch(ctx, s.client, s.usageURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Status implements Source.Status.
func (s *HTTPSource) Status(ctx context.Context) ([]Observation, bool, error) {
	if s.statusURL == "" {
		return nil, false, nil
	}
	body, err := fetch(ctx, s.client, s.statusURL)
	if err != nil {
		return nil, true, err
	}
	obs, err := ParseStatus(body)
	return obs, true, err
}
