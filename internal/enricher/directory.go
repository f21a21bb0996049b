package enricher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ChannelID is the directory's channel identifier. The directory may encode
// it as a JSON string or number; both decode to the same textual form.
type ChannelID string

// UnmarshalJSON implements json.Unmarshaler.
func (c *ChannelID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = ChannelID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Newf("channel id: unsupported value %s", b)
	}
	*c = ChannelID(n.String())
	return nil
}

// Directory is the external channel directory.
type Directory interface {
	// ListChannels returns the given 1-based page of the channel listing.
	ListChannels(ctx context.Context, page int) (ChannelPage, error)

	// ChannelStreams returns the stream identifiers served by a channel,
	// lowercased.
	ChannelStreams(ctx context.Context, id ChannelID) ([]StreamID, error)
}

// ChannelIDPlaceholder is substituted with the channel id in the per-channel
// streams URL template.
const ChannelIDPlaceholder = "{channel_id}"

// HTTPDirectory talks to the directory service over HTTP.
type HTTPDirectory struct {
	client         *http.Client
	listURL        string
	streamsURL     string
	streamsTimeout time.Duration
}

// NewHTTPDirectory returns a Directory for the given listing URL and
// per-channel streams URL template. client bounds the listing call;
// streamsTimeout bounds each per-channel call. A nil client uses a client
// with a 5s timeout.
func NewHTTPDirectory(client *http.Client, listURL, streamsURLTemplate string, streamsTimeout time.Duration) *HTTPDirectory {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPDirectory{
		client:         client,
		listURL:        listURL,
		streamsURL:     streamsURLTemplate,
		streamsTimeout: streamsTimeout,
	}
}

type listResponse struct {
	Channels   *[]Channel `json:"channels"`
	TotalPages *int       `json:"total_pages"`
}

type streamsResponse struct {
	Acestreams *[]struct {
		ID string `json:"id"`
	} `json:"acestreams"`
}

// ListChannels implements Directory.ListChannels.
func (d *HTTPDirectory) ListChannels(ctx context.Context, page int) (ChannelPage, error) {
	u, err := url.Parse(d.listURL)
	if err != nil {
		return ChannelPage{}, errors.Wrap(err, "parse directory list url")
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	body, err := fetch(ctx, d.client, u.String())
	if err != nil {
		return ChannelPage{}, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChannelPage{}, errors.Mark(errors.Wrapf(err, "decode directory page %d", page), ErrMalformedResponse)
	}
	if resp.Channels == nil {
		return ChannelPage{}, errors.Mark(errors.Newf("directory page %d has no channels field", page), ErrMalformedResponse)
	}

	out := ChannelPage{Channels: *resp.Channels, TotalPages: -1}
	if resp.TotalPages != nil {
		out.TotalPages = *resp.TotalPages
	}
	return out, nil
}

// ChannelStreams implements Directory.ChannelStreams.
func (d *HTTPDirectory) ChannelStreams(ctx context.Context, id ChannelID) ([]StreamID, error) {
	if d.streamsTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.streamsTimeout)
		defer cancel()
	}

	target := strings.ReplaceAll(d.streamsURL, ChannelIDPlaceholder, url.PathEscape(string(id)))
	body, err := fetch(ctx, d.client, target)
	if err != nil {
		return nil, err
	}

	var resp streamsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode streams of channel %s", id), ErrMalformedResponse)
	}
	if resp.Acestreams == nil {
		return nil, errors.Mark(errors.Newf("channel %s: response has no acestreams field", id), ErrMalformedResponse)
	}

	ids := make([]StreamID, 0, len(*resp.Acestreams))
	for _, a := range *resp.Acestreams {
		s := strings.ToLower(strings.TrimSpace(a.ID))
		if s == "" {
			continue
		}
		ids = append(ids, StreamID(s))
	}
	return ids, nil
}
