// Package updates fetches the published release advisory so operators can
// see when the running version falls behind, along with project news.
package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/resalt-dev/resalt/pkg/errors"
)

// Info is the advisory document served by the release endpoint.
type Info struct {
	Version string   `json:"version"`
	News    []string `json:"news"`
}

// Client fetches the current advisory.
type Client interface {
	Fetch(ctx context.Context) (*Info, error)
}

const (
	userAgentHeader  = "User-Agent"
	fetchTimeout     = 15 * time.Second
	maxAdvisoryBytes = 1 << 20
)

// NewClient builds a client for the advisory endpoint.
func NewClient(url, currentVersion string) Client {
	return &httpClient{
		url:       url,
		userAgent: fmt.Sprintf("resalt/%s", currentVersion),
		client:    &http.Client{Timeout: fetchTimeout},
	}
}

type httpClient struct {
	url       string
	userAgent string
	client    *http.Client
}

var _ Client = (*httpClient)(nil)

func (c *httpClient) Fetch(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.NewInternalError("building advisory request", err)
	}
	req.Header.Set(userAgentHeader, c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("fetching release advisory", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewUpstreamUnavailableError(fmt.Sprintf("release advisory returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAdvisoryBytes))
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("reading release advisory", err)
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.NewUpstreamUnavailableError("parsing release advisory", err)
	}
	return &info, nil
}
