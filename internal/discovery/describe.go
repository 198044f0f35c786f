package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/strefethen/receiver-discovery-go/internal/upnp"
)

// maxDescriptionBytes bounds the description body read from a device.
const maxDescriptionBytes = 1 << 20

// NewHTTPClient returns a client with timeouts that keep unreachable devices from
// stalling a scan.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
			TLSHandshakeTimeout: 3 * time.Second,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

// FetchDescription downloads and parses the device description at location.
func FetchDescription(ctx context.Context, client *http.Client, location string) (*upnp.Device, error) {
	descriptorURL, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", location, err)
	}
	if descriptorURL.Hostname() == "" {
		return nil, fmt.Errorf("location %q has no host", location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", location, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes))
	if err != nil {
		return nil, err
	}

	return upnp.ParseDescription(body, descriptorURL)
}
