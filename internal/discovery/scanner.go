package discovery

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strefethen/receiver-discovery-go/internal/upnp"
)

// Scanner produces the devices currently visible on the network.
type Scanner interface {
	Scan(ctx context.Context) ([]*upnp.Device, error)
}

// ScannerOptions configures an SSDPScanner.
type ScannerOptions struct {
	Search SearchOptions
	// StaticLocations are description URLs fetched on every scan.
	StaticLocations    []string
	DescriptionTimeout time.Duration
	FetchLimit         int
}

// SSDPScanner finds devices via SSDP and fetches their descriptions.
type SSDPScanner struct {
	opts   ScannerOptions
	client *http.Client
	logger *log.Logger
	search func(ctx context.Context, opts SearchOptions) ([]Response, error)
}

func NewSSDPScanner(opts ScannerOptions, logger *log.Logger) *SSDPScanner {
	if logger == nil {
		logger = log.Default()
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 8
	}
	if opts.DescriptionTimeout <= 0 {
		opts.DescriptionTimeout = 5 * time.Second
	}
	return &SSDPScanner{
		opts:   opts,
		client: NewHTTPClient(opts.DescriptionTimeout),
		logger: logger,
		search: Discover,
	}
}

// Scan runs one SSDP search and returns every device whose description could be
// fetched. Unreachable devices are logged and skipped.
func (s *SSDPScanner) Scan(ctx context.Context) ([]*upnp.Device, error) {
	var locations []string
	if len(s.opts.Search.Targets) > 0 {
		responses, err := s.search(ctx, s.opts.Search)
		if err != nil {
			if len(s.opts.StaticLocations) == 0 {
				s.logger.Printf("[DISCOVERY] SSDP search failed: %v", err)
				return nil, err
			}
			s.logger.Printf("[DISCOVERY] SSDP search failed, using %d static locations: %v", len(s.opts.StaticLocations), err)
		}
		s.logger.Printf("[DISCOVERY] SSDP returned %d responses", len(responses))
		for _, resp := range responses {
			locations = append(locations, resp.Location)
		}
	}
	locations = dedupeStrings(append(locations, s.opts.StaticLocations...))

	devices := make([]*upnp.Device, len(locations))
	group := new(errgroup.Group)
	group.SetLimit(s.opts.FetchLimit)
	for i, location := range locations {
		group.Go(func() error {
			// Fresh timeout per fetch so one slow device cannot starve the rest.
			fetchCtx, cancel := context.WithTimeout(ctx, s.opts.DescriptionTimeout)
			defer cancel()

			device, err := FetchDescription(fetchCtx, s.client, location)
			if err != nil {
				s.logger.Printf("[DISCOVERY] Description fetch failed for %s: %v", location, err)
				return nil
			}
			devices[i] = device
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := make([]*upnp.Device, 0, len(devices))
	for _, device := range devices {
		if device != nil {
			result = append(result, device)
		}
	}
	s.logger.Printf("[DISCOVERY] Scan complete: %d of %d descriptions fetched", len(result), len(locations))
	return result, nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		val := strings.TrimSpace(value)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		result = append(result, val)
	}
	return result
}
