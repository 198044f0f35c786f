package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	multicastAddr = "239.255.255.250:1900"
	searchMX      = 2
	maxDatagram   = 2048
)

// Response is a single SSDP search response.
type Response struct {
	Location string
	USN      string
	ST       string
	Server   string
	Headers  map[string]string
	FromIP   string
}

// SearchOptions controls an SSDP search.
type SearchOptions struct {
	Targets []string
	// Passes is the number of M-SEARCH bursts, PassInterval apart.
	Passes       int
	PassInterval time.Duration
	// ReadTimeout is how long responses are collected after the last pass.
	ReadTimeout time.Duration
}

// Discover multicasts M-SEARCH for every target and collects responses until
// ReadTimeout elapses or ctx ends. Responses are unique by USN.
func Discover(ctx context.Context, opts SearchOptions) ([]Response, error) {
	if len(opts.Targets) == 0 {
		return nil, errors.New("at least one search target is required")
	}

	group, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open ssdp socket: %w", err)
	}
	defer conn.Close()

	if err := searchBursts(ctx, conn, group, opts); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(opts.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return collect(conn, deadline)
}

func searchBursts(ctx context.Context, conn net.PacketConn, group net.Addr, opts SearchOptions) error {
	passes := max(opts.Passes, 1)
	for pass := range passes {
		if pass > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.PassInterval):
			}
		}
		for _, target := range opts.Targets {
			if _, err := conn.WriteTo([]byte(buildSearch(target)), group); err != nil {
				return fmt.Errorf("send M-SEARCH for %s: %w", target, err)
			}
		}
	}
	return nil
}

// collect reads datagrams until deadline. A read timeout ends collection normally.
func collect(conn net.PacketConn, deadline time.Time) ([]Response, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var responses []Response
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return responses, nil
			}
			return responses, err
		}

		resp := parseResponse(string(buf[:n]))
		if resp.Location == "" || resp.USN == "" {
			continue
		}
		if _, dup := seen[resp.USN]; dup {
			continue
		}
		seen[resp.USN] = struct{}{}
		resp.FromIP = from.String()
		responses = append(responses, resp)
	}
}

func buildSearch(target string) string {
	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", multicastAddr)
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	fmt.Fprintf(&b, "MX: %d\r\n", searchMX)
	fmt.Fprintf(&b, "ST: %s\r\n", target)
	b.WriteString("\r\n")
	return b.String()
}

// parseResponse reads the header block of an SSDP reply. Header names are
// upper-cased; lines without a colon are ignored.
func parseResponse(raw string) Response {
	headers := make(map[string]string)
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	return Response{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		ST:       headers["ST"],
		Server:   headers["SERVER"],
		Headers:  headers,
	}
}
