// Package ipcheck discovers the public IPv4 address of this machine.
package ipcheck

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	netutils "k8s.io/utils/net"
)

// DefaultURL answers with the caller's address as plain text.
const DefaultURL = "https://ipinfo.io/ip"

// maxBody bounds how much of the probe response is read.
const maxBody = 256

// Fetcher queries an external "what is my IP" endpoint.
type Fetcher struct {
	url    string
	client *http.Client
	log    logr.Logger
}

// New creates a Fetcher for url. An empty url selects DefaultURL.
func New(log logr.Logger, url string, timeout time.Duration) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	return &Fetcher{
		url: url,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone()),
			Timeout:   timeout,
		},
		log: log,
	}
}

// FetchExternalIP returns the trimmed dotted-quad address reported by the
// endpoint, or "" when the probe did not succeed.
func (f *Fetcher) FetchExternalIP(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		f.log.Error(err, "building IP check request", "url", f.url)
		return ""
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Error(err, "IP check request failed", "url", f.url)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.log.Info("IP check returned non-success status", "url", f.url, "status", resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		f.log.Error(err, "reading IP check response", "url", f.url)
		return ""
	}

	ip, ok := normalizeIPv4(strings.TrimSpace(string(body)))
	if !ok {
		f.log.Info("IP check returned something that is not an IPv4 address", "url", f.url, "body", string(body))
		return ""
	}

	f.log.V(1).Info("observed external IP", "ip", ip)
	return ip
}

// normalizeIPv4 returns the canonical dotted-quad form of s. IPv6 spellings,
// including IPv4-mapped ones, are rejected; zero-padded octets are accepted
// and stripped so equal addresses always compare equal.
func normalizeIPv4(s string) (string, bool) {
	if strings.Contains(s, ":") {
		return "", false
	}
	ip := netutils.ParseIPSloppy(s).To4()
	if ip == nil {
		return "", false
	}
	return ip.String(), true
}
