package namecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yuriy-kovalchuk/namecom-ddns/internal/dns"
)

const (
	ProductionURL  = "https://api.name.com/v4"
	DevelopmentURL = "https://api.dev.name.com/v4"

	// testUserSuffix marks sandbox accounts, which only exist on the development API.
	testUserSuffix = "-test"
)

func init() {
	dns.Register("namecom", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

// APIError is returned when name.com answers with an unexpected status code.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("namecom: %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Provider implements dns.Provider for the name.com v4 API.
type Provider struct {
	baseURL  string
	username string
	token    string
	client   *http.Client
	log      logr.Logger
}

// BaseURLFor returns the API endpoint matching the account kind of username.
func BaseURLFor(username string) string {
	if strings.HasSuffix(username, testUserSuffix) {
		return DevelopmentURL
	}
	return ProductionURL
}

// New creates a name.com DNS provider from the given settings map.
// Required settings: username, token.
// Optional settings: base_url (default derived from username), timeout (default 30s).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	username := settings["username"]
	if username == "" {
		return nil, fmt.Errorf("namecom: missing required setting 'username'")
	}
	token := settings["token"]
	if token == "" {
		return nil, fmt.Errorf("namecom: missing required setting 'token'")
	}

	baseURL := settings["base_url"]
	if baseURL == "" {
		baseURL = BaseURLFor(username)
	}

	timeout := 30 * time.Second
	if v := settings["timeout"]; v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("namecom: invalid timeout %q: %w", v, err)
		}
		timeout = parsed
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	return &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		token:    token,
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   timeout,
		},
		log: log,
	}, nil
}

// BaseURL returns the API endpoint the provider talks to.
func (p *Provider) BaseURL() string {
	return p.baseURL
}

// do builds and executes an HTTP request against the name.com API and decodes
// the JSON response into out when out is non-nil. Any status outside okStatuses
// is turned into an *APIError.
func (p *Provider) do(ctx context.Context, method, path string, body, out interface{}, okStatuses ...int) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("namecom: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("namecom: build request: %w", err)
	}

	req.SetBasicAuth(p.username, p.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("namecom: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if len(okStatuses) == 0 {
		okStatuses = []int{http.StatusOK}
	}
	if !containsStatus(okStatuses, resp.StatusCode) {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("namecom: decode %s %s response: %w", method, path, err)
	}
	return nil
}

func containsStatus(statuses []int, code int) bool {
	for _, s := range statuses {
		if s == code {
			return true
		}
	}
	return false
}

func recordsPath(domain string) string {
	return "/domains/" + url.PathEscape(domain) + "/records"
}

func recordPath(domain string, id int32) string {
	return recordsPath(domain) + "/" + strconv.FormatInt(int64(id), 10)
}

// listResponse is the shape returned by ListRecords.
type listResponse struct {
	Records  []dns.Record `json:"records"`
	NextPage int          `json:"nextPage,omitempty"`
	LastPage int          `json:"lastPage,omitempty"`
}

// ListRecords returns every record of the zone, following pagination.
func (p *Provider) ListRecords(ctx context.Context, domain string) ([]dns.Record, error) {
	p.log.V(1).Info("calling ListRecords", "domain", domain)

	var records []dns.Record
	page := 1
	for {
		path := recordsPath(domain)
		if page > 1 {
			path += "?page=" + strconv.Itoa(page)
		}

		var lr listResponse
		if err := p.do(ctx, http.MethodGet, path, nil, &lr); err != nil {
			return nil, err
		}
		records = append(records, lr.Records...)

		if lr.NextPage == 0 || lr.NextPage <= page {
			break
		}
		page = lr.NextPage
	}

	p.log.V(1).Info("listed records", "domain", domain, "count", len(records))
	return records, nil
}

// GetRecord fetches a single record by id.
func (p *Provider) GetRecord(ctx context.Context, domain string, id int32) (dns.Record, error) {
	p.log.V(1).Info("calling GetRecord", "domain", domain, "id", id)

	var record dns.Record
	if err := p.do(ctx, http.MethodGet, recordPath(domain, id), nil, &record); err != nil {
		return dns.Record{}, err
	}
	return record, nil
}

// CreateRecord adds a new A record and returns the id assigned by name.com.
func (p *Provider) CreateRecord(ctx context.Context, domain, host, ip string) (int32, error) {
	p.log.Info("creating record", "domain", domain, "host", host, "answer", ip)

	var created dns.Record
	if err := p.do(ctx, http.MethodPost, recordsPath(domain), dns.NewARecord(host, ip), &created); err != nil {
		return 0, err
	}

	p.log.Info("record created", "id", created.ID, "fqdn", created.FQDN)
	return created.ID, nil
}

// UpdateRecord replaces the answer of an existing A record.
func (p *Provider) UpdateRecord(ctx context.Context, domain, host string, id int32, ip string) (int32, error) {
	p.log.Info("updating record", "domain", domain, "host", host, "id", id, "answer", ip)

	var updated dns.Record
	if err := p.do(ctx, http.MethodPut, recordPath(domain, id), dns.NewARecord(host, ip), &updated); err != nil {
		return 0, err
	}

	p.log.Info("record updated", "id", updated.ID, "fqdn", updated.FQDN)
	return updated.ID, nil
}

// DeleteRecord removes a record by id.
func (p *Provider) DeleteRecord(ctx context.Context, domain string, id int32) error {
	p.log.Info("deleting record", "domain", domain, "id", id)

	if err := p.do(ctx, http.MethodDelete, recordPath(domain, id), nil, nil, http.StatusOK, http.StatusNoContent); err != nil {
		return err
	}

	p.log.Info("record deleted", "id", id)
	return nil
}
