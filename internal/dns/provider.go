package dns

import "context"

const (
	// RecordTypeA is the only record type this client manages.
	RecordTypeA = "A"

	// MinTTL is the lowest TTL name.com accepts, in seconds.
	MinTTL = 300

	// PlaceholderIP is published when no external address could be observed at startup.
	PlaceholderIP = "0.0.0.0"
)

// Record represents one resource record in a zone.
type Record struct {
	ID     int32  `json:"id,omitempty"`         // 0 = not created yet
	Domain string `json:"domainName,omitempty"` // zone, e.g. "example.com"
	Host   string `json:"host"`                 // label relative to Domain, "" or "@" for the apex
	FQDN   string `json:"fqdn,omitempty"`       // read-only
	Type   string `json:"type"`
	Answer string `json:"answer"`
	TTL    int    `json:"ttl,omitempty"`
}

// NewARecord builds the A record body this client submits for host.
func NewARecord(host, ip string) Record {
	return Record{
		Host:   host,
		Type:   RecordTypeA,
		Answer: ip,
		TTL:    MinTTL,
	}
}

// Provider is the interface the reconciler needs from a DNS hosting API.
type Provider interface {
	ListRecords(ctx context.Context, domain string) ([]Record, error)
	GetRecord(ctx context.Context, domain string, id int32) (Record, error)
	CreateRecord(ctx context.Context, domain, host, ip string) (int32, error)
	UpdateRecord(ctx context.Context, domain, host string, id int32, ip string) (int32, error)
	DeleteRecord(ctx context.Context, domain string, id int32) error
}
