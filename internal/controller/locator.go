package controller

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/namecom-ddns/internal/dns"
)

// RecordLocator finds the A record managed for a host among all records of a zone.
type RecordLocator struct {
	DNS dns.Provider
	Log logr.Logger
}

// FindHostRecord returns the first A record of domain whose host label equals
// host, in the order the provider listed them. A failed listing is reported as
// not found.
func (l *RecordLocator) FindHostRecord(ctx context.Context, domain, host string) (dns.Record, bool) {
	records, err := l.DNS.ListRecords(ctx, domain)
	if err != nil {
		l.Log.Error(err, "listing records failed, treating host record as missing", "domain", domain)
		return dns.Record{}, false
	}

	for _, record := range records {
		l.Log.V(1).Info("inspecting record", "id", record.ID, "host", record.Host, "type", record.Type, "answer", record.Answer)
		if record.Type == dns.RecordTypeA && dns.SameHost(record.Host, host) {
			return record, true
		}
	}
	return dns.Record{}, false
}
