package controller

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yuriy-kovalchuk/namecom-ddns/internal/dns"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/metrics"
)

var tracer = otel.Tracer("github.com/yuriy-kovalchuk/namecom-ddns/internal/controller")

// IPFetcher reports the current public IPv4 address, or "" when it is unknown.
type IPFetcher interface {
	FetchExternalIP(ctx context.Context) string
}

// RecordReconciler keeps the A record of Host in Domain pointed at the
// address reported by IP.
type RecordReconciler struct {
	DNS    dns.Provider
	IP     IPFetcher
	Log    logr.Logger
	Domain string
	Host   string
	// StrictWrites only advances the last known address once the provider
	// confirmed the write, so a failed write is retried on the next tick.
	StrictWrites bool

	recordID    int32 // 0 until a record exists
	lastKnownIP string
	initialized atomic.Bool
}

// State returns the id of the managed record and the address believed to be published.
func (r *RecordReconciler) State() (recordID int32, lastKnownIP string) {
	return r.recordID, r.lastKnownIP
}

// ReadyCheck is a healthz.Checker that passes once Initialize has run.
func (r *RecordReconciler) ReadyCheck(_ *http.Request) error {
	if !r.initialized.Load() {
		return errors.New("record state not initialized")
	}
	return nil
}

// Initialize seeds the reconciler state from the provider. An existing record
// is adopted as is; otherwise one is created from the current address, or
// from dns.PlaceholderIP when no address could be observed.
func (r *RecordReconciler) Initialize(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "RecordReconciler.Initialize")
	defer span.End()

	ip := r.IP.FetchExternalIP(ctx)
	if ip == "" {
		ip = dns.PlaceholderIP
		r.Log.Info("no initial external IP, continuing with placeholder", "ip", ip)
	} else {
		r.Log.Info("initial external IP", "ip", ip)
	}

	locator := &RecordLocator{DNS: r.DNS, Log: r.Log}
	if record, found := locator.FindHostRecord(ctx, r.Domain, r.Host); found {
		r.recordID = record.ID
		r.lastKnownIP = record.Answer
		r.Log.Info("adopted existing record", "id", record.ID, "ip", record.Answer)
	} else if r.write(ctx, ip) {
		r.lastKnownIP = ip
		metrics.LastChangeTimestamp.SetToCurrentTime()
		r.Log.Info("created record", "fqdn", dns.JoinHostname(r.Host, r.Domain), "id", r.recordID, "ip", ip)
	} else if !r.StrictWrites {
		r.lastKnownIP = ip
	}

	span.SetAttributes(attribute.Int("record.id", int(r.recordID)), attribute.String("record.answer", r.lastKnownIP))
	r.initialized.Store(true)
}

// Reconcile runs one tick: observe the external address and, when it differs
// from the last known one, create or update the record.
func (r *RecordReconciler) Reconcile(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "RecordReconciler.Reconcile")
	defer span.End()
	metrics.TicksTotal.Inc()

	ip := r.IP.FetchExternalIP(ctx)
	if ip == "" {
		metrics.ProbeFailuresTotal.Inc()
		span.SetStatus(codes.Error, "no external IP")
		r.Log.V(1).Info("no external IP observed, skipping tick")
		return
	}
	span.SetAttributes(attribute.String("ip.observed", ip))
	if ip == r.lastKnownIP {
		return
	}

	r.Log.Info("new IP address detected", "ip", ip, "previous", r.lastKnownIP)
	if r.write(ctx, ip) {
		r.lastKnownIP = ip
		metrics.LastChangeTimestamp.SetToCurrentTime()
		return
	}
	span.SetStatus(codes.Error, "record write failed")
	// Without StrictWrites the new address is assumed published even when the
	// write failed; it is only corrected by the next observed change.
	if !r.StrictWrites {
		r.lastKnownIP = ip
	}
}

// write updates the managed record when its id is known and creates it
// otherwise. It reports whether the provider accepted the write.
func (r *RecordReconciler) write(ctx context.Context, ip string) bool {
	if r.recordID != 0 {
		r.Log.Info("updating record", "id", r.recordID, "ip", ip)
		id, err := r.DNS.UpdateRecord(ctx, r.Domain, r.Host, r.recordID, ip)
		metrics.ObserveWrite(metrics.OperationUpdate, err)
		if err != nil {
			r.Log.Error(err, "updating record failed", "id", r.recordID, "ip", ip)
			return false
		}
		if id != 0 {
			r.recordID = id
		}
		return true
	}

	r.Log.Info("creating record", "ip", ip)
	id, err := r.DNS.CreateRecord(ctx, r.Domain, r.Host, ip)
	metrics.ObserveWrite(metrics.OperationCreate, err)
	if err != nil {
		r.Log.Error(err, "creating record failed", "ip", ip)
		return false
	}
	r.recordID = id
	return true
}

// boundedSchedule is implemented by schedules that run a fixed number of ticks.
type boundedSchedule interface {
	Remaining() int
}

// Run initializes the reconciler and then ticks until schedule stops it.
// A bounded schedule with no ticks left only initializes.
func (r *RecordReconciler) Run(ctx context.Context, schedule Schedule) {
	r.Initialize(ctx)

	if b, ok := schedule.(boundedSchedule); ok && b.Remaining() <= 0 {
		r.Log.Info("schedule finished, stopping reconciler")
		return
	}

	for {
		r.Reconcile(ctx)

		if !schedule.Wait(ctx) {
			if ctx.Err() != nil {
				r.Log.Info("stopping reconciler", "reason", ctx.Err().Error())
			} else {
				r.Log.Info("schedule finished, stopping reconciler")
			}
			return
		}
		if c, ok := schedule.(boundedSchedule); ok {
			r.Log.V(1).Info("bounded run", "remainingTicks", c.Remaining())
		}
	}
}
