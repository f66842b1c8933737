package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	logrtesting "github.com/go-logr/logr/testing"

	"github.com/yuriy-kovalchuk/namecom-ddns/internal/controller"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/dns"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/dns/namecom"
	"github.com/yuriy-kovalchuk/namecom-ddns/internal/ipcheck"
)

const (
	testUser  = "user-test"
	testToken = "secret"
)

// fakeNameCom is a minimal in-memory name.com v4 records API for testing.
type fakeNameCom struct {
	mu       sync.Mutex
	store    map[int32]dns.Record
	nextID   int32
	pageSize int
	calls    []string // tracks endpoint calls in order
}

func newFakeNameCom() *fakeNameCom {
	return &fakeNameCom{store: map[int32]dns.Record{}, nextID: 1}
}

func (f *fakeNameCom) seed(r dns.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		r.ID = f.nextID
	}
	if r.ID >= f.nextID {
		f.nextID = r.ID + 1
	}
	f.store[r.ID] = r
}

func (f *fakeNameCom) records() []dns.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.store))
	for id := range f.store {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	out := make([]dns.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.store[int32(id)])
	}
	return out
}

func (f *fakeNameCom) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeNameCom) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	if user, token, ok := r.BasicAuth(); !ok || user != testUser || token != testToken {
		http.Error(w, `{"message":"Unauthenticated"}`, http.StatusUnauthorized)
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/v4/domains/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "records":
		switch r.Method {
		case http.MethodGet:
			f.handleList(w, r, parts[0])
		case http.MethodPost:
			f.handleCreate(w, r, parts[0])
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 3 && parts[1] == "records":
		id, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			f.handleGet(w, int32(id))
		case http.MethodPut:
			f.handleUpdate(w, r, parts[0], int32(id))
		case http.MethodDelete:
			f.handleDelete(w, int32(id))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeNameCom) handleList(w http.ResponseWriter, r *http.Request, domain string) {
	var zone []dns.Record
	for _, rec := range f.records() {
		if rec.Domain == domain {
			zone = append(zone, rec)
		}
	}

	resp := map[string]interface{}{"records": zone}
	if f.pageSize > 0 {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			page, _ = strconv.Atoi(p)
		}
		lastPage := (len(zone) + f.pageSize - 1) / f.pageSize
		start := min((page-1)*f.pageSize, len(zone))
		end := min(start+f.pageSize, len(zone))
		resp["records"] = zone[start:end]
		resp["lastPage"] = lastPage
		if page < lastPage {
			resp["nextPage"] = page + 1
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeNameCom) handleCreate(w http.ResponseWriter, r *http.Request, domain string) {
	var rec dns.Record
	if err := readJSON(r, &rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	rec.ID = f.nextID
	f.nextID++
	rec.Domain = domain
	rec.FQDN = dns.JoinHostname(rec.Host, domain) + "."
	f.store[rec.ID] = rec
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, rec)
}

func (f *fakeNameCom) handleGet(w http.ResponseWriter, id int32) {
	f.mu.Lock()
	rec, ok := f.store[id]
	f.mu.Unlock()
	if !ok {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (f *fakeNameCom) handleUpdate(w http.ResponseWriter, r *http.Request, domain string, id int32) {
	var rec dns.Record
	if err := readJSON(r, &rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.store[id]; !ok {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}
	rec.ID = id
	rec.Domain = domain
	rec.FQDN = dns.JoinHostname(rec.Host, domain) + "."
	f.store[id] = rec
	writeJSON(w, http.StatusOK, rec)
}

func (f *fakeNameCom) handleDelete(w http.ResponseWriter, id int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.store[id]; !ok {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}
	delete(f.store, id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// fakeIPService answers each request with the next scripted address,
// repeating the last one once the script runs out.
type fakeIPService struct {
	mu       sync.Mutex
	script   []string
	requests int
}

func (s *fakeIPService) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ip := s.script[min(s.requests, len(s.script)-1)]
	s.requests++
	if ip == "" {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	io.WriteString(w, ip+"\n")
}

func newProvider(t *testing.T, serverURL, token string) *namecom.Provider {
	t.Helper()
	p, err := namecom.New(logrtesting.NewTestLogger(t), map[string]string{
		"base_url": serverURL + "/v4",
		"username": testUser,
		"token":    token,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return p
}

func newReconciler(t *testing.T, p dns.Provider, ipURL, host string) *controller.RecordReconciler {
	t.Helper()
	log := logrtesting.NewTestLogger(t)
	return &controller.RecordReconciler{
		DNS:    p,
		IP:     ipcheck.New(log.WithName("ipcheck"), ipURL, 5*time.Second),
		Log:    log.WithName("record-controller"),
		Domain: "example.com",
		Host:   host,
	}
}

func TestProviderLifecycle(t *testing.T) {
	fake := newFakeNameCom()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newProvider(t, srv.URL, testToken)
	ctx := context.Background()

	// Empty zone.
	records, err := p.ListRecords(ctx, "example.com")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty zone, got %d records", len(records))
	}

	id, err := p.CreateRecord(ctx, "example.com", "home", "10.0.0.1")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero id from CreateRecord")
	}

	rec, err := p.GetRecord(ctx, "example.com", id)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Host != "home" || rec.Type != dns.RecordTypeA || rec.Answer != "10.0.0.1" || rec.TTL != dns.MinTTL {
		t.Errorf("unexpected stored record: %+v", rec)
	}
	if rec.FQDN != "home.example.com." {
		t.Errorf("expected fqdn 'home.example.com.', got %q", rec.FQDN)
	}

	newID, err := p.UpdateRecord(ctx, "example.com", "home", id, "10.0.0.2")
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if newID != id {
		t.Errorf("expected update to keep id %d, got %d", id, newID)
	}
	if got := fake.records()[0].Answer; got != "10.0.0.2" {
		t.Errorf("expected answer '10.0.0.2' after update, got %q", got)
	}

	if err := p.DeleteRecord(ctx, "example.com", id); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}

	_, err = p.GetRecord(ctx, "example.com", id)
	var apiErr *namecom.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError after delete, got %v", err)
	}
}

func TestUpdateNonExistent(t *testing.T) {
	fake := newFakeNameCom()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newProvider(t, srv.URL, testToken)

	if _, err := p.UpdateRecord(context.Background(), "example.com", "ghost", 99, "10.0.0.1"); err == nil {
		t.Fatal("expected error when updating non-existent record")
	}
}

func TestListRecordsFollowsPages(t *testing.T) {
	fake := newFakeNameCom()
	fake.pageSize = 2
	for _, host := range []string{"a", "b", "c", "d", "e"} {
		fake.seed(dns.Record{Domain: "example.com", Host: host, Type: "A", Answer: "10.0.0.1"})
	}
	fake.seed(dns.Record{Domain: "other.org", Host: "x", Type: "A", Answer: "10.0.0.9"})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newProvider(t, srv.URL, testToken)

	records, err := p.ListRecords(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records across pages, got %d", len(records))
	}
	if records[4].Host != "e" {
		t.Errorf("expected last record 'e', got %q", records[4].Host)
	}
}

func TestWrongCredentials(t *testing.T) {
	fake := newFakeNameCom()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newProvider(t, srv.URL, "wrong")

	_, err := p.ListRecords(context.Background(), "example.com")
	var apiErr *namecom.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestReconcilerCreatesAndTracksRecord(t *testing.T) {
	fake := newFakeNameCom()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ips := &fakeIPService{script: []string{"1.2.3.5", "1.2.3.4", "1.2.3.4", "1.2.3.5"}}
	ipSrv := httptest.NewServer(ips)
	defer ipSrv.Close()

	r := newReconciler(t, newProvider(t, srv.URL, testToken), ipSrv.URL, "home")
	r.Run(context.Background(), controller.Countdown(3))

	if ips.requests != 4 {
		t.Errorf("expected 4 address probes, got %d", ips.requests)
	}

	want := []string{
		"GET /v4/domains/example.com/records",
		"POST /v4/domains/example.com/records",
		"PUT /v4/domains/example.com/records/1",
		"PUT /v4/domains/example.com/records/1",
	}
	if got := fake.callLog(); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("unexpected API calls:\n got %q\nwant %q", got, want)
	}

	records := fake.records()
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	if records[0].Host != "home" || records[0].Answer != "1.2.3.5" {
		t.Errorf("unexpected final record: %+v", records[0])
	}

	id, ip := r.State()
	if id != 1 || ip != "1.2.3.5" {
		t.Errorf("unexpected reconciler state id=%d ip=%q", id, ip)
	}
}

func TestReconcilerAdoptsExistingRecord(t *testing.T) {
	fake := newFakeNameCom()
	fake.seed(dns.Record{ID: 40, Domain: "example.com", Host: "home", Type: "CNAME", Answer: "elsewhere.example.net"})
	fake.seed(dns.Record{ID: 41, Domain: "example.com", Host: "www", Type: "A", Answer: "9.9.9.9"})
	fake.seed(dns.Record{ID: 42, Domain: "example.com", Host: "home", Type: "A", Answer: "9.9.9.9"})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ipSrv := httptest.NewServer(&fakeIPService{script: []string{"9.9.9.9"}})
	defer ipSrv.Close()

	r := newReconciler(t, newProvider(t, srv.URL, testToken), ipSrv.URL, "home")
	r.Run(context.Background(), controller.Countdown(2))

	if calls := fake.callLog(); len(calls) != 1 {
		t.Errorf("expected only the startup lookup, got %q", calls)
	}
	if id, ip := r.State(); id != 42 || ip != "9.9.9.9" {
		t.Errorf("expected adopted record 42 at 9.9.9.9, got id=%d ip=%q", id, ip)
	}
}

func TestReconcilerApexRecord(t *testing.T) {
	fake := newFakeNameCom()
	fake.seed(dns.Record{ID: 7, Domain: "example.com", Host: "", Type: "A", Answer: "9.9.9.9"})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ipSrv := httptest.NewServer(&fakeIPService{script: []string{"9.9.9.9", "8.8.8.8"}})
	defer ipSrv.Close()

	r := newReconciler(t, newProvider(t, srv.URL, testToken), ipSrv.URL, "@")
	r.Run(context.Background(), controller.Countdown(1))

	records := fake.records()
	if len(records) != 1 {
		t.Fatalf("expected the apex record to be updated in place, got %d records", len(records))
	}
	if records[0].ID != 7 || records[0].Answer != "8.8.8.8" {
		t.Errorf("unexpected apex record: %+v", records[0])
	}
}

func TestReconcilerSkipsFailedProbes(t *testing.T) {
	fake := newFakeNameCom()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ips := &fakeIPService{script: []string{"1.2.3.4", "", "1.2.3.4"}}
	ipSrv := httptest.NewServer(ips)
	defer ipSrv.Close()

	r := newReconciler(t, newProvider(t, srv.URL, testToken), ipSrv.URL, "home")
	r.Run(context.Background(), controller.Countdown(2))

	if calls := fake.callLog(); len(calls) != 2 {
		t.Errorf("expected lookup and create only, got %q", calls)
	}
	if records := fake.records(); len(records) != 1 || records[0].Answer != "1.2.3.4" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestReconcilerWithRejectedCredentials(t *testing.T) {
	fake := newFakeNameCom()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ipSrv := httptest.NewServer(&fakeIPService{script: []string{"1.2.3.4"}})
	defer ipSrv.Close()

	r := newReconciler(t, newProvider(t, srv.URL, "wrong"), ipSrv.URL, "home")
	r.Run(context.Background(), controller.Countdown(2))

	if records := fake.records(); len(records) != 0 {
		t.Errorf("expected no records to be written, got %+v", records)
	}
	if id, _ := r.State(); id != 0 {
		t.Errorf("expected no record id after rejected create, got %d", id)
	}
}
