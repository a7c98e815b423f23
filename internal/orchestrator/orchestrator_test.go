package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/events"
	"github.com/msp-docs/psa-sync/internal/platform/logger"
	"github.com/msp-docs/psa-sync/internal/provider"
	"github.com/msp-docs/psa-sync/internal/reconcile"
	"github.com/msp-docs/psa-sync/internal/retry"
	"github.com/msp-docs/psa-sync/internal/sync_repository"
	"github.com/msp-docs/psa-sync/internal/vault"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func init() {
	logger.InitLogger()
}

func testConfig(budget time.Duration) *config.Config {
	return &config.Config{
		SyncRunBudget:              budget,
		SyncEntityConcurrency:      4,
		DefaultFuzzyMatchThreshold: 85,
	}
}

func testOptions() provider.Options {
	return provider.Options{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Policy: retry.Policy{
			BaseDelay:            time.Millisecond,
			Multiplier:           2,
			MaxDelay:             5 * time.Millisecond,
			MaxAttempts:          3,
			DefaultRateLimitWait: time.Millisecond,
		},
		Tokens:   provider.NewTokenCache(16),
		PageSize: 100,
	}
}

func testConnection(types ...domain.EntityType) domain.Connection {
	return domain.Connection{
		ID:                   domain.ConnectionID(uuid.New()),
		ProviderType:         domain.ProviderConnectWise,
		BaseURL:              "https://api.example.test/v4_6_release/apis/3.0",
		EncryptedCredentials: "sealed",
		EnabledEntityTypes:   types,
		SyncInterval:         time.Hour,
		FuzzyMatchThreshold:  85,
		Enabled:              true,
	}
}

type staticCredentials struct {
	err error
}

func (s staticCredentials) WithCredentials(ctx context.Context, conn domain.Connection, fn func(*vault.Credentials) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(&vault.Credentials{CompanyID: "acme", PublicKey: "pub", PrivateKey: "priv", ClientID: "client-1"})
}

// fakeClient serves canned pages.  Page n of an entity type is returned for
// token "n"; the first page has the empty token.
type fakeClient struct {
	authErr error
	pages   map[domain.EntityType][][]json.RawMessage
	errs    map[domain.EntityType]error
	fetch   func(ctx context.Context, entityType domain.EntityType, page int) (provider.Page, error)
}

func (f *fakeClient) Type() domain.ProviderType { return domain.ProviderConnectWise }

func (f *fakeClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket}
}

func (f *fakeClient) Authenticate(ctx context.Context) error { return f.authErr }

func (f *fakeClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (provider.Page, error) {
	page := 0
	if pageToken != "" {
		page, _ = strconv.Atoi(pageToken)
	}

	if f.fetch != nil {
		return f.fetch(ctx, entityType, page)
	}
	if err := f.errs[entityType]; err != nil {
		return provider.Page{}, err
	}

	pages := f.pages[entityType]
	if page >= len(pages) {
		return provider.Page{}, nil
	}

	next := ""
	if page < len(pages)-1 {
		next = strconv.Itoa(page + 1)
	}
	return provider.Page{Records: pages[page], NextToken: next}, nil
}

func raw(docs ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, json.RawMessage(d))
	}
	return out
}

type harness struct {
	store    *sync_repository.MemoryStore
	recorder *events.FakeRunRecorder
	orch     *Orchestrator
	conn     domain.Connection
}

func newHarness(t *testing.T, conn domain.Connection, client provider.ProviderClient, credentials CredentialSource, budget time.Duration) *harness {
	t.Helper()

	store := sync_repository.NewMemoryStore()
	if err := store.SaveConnection(context.Background(), conn); err != nil {
		t.Fatal("unable to save connection: ", err)
	}

	recorder := &events.FakeRunRecorder{}
	orch := New(testConfig(budget), Dependencies{
		Store:       store,
		Credentials: credentials,
		Recorder:    recorder,
		NewClient: func(domain.Connection, *vault.Credentials, provider.Options) (provider.ProviderClient, error) {
			return client, nil
		},
	})

	return &harness{store: store, recorder: recorder, orch: orch, conn: conn}
}

func (h *harness) trigger(t *testing.T) *domain.SyncRun {
	t.Helper()
	run, err := h.orch.Trigger(context.Background(), TriggerRequest{ConnectionID: h.conn.ID, Force: true, Source: domain.TriggerManual})
	if err != nil {
		t.Fatal("unexpected trigger error: ", err)
	}
	if run == nil {
		t.Fatal("trigger did not start a run")
	}
	return run
}

func (h *harness) stored(t *testing.T) domain.Connection {
	t.Helper()
	conn, err := h.store.GetConnection(context.Background(), h.conn.ID)
	if err != nil {
		t.Fatal("unable to load connection: ", err)
	}
	return conn
}

// connectWiseServer serves count records per endpoint, honouring page and
// pageSize the way ConnectWise Manage does.
type connectWiseServer struct {
	mu         sync.Mutex
	renamed    map[int]string
	conditions []string
}

func (s *connectWiseServer) document(path string, id int) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch path {
	case "/company/companies":
		name := fmt.Sprintf("Company %d", id)
		if renamed, ok := s.renamed[id]; ok {
			name = renamed
		}
		return map[string]interface{}{"id": id, "name": name, "status": map[string]string{"name": "Active"}}
	case "/company/contacts":
		return map[string]interface{}{"id": id, "firstName": "Contact", "lastName": strconv.Itoa(id),
			"company": map[string]int{"id": 1 + id%50}}
	default:
		return map[string]interface{}{"id": id, "summary": fmt.Sprintf("Ticket %d", id),
			"status": map[string]string{"name": "New"}, "priority": map[string]string{"name": "Priority 3 - Normal Response"},
			"company": map[string]int{"id": 1 + id%50}, "contact": map[string]int{"id": 1 + id%200},
			"dateEntered": "2026-02-01T09:00:00Z"}
	}
}

func (s *connectWiseServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{"/company/companies": 50, "/company/contacts": 200, "/service/tickets": 500}

	if r.URL.Path == "/system/info" {
		w.Write([]byte(`{"version":"v2026.1"}`))
		return
	}

	total, ok := counts[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if c := r.URL.Query().Get("conditions"); c != "" {
		s.mu.Lock()
		s.conditions = append(s.conditions, c)
		s.mu.Unlock()
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	docs := []map[string]interface{}{}
	for id := (page-1)*pageSize + 1; id <= min(page*pageSize, total); id++ {
		docs = append(docs, s.document(r.URL.Path, id))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}

func TestConnectWiseSyncEndToEnd(t *testing.T) {
	ctx := context.Background()

	cw := &connectWiseServer{renamed: map[int]string{}}
	server := httptest.NewServer(cw)
	defer server.Close()

	keySource, err := vault.NewStaticMasterKeySource(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	assert.Equal(t, err, nil)
	v := vault.NewVault(keySource)

	conn := testConnection(domain.EntityCompany, domain.EntityContact, domain.EntityTicket)
	conn.BaseURL = server.URL
	conn.EncryptedCredentials, err = v.Encrypt(ctx, conn.ID, &vault.Credentials{CompanyID: "acme", PublicKey: "pub", PrivateKey: "priv", ClientID: "client-1"})
	assert.Equal(t, err, nil)

	store := sync_repository.NewMemoryStore()
	assert.Equal(t, store.SaveConnection(ctx, conn), nil)

	recorder := &events.FakeRunRecorder{}
	orch := New(testConfig(time.Minute), Dependencies{Store: store, Credentials: v, Recorder: recorder, Options: testOptions()})

	h := &harness{store: store, recorder: recorder, orch: orch, conn: conn}

	first := h.trigger(t)
	assert.Equal(t, first.Status, domain.SyncStatusSuccess)
	assert.Equal(t, first.Counts, map[domain.EntityType]domain.EntityCounts{
		domain.EntityCompany: {Created: 50},
		domain.EntityContact: {Created: 200},
		domain.EntityTicket:  {Created: 500},
	})
	assert.Equal(t, store.RecordCount(conn.ID, domain.EntityTicket), 500)
	assert.Equal(t, *h.stored(t).LastSyncAt, first.StartedAt)

	second := h.trigger(t)
	assert.Equal(t, second.Status, domain.SyncStatusSuccess)
	assert.Equal(t, second.Counts, map[domain.EntityType]domain.EntityCounts{
		domain.EntityCompany: {Skipped: 50},
		domain.EntityContact: {Skipped: 200},
		domain.EntityTicket:  {Skipped: 500},
	})
	assert.Equal(t, store.MappingCount(conn.ID, domain.EntityCompany), 50)
	assertReference(t, store, conn.ID, domain.EntityContact, "10", func(refs domain.RecordReferences) *uuid.UUID { return refs.CompanyID }, domain.EntityCompany, "11")
	assertReference(t, store, conn.ID, domain.EntityTicket, "5", func(refs domain.RecordReferences) *uuid.UUID { return refs.CompanyID }, domain.EntityCompany, "6")
	assertReference(t, store, conn.ID, domain.EntityTicket, "5", func(refs domain.RecordReferences) *uuid.UUID { return refs.ContactID }, domain.EntityContact, "6")
	assert.Equal(t, len(cw.conditions) > 0, true)
	assert.Equal(t, strings.HasPrefix(cw.conditions[0], "lastUpdated > ["), true)

	cw.mu.Lock()
	cw.renamed[7] = "Renamed Company"
	cw.mu.Unlock()

	third := h.trigger(t)
	assert.Equal(t, third.Counts[domain.EntityCompany], domain.EntityCounts{Updated: 1, Skipped: 49})

	mapping, ok := store.Mapping(conn.ID, domain.EntityCompany, "7")
	assert.Equal(t, ok, true)
	rec, _, ok := store.Record(mapping.InternalID)
	assert.Equal(t, ok, true)
	assert.Equal(t, rec.(*domain.CanonicalCompany).Name, "Renamed Company")

	assert.Equal(t, len(recorder.Runs()), 3)
}

func assertReference(t *testing.T, store *sync_repository.MemoryStore, connID domain.ConnectionID, entityType domain.EntityType, externalID string,
	ref func(domain.RecordReferences) *uuid.UUID, targetType domain.EntityType, targetExternalID string) {
	t.Helper()

	mapping, ok := store.Mapping(connID, entityType, externalID)
	if !ok {
		t.Fatalf("no mapping for %s %s", entityType, externalID)
	}
	target, ok := store.Mapping(connID, targetType, targetExternalID)
	if !ok {
		t.Fatalf("no mapping for %s %s", targetType, targetExternalID)
	}

	_, refs, _ := store.Record(mapping.InternalID)
	got := ref(refs)
	if got == nil {
		t.Fatalf("%s %s has no %s reference", entityType, externalID, targetType)
	}
	assert.Equal(t, *got, target.InternalID)
}

func TestConcurrentTriggersStartOneRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	client := &fakeClient{fetch: func(ctx context.Context, entityType domain.EntityType, page int) (provider.Page, error) {
		once.Do(func() { close(started) })
		<-release
		return provider.Page{Records: raw(`{"id":1,"name":"Acme Corp"}`)}, nil
	}}

	h := newHarness(t, testConnection(domain.EntityCompany), client, staticCredentials{}, time.Minute)

	var firstRun *domain.SyncRun
	done := make(chan struct{})
	go func() {
		defer close(done)
		firstRun, _ = h.orch.Trigger(context.Background(), TriggerRequest{ConnectionID: h.conn.ID, Force: true, Source: domain.TriggerManual})
	}()

	<-started
	second, err := h.orch.Trigger(context.Background(), TriggerRequest{ConnectionID: h.conn.ID, Force: true, Source: domain.TriggerManual})
	assert.Equal(t, err, nil)
	assert.Equal(t, second == nil, true)

	close(release)
	<-done

	assert.Equal(t, firstRun.Status, domain.SyncStatusSuccess)
	assert.Equal(t, len(h.recorder.Runs()), 1)

	_, total, err := h.store.ListRuns(context.Background(), h.conn.ID, 0, 10)
	assert.Equal(t, err, nil)
	assert.Equal(t, total, 1)
}

func TestAuthFailureLeavesLastSyncAtUntouched(t *testing.T) {
	previous := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	conn := testConnection(domain.EntityCompany)
	conn.LastSyncAt = &previous
	conn.LastSyncStatus = domain.SyncStatusSuccess

	client := &fakeClient{authErr: &domain.AuthError{Provider: domain.ProviderConnectWise, StatusCode: http.StatusUnauthorized}}
	h := newHarness(t, conn, client, staticCredentials{}, time.Minute)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusFailed)
	assert.Equal(t, len(run.Errors), 1)
	assert.Equal(t, run.Errors[0].Kind, "auth_error")

	stored := h.stored(t)
	assert.Equal(t, *stored.LastSyncAt, previous)
	assert.Equal(t, stored.LastSyncStatus, domain.SyncStatusFailed)

	persisted, err := h.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, persisted.Status, domain.SyncStatusFailed)
	assert.Equal(t, persisted.FinishedAt != nil, true)
}

type outageStore struct {
	*sync_repository.MemoryStore
	err error
}

func (s *outageStore) InTx(ctx context.Context, fn func(context.Context, reconcile.Tx) error) error {
	return s.err
}

func TestStoreFailureWhileReconcilingFailsRun(t *testing.T) {
	previous := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	conn := testConnection(domain.EntityCompany, domain.EntityContact)
	conn.LastSyncAt = &previous
	conn.LastSyncStatus = domain.SyncStatusSuccess

	client := &fakeClient{pages: map[domain.EntityType][][]json.RawMessage{
		domain.EntityCompany: {raw(`{"id":1,"name":"Acme Corp"}`)},
		domain.EntityContact: {raw(`{"id":10,"firstName":"Ada","company":{"id":1}}`)},
	}}

	h := newHarness(t, conn, client, staticCredentials{}, time.Minute)
	outage := errors.New("pq: terminating connection due to administrator command")
	h.orch = New(testConfig(time.Minute), Dependencies{
		Store:       &outageStore{MemoryStore: h.store, err: outage},
		Credentials: staticCredentials{},
		Recorder:    h.recorder,
		NewClient: func(domain.Connection, *vault.Credentials, provider.Options) (provider.ProviderClient, error) {
			return client, nil
		},
	})

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusFailed)
	assert.Equal(t, len(run.Errors), 1)
	assert.Equal(t, run.Errors[0].Kind, "internal_error")
	assert.Equal(t, strings.Contains(run.Errors[0].Message, outage.Error()), true)
	assert.Equal(t, run.Counts[domain.EntityContact], domain.EntityCounts{})

	stored := h.stored(t)
	assert.Equal(t, *stored.LastSyncAt, previous)
	assert.Equal(t, stored.LastSyncStatus, domain.SyncStatusFailed)
}

func TestCredentialErrorFailsRun(t *testing.T) {
	conn := testConnection(domain.EntityCompany)
	credentialErr := &domain.CredentialError{ConnectionID: conn.ID, Reason: "authentication tag mismatch"}

	h := newHarness(t, conn, &fakeClient{}, staticCredentials{err: credentialErr}, time.Minute)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusFailed)
	assert.Equal(t, run.Errors[0].Kind, "credential_error")
	assert.Equal(t, h.stored(t).LastSyncAt == nil, true)
}

func TestEntityTypeFailureMakesRunPartial(t *testing.T) {
	client := &fakeClient{
		pages: map[domain.EntityType][][]json.RawMessage{
			domain.EntityCompany: {raw(`{"id":1,"name":"Acme Corp"}`, `{"id":2,"name":"Zephyr Industries"}`)},
			domain.EntityContact: {raw(`{"id":10,"firstName":"Ada","company":{"id":1}}`)},
		},
		errs: map[domain.EntityType]error{
			domain.EntityTicket: &domain.ProviderError{Provider: domain.ProviderConnectWise, StatusCode: http.StatusBadRequest, Message: "bad conditions"},
		},
	}

	h := newHarness(t, testConnection(domain.EntityCompany, domain.EntityContact, domain.EntityTicket), client, staticCredentials{}, time.Minute)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusPartial)
	assert.Equal(t, run.Counts[domain.EntityCompany], domain.EntityCounts{Created: 2})
	assert.Equal(t, run.Counts[domain.EntityContact], domain.EntityCounts{Created: 1})
	assert.Equal(t, run.Counts[domain.EntityTicket], domain.EntityCounts{})

	want := []domain.EntityError{{EntityType: domain.EntityTicket, Kind: "provider_error", Message: "connectwise returned status 400: bad conditions"}}
	if diff := cmp.Diff(want, run.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, *h.stored(t).LastSyncAt, run.StartedAt)
	assert.Equal(t, h.stored(t).LastSyncStatus, domain.SyncStatusPartial)
}

func TestRecordFailuresAreCountedWithoutFailingTheType(t *testing.T) {
	client := &fakeClient{pages: map[domain.EntityType][][]json.RawMessage{
		domain.EntityCompany: {raw(`{"id":1,"name":"Acme Corp"}`, `{"name":"No Id"}`, `not json`)},
	}}

	h := newHarness(t, testConnection(domain.EntityCompany), client, staticCredentials{}, time.Minute)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusSuccess)
	assert.Equal(t, run.Counts[domain.EntityCompany], domain.EntityCounts{Created: 1, Errored: 2})
	assert.Equal(t, len(run.Errors), 2)
	assert.Equal(t, run.Errors[0].Kind, "normalization_error")
}

func TestDisablingConnectionStopsRunBetweenPages(t *testing.T) {
	var h *harness
	var fetched int32

	client := &fakeClient{fetch: func(ctx context.Context, entityType domain.EntityType, page int) (provider.Page, error) {
		if atomic.AddInt32(&fetched, 1) == 2 {
			conn := h.stored(t)
			conn.Enabled = false
			h.store.SaveConnection(ctx, conn)
		}
		return provider.Page{Records: raw(fmt.Sprintf(`{"id":%d,"name":"Company %d"}`, page+1, page+1)), NextToken: strconv.Itoa(page + 1)}, nil
	}}

	h = newHarness(t, testConnection(domain.EntityCompany), client, staticCredentials{}, time.Minute)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusPartial)
	assert.Equal(t, run.Counts[domain.EntityCompany].Created, 2)
	assert.Equal(t, atomic.LoadInt32(&fetched), int32(2))
	assert.Equal(t, run.Errors[0].Kind, "cancelled")
}

func TestRunBudgetAbandonsRemainingWork(t *testing.T) {
	client := &fakeClient{fetch: func(ctx context.Context, entityType domain.EntityType, page int) (provider.Page, error) {
		if entityType == domain.EntityCompany {
			return provider.Page{Records: raw(`{"id":1,"name":"Acme Corp"}`)}, nil
		}
		<-ctx.Done()
		return provider.Page{}, ctx.Err()
	}}

	h := newHarness(t, testConnection(domain.EntityCompany, domain.EntityTicket), client, staticCredentials{}, 50*time.Millisecond)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusPartial)
	assert.Equal(t, run.Counts[domain.EntityCompany], domain.EntityCounts{Created: 1})
	assert.Equal(t, len(run.Errors), 1)
	assert.Equal(t, run.Errors[0].EntityType, domain.EntityTicket)
	assert.Equal(t, run.Errors[0].Kind, "timeout")
	assert.Equal(t, run.Errors[0].Message, domain.ErrRunBudgetExceeded.Error())
}

func TestTriggerHonoursEnabledAndDue(t *testing.T) {
	ctx := context.Background()

	recent := time.Now().UTC().Add(-time.Minute)
	conn := testConnection(domain.EntityCompany)
	conn.LastSyncAt = &recent

	h := newHarness(t, conn, &fakeClient{}, staticCredentials{}, time.Minute)

	run, err := h.orch.Trigger(ctx, TriggerRequest{ConnectionID: conn.ID, Source: domain.TriggerSchedule})
	assert.Equal(t, run == nil, true)
	assert.Equal(t, errors.Is(err, ErrNotDue), true)

	run, err = h.orch.Trigger(ctx, TriggerRequest{ConnectionID: conn.ID, Force: true, Source: domain.TriggerManual})
	assert.Equal(t, err, nil)
	assert.Equal(t, run.Status, domain.SyncStatusSuccess)

	disabled := h.stored(t)
	disabled.Enabled = false
	assert.Equal(t, h.store.SaveConnection(ctx, disabled), nil)

	_, err = h.orch.Trigger(ctx, TriggerRequest{ConnectionID: conn.ID, Force: true, Source: domain.TriggerManual})
	assert.Equal(t, errors.Is(err, domain.ErrConnectionDisabled), true)

	_, err = h.orch.Trigger(ctx, TriggerRequest{ConnectionID: domain.ConnectionID(uuid.New()), Force: true})
	assert.Equal(t, errors.Is(err, domain.ErrNotFound), true)
}

func TestInvalidConnectionRecordsFailedRun(t *testing.T) {
	conn := testConnection(domain.EntityCompany)
	conn.BaseURL = "not a url"

	h := newHarness(t, conn, &fakeClient{}, staticCredentials{}, time.Minute)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusFailed)
	assert.Equal(t, h.stored(t).LastSyncStatus, domain.SyncStatusFailed)
}

func TestSyncedCompaniesAreImportedAsOrganizations(t *testing.T) {
	conn := testConnection(domain.EntityCompany)
	conn.ImportOrganizations = true
	conn.OrgNamePrefix = "CW - "

	client := &fakeClient{pages: map[domain.EntityType][][]json.RawMessage{
		domain.EntityCompany: {raw(`{"id":1,"name":"Acme Corp"}`, `{"id":2,"name":"Zephyr Industries"}`)},
	}}

	h := newHarness(t, conn, client, staticCredentials{}, time.Minute)
	_, err := h.store.CreateOrganization(context.Background(), domain.Organization{ID: uuid.New(), Name: "Acme Corporation"})
	assert.Equal(t, err, nil)

	run := h.trigger(t)
	assert.Equal(t, run.Status, domain.SyncStatusSuccess)

	orgs, err := h.store.ListOrganizations(context.Background())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(orgs), 2)

	for _, externalID := range []string{"1", "2"} {
		mapping, ok := h.store.Mapping(conn.ID, domain.EntityCompany, externalID)
		assert.Equal(t, ok, true)
		_, linked := h.store.OrganizationOf(mapping.InternalID)
		assert.Equal(t, linked, true)
	}
}
