package normalizer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
)

func init() {
	logger.InitLogger()
}

func mustNormalizer(t *testing.T, p domain.ProviderType) *Normalizer {
	n, err := New(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return n
}

func TestEveryProviderHasANormalizer(t *testing.T) {
	for p := range mappings {
		_, err := New(p)
		assert.Equal(t, err, nil)
	}
	assert.Equal(t, len(mappings), 10)

	_, err := New(domain.ProviderType("nope"))
	assert.NotEqual(t, err, nil)
}

func TestConnectWiseCompany(t *testing.T) {
	raw := json.RawMessage(`{"id":250,"name":"  Acme   Corp ","phoneNumber":"555-0100","website":"acme.example","status":{"id":1,"name":"Active"}}`)

	rec, err := mustNormalizer(t, domain.ProviderConnectWise).Normalize(domain.EntityCompany, raw)
	assert.Equal(t, err, nil)

	want := &domain.CanonicalCompany{
		ExternalID: "250",
		Name:       "Acme Corp",
		Phone:      "555-0100",
		Website:    "acme.example",
		Status:     domain.RecordActive,
		RawPayload: raw,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("company mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectWiseContactReadsCommunicationItems(t *testing.T) {
	raw := json.RawMessage(`{"id":7,"firstName":"Ada","lastName":"Lovelace","company":{"id":250},
		"communicationItems":[{"type":{"name":"Email"},"value":"Ada@Example.COM "}],"inactiveFlag":true}`)

	rec, err := mustNormalizer(t, domain.ProviderConnectWise).Normalize(domain.EntityContact, raw)
	assert.Equal(t, err, nil)

	contact := rec.(*domain.CanonicalContact)
	assert.Equal(t, contact.Email, "ada@example.com")
	assert.Equal(t, contact.CompanyExternalID, "250")
	assert.Equal(t, contact.Status, domain.RecordInactive)
}

func TestTicketVocabulary(t *testing.T) {
	tests := []struct {
		name         string
		provider     domain.ProviderType
		raw          string
		wantStatus   domain.TicketStatus
		wantPriority domain.TicketPriority
	}{
		{
			name:         "connectwise known values",
			provider:     domain.ProviderConnectWise,
			raw:          `{"id":1,"summary":"Printer","status":{"name":"Waiting Customer Response"},"priority":{"name":"Priority 2 - High"}}`,
			wantStatus:   domain.TicketStatusWaiting,
			wantPriority: domain.PriorityHigh,
		},
		{
			name:         "connectwise unknown status falls back",
			provider:     domain.ProviderConnectWise,
			raw:          `{"id":1,"summary":"Printer","status":{"name":"Escalated To Vendor"},"priority":{"name":"P9"}}`,
			wantStatus:   domain.TicketStatusNew,
			wantPriority: domain.PriorityMedium,
		},
		{
			name:         "missing values take fallbacks",
			provider:     domain.ProviderZendesk,
			raw:          `{"id":1,"subject":"VPN"}`,
			wantStatus:   domain.TicketStatusNew,
			wantPriority: domain.PriorityMedium,
		},
		{
			name:         "zendesk solved",
			provider:     domain.ProviderZendesk,
			raw:          `{"id":1,"status":"solved","priority":"urgent"}`,
			wantStatus:   domain.TicketStatusResolved,
			wantPriority: domain.PriorityUrgent,
		},
		{
			name:         "autotask numeric codes",
			provider:     domain.ProviderAutotask,
			raw:          `{"id":9,"status":5,"priority":4}`,
			wantStatus:   domain.TicketStatusClosed,
			wantPriority: domain.PriorityUrgent,
		},
		{
			name:         "freshservice numeric codes",
			provider:     domain.ProviderFreshservice,
			raw:          `{"id":9,"status":3,"priority":1}`,
			wantStatus:   domain.TicketStatusWaiting,
			wantPriority: domain.PriorityLow,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := mustNormalizer(t, tc.provider).Normalize(domain.EntityTicket, json.RawMessage(tc.raw))
			assert.Equal(t, err, nil)

			ticket := rec.(*domain.CanonicalTicket)
			assert.Equal(t, ticket.Status, tc.wantStatus)
			assert.Equal(t, ticket.Priority, tc.wantPriority)
		})
	}
}

func TestDeviceStatusFallback(t *testing.T) {
	n := mustNormalizer(t, domain.ProviderNinjaOne)

	rec, err := n.Normalize(domain.EntityDevice, json.RawMessage(`{"id":3,"systemName":"WS-01","offline":false,"os":{"name":"Windows 11"}}`))
	assert.Equal(t, err, nil)
	device := rec.(*domain.CanonicalDevice)
	assert.Equal(t, device.Status, domain.DeviceOnline)
	assert.Equal(t, device.OperatingSystem, "Windows 11")

	rec, err = n.Normalize(domain.EntityDevice, json.RawMessage(`{"id":4,"systemName":"WS-02","offline":"maybe"}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, rec.(*domain.CanonicalDevice).Status, domain.DeviceUnknown)
}

func TestContactFullNameIsSplit(t *testing.T) {
	rec, err := mustNormalizer(t, domain.ProviderZendesk).Normalize(domain.EntityContact,
		json.RawMessage(`{"id":11,"name":" Grace  Brewster Hopper","email":"GRACE@navy.mil"}`))
	assert.Equal(t, err, nil)

	contact := rec.(*domain.CanonicalContact)
	assert.Equal(t, contact.FirstName, "Grace")
	assert.Equal(t, contact.LastName, "Brewster Hopper")
	assert.Equal(t, contact.Email, "grace@navy.mil")
	assert.Equal(t, contact.Status, domain.RecordActive)
}

func TestTicketTimestamps(t *testing.T) {
	rec, err := mustNormalizer(t, domain.ProviderITFlow).Normalize(domain.EntityTicket,
		json.RawMessage(`{"ticket_id":"5","ticket_status":"Closed","ticket_created_at":"2024-02-01 08:30:00","ticket_closed_at":"not a date"}`))
	assert.Equal(t, err, nil)

	ticket := rec.(*domain.CanonicalTicket)
	assert.Equal(t, *ticket.OpenedAt, time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, ticket.ClosedAt == nil, true)
	assert.Equal(t, ticket.Status, domain.TicketStatusClosed)
}

func TestNormalizationErrors(t *testing.T) {
	tests := []struct {
		name       string
		entityType domain.EntityType
		raw        string
	}{
		{"malformed json", domain.EntityCompany, `{"id":1,`},
		{"not an object", domain.EntityCompany, `[1,2]`},
		{"null", domain.EntityCompany, `null`},
		{"missing id", domain.EntityCompany, `{"name":"Acme"}`},
		{"empty id", domain.EntityCompany, `{"id":"  ","name":"Acme"}`},
		{"no mapping", domain.EntityDevice, `{"id":1}`},
	}

	n := mustNormalizer(t, domain.ProviderZendesk)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := n.Normalize(tc.entityType, json.RawMessage(tc.raw))

			var normErr *domain.NormalizationError
			assert.Equal(t, rec, nil)
			assert.Equal(t, errors.As(err, &normErr), true)
			assert.Equal(t, normErr.Provider, domain.ProviderZendesk)
		})
	}
}

func TestRawPayloadIsVerbatim(t *testing.T) {
	raw := json.RawMessage(`{ "id" : 1, "name":"Acme",  "extra": {"nested": [1, 2.50]} }`)

	rec, err := mustNormalizer(t, domain.ProviderZendesk).Normalize(domain.EntityCompany, raw)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(rec.GetRawPayload()), string(raw))

	raw[3] = 'X'
	assert.NotEqual(t, string(rec.GetRawPayload()), string(raw))
}

func TestLookupPaths(t *testing.T) {
	doc, err := decode(json.RawMessage(`{"a":{"b":[{"c":"x"}]},"n":12345678901234,"empty":"","t":true}`))
	assert.Equal(t, err, nil)

	assert.Equal(t, text(doc.lookup("a.b.0.c")), "x")
	assert.Equal(t, text(doc.lookup("a.b.1.c")), "")
	assert.Equal(t, text(doc.lookup("n")), "12345678901234")
	assert.Equal(t, text(doc.lookup("empty|a.b.0.c")), "x")
	assert.Equal(t, text(doc.lookup("t")), "true")
	assert.Equal(t, text(doc.lookup("")), "")
}
