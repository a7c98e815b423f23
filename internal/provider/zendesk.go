package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/vault"
)

// Zendesk Support.  Organizations map to companies and end users to
// contacts.  Zendesk has no device inventory.
type zendeskClient struct {
	t *transport
}

var zendeskEntities = map[domain.EntityType]keyedEndpoint{
	domain.EntityCompany: {path: "/api/v2/organizations", key: "organizations"},
	domain.EntityContact: {path: "/api/v2/users", key: "users"},
	domain.EntityTicket:  {path: "/api/v2/tickets", key: "tickets"},
}

const zendeskIncrementalTickets = "/api/v2/incremental/tickets/cursor"

type zendeskMeta struct {
	HasMore     bool   `json:"has_more"`
	AfterCursor string `json:"after_cursor"`
}

func newZendeskClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	err := requireCredentials(conn, map[string]string{
		"username": creds.Username,
		"api_key":  creds.APIKey,
	})
	if err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderZendesk, conn.BaseURL, opts, basicAuth(
		func() string { return creds.Username + "/token" },
		func() string { return creds.APIKey },
	))
	if err != nil {
		return nil, err
	}

	return &zendeskClient{t: t}, nil
}

func (c *zendeskClient) Type() domain.ProviderType { return domain.ProviderZendesk }

func (c *zendeskClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket}
}

func (c *zendeskClient) Authenticate(ctx context.Context) error {
	_, err := c.t.getJSON(ctx, "/api/v2/users/me", nil, nil)
	return classifyAuthFailure(domain.ProviderZendesk, err)
}

// FetchPage uses cursor pagination.  Incremental ticket runs go through the
// incremental export, which reports end_of_stream instead of has_more.
func (c *zendeskClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	entity, ok := zendeskEntities[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderZendesk, entityType)
	}

	if entityType == domain.EntityTicket && since != nil {
		return c.fetchIncrementalTickets(ctx, entity, *since, pageToken)
	}

	query := url.Values{}
	query.Set("page[size]", strconv.Itoa(c.t.pageSize))
	if pageToken != "" {
		query.Set("page[after]", pageToken)
	}
	if entityType == domain.EntityContact {
		query.Set("role", "end-user")
	}

	var resp map[string]json.RawMessage
	if _, err := c.t.getJSON(ctx, entity.path, query, &resp); err != nil {
		return Page{}, err
	}

	records, err := entity.records(domain.ProviderZendesk, resp)
	if err != nil {
		return Page{}, err
	}

	var meta zendeskMeta
	if raw, ok := resp["meta"]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return Page{}, &domain.ProviderError{Provider: domain.ProviderZendesk, Message: "unexpected pagination meta"}
		}
	}

	next := ""
	if meta.HasMore {
		next = meta.AfterCursor
	}

	return Page{Records: records, NextToken: next}, nil
}

func (c *zendeskClient) fetchIncrementalTickets(ctx context.Context, entity keyedEndpoint, since time.Time, pageToken string) (Page, error) {
	query := url.Values{}
	if pageToken != "" {
		query.Set("cursor", pageToken)
	} else {
		query.Set("start_time", strconv.FormatInt(since.Unix(), 10))
	}

	var resp map[string]json.RawMessage
	if _, err := c.t.getJSON(ctx, zendeskIncrementalTickets, query, &resp); err != nil {
		return Page{}, err
	}

	records, err := entity.records(domain.ProviderZendesk, resp)
	if err != nil {
		return Page{}, err
	}

	var stream struct {
		AfterCursor string `json:"after_cursor"`
		EndOfStream bool   `json:"end_of_stream"`
	}
	if raw, ok := resp["after_cursor"]; ok {
		json.Unmarshal(raw, &stream.AfterCursor)
	}
	if raw, ok := resp["end_of_stream"]; ok {
		json.Unmarshal(raw, &stream.EndOfStream)
	}

	next := ""
	if !stream.EndOfStream {
		next = stream.AfterCursor
	}

	return Page{Records: records, NextToken: next}, nil
}
