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

const freshserviceMaxPageSize = 100

// Freshservice.  Departments stand in for companies and requesters for
// contacts.
type freshserviceClient struct {
	t *transport
}

var freshserviceEntities = map[domain.EntityType]keyedEndpoint{
	domain.EntityCompany: {path: "/api/v2/departments", key: "departments"},
	domain.EntityContact: {path: "/api/v2/requesters", key: "requesters"},
	domain.EntityTicket:  {path: "/api/v2/tickets", key: "tickets"},
	domain.EntityDevice:  {path: "/api/v2/assets", key: "assets"},
}

func newFreshserviceClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	if err := requireCredentials(conn, map[string]string{"api_key": creds.APIKey}); err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderFreshservice, conn.BaseURL, opts, basicAuth(
		func() string { return creds.APIKey },
		func() string { return "X" },
	))
	if err != nil {
		return nil, err
	}

	return &freshserviceClient{t: t}, nil
}

func (c *freshserviceClient) Type() domain.ProviderType { return domain.ProviderFreshservice }

func (c *freshserviceClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket, domain.EntityDevice}
}

func (c *freshserviceClient) Authenticate(ctx context.Context) error {
	_, err := c.t.getJSON(ctx, "/api/v2/agents/me", nil, nil)
	return classifyAuthFailure(domain.ProviderFreshservice, err)
}

// FetchPage follows the Link header; the token is the absolute next url.
func (c *freshserviceClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	entity, ok := freshserviceEntities[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderFreshservice, entityType)
	}

	target := pageToken
	var query url.Values
	if target == "" {
		pageSize := c.t.pageSize
		if pageSize > freshserviceMaxPageSize {
			pageSize = freshserviceMaxPageSize
		}

		target = entity.path
		query = url.Values{}
		query.Set("page", "1")
		query.Set("per_page", strconv.Itoa(pageSize))
		if since != nil && entityType == domain.EntityTicket {
			query.Set("updated_since", isoTime(*since))
		}
	}

	var resp map[string]json.RawMessage
	header, err := c.t.getJSON(ctx, target, query, &resp)
	if err != nil {
		return Page{}, err
	}

	records, err := entity.records(domain.ProviderFreshservice, resp)
	if err != nil {
		return Page{}, err
	}

	return Page{Records: records, NextToken: nextLink(header.Get("Link"))}, nil
}
