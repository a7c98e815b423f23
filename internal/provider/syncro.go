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

// Syncro.  The base url is https://<subdomain>.syncromsp.com/api/v1
type syncroClient struct {
	t *transport
}

var syncroEntities = map[domain.EntityType]keyedEndpoint{
	domain.EntityCompany: {path: "/customers", key: "customers"},
	domain.EntityContact: {path: "/contacts", key: "contacts"},
	domain.EntityTicket:  {path: "/tickets", key: "tickets"},
	domain.EntityDevice:  {path: "/customer_assets", key: "assets"},
}

type syncroMeta struct {
	TotalPages int `json:"total_pages"`
	Page       int `json:"page"`
}

func newSyncroClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	if err := requireCredentials(conn, map[string]string{"api_key": creds.APIKey}); err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderSyncro, conn.BaseURL, opts, headerAuth(func() map[string]string {
		return map[string]string{"Authorization": "Bearer " + creds.APIKey}
	}))
	if err != nil {
		return nil, err
	}

	return &syncroClient{t: t}, nil
}

func (c *syncroClient) Type() domain.ProviderType { return domain.ProviderSyncro }

func (c *syncroClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket, domain.EntityDevice}
}

func (c *syncroClient) Authenticate(ctx context.Context) error {
	_, err := c.t.getJSON(ctx, "/me", nil, nil)
	return classifyAuthFailure(domain.ProviderSyncro, err)
}

// FetchPage uses the vendor's fixed page size; meta.total_pages drives the
// next token.
func (c *syncroClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	entity, ok := syncroEntities[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderSyncro, entityType)
	}

	page := pageNumber(pageToken, 1)

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if since != nil {
		query.Set("since_updated_at", isoTime(*since))
	}

	var resp map[string]json.RawMessage
	if _, err := c.t.getJSON(ctx, entity.path, query, &resp); err != nil {
		return Page{}, err
	}

	records, err := entity.records(domain.ProviderSyncro, resp)
	if err != nil {
		return Page{}, err
	}

	var meta syncroMeta
	if raw, ok := resp["meta"]; ok {
		json.Unmarshal(raw, &meta)
	}

	next := ""
	if page < meta.TotalPages {
		next = strconv.Itoa(page + 1)
	}

	return Page{Records: records, NextToken: next}, nil
}
