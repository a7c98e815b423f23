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

// HaloPSA.  The base url is the instance root; the api lives under /api and
// the token endpoint under /auth.
type haloPSAClient struct {
	t *transport
}

var haloEntities = map[domain.EntityType]keyedEndpoint{
	domain.EntityCompany: {path: "/api/Client", key: "clients"},
	domain.EntityContact: {path: "/api/Users", key: "users"},
	domain.EntityTicket:  {path: "/api/Tickets", key: "tickets"},
	domain.EntityDevice:  {path: "/api/Asset", key: "assets"},
}

func newHaloPSAClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	err := requireCredentials(conn, map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	})
	if err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderHaloPSA, conn.BaseURL, opts, nil)
	if err != nil {
		return nil, err
	}

	tokenPath := "/auth/token"
	if creds.Tenant != "" {
		tokenPath = t.resolve(tokenPath, url.Values{"tenant": []string{creds.Tenant}})
	}

	t.auth = &tokenAuth{
		provider: domain.ProviderHaloPSA,
		cacheKey: "halopsa:" + conn.ID.String(),
		cache:    opts.Tokens,
		fetch: clientCredentialsFetcher(t, tokenPath,
			func() string { return creds.ClientID },
			func() string { return creds.ClientSecret },
			func() string {
				if creds.Scope != "" {
					return creds.Scope
				}
				return "all"
			}),
	}

	return &haloPSAClient{t: t}, nil
}

func (c *haloPSAClient) Type() domain.ProviderType { return domain.ProviderHaloPSA }

func (c *haloPSAClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket, domain.EntityDevice}
}

func (c *haloPSAClient) Authenticate(ctx context.Context) error {
	return c.t.authenticate(ctx)
}

func (c *haloPSAClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	entity, ok := haloEntities[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderHaloPSA, entityType)
	}

	page := pageNumber(pageToken, 1)
	pageSize := c.t.pageSize

	query := url.Values{}
	query.Set("pageinate", "true")
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("page_no", strconv.Itoa(page))
	if since != nil && entityType == domain.EntityTicket {
		query.Set("lastupdatefromdate", isoTime(*since))
	}

	var resp map[string]json.RawMessage
	if _, err := c.t.getJSON(ctx, entity.path, query, &resp); err != nil {
		return Page{}, err
	}

	records, err := entity.records(domain.ProviderHaloPSA, resp)
	if err != nil {
		return Page{}, err
	}

	var total int
	if raw, ok := resp["record_count"]; ok && json.Unmarshal(raw, &total) == nil {
		return Page{Records: records, NextToken: nextPageByTotal(page, pageSize, total)}, nil
	}

	return Page{Records: records, NextToken: nextPageIfFull(len(records), pageSize, page)}, nil
}
