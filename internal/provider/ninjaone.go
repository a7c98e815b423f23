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

// NinjaOne RMM.  Only organizations and devices are exposed.
type ninjaOneClient struct {
	t *transport
}

var ninjaOnePaths = map[domain.EntityType]string{
	domain.EntityCompany: "/v2/organizations",
	domain.EntityDevice:  "/v2/devices",
}

func newNinjaOneClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	err := requireCredentials(conn, map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	})
	if err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderNinjaOne, conn.BaseURL, opts, nil)
	if err != nil {
		return nil, err
	}

	t.auth = &tokenAuth{
		provider: domain.ProviderNinjaOne,
		cacheKey: "ninjaone:" + conn.ID.String(),
		cache:    opts.Tokens,
		fetch: clientCredentialsFetcher(t, "/ws/oauth/token",
			func() string { return creds.ClientID },
			func() string { return creds.ClientSecret },
			func() string {
				if creds.Scope != "" {
					return creds.Scope
				}
				return "monitoring"
			}),
	}

	return &ninjaOneClient{t: t}, nil
}

func (c *ninjaOneClient) Type() domain.ProviderType { return domain.ProviderNinjaOne }

func (c *ninjaOneClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityDevice}
}

func (c *ninjaOneClient) Authenticate(ctx context.Context) error {
	return c.t.authenticate(ctx)
}

// FetchPage uses keyset pagination: the token is the id of the last record
// of the previous page.
func (c *ninjaOneClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	path, ok := ninjaOnePaths[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderNinjaOne, entityType)
	}

	pageSize := c.t.pageSize

	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		query.Set("after", pageToken)
	}

	var records []json.RawMessage
	if _, err := c.t.getJSON(ctx, path, query, &records); err != nil {
		return Page{}, err
	}

	if len(records) < pageSize {
		return Page{Records: records}, nil
	}

	var last struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(records[len(records)-1], &last); err != nil || last.ID == "" {
		return Page{}, &domain.ProviderError{Provider: domain.ProviderNinjaOne, Message: "record without id breaks pagination"}
	}

	return Page{Records: records, NextToken: last.ID.String()}, nil
}
