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

const ateraMaxPageSize = 50

// Atera.  The base url is https://app.atera.com/api/v3; agents are devices.
type ateraClient struct {
	t *transport
}

var ateraPaths = map[domain.EntityType]string{
	domain.EntityCompany: "/customers",
	domain.EntityContact: "/contacts",
	domain.EntityTicket:  "/tickets",
	domain.EntityDevice:  "/agents",
}

type ateraResponse struct {
	Items      []json.RawMessage `json:"items"`
	Page       int               `json:"page"`
	TotalPages int               `json:"totalPages"`
	NextLink   string            `json:"nextLink"`
}

func newAteraClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	if err := requireCredentials(conn, map[string]string{"api_key": creds.APIKey}); err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderAtera, conn.BaseURL, opts, headerAuth(func() map[string]string {
		return map[string]string{"X-API-KEY": creds.APIKey}
	}))
	if err != nil {
		return nil, err
	}

	return &ateraClient{t: t}, nil
}

func (c *ateraClient) Type() domain.ProviderType { return domain.ProviderAtera }

func (c *ateraClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket, domain.EntityDevice}
}

func (c *ateraClient) Authenticate(ctx context.Context) error {
	_, err := c.t.getJSON(ctx, "/customers", url.Values{"itemsInPage": []string{"1"}}, nil)
	return classifyAuthFailure(domain.ProviderAtera, err)
}

func (c *ateraClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	path, ok := ateraPaths[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderAtera, entityType)
	}

	page := pageNumber(pageToken, 1)
	pageSize := c.t.pageSize
	if pageSize > ateraMaxPageSize {
		pageSize = ateraMaxPageSize
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("itemsInPage", strconv.Itoa(pageSize))

	var resp ateraResponse
	if _, err := c.t.getJSON(ctx, path, query, &resp); err != nil {
		return Page{}, err
	}

	next := ""
	if page < resp.TotalPages {
		next = strconv.Itoa(page + 1)
	}

	return Page{Records: resp.Items, NextToken: next}, nil
}
