package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/vault"
)

// Autotask REST.  The base url is the zone url ending in /ATServicesRest.
type autotaskClient struct {
	t *transport
}

type autotaskEntity struct {
	path          string
	modifiedField string
}

var autotaskEntities = map[domain.EntityType]autotaskEntity{
	domain.EntityCompany: {path: "/V1.0/Companies/query", modifiedField: "lastActivityDate"},
	domain.EntityContact: {path: "/V1.0/Contacts/query", modifiedField: "lastModifiedDate"},
	domain.EntityTicket:  {path: "/V1.0/Tickets/query", modifiedField: "lastActivityDate"},
	domain.EntityDevice:  {path: "/V1.0/ConfigurationItems/query", modifiedField: "lastModifiedTime"},
}

type autotaskFilter struct {
	Op    string      `json:"op"`
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

type autotaskSearch struct {
	MaxRecords int              `json:"MaxRecords"`
	Filter     []autotaskFilter `json:"filter"`
}

type autotaskResponse struct {
	Items       []json.RawMessage `json:"items"`
	PageDetails struct {
		Count       int    `json:"count"`
		NextPageURL string `json:"nextPageUrl"`
	} `json:"pageDetails"`
}

func newAutotaskClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	err := requireCredentials(conn, map[string]string{
		"integration_code": creds.IntegrationCode,
		"username":         creds.Username,
		"api_secret":       creds.APISecret,
	})
	if err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderAutotask, conn.BaseURL, opts, headerAuth(func() map[string]string {
		return map[string]string{
			"ApiIntegrationCode": creds.IntegrationCode,
			"UserName":           creds.Username,
			"Secret":             creds.APISecret,
		}
	}))
	if err != nil {
		return nil, err
	}

	return &autotaskClient{t: t}, nil
}

func (c *autotaskClient) Type() domain.ProviderType { return domain.ProviderAutotask }

func (c *autotaskClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket, domain.EntityDevice}
}

func (c *autotaskClient) Authenticate(ctx context.Context) error {
	_, err := c.t.getJSON(ctx, "/V1.0/Companies/entityInformation", nil, nil)
	return classifyAuthFailure(domain.ProviderAutotask, err)
}

// FetchPage issues a query on the first call and afterwards follows the
// absolute nextPageUrl the api hands back.
func (c *autotaskClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	entity, ok := autotaskEntities[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderAutotask, entityType)
	}

	target := pageToken
	var query url.Values
	if target == "" {
		search := autotaskSearch{
			MaxRecords: c.t.pageSize,
			Filter:     []autotaskFilter{{Op: "gte", Field: "id", Value: 0}},
		}
		if since != nil {
			search.Filter = []autotaskFilter{{Op: "gt", Field: entity.modifiedField, Value: isoTime(*since)}}
		}
		encoded, err := json.Marshal(search)
		if err != nil {
			return Page{}, err
		}
		target = entity.path
		query = url.Values{"search": []string{string(encoded)}}
	}

	var resp autotaskResponse
	if _, err := c.t.getJSON(ctx, target, query, &resp); err != nil {
		return Page{}, err
	}

	return Page{Records: resp.Items, NextToken: resp.PageDetails.NextPageURL}, nil
}
