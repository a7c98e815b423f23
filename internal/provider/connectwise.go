package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/vault"
)

// ConnectWise Manage.  The connection base url points at the api root, e.g.
// https://api-na.myconnectwise.net/v4_6_release/apis/3.0
type connectWiseClient struct {
	t *transport
}

var connectWisePaths = map[domain.EntityType]string{
	domain.EntityCompany: "/company/companies",
	domain.EntityContact: "/company/contacts",
	domain.EntityTicket:  "/service/tickets",
	domain.EntityDevice:  "/company/configurations",
}

func newConnectWiseClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	err := requireCredentials(conn, map[string]string{
		"company_id":  creds.CompanyID,
		"public_key":  creds.PublicKey,
		"private_key": creds.PrivateKey,
		"client_id":   creds.ClientID,
	})
	if err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderConnectWise, conn.BaseURL, opts, nil)
	if err != nil {
		return nil, err
	}

	basic := basicAuth(
		func() string { return creds.CompanyID + "+" + creds.PublicKey },
		func() string { return creds.PrivateKey },
	)
	t.auth = staticAuth{decorate: func(req *http.Request) {
		basic.decorate(req)
		req.Header.Set("clientId", creds.ClientID)
	}}

	return &connectWiseClient{t: t}, nil
}

func (c *connectWiseClient) Type() domain.ProviderType { return domain.ProviderConnectWise }

func (c *connectWiseClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket, domain.EntityDevice}
}

// Authenticate probes the system info endpoint, which any valid member key
// can read.
func (c *connectWiseClient) Authenticate(ctx context.Context) error {
	_, err := c.t.getJSON(ctx, "/system/info", nil, nil)
	return classifyAuthFailure(domain.ProviderConnectWise, err)
}

func (c *connectWiseClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	path, ok := connectWisePaths[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderConnectWise, entityType)
	}

	page := pageNumber(pageToken, 1)
	pageSize := c.t.pageSize

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("orderBy", "id asc")
	if since != nil {
		query.Set("conditions", fmt.Sprintf("lastUpdated > [%s]", isoTime(*since)))
	}

	var records []json.RawMessage
	if _, err := c.t.getJSON(ctx, path, query, &records); err != nil {
		return Page{}, err
	}

	return Page{Records: records, NextToken: nextPageIfFull(len(records), pageSize, page)}, nil
}
