package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/utils/jwt_utils"
	"github.com/msp-docs/psa-sync/internal/vault"

	"golang.org/x/oauth2"
)

const kaseyaDefaultSessionLifetime = time.Hour

// Kaseya BMS.  A username/password login returns a session token that is
// sent as a bearer token.
type kaseyaClient struct {
	t *transport
}

var kaseyaPaths = map[domain.EntityType]string{
	domain.EntityCompany: "/api/v2/crm/accounts",
	domain.EntityContact: "/api/v2/crm/contacts",
	domain.EntityTicket:  "/api/v2/servicedesk/tickets",
	domain.EntityDevice:  "/api/v2/crm/assets",
}

type kaseyaLogin struct {
	UserName string `json:"UserName"`
	Password string `json:"Password"`
	Tenant   string `json:"Tenant"`
}

type kaseyaLoginResponse struct {
	Result struct {
		AccessToken string `json:"AccessToken"`
	} `json:"Result"`
}

type kaseyaListResponse struct {
	TotalRecords *int              `json:"TotalRecords"`
	Result       []json.RawMessage `json:"Result"`
}

func newKaseyaClient(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	err := requireCredentials(conn, map[string]string{
		"username": creds.Username,
		"password": creds.Password,
		"tenant":   creds.Tenant,
	})
	if err != nil {
		return nil, err
	}

	t, err := newTransport(domain.ProviderKaseya, conn.BaseURL, opts, nil)
	if err != nil {
		return nil, err
	}

	t.auth = &tokenAuth{
		provider: domain.ProviderKaseya,
		cacheKey: "kaseya:" + conn.ID.String(),
		cache:    opts.Tokens,
		fetch: func(ctx context.Context) (*oauth2.Token, error) {
			var resp kaseyaLoginResponse
			login := kaseyaLogin{UserName: creds.Username, Password: creds.Password, Tenant: creds.Tenant}
			if err := t.postJSONAnonymous(ctx, "/api/v2/security/authenticate", login, &resp); err != nil {
				return nil, err
			}
			if resp.Result.AccessToken == "" {
				return nil, &domain.AuthError{Provider: domain.ProviderKaseya, Err: errors.New("login returned no access token")}
			}

			expiry, ok := jwt_utils.ExpiresAt(resp.Result.AccessToken)
			if !ok {
				expiry = time.Now().Add(kaseyaDefaultSessionLifetime)
			}

			return &oauth2.Token{AccessToken: resp.Result.AccessToken, TokenType: "Bearer", Expiry: expiry}, nil
		},
	}

	return &kaseyaClient{t: t}, nil
}

func (c *kaseyaClient) Type() domain.ProviderType { return domain.ProviderKaseya }

func (c *kaseyaClient) SupportedEntityTypes() []domain.EntityType {
	return []domain.EntityType{domain.EntityCompany, domain.EntityContact, domain.EntityTicket, domain.EntityDevice}
}

func (c *kaseyaClient) Authenticate(ctx context.Context) error {
	return c.t.authenticate(ctx)
}

func (c *kaseyaClient) FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error) {
	path, ok := kaseyaPaths[entityType]
	if !ok {
		return Page{}, unsupportedEntity(domain.ProviderKaseya, entityType)
	}

	page := pageNumber(pageToken, 1)
	pageSize := c.t.pageSize

	query := url.Values{}
	query.Set("PageNumber", strconv.Itoa(page))
	query.Set("PageSize", strconv.Itoa(pageSize))
	if since != nil {
		query.Set("ModifiedAfter", isoTime(*since))
	}

	var resp kaseyaListResponse
	if _, err := c.t.getJSON(ctx, path, query, &resp); err != nil {
		return Page{}, err
	}

	if resp.TotalRecords != nil {
		return Page{Records: resp.Result, NextToken: nextPageByTotal(page, pageSize, *resp.TotalRecords)}, nil
	}
	return Page{Records: resp.Result, NextToken: nextPageIfFull(len(resp.Result), pageSize, page)}, nil
}
