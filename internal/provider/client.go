package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/utils/tls_utils"
	"github.com/msp-docs/psa-sync/internal/retry"
	"github.com/msp-docs/psa-sync/internal/vault"

	"golang.org/x/time/rate"
)

// Page is one batch of raw vendor records.  An empty NextToken means the
// vendor has no further pages.
type Page struct {
	Records   []json.RawMessage
	NextToken string
}

// ProviderClient talks to one vendor account
type ProviderClient interface {
	Type() domain.ProviderType
	SupportedEntityTypes() []domain.EntityType
	Authenticate(ctx context.Context) error
	FetchPage(ctx context.Context, entityType domain.EntityType, since *time.Time, pageToken string) (Page, error)
}

type Options struct {
	HTTPClient *http.Client
	Policy     retry.Policy
	Limiter    *rate.Limiter
	Tokens     *TokenCache
	PageSize   int
}

func NewOptions(cfg *config.Config, tokens *TokenCache) (Options, error) {
	httpClient := &http.Client{Timeout: cfg.ProviderHttpTimeout}

	if cfg.ProviderCACertFile != "" {
		tlsConfig, err := tls_utils.NewTlsConfig(tls_utils.WithCACerts(cfg.ProviderCACertFile))
		if err != nil {
			return Options{}, fmt.Errorf("unable to configure provider TLS: %w", err)
		}

		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpClient.Transport = transport
	}

	return Options{
		HTTPClient: httpClient,
		Policy:     retry.NewPolicy(cfg),
		Limiter:    rate.NewLimiter(rate.Limit(cfg.ProviderRequestsPerSec), cfg.ProviderRequestBurst),
		Tokens:     tokens,
		PageSize:   cfg.ProviderPageSize,
	}, nil
}

// ForConnection returns a copy of the options with a limiter of its own, so
// one busy connection cannot starve the others.
func (o Options) ForConnection() Options {
	if o.Limiter != nil {
		o.Limiter = rate.NewLimiter(o.Limiter.Limit(), o.Limiter.Burst())
	}
	return o
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Policy.MaxAttempts == 0 {
		o.Policy = retry.DefaultPolicy()
	}
	if o.Tokens == nil {
		o.Tokens = NewTokenCache(0)
	}
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	return o
}

// Factory builds a client.  creds stays owned by the caller; clients read it
// on every request and must not copy secrets elsewhere.
type Factory func(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error)

var registry = map[domain.ProviderType]Factory{
	domain.ProviderConnectWise:  newConnectWiseClient,
	domain.ProviderAutotask:     newAutotaskClient,
	domain.ProviderHaloPSA:      newHaloPSAClient,
	domain.ProviderKaseya:       newKaseyaClient,
	domain.ProviderSyncro:       newSyncroClient,
	domain.ProviderFreshservice: newFreshserviceClient,
	domain.ProviderZendesk:      newZendeskClient,
	domain.ProviderITFlow:       newITFlowClient,
	domain.ProviderNinjaOne:     newNinjaOneClient,
	domain.ProviderAtera:        newAteraClient,
}

func New(conn domain.Connection, creds *vault.Credentials, opts Options) (ProviderClient, error) {
	factory, ok := registry[conn.ProviderType]
	if !ok {
		return nil, &domain.ProviderError{Provider: conn.ProviderType, Message: "unsupported provider"}
	}
	return factory(conn, creds, opts.withDefaults())
}

func Registered(p domain.ProviderType) bool {
	_, ok := registry[p]
	return ok
}

func RegisteredProviders() []domain.ProviderType {
	providers := make([]domain.ProviderType, 0, len(registry))
	for p := range registry {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// Iterate walks the pages of one entity type in order.  It stops at the
// first empty page or missing next token and never asks for a page twice.
// check runs before every request so callers can stop between pages.
func Iterate(ctx context.Context, client ProviderClient, entityType domain.EntityType, since *time.Time, check func(context.Context) error, handle func(Page) error) error {
	token := ""
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if check != nil {
			if err := check(ctx); err != nil {
				return err
			}
		}

		page, err := client.FetchPage(ctx, entityType, since, token)
		if err != nil {
			return err
		}

		if len(page.Records) == 0 {
			return nil
		}

		if err := handle(page); err != nil {
			return err
		}

		if page.NextToken == "" {
			return nil
		}

		if _, repeated := seen[page.NextToken]; repeated {
			return &domain.ProviderError{Provider: client.Type(),
				Message: fmt.Sprintf("pagination for %s repeated token %q", entityType, page.NextToken)}
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken
	}
}

func unsupportedEntity(p domain.ProviderType, e domain.EntityType) error {
	return &domain.ProviderError{Provider: p, Message: fmt.Sprintf("entity type %s is not supported", e)}
}

func missingCredential(conn domain.Connection, field string) error {
	return &domain.CredentialError{ConnectionID: conn.ID, Reason: "missing credential field " + field}
}

func requireCredentials(conn domain.Connection, fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if fields[name] == "" {
			return missingCredential(conn, name)
		}
	}
	return nil
}

func supports(supported []domain.EntityType, e domain.EntityType) bool {
	for _, s := range supported {
		if s == e {
			return true
		}
	}
	return false
}
