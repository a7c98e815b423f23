package provider

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// authenticator attaches vendor credentials to outgoing requests
type authenticator interface {
	// authenticate establishes a session if the scheme needs one
	authenticate(ctx context.Context) error
	// authorize returns a request decorator bound to the current session
	authorize(ctx context.Context) (func(*http.Request), error)
	// invalidate forgets the current session
	invalidate()
}

// staticAuth covers schemes where every request carries the credentials
// themselves (basic auth, api key headers, api key query params).
type staticAuth struct {
	decorate func(*http.Request)
}

func (a staticAuth) authenticate(ctx context.Context) error { return nil }

func (a staticAuth) authorize(ctx context.Context) (func(*http.Request), error) {
	return a.decorate, nil
}

func (a staticAuth) invalidate() {}

func basicAuth(username, password func() string) staticAuth {
	return staticAuth{decorate: func(req *http.Request) {
		req.SetBasicAuth(username(), password())
	}}
}

func headerAuth(headers func() map[string]string) staticAuth {
	return staticAuth{decorate: func(req *http.Request) {
		for k, v := range headers() {
			req.Header.Set(k, v)
		}
	}}
}

func queryAuth(param string, value func() string) staticAuth {
	return staticAuth{decorate: func(req *http.Request) {
		q := req.URL.Query()
		q.Set(param, value())
		req.URL.RawQuery = q.Encode()
	}}
}

type tokenFetcher func(ctx context.Context) (*oauth2.Token, error)

// tokenAuth covers schemes that exchange credentials for a bearer token.
// Tokens are shared through the TokenCache so consecutive runs and
// concurrent entity types reuse one session.
type tokenAuth struct {
	provider domain.ProviderType
	cacheKey string
	cache    *TokenCache
	fetch    tokenFetcher

	mu sync.Mutex
}

func (a *tokenAuth) authenticate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.cache.Get(a.cacheKey); ok {
		return nil
	}

	tok, err := a.fetch(ctx)
	if err != nil {
		classified := classifyAuthFailure(a.provider, err)
		logger.Log.WithFields(logrus.Fields{"provider": a.provider, "error": classified}).Warn("Unable to obtain vendor access token")
		return classified
	}

	a.cache.Put(a.cacheKey, tok)
	metrics.tokenRefreshCounter.With(prometheus.Labels{"provider": string(a.provider)}).Inc()

	return nil
}

func (a *tokenAuth) authorize(ctx context.Context) (func(*http.Request), error) {
	tok, ok := a.cache.Get(a.cacheKey)
	if !ok {
		if err := a.authenticate(ctx); err != nil {
			return nil, err
		}
		if tok, ok = a.cache.Get(a.cacheKey); !ok {
			return nil, &domain.AuthError{Provider: a.provider, Err: errors.New("token expired immediately after issue")}
		}
	}

	return tok.SetAuthHeader, nil
}

func (a *tokenAuth) invalidate() {
	a.cache.Invalidate(a.cacheKey)
}

// clientCredentialsFetcher performs the OAuth2 client_credentials grant.  The
// token endpoint is reached through the retrying client.
func clientCredentialsFetcher(t *transport, tokenPath string, clientID, clientSecret, scope func() string) tokenFetcher {
	return func(ctx context.Context) (*oauth2.Token, error) {
		cfg := clientcredentials.Config{
			ClientID:     clientID(),
			ClientSecret: clientSecret(),
			TokenURL:     t.resolve(tokenPath, nil),
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		if s := scope(); s != "" {
			cfg.Scopes = []string{s}
		}

		ctx = context.WithValue(ctx, oauth2.HTTPClient, t.retryingClient())

		return cfg.Token(ctx)
	}
}

// classifyAuthFailure turns a rejected credential exchange into an AuthError.
// Transient and rate limit failures keep their type.
func classifyAuthFailure(provider domain.ProviderType, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &domain.AuthError{Provider: provider, StatusCode: status, Err: err}
	}

	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return &domain.AuthError{Provider: provider, StatusCode: providerErr.StatusCode, Err: err}
	}

	var authErr *domain.AuthError
	var transientErr *domain.TransientError
	var rateLimitErr *domain.RateLimitError
	if errors.As(err, &authErr) {
		return authErr
	}
	if errors.As(err, &transientErr) {
		return transientErr
	}
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr
	}

	return err
}
