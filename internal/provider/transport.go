package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/retry"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 32 << 20

// transport is the HTTP plumbing every vendor client shares: rate limiting,
// retries, authentication and JSON decoding.
type transport struct {
	provider   domain.ProviderType
	baseURL    *url.URL
	httpClient *http.Client
	policy     retry.Policy
	limiter    *rate.Limiter
	auth       authenticator
	pageSize   int
}

func newTransport(provider domain.ProviderType, baseURL string, opts Options, auth authenticator) (*transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &domain.ProviderError{Provider: provider, Message: fmt.Sprintf("invalid base url %q", baseURL)}
	}

	return &transport{
		provider:   provider,
		baseURL:    u,
		httpClient: opts.HTTPClient,
		policy:     opts.Policy,
		limiter:    opts.Limiter,
		auth:       auth,
		pageSize:   opts.PageSize,
	}, nil
}

// resolve joins path onto the base url.  Absolute urls, which some vendors
// hand back as next-page links, are used as they are.
func (t *transport) resolve(path string, query url.Values) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	u := *t.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (t *transport) authenticate(ctx context.Context) error {
	return t.auth.authenticate(ctx)
}

// getJSON issues an authenticated GET and decodes the body into out
func (t *transport) getJSON(ctx context.Context, path string, query url.Values, out interface{}) (http.Header, error) {
	return t.doJSON(ctx, http.MethodGet, t.resolve(path, query), nil, out, t.auth)
}

// postJSONAnonymous is used for login endpoints that hand out the session
func (t *transport) postJSONAnonymous(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = t.doJSON(ctx, http.MethodPost, t.resolve(path, nil), payload, out, anonymousAuth{})
	return err
}

type anonymousAuth struct{}

func (anonymousAuth) authenticate(ctx context.Context) error { return nil }

func (anonymousAuth) authorize(ctx context.Context) (func(*http.Request), error) {
	return func(*http.Request) {}, nil
}

func (anonymousAuth) invalidate() {}

// doJSON sends one request through the retry policy.  A 401 or 403 drops the
// cached session and is retried exactly once after re-authenticating.
func (t *transport) doJSON(ctx context.Context, method string, target string, body []byte, out interface{}, auth authenticator) (http.Header, error) {

	callDurationTimer := prometheus.NewTimer(metrics.vendorCallDuration.With(prometheus.Labels{"provider": string(t.provider)}))
	defer callDurationTimer.ObserveDuration()

	reauthenticated := false

	for {
		decorate, err := auth.authorize(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := t.policy.Do(ctx, t.provider, func(ctx context.Context) (*http.Response, error) {
			if t.limiter != nil {
				if err := t.limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}

			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}

			req, err := http.NewRequestWithContext(ctx, method, target, reader)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			decorate(req)

			return t.httpClient.Do(req)
		})
		if err != nil {
			metrics.vendorCallFailureCounter.With(prometheus.Labels{"provider": string(t.provider), "kind": domain.ErrorKind(err)}).Inc()
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()

			if reauthenticated {
				metrics.vendorCallFailureCounter.With(prometheus.Labels{"provider": string(t.provider), "kind": "auth_error"}).Inc()
				return nil, &domain.AuthError{Provider: t.provider, StatusCode: resp.StatusCode}
			}

			reauthenticated = true
			auth.invalidate()
			if err := auth.authenticate(ctx); err != nil {
				return nil, err
			}
			continue
		}

		defer resp.Body.Close()

		if out != nil {
			payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return nil, &domain.TransientError{Provider: t.provider, Attempts: 1, Err: err}
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return nil, &domain.ProviderError{Provider: t.provider, StatusCode: resp.StatusCode,
					Message: "response is not the expected json: " + err.Error()}
			}
		}

		return resp.Header, nil
	}
}

// retryingRoundTripper routes token endpoint calls made by other libraries
// through the same retry policy as regular calls.
type retryingRoundTripper struct {
	provider domain.ProviderType
	policy   retry.Policy
	base     http.RoundTripper
}

func (rt *retryingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.policy.Do(req.Context(), rt.provider, func(ctx context.Context) (*http.Response, error) {
		attempt := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attempt.Body = body
		}
		return rt.base.RoundTrip(attempt)
	})
}

func (t *transport) retryingClient() *http.Client {
	base := t.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   t.httpClient.Timeout,
		Transport: &retryingRoundTripper{provider: t.provider, policy: t.policy, base: base},
	}
}
