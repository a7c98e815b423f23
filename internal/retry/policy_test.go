package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/go-playground/assert/v2"
)

func init() {
	logger.InitLogger()
}

func fastPolicy() Policy {
	return Policy{
		BaseDelay:            time.Millisecond,
		Multiplier:           2,
		MaxDelay:             5 * time.Millisecond,
		MaxAttempts:          5,
		DefaultRateLimitWait: time.Millisecond,
	}
}

type scriptedServer struct {
	calls    int32
	statuses []int
	headers  map[int]http.Header
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := int(atomic.AddInt32(&s.calls, 1)) - 1
	status := s.statuses[len(s.statuses)-1]
	if call < len(s.statuses) {
		status = s.statuses[call]
	}
	for k, v := range s.headers[call] {
		w.Header()[k] = v
	}
	w.WriteHeader(status)
	w.Write([]byte(`{"message":"scripted"}`))
}

func getCall(url string) Call {
	return func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		return http.DefaultClient.Do(req)
	}
}

func TestTwoServerErrorsThenSuccess(t *testing.T) {
	script := &scriptedServer{statuses: []int{503, 500, 200}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	resp, err := fastPolicy().Do(context.Background(), domain.ProviderConnectWise, getCall(srv.URL))
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	resp.Body.Close()

	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, atomic.LoadInt32(&script.calls), int32(3))
}

func TestAlwaysFailingExhaustsAttemptCap(t *testing.T) {
	script := &scriptedServer{statuses: []int{502}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	_, err := fastPolicy().Do(context.Background(), domain.ProviderAutotask, getCall(srv.URL))

	var transientErr *domain.TransientError
	if !errors.As(err, &transientErr) {
		t.Fatalf("expected TransientError, got %v", err)
	}

	assert.Equal(t, atomic.LoadInt32(&script.calls), int32(5))
	assert.Equal(t, transientErr.Attempts, 5)
	assert.Equal(t, transientErr.StatusCode, 502)
}

func TestNetworkErrorsAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := fastPolicy().Do(context.Background(), domain.ProviderSyncro, getCall(url))

	var transientErr *domain.TransientError
	if !errors.As(err, &transientErr) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	assert.Equal(t, transientErr.Attempts, 5)
}

func TestRateLimitHonoursRetryAfterThenSucceeds(t *testing.T) {
	script := &scriptedServer{
		statuses: []int{429, 200},
		headers:  map[int]http.Header{0: {"Retry-After": []string{"0"}}},
	}
	srv := httptest.NewServer(script)
	defer srv.Close()

	resp, err := fastPolicy().Do(context.Background(), domain.ProviderHaloPSA, getCall(srv.URL))
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	resp.Body.Close()

	assert.Equal(t, atomic.LoadInt32(&script.calls), int32(2))
}

func TestRateLimitExhaustion(t *testing.T) {
	script := &scriptedServer{statuses: []int{429}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	_, err := fastPolicy().Do(context.Background(), domain.ProviderZendesk, getCall(srv.URL))

	var rateLimitErr *domain.RateLimitError
	if !errors.As(err, &rateLimitErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	assert.Equal(t, rateLimitErr.Attempts, 5)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	script := &scriptedServer{statuses: []int{404}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	_, err := fastPolicy().Do(context.Background(), domain.ProviderITFlow, getCall(srv.URL))

	var providerErr *domain.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	assert.Equal(t, providerErr.StatusCode, 404)
	assert.Equal(t, atomic.LoadInt32(&script.calls), int32(1))
}

func TestAuthFailuresAreHandedBack(t *testing.T) {
	for _, status := range []int{401, 403} {
		script := &scriptedServer{statuses: []int{status}}
		srv := httptest.NewServer(script)

		resp, err := fastPolicy().Do(context.Background(), domain.ProviderFreshservice, getCall(srv.URL))
		if err != nil {
			t.Fatalf("unexpected error for %d: %v", status, err)
		}
		resp.Body.Close()

		assert.Equal(t, resp.StatusCode, status)
		assert.Equal(t, atomic.LoadInt32(&script.calls), int32(1))
		srv.Close()
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	script := &scriptedServer{statuses: []int{500}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	policy := fastPolicy()
	policy.BaseDelay = time.Hour
	policy.MaxDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := policy.Do(ctx, domain.ProviderKaseya, getCall(srv.URL))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	testCases := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"missing", "", 5 * time.Second},
		{"seconds", "7", 7 * time.Second},
		{"negative", "-3", 5 * time.Second},
		{"http date", now.Add(12 * time.Second).Format(http.TimeFormat), 12 * time.Second},
		{"date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 5 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.value != "" {
				header.Set("Retry-After", tc.value)
			}
			assert.Equal(t, p.retryAfter(header, now), tc.expected)
		})
	}
}
