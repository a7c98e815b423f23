package middlewares_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/msp-docs/psa-sync/internal/middlewares"
	"github.com/redhatinsights/platform-go-middlewares/v2/identity"
)

const (
	TOKEN_HEADER_CLIENT_NAME = middlewares.PSKClientIdHeader
	TOKEN_HEADER_ORG_NAME    = middlewares.PSKOrgIdHeader
	TOKEN_HEADER_PSK_NAME    = middlewares.PSKHeader
	authFailure              = "Authentication failed"
	IDENTITY_HEADER_NAME     = "x-rh-identity"
	EXPECTED_ORG_FROM_TOKEN  = "000001"
	EXPECTED_ORG_FROM_HEADER = "000002"
)

var validIdentityHeader = base64.StdEncoding.EncodeToString([]byte(
	`{"identity": {"account_number": "0000002", "org_id": "000002", "internal": {"org_id": "000002"}, "type": "User", "auth_type": "basic-auth"}}`))

func GetTestHandler(expectedOrgID string, expectedCaller string) http.HandlerFunc {
	fn := func(rw http.ResponseWriter, req *http.Request) {
		principal, ok := middlewares.GetPrincipal(req.Context())
		Expect(ok).To(Equal(true))
		Expect(principal.GetOrgID()).To(Equal(expectedOrgID))
		Expect(principal.Describe()).To(Equal(expectedCaller))
	}

	return http.HandlerFunc(fn)
}

func boiler(req *http.Request, expectedStatusCode int, expectedBody string, expectedOrgID string, expectedCaller string, amw *middlewares.AuthMiddleware) {
	rr := httptest.NewRecorder()
	handler := amw.Authenticate(GetTestHandler(expectedOrgID, expectedCaller))
	handler.ServeHTTP(rr, req)

	Expect(rr.Code).To(Equal(expectedStatusCode))
	Expect(rr.Body.String()).To(Equal(expectedBody))
}

var _ = Describe("Auth", func() {
	var (
		req *http.Request
		amw *middlewares.AuthMiddleware
	)

	BeforeEach(func() {
		knownSecrets := make(map[string]interface{})
		knownSecrets["crud_app"] = "12345"
		amw = &middlewares.AuthMiddleware{Secrets: knownSecrets, IdentityAuth: identity.EnforceIdentity}

		r, err := http.NewRequest("POST", "/api/psa-sync/v1/connections/5e0b6d3c-3f4e-4a8b-9d2a-1c2b3d4e5f60/sync", nil)
		if err != nil {
			panic("Test error unable to get new request")
		}
		req = r
	})

	Describe("Using token authentication", func() {
		Context("With no missing token auth headers", func() {
			It("Should return 200 when the key is correct", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "crud_app")
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				boiler(req, 200, "", "", "service:crud_app", amw)
			})

			It("Should return 200 when passing an orgID", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "crud_app")
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")
				req.Header.Add(TOKEN_HEADER_ORG_NAME, EXPECTED_ORG_FROM_TOKEN)

				boiler(req, 200, "", EXPECTED_ORG_FROM_TOKEN, "service:crud_app", amw)
			})

			It("Should return a 401 when the key is incorrect", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "crud_app")
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "678910")

				boiler(req, 401, authFailure+"\n", "", "", amw)
			})

			It("Should return a 401 when the client id is unknown", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "someone_else")
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				boiler(req, 401, authFailure+"\n", "", "", amw)
			})
		})

		Context("With missing token auth headers", func() {
			It("Should return 401 when the client id header is missing", func() {
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				boiler(req, 401, authFailure+"\n", "", "", amw)
			})

			It("Should return 401 when the psk header is missing", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "crud_app")

				boiler(req, 401, authFailure+"\n", "", "", amw)
			})
		})
	})

	Describe("Use identity header authentication", func() {
		Context("With valid identity header and no psk headers", func() {
			It("Should return 200 and record the identity as the caller", func() {
				req.Header.Add(IDENTITY_HEADER_NAME, validIdentityHeader)

				boiler(req, 200, "", EXPECTED_ORG_FROM_HEADER, "identity:User", amw)
			})
		})
	})
})

var _ = Describe("Metrics", func() {
	It("Should pass the status code through", func() {
		mmw := &middlewares.MetricsMiddleware{}
		handler := mmw.RecordHTTPMetrics(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

		req, err := http.NewRequest("GET", "/liveness", nil)
		Expect(err).NotTo(HaveOccurred())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusAccepted))
	})
})
