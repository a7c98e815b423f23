package api

import (
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gorilla/mux"
)

const specFile = "../../../api/api.spec.json"

var _ = Describe("OpenAPI", func() {

	Describe("Serve openapi.json", func() {
		Context("With a valid spec file", func() {
			It("Should return the openapi.json file", func() {

				req, err := http.NewRequest("GET", "/api/psa-sync/v1/openapi.json", nil)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()

				apiMux := mux.NewRouter()
				apiSpecServer := NewApiSpecServer(apiMux, "/api/psa-sync/v1", specFile)
				apiSpecServer.Routes()

				apiSpecServer.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))

				expectedBytes, err := os.ReadFile(specFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(rr.Body.Bytes()).To(Equal(expectedBytes))
			})
		})

		Context("With a missing invalid path to the api spec file", func() {
			It("Should return a 404", func() {
				req, err := http.NewRequest("GET", "/api/psa-sync/v1/openapi.json", nil)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()

				apiMux := mux.NewRouter()
				apiSpecServer := NewApiSpecServer(apiMux, "/api/psa-sync/v1", "invalid-file-name")
				apiSpecServer.Routes()

				apiSpecServer.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusNotFound))
			})
		})
	})
})
