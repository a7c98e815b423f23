package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/sync_repository"

	"github.com/gorilla/mux"
)

func runPaginationTest(router *mux.Router, endpoint string, expectedResponse paginatedResponse, expectedRuns int) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	Expect(err).NotTo(HaveOccurred())
	addServiceCredentials(req)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	Expect(rr.Code).To(Equal(http.StatusOK))

	var actualResponse struct {
		Meta  meta             `json:"meta"`
		Links navigationLinks  `json:"links"`
		Data  []domain.SyncRun `json:"data"`
	}
	Expect(json.Unmarshal(rr.Body.Bytes(), &actualResponse)).To(Succeed())

	Expect(actualResponse.Meta).To(Equal(expectedResponse.Meta))
	Expect(actualResponse.Links).To(Equal(expectedResponse.Links))
	Expect(actualResponse.Data).To(HaveLen(expectedRuns))
}

var _ = Describe("Run history pagination - 11 runs total", func() {

	var (
		router          *mux.Router
		baseEndpointUrl string
	)

	BeforeEach(func() {
		store := sync_repository.NewMemoryStore()

		var base string
		router, base = newTestSyncServer(&fakeTrigger{}, store)

		conn := seedConnection(store)
		seedRuns(store, conn.ID, 11)

		baseEndpointUrl = base + "/connections/" + conn.ID.String() + "/runs"
	})

	Describe("Returning 5 results per page", func() {
		It("Meta count should be 11, links should be populated", func() {

			var expectedResponse = paginatedResponse{
				Meta: meta{Count: 11},
				Links: navigationLinks{
					First: baseEndpointUrl + "?limit=5&offset=0",
					Last:  baseEndpointUrl + "?limit=5&offset=10",
					Next:  baseEndpointUrl + "?limit=5&offset=5",
					Prev:  "",
				},
			}

			runPaginationTest(router, baseEndpointUrl+"?offset=0&limit=5", expectedResponse, 5)

			expectedResponse.Links.Prev = baseEndpointUrl + "?limit=5&offset=0"
			expectedResponse.Links.Next = baseEndpointUrl + "?limit=5&offset=7"

			runPaginationTest(router, baseEndpointUrl+"?offset=2&limit=5", expectedResponse, 5)

			expectedResponse.Links.Prev = baseEndpointUrl + "?limit=5&offset=5"
			expectedResponse.Links.Next = ""

			runPaginationTest(router, baseEndpointUrl+"?offset=10&limit=5", expectedResponse, 1)
		})
	})

	Describe("Using the default limit", func() {
		It("Should return every run on one page", func() {

			var expectedResponse = paginatedResponse{
				Meta: meta{Count: 11},
				Links: navigationLinks{
					First: baseEndpointUrl + "?limit=25&offset=0",
					Last:  baseEndpointUrl + "?limit=25&offset=0",
				},
			}

			runPaginationTest(router, baseEndpointUrl, expectedResponse, 11)
		})
	})

	Describe("Paging past the end", func() {
		It("Should return no runs and keep the navigation links", func() {

			var expectedResponse = paginatedResponse{
				Meta: meta{Count: 11},
				Links: navigationLinks{
					First: baseEndpointUrl + "?limit=5&offset=0",
					Last:  baseEndpointUrl + "?limit=5&offset=10",
					Prev:  baseEndpointUrl + "?limit=5&offset=15",
				},
			}

			runPaginationTest(router, baseEndpointUrl+"?offset=20&limit=5", expectedResponse, 0)
		})
	})
})

var _ = DescribeTable("calculateOffsetOfLastPage",
	func(total int, limit int, expected int) {
		Expect(calculateOffsetOfLastPage(total, limit)).To(Equal(expected))
	},
	Entry("no results", 0, 5, 0),
	Entry("one partial page", 3, 5, 0),
	Entry("exactly one page", 5, 5, 0),
	Entry("one more than a page", 6, 5, 5),
	Entry("eleven results", 11, 5, 10),
	Entry("ten results", 10, 5, 5),
)
