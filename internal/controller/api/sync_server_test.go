package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/middlewares"
	"github.com/msp-docs/psa-sync/internal/orchestrator"
	"github.com/msp-docs/psa-sync/internal/sync_repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var _ = Describe("Sync Now", func() {

	var (
		store   *sync_repository.MemoryStore
		trigger *fakeTrigger
		router  *mux.Router
		base    string
		conn    domain.Connection
	)

	BeforeEach(func() {
		store = sync_repository.NewMemoryStore()
		trigger = &fakeTrigger{}
		router, base = newTestSyncServer(trigger, store)
		conn = seedConnection(store)
	})

	post := func(path string, body string, authenticated bool) *httptest.ResponseRecorder {
		req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		if authenticated {
			addServiceCredentials(req)
		}

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	syncPath := func(id string) string {
		return base + "/connections/" + id + "/sync"
	}

	Context("When the run finishes", func() {
		It("Should return the run", func() {
			run := domain.NewSyncRun(conn.ID, domain.TriggerManual, seedTime)
			run.Status = domain.SyncStatusPartial
			run.Counts[domain.EntityCompany] = domain.EntityCounts{Created: 50}
			trigger.run = run

			rr := post(syncPath(conn.ID.String()), `{"force": true}`, true)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var got domain.SyncRun
			Expect(json.Unmarshal(rr.Body.Bytes(), &got)).To(Succeed())
			Expect(got.ID).To(Equal(run.ID))
			Expect(got.Status).To(Equal(domain.SyncStatusPartial))
			Expect(got.Counts[domain.EntityCompany].Created).To(Equal(50))

			Expect(trigger.lastRequest()).To(Equal(orchestrator.TriggerRequest{
				ConnectionID: conn.ID,
				Force:        true,
				Source:       domain.TriggerManual,
			}))
		})

		It("Should accept an empty body", func() {
			trigger.run = domain.NewSyncRun(conn.ID, domain.TriggerManual, seedTime)

			rr := post(syncPath(conn.ID.String()), "", true)

			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(trigger.lastRequest().Force).To(BeTrue())
		})

		It("Should only wait for the interval when asked to", func() {
			trigger.run = domain.NewSyncRun(conn.ID, domain.TriggerManual, seedTime)

			rr := post(syncPath(conn.ID.String()), `{"force": false}`, true)

			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(trigger.lastRequest().Force).To(BeFalse())
		})
	})

	Context("When a run is already in progress", func() {
		It("Should return 202 already_running", func() {
			rr := post(syncPath(conn.ID.String()), `{"force": false}`, true)

			Expect(rr.Code).To(Equal(http.StatusAccepted))
			Expect(rr.Body.String()).To(MatchJSON(`{"status": "already_running"}`))
		})
	})

	Context("When the connection is not due", func() {
		It("Should return 202 not_due", func() {
			trigger.err = orchestrator.ErrNotDue

			rr := post(syncPath(conn.ID.String()), `{"force": false}`, true)

			Expect(rr.Code).To(Equal(http.StatusAccepted))
			Expect(rr.Body.String()).To(MatchJSON(`{"status": "not_due"}`))
		})
	})

	DescribeTable("Should map trigger errors to status codes",
		func(triggerErr error, expectedStatus int) {
			trigger.err = triggerErr

			rr := post(syncPath(conn.ID.String()), `{}`, true)

			Expect(rr.Code).To(Equal(expectedStatus))

			var resp errorResponse
			Expect(json.Unmarshal(rr.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Status).To(Equal(expectedStatus))
		},
		Entry("unknown connection", domain.ErrNotFound, http.StatusNotFound),
		Entry("disabled connection", domain.ErrConnectionDisabled, http.StatusConflict),
		Entry("store failure", errors.New("database is down"), http.StatusInternalServerError),
	)

	It("Should reject an invalid connection id", func() {
		rr := post(syncPath("not-a-uuid"), `{}`, true)

		Expect(rr.Code).To(Equal(http.StatusBadRequest))
		Expect(trigger.requests).To(BeEmpty())
	})

	It("Should reject malformed json", func() {
		rr := post(syncPath(conn.ID.String()), `{"force": `, true)

		Expect(rr.Code).To(Equal(http.StatusBadRequest))
		Expect(trigger.requests).To(BeEmpty())
	})

	It("Should require authentication", func() {
		rr := post(syncPath(conn.ID.String()), `{}`, false)

		Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		Expect(trigger.requests).To(BeEmpty())
	})

	It("Should accept an identity header", func() {
		trigger.run = domain.NewSyncRun(conn.ID, domain.TriggerManual, seedTime)

		req, err := http.NewRequest(http.MethodPost, syncPath(conn.ID.String()), nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Add("x-rh-identity", buildIdentityHeader("000001", "User"))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("Run history", func() {

	var (
		store  *sync_repository.MemoryStore
		router *mux.Router
		base   string
		conn   domain.Connection
		runs   []*domain.SyncRun
	)

	BeforeEach(func() {
		store = sync_repository.NewMemoryStore()
		router, base = newTestSyncServer(&fakeTrigger{}, store)
		conn = seedConnection(store)
		runs = seedRuns(store, conn.ID, 3)
	})

	get := func(path string) *httptest.ResponseRecorder {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		Expect(err).NotTo(HaveOccurred())
		addServiceCredentials(req)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	It("Should list runs newest first", func() {
		rr := get(base + "/connections/" + conn.ID.String() + "/runs")

		Expect(rr.Code).To(Equal(http.StatusOK))

		var resp struct {
			Meta meta             `json:"meta"`
			Data []domain.SyncRun `json:"data"`
		}
		Expect(json.Unmarshal(rr.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Meta.Count).To(Equal(3))
		Expect(resp.Data).To(HaveLen(3))
		Expect(resp.Data[0].ID).To(Equal(runs[2].ID))
		Expect(resp.Data[2].ID).To(Equal(runs[0].ID))
	})

	It("Should return an empty list for a connection without runs", func() {
		other := seedConnection(store)

		rr := get(base + "/connections/" + other.ID.String() + "/runs")

		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(rr.Body.String()).To(MatchJSON(`{"meta": {"count": 0}, "links": {}, "data": []}`))
	})

	It("Should return 404 for an unknown connection", func() {
		rr := get(base + "/connections/" + uuid.NewString() + "/runs")

		Expect(rr.Code).To(Equal(http.StatusNotFound))
	})

	DescribeTable("Should reject bad paging parameters",
		func(query string) {
			rr := get(base + "/connections/" + conn.ID.String() + "/runs?" + query)

			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		},
		Entry("negative offset", "offset=-1"),
		Entry("non-numeric limit", "limit=ten"),
		Entry("zero limit", "limit=0"),
		Entry("limit too large", "limit=501"),
	)

	It("Should get a single run", func() {
		rr := get(base + "/runs/" + runs[1].ID.String())

		Expect(rr.Code).To(Equal(http.StatusOK))

		var got domain.SyncRun
		Expect(json.Unmarshal(rr.Body.Bytes(), &got)).To(Succeed())
		Expect(got.ID).To(Equal(runs[1].ID))
		Expect(got.ConnectionID).To(Equal(conn.ID))
	})

	It("Should return 404 for an unknown run", func() {
		rr := get(base + "/runs/" + uuid.NewString())

		Expect(rr.Code).To(Equal(http.StatusNotFound))
	})

	It("Should reject an invalid run id", func() {
		rr := get(base + "/runs/42")

		Expect(rr.Code).To(Equal(http.StatusBadRequest))
	})

	It("Should require authentication", func() {
		req, err := http.NewRequest(http.MethodGet, base+"/runs/"+runs[0].ID.String(), nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Add(middlewares.PSKClientIdHeader, testClientID)
		req.Header.Add(middlewares.PSKHeader, "wrong")

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusUnauthorized))
	})
})
