package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/middlewares"
	"github.com/msp-docs/psa-sync/internal/orchestrator"
	"github.com/msp-docs/psa-sync/internal/sync_repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	testClientID = "crud_app"
	testPSK      = "12345"
)

var seedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func buildIdentityHeader(orgID string, identityType string) string {
	identityJson := fmt.Sprintf(
		"{ \"identity\": {\"org_id\": \"%s\", \"type\": \"%s\", \"internal\": { \"org_id\": \"%s\" } } }",
		orgID,
		identityType,
		orgID)
	return base64.StdEncoding.EncodeToString([]byte(identityJson))
}

func addServiceCredentials(req *http.Request) {
	req.Header.Add(middlewares.PSKClientIdHeader, testClientID)
	req.Header.Add(middlewares.PSKHeader, testPSK)
}

func testConfig() *config.Config {
	cfg := config.GetConfig()
	cfg.ServiceToServiceCredentials = map[string]interface{}{testClientID: testPSK}
	return cfg
}

type fakeTrigger struct {
	mu       sync.Mutex
	requests []orchestrator.TriggerRequest
	run      *domain.SyncRun
	err      error
}

func (t *fakeTrigger) Trigger(ctx context.Context, req orchestrator.TriggerRequest) (*domain.SyncRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	return t.run, t.err
}

func (t *fakeTrigger) lastRequest() orchestrator.TriggerRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[len(t.requests)-1]
}

func newTestSyncServer(trigger SyncTrigger, store *sync_repository.MemoryStore) (*mux.Router, string) {
	cfg := testConfig()
	router := mux.NewRouter()
	server := NewSyncServer(trigger, store, router, cfg.UrlBasePath, cfg)
	server.Routes()
	return router, cfg.UrlBasePath
}

func seedConnection(store *sync_repository.MemoryStore) domain.Connection {
	conn := domain.Connection{
		ID:                   domain.ConnectionID(uuid.New()),
		ProviderType:         domain.ProviderConnectWise,
		BaseURL:              "https://cw.example.com",
		EncryptedCredentials: "sealed",
		EnabledEntityTypes:   []domain.EntityType{domain.EntityCompany},
		SyncInterval:         time.Hour,
		Enabled:              true,
	}
	if err := store.SaveConnection(context.Background(), conn); err != nil {
		panic(err)
	}
	return conn
}

// seedRuns stores count finished runs, one minute apart, newest last
func seedRuns(store *sync_repository.MemoryStore, connID domain.ConnectionID, count int) []*domain.SyncRun {
	runs := make([]*domain.SyncRun, 0, count)
	for i := 0; i < count; i++ {
		run := domain.NewSyncRun(connID, domain.TriggerSchedule, seedTime.Add(time.Duration(i)*time.Minute))
		run.Status = domain.SyncStatusSuccess
		if err := store.CreateRun(context.Background(), run); err != nil {
			panic(err)
		}
		runs = append(runs, run)
	}
	return runs
}
