package sync_repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/reconcile"

	"github.com/google/uuid"
)

type mappingKey struct {
	connID     domain.ConnectionID
	entityType domain.EntityType
	externalID string
}

type memoryRecord struct {
	connID         domain.ConnectionID
	record         domain.CanonicalRecord
	refs           domain.RecordReferences
	organizationID *uuid.UUID
}

type reviewKey struct {
	connID            domain.ConnectionID
	companyExternalID string
}

// MemoryStore keeps everything in process.  It backs local development runs
// and the orchestrator tests; transactions are serialized and undone on
// error.
type MemoryStore struct {
	memoryLocker

	mu            sync.RWMutex
	connections   map[domain.ConnectionID]domain.Connection
	runs          map[uuid.UUID]domain.SyncRun
	mappings      map[mappingKey]*domain.IdentityMapping
	records       map[uuid.UUID]*memoryRecord
	organizations map[uuid.UUID]domain.Organization
	reviews       map[reviewKey]domain.OrganizationMatchReview
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections:   make(map[domain.ConnectionID]domain.Connection),
		runs:          make(map[uuid.UUID]domain.SyncRun),
		mappings:      make(map[mappingKey]*domain.IdentityMapping),
		records:       make(map[uuid.UUID]*memoryRecord),
		organizations: make(map[uuid.UUID]domain.Organization),
		reviews:       make(map[reviewKey]domain.OrganizationMatchReview),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) GetConnection(ctx context.Context, id domain.ConnectionID) (domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[id]
	if !ok {
		return domain.Connection{}, domain.ErrNotFound
	}
	return copyConnection(conn), nil
}

func (s *MemoryStore) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connections := make([]domain.Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		connections = append(connections, copyConnection(conn))
	}
	sort.Slice(connections, func(i, j int) bool {
		return connections[i].ID.String() < connections[j].ID.String()
	})
	return connections, nil
}

func (s *MemoryStore) SaveConnection(ctx context.Context, conn domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[conn.ID] = copyConnection(conn)
	return nil
}

func (s *MemoryStore) UpdateSyncState(ctx context.Context, id domain.ConnectionID, status domain.SyncStatus, lastSyncAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[id]
	if !ok {
		return domain.ErrNotFound
	}

	conn.LastSyncStatus = status
	if lastSyncAt != nil {
		t := *lastSyncAt
		conn.LastSyncAt = &t
	}
	s.connections[id] = conn
	return nil
}

func copyConnection(conn domain.Connection) domain.Connection {
	conn.EnabledEntityTypes = append([]domain.EntityType(nil), conn.EnabledEntityTypes...)
	if conn.LastSyncAt != nil {
		t := *conn.LastSyncAt
		conn.LastSyncAt = &t
	}
	return conn
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("sync run %s already exists", run.ID)
	}
	s.runs[run.ID] = copyRun(*run)
	return nil
}

func (s *MemoryStore) FinishRun(ctx context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return domain.ErrNotFound
	}
	s.runs[run.ID] = copyRun(*run)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	run = copyRun(run)
	return &run, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, connID domain.ConnectionID, offset int, limit int) ([]domain.SyncRun, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []domain.SyncRun
	for _, run := range s.runs {
		if run.ConnectionID == connID {
			runs = append(runs, copyRun(run))
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	total := len(runs)
	if offset >= total {
		return []domain.SyncRun{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return runs[offset:end], total, nil
}

func copyRun(run domain.SyncRun) domain.SyncRun {
	counts := make(map[domain.EntityType]domain.EntityCounts, len(run.Counts))
	for k, v := range run.Counts {
		counts[k] = v
	}
	run.Counts = counts
	run.Errors = append([]domain.EntityError(nil), run.Errors...)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		run.FinishedAt = &t
	}
	return run
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(context.Context, reconcile.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) Lookup(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(connID, entityType, externalID)
}

func (s *MemoryStore) lookup(connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error) {
	mapping, ok := s.mappings[mappingKey{connID, entityType, externalID}]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	return mapping.InternalID, nil
}

// memoryTx runs with the store lock held and keeps an undo log
type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) ClaimMapping(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string, candidateID uuid.UUID, seenAt time.Time) (domain.IdentityMapping, bool, error) {
	key := mappingKey{connID, entityType, externalID}

	if existing, ok := t.store.mappings[key]; ok {
		previous := existing.LastSeenAt
		t.undo = append(t.undo, func() { existing.LastSeenAt = previous })
		existing.LastSeenAt = seenAt
		return *existing, false, nil
	}

	mapping := &domain.IdentityMapping{
		InternalID:   candidateID,
		ConnectionID: connID,
		EntityType:   entityType,
		ExternalID:   externalID,
		FirstSeenAt:  seenAt,
		LastSeenAt:   seenAt,
	}
	t.store.mappings[key] = mapping
	t.undo = append(t.undo, func() { delete(t.store.mappings, key) })

	return *mapping, true, nil
}

func (t *memoryTx) SaveRecord(ctx context.Context, internalID uuid.UUID, connID domain.ConnectionID, rec domain.CanonicalRecord, refs domain.RecordReferences) error {
	previous, existed := t.store.records[internalID]

	saved := &memoryRecord{connID: connID, record: rec, refs: refs}
	if existed {
		if previous.record.EntityType() != rec.EntityType() {
			return &domain.ReconciliationError{EntityType: rec.EntityType(), ExternalID: rec.GetExternalID(),
				Constraint: "internal_id_entity_type", Err: fmt.Errorf("internal id %s belongs to a %s", internalID, previous.record.EntityType())}
		}
		saved.organizationID = previous.organizationID
	}

	t.store.records[internalID] = saved
	t.undo = append(t.undo, func() {
		if existed {
			t.store.records[internalID] = previous
		} else {
			delete(t.store.records, internalID)
		}
	})

	return nil
}

func (t *memoryTx) SetContentHash(ctx context.Context, internalID uuid.UUID, hash string) error {
	for _, mapping := range t.store.mappings {
		if mapping.InternalID == internalID {
			m := mapping
			previous := m.ContentHash
			t.undo = append(t.undo, func() { m.ContentHash = previous })
			m.ContentHash = hash
			return nil
		}
	}
	return domain.ErrNotFound
}

func (t *memoryTx) Lookup(ctx context.Context, connID domain.ConnectionID, entityType domain.EntityType, externalID string) (uuid.UUID, error) {
	return t.store.lookup(connID, entityType, externalID)
}

func (s *MemoryStore) CompaniesWithoutOrganization(ctx context.Context, connID domain.ConnectionID, companyIDs []uuid.UUID) ([]domain.CompanyRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var companies []domain.CompanyRef
	for _, id := range companyIDs {
		stored, ok := s.records[id]
		if !ok || stored.connID != connID || stored.organizationID != nil {
			continue
		}
		company, ok := stored.record.(*domain.CanonicalCompany)
		if !ok {
			continue
		}
		companies = append(companies, domain.CompanyRef{InternalID: id, ExternalID: company.ExternalID, Name: company.Name})
	}

	sort.Slice(companies, func(i, j int) bool {
		if companies[i].Name != companies[j].Name {
			return companies[i].Name < companies[j].Name
		}
		return companies[i].ExternalID < companies[j].ExternalID
	})
	return companies, nil
}

func (s *MemoryStore) FindOrganizationByExternalRef(ctx context.Context, externalRef string) (domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, org := range s.organizations {
		if org.ExternalRef != "" && org.ExternalRef == externalRef {
			return org, nil
		}
	}
	return domain.Organization{}, domain.ErrNotFound
}

func (s *MemoryStore) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	organizations := make([]domain.Organization, 0, len(s.organizations))
	for _, org := range s.organizations {
		organizations = append(organizations, org)
	}
	sort.Slice(organizations, func(i, j int) bool {
		if organizations[i].Name != organizations[j].Name {
			return organizations[i].Name < organizations[j].Name
		}
		return organizations[i].ID.String() < organizations[j].ID.String()
	})
	return organizations, nil
}

func (s *MemoryStore) CreateOrganization(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if org.ExternalRef != "" {
		for _, existing := range s.organizations {
			if existing.ExternalRef == org.ExternalRef {
				return existing, nil
			}
		}
	}

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	s.organizations[org.ID] = org
	return org, nil
}

func (s *MemoryStore) LinkCompany(ctx context.Context, companyID uuid.UUID, organizationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[companyID]
	if !ok || stored.record.EntityType() != domain.EntityCompany {
		return domain.ErrNotFound
	}
	if _, ok := s.organizations[organizationID]; !ok {
		return &domain.ReconciliationError{EntityType: domain.EntityCompany, ExternalID: stored.record.GetExternalID(),
			Constraint: "companies_organization_id_fkey", Err: fmt.Errorf("organization %s does not exist", organizationID)}
	}

	id := organizationID
	stored.organizationID = &id
	return nil
}

func (s *MemoryStore) SaveMatchReview(ctx context.Context, review domain.OrganizationMatchReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	review.Candidates = append([]domain.MatchCandidate(nil), review.Candidates...)
	s.reviews[reviewKey{review.ConnectionID, review.CompanyExternalID}] = review
	return nil
}

func (s *MemoryStore) ListMatchReviews(ctx context.Context, connID domain.ConnectionID) ([]domain.OrganizationMatchReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reviews []domain.OrganizationMatchReview
	for key, review := range s.reviews {
		if key.connID == connID {
			reviews = append(reviews, review)
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		return reviews[i].CompanyName < reviews[j].CompanyName
	})
	return reviews, nil
}

// RecordCount returns how many canonical records of one type a connection has
func (s *MemoryStore) RecordCount(connID domain.ConnectionID, entityType domain.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, stored := range s.records {
		if stored.connID == connID && stored.record.EntityType() == entityType {
			count++
		}
	}
	return count
}

// MappingCount returns how many identity mappings of one type a connection has
func (s *MemoryStore) MappingCount(connID domain.ConnectionID, entityType domain.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.mappings {
		if key.connID == connID && key.entityType == entityType {
			count++
		}
	}
	return count
}

// Mapping returns a copy of one identity mapping
func (s *MemoryStore) Mapping(connID domain.ConnectionID, entityType domain.EntityType, externalID string) (domain.IdentityMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapping, ok := s.mappings[mappingKey{connID, entityType, externalID}]
	if !ok {
		return domain.IdentityMapping{}, false
	}
	return *mapping, true
}

// Record returns the stored canonical record and its resolved references
func (s *MemoryStore) Record(internalID uuid.UUID) (domain.CanonicalRecord, domain.RecordReferences, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.records[internalID]
	if !ok {
		return nil, domain.RecordReferences{}, false
	}
	return stored.record, stored.refs, true
}

// OrganizationOf returns the organization a company is linked to
func (s *MemoryStore) OrganizationOf(companyID uuid.UUID) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.records[companyID]
	if !ok || stored.organizationID == nil {
		return uuid.Nil, false
	}
	return *stored.organizationID, true
}
