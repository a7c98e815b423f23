package sync_repository

import (
	"context"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/reconcile"

	"github.com/google/uuid"
)

type ConnectionStore interface {
	GetConnection(context.Context, domain.ConnectionID) (domain.Connection, error)
	ListConnections(context.Context) ([]domain.Connection, error)
	SaveConnection(context.Context, domain.Connection) error
	// UpdateSyncState always records status; lastSyncAt is only written when
	// it is not nil.
	UpdateSyncState(ctx context.Context, id domain.ConnectionID, status domain.SyncStatus, lastSyncAt *time.Time) error
}

type RunStore interface {
	CreateRun(context.Context, *domain.SyncRun) error
	FinishRun(context.Context, *domain.SyncRun) error
	GetRun(context.Context, uuid.UUID) (*domain.SyncRun, error)
	ListRuns(ctx context.Context, connID domain.ConnectionID, offset int, limit int) ([]domain.SyncRun, int, error)
}

type OrganizationStore interface {
	CompaniesWithoutOrganization(ctx context.Context, connID domain.ConnectionID, companyIDs []uuid.UUID) ([]domain.CompanyRef, error)
	FindOrganizationByExternalRef(ctx context.Context, externalRef string) (domain.Organization, error)
	ListOrganizations(context.Context) ([]domain.Organization, error)
	// CreateOrganization returns the stored organization, which is an
	// existing one when another writer claimed the external ref first.
	CreateOrganization(context.Context, domain.Organization) (domain.Organization, error)
	LinkCompany(ctx context.Context, companyID uuid.UUID, organizationID uuid.UUID) error
	SaveMatchReview(context.Context, domain.OrganizationMatchReview) error
	ListMatchReviews(context.Context, domain.ConnectionID) ([]domain.OrganizationMatchReview, error)
}

// Locker hands out the per-connection run lock.  acquired is false when
// another run holds it; release must be called exactly once otherwise.
type Locker interface {
	TryLock(ctx context.Context, connID domain.ConnectionID) (release func(), acquired bool, err error)
}

type Store interface {
	ConnectionStore
	RunStore
	OrganizationStore
	reconcile.Store
	Locker
	Ping(context.Context) error
	Close() error
}
